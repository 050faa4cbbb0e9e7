// Package app provides the application service layer.
//
// Turns incoming build events into notifications and routes them either through
// the cross-instance relay or straight to this instance's connections.
package app
