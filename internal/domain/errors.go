package domain

import "errors"

var (
	ErrUnauthenticated    = errors.New("no authenticated principal")
	ErrIdentityMismatch   = errors.New("resumed connection belongs to a different user")
	ErrTooManyConnections = errors.New("too many connections for user")
	ErrConnectionClosed   = errors.New("connection closed")
	ErrSendBufferFull     = errors.New("connection send buffer full")
	ErrUnknownEventKind   = errors.New("unknown event kind")
	ErrInvalidEvent       = errors.New("invalid event")
	ErrSettingsNotFound   = errors.New("settings not found")
)
