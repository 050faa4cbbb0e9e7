package domain

// ConnectionID is the transport-assigned identity of one live channel.
// It never changes after the channel is created.
type ConnectionID string

func (id ConnectionID) String() string {
	return string(id)
}

// Connection is one live transport-level channel to one browser tab or window.
// The transport owns it; everyone else only queries IsOpen and calls SendText.
type Connection interface {
	ID() ConnectionID
	IsOpen() bool
	SendText(payload []byte) error
}
