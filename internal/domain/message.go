package domain

import "encoding/json"

// DefaultDisplayTimeoutSeconds applies when a user never configured a timeout
// or the stored value cannot be parsed.
const DefaultDisplayTimeoutSeconds = 10

// Icon is one of the fixed notification images shipped with the browser client.
type Icon string

const (
	IconAborted               Icon = "aborted"
	IconFailed                Icon = "failed"
	IconHanging               Icon = "hanging"
	IconMute                  Icon = "mute"
	IconResponsibilityChanged Icon = "responsibility-changed"
	IconStarted               Icon = "started"
	IconSuccessful            Icon = "successful"
	IconUnmute                Icon = "unmute"
	IconYouAreResponsible     Icon = "you-are-responsible"
)

// FileName is the value sent on the wire; the client resolves it against its image directory.
func (i Icon) FileName() string {
	return string(i) + ".png"
}

// Message is one notification. It is a value type: per-recipient variants are
// derived with WithDisplayTimeout and never mutate the original.
type Message struct {
	Title                 string
	Body                  string
	Tag                   string
	Icon                  Icon
	URL                   string
	DisplayTimeoutSeconds int
}

// WithDisplayTimeout returns a copy of m stamped with a recipient's timeout.
func (m Message) WithDisplayTimeout(seconds int) Message {
	m.DisplayTimeoutSeconds = seconds
	return m
}

// wireMessage is the JSON contract consumed by the browser client. Field names
// and order must stay stable.
type wireMessage struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	Icon    string `json:"icon"`
	Tag     string `json:"tag"`
	URL     string `json:"url"`
	Timeout int    `json:"timeout"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireMessage{
		Title:   m.Title,
		Body:    m.Body,
		Icon:    m.Icon.FileName(),
		Tag:     m.Tag,
		URL:     m.URL,
		Timeout: m.DisplayTimeoutSeconds,
	})
}
