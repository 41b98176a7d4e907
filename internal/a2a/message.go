package a2a

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// KindText is the default content kind of a part.
const KindText = "text/plain"

// ErrEmptyMessage is returned when a message carries no parts.
var ErrEmptyMessage = errors.New("message must contain at least one part")

// Part is one content payload of a message.
type Part struct {
	Content string `json:"content"`
	Kind    string `json:"kind,omitempty"`
}

// Message is the unit exchanged between agents. The first part holds the
// primary payload; any additional parts are carried but not interpreted.
type Message struct {
	MessageID string `json:"message_id,omitempty"`
	ContextID string `json:"context_id,omitempty"`
	Role      Role   `json:"role,omitempty"`
	Parts     []Part `json:"parts"`
}

// NewTextMessage builds a single-part text message with a fresh message ID.
func NewTextMessage(role Role, text string) *Message {
	return &Message{
		MessageID: uuid.NewString(),
		Role:      role,
		Parts:     []Part{{Content: text, Kind: KindText}},
	}
}

// WithContext returns a copy of the message bound to the given context ID.
func (m *Message) WithContext(contextID string) *Message {
	cp := *m
	cp.Parts = append([]Part(nil), m.Parts...)
	cp.ContextID = contextID
	return &cp
}

// Text returns the content of the first part, or "" for an empty message.
func (m *Message) Text() string {
	if m == nil || len(m.Parts) == 0 {
		return ""
	}
	return m.Parts[0].Content
}

// Validate checks the at-least-one-part invariant and fills in default kinds.
func (m *Message) Validate() error {
	if m == nil || len(m.Parts) == 0 {
		return ErrEmptyMessage
	}
	for i := range m.Parts {
		if strings.TrimSpace(m.Parts[i].Kind) == "" {
			m.Parts[i].Kind = KindText
		}
	}
	return nil
}
