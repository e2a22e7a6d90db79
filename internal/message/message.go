package message

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks where a message sits in the delivery state machine:
// composed messages start as StatusSending and end up StatusSent or
// StatusFailed; scheduled messages hold StatusScheduled until promoted.
type Status string

const (
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusScheduled Status = "scheduled"
	StatusFailed    Status = "failed"
)

// Kind discriminates the message body variants.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindFile  Kind = "file"
	KindVoice Kind = "voice"
)

// Body is the payload variant of a message. Each variant carries only
// the fields meaningful for its kind.
type Body interface {
	Kind() Kind
}

// TextBody is plain conversation text, or the obscured payload when the
// owning message is marked encrypted.
type TextBody struct {
	Content string `json:"content"`
}

func (TextBody) Kind() Kind { return KindText }

// ImageBody references a locally stored image.
type ImageBody struct {
	MediaURL string `json:"media_url"`
	Caption  string `json:"caption,omitempty"`
}

func (ImageBody) Kind() Kind { return KindImage }

// FileBody references an arbitrary attachment by location and name.
type FileBody struct {
	MediaURL string `json:"media_url"`
	FileName string `json:"file_name"`
}

func (FileBody) Kind() Kind { return KindFile }

// VoiceBody references a recorded clip with its length in seconds.
type VoiceBody struct {
	MediaURL string  `json:"media_url"`
	Duration float64 `json:"duration"`
}

func (VoiceBody) Kind() Kind { return KindVoice }

// Reaction is one user's reaction to a message. The reactions list is
// append-only; the same user may react the same way more than once.
type Reaction struct {
	UserID    string    `json:"user_id"`
	Reaction  string    `json:"reaction"`
	Timestamp time.Time `json:"timestamp"`
}

// Edit preserves a superseded content value. Edits push the pre-edit
// content here before the canonical content changes.
type Edit struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// LinkPreview carries fetched metadata for a URL found in message text.
// Immutable once attached to a message.
type LinkPreview struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url,omitempty"`
}

// Message is a single unit of conversation content.
type Message struct {
	ID            string
	SenderID      string
	ReceiverID    string
	Body          Body
	Timestamp     time.Time
	Status        Status
	Read          bool
	Encrypted     bool
	Reactions     []Reaction
	EditHistory   []Edit
	ScheduledFor  time.Time
	ForwardedFrom string
	LinkPreviews  []LinkPreview
}

// New builds a text message with a fresh id and creation timestamp.
func New(senderID, receiverID, content string) Message {
	return Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       TextBody{Content: content},
		Timestamp:  time.Now().UTC(),
		Status:     StatusSending,
	}
}

// Content returns the textual payload for text bodies and the empty
// string for media variants.
func (m Message) Content() string {
	if body, ok := m.Body.(TextBody); ok {
		return body.Content
	}
	return ""
}

// Kind reports the body variant, defaulting to text when unset.
func (m Message) Kind() Kind {
	if m.Body == nil {
		return KindText
	}
	return m.Body.Kind()
}

// Before orders messages by timestamp, breaking ties by id so the
// timeline order is total and stable.
func (m Message) Before(other Message) bool {
	if m.Timestamp.Equal(other.Timestamp) {
		return m.ID < other.ID
	}
	return m.Timestamp.Before(other.Timestamp)
}
