package message

import (
	"encoding/json"
	"fmt"
	"time"
)

// wire is the flat serialized form shared by the durable stores and
// backup archives. The type field gates which optional fields are
// meaningful, so archives stay readable by other tooling.
type wire struct {
	ID            string        `json:"id"`
	SenderID      string        `json:"sender_id"`
	ReceiverID    string        `json:"receiver_id"`
	Type          Kind          `json:"type"`
	Content       string        `json:"content,omitempty"`
	MediaURL      string        `json:"media_url,omitempty"`
	Caption       string        `json:"caption,omitempty"`
	FileName      string        `json:"file_name,omitempty"`
	Duration      float64       `json:"duration,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
	Status        Status        `json:"status"`
	Read          bool          `json:"read"`
	Encrypted     bool          `json:"encrypted"`
	Reactions     []Reaction    `json:"reactions,omitempty"`
	EditHistory   []Edit        `json:"edit_history,omitempty"`
	ScheduledFor  *time.Time    `json:"scheduled_for,omitempty"`
	ForwardedFrom string        `json:"forwarded_from,omitempty"`
	LinkPreviews  []LinkPreview `json:"link_previews,omitempty"`
}

// MarshalJSON flattens the body variant into the wire form.
func (m Message) MarshalJSON() ([]byte, error) {
	w := wire{
		ID:            m.ID,
		SenderID:      m.SenderID,
		ReceiverID:    m.ReceiverID,
		Type:          m.Kind(),
		Timestamp:     m.Timestamp,
		Status:        m.Status,
		Read:          m.Read,
		Encrypted:     m.Encrypted,
		Reactions:     m.Reactions,
		EditHistory:   m.EditHistory,
		ForwardedFrom: m.ForwardedFrom,
		LinkPreviews:  m.LinkPreviews,
	}
	if !m.ScheduledFor.IsZero() {
		at := m.ScheduledFor
		w.ScheduledFor = &at
	}
	switch body := m.Body.(type) {
	case nil:
	case TextBody:
		w.Content = body.Content
	case ImageBody:
		w.MediaURL = body.MediaURL
		w.Caption = body.Caption
	case FileBody:
		w.MediaURL = body.MediaURL
		w.FileName = body.FileName
	case VoiceBody:
		w.MediaURL = body.MediaURL
		w.Duration = body.Duration
	default:
		return nil, fmt.Errorf("unknown message body %T", m.Body)
	}
	return json.Marshal(w)
}

// UnmarshalJSON rebuilds the body variant from the type discriminator.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = Message{
		ID:            w.ID,
		SenderID:      w.SenderID,
		ReceiverID:    w.ReceiverID,
		Timestamp:     w.Timestamp,
		Status:        w.Status,
		Read:          w.Read,
		Encrypted:     w.Encrypted,
		Reactions:     w.Reactions,
		EditHistory:   w.EditHistory,
		ForwardedFrom: w.ForwardedFrom,
		LinkPreviews:  w.LinkPreviews,
	}
	if w.ScheduledFor != nil {
		m.ScheduledFor = *w.ScheduledFor
	}
	switch w.Type {
	case KindText, "":
		m.Body = TextBody{Content: w.Content}
	case KindImage:
		m.Body = ImageBody{MediaURL: w.MediaURL, Caption: w.Caption}
	case KindFile:
		m.Body = FileBody{MediaURL: w.MediaURL, FileName: w.FileName}
	case KindVoice:
		m.Body = VoiceBody{MediaURL: w.MediaURL, Duration: w.Duration}
	default:
		return fmt.Errorf("unknown message type %q", w.Type)
	}
	return nil
}

// MediaURL returns the referenced media location for media variants and
// the empty string for text.
func (m Message) MediaURL() string {
	switch body := m.Body.(type) {
	case ImageBody:
		return body.MediaURL
	case FileBody:
		return body.MediaURL
	case VoiceBody:
		return body.MediaURL
	}
	return ""
}
