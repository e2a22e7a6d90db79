package storage

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"offline-chat/internal/message"
)

// timelineKey orders messages by creation time with the id as a
// tie-break. Re-putting a message with the same timestamp and id
// overwrites in place, which is how status updates reach disk.
func timelineKey(msg message.Message) []byte {
	return []byte(fmt.Sprintf("%020d-%s", msg.Timestamp.UnixNano(), msg.ID))
}

// PutMessage persists a message into the ordered timeline.
func (s *Store) PutMessage(msg message.Message) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(timelineBucket)).Put(timelineKey(msg), data)
	})
}

// Recent returns up to limit newest messages, newest first.
func (s *Store) Recent(limit int) ([]message.Message, error) {
	if s == nil || s.db == nil || limit <= 0 {
		return nil, nil
	}
	var out []message.Message
	err := s.db.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket([]byte(timelineBucket)).Cursor()
		for k, v := cursor.Last(); k != nil && limit > 0; k, v = cursor.Prev() {
			var msg message.Message
			if err := json.Unmarshal(v, &msg); err == nil {
				out = append(out, msg)
			}
			limit--
		}
		return nil
	})
	return out, err
}

// PageBefore returns up to limit messages strictly older than cursor,
// newest first, plus the cursor for the next (older) page. An empty
// cursor starts from the newest message. A short or empty page means
// the history is exhausted.
func (s *Store) PageBefore(cursor string, limit int) ([]message.Message, string, error) {
	if s == nil || s.db == nil || limit <= 0 {
		return nil, "", nil
	}
	var out []message.Message
	var next string
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(timelineBucket)).Cursor()
		var k, v []byte
		if cursor == "" {
			k, v = c.Last()
		} else {
			k, v = c.Seek([]byte(cursor))
			if k == nil {
				k, v = c.Last()
			} else {
				k, v = c.Prev()
			}
		}
		for ; k != nil && len(out) < limit; k, v = c.Prev() {
			var msg message.Message
			if err := json.Unmarshal(v, &msg); err == nil {
				out = append(out, msg)
				next = string(k)
			}
		}
		return nil
	})
	return out, next, err
}

// AllMessages returns the full timeline oldest first, for backup.
func (s *Store) AllMessages() ([]message.Message, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var out []message.Message
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(timelineBucket)).ForEach(func(_, v []byte) error {
			var msg message.Message
			if err := json.Unmarshal(v, &msg); err == nil {
				out = append(out, msg)
			}
			return nil
		})
	})
	return out, err
}
