// Package feed carries live change events for rooms and room lists.
package feed

import (
	"encoding/json"
	"sort"

	"tasukeai/api/internal/store"
)

// Kind classifies a change event.
type Kind string

const (
	Added    Kind = "added"
	Modified Kind = "modified"
	Removed  Kind = "removed"
)

// Event is a single change delivered to subscribers. Payload holds the
// JSON-encoded entity (a message or room summary).
type Event struct {
	Kind    Kind            `json:"kind"`
	Entity  string          `json:"entity"`
	Payload json.RawMessage `json:"payload"`
}

// RoomChannel is the fan-out channel for a single room's message feed.
func RoomChannel(roomID string) string {
	return "room:" + roomID
}

// UserChannel is the fan-out channel for a user's room list.
func UserChannel(uid string) string {
	return "user:" + uid
}

// NewEvent builds an event carrying an arbitrary JSON payload.
func NewEvent(kind Kind, entity string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Kind: kind, Entity: entity, Payload: raw}, nil
}

// MessageEvent builds an event carrying a message.
func MessageEvent(kind Kind, payload any) (Event, error) {
	return NewEvent(kind, "message", payload)
}

// RoomEvent builds an event carrying a room.
func RoomEvent(kind Kind, payload any) (Event, error) {
	return NewEvent(kind, "room", payload)
}

// Timeline maintains a message list in ascending created-at order no matter
// in what order change events arrive.
type Timeline struct {
	limit    int
	messages []store.Message
}

// NewTimeline creates a timeline bounded to limit messages. A limit of zero
// means unbounded.
func NewTimeline(limit int) *Timeline {
	return &Timeline{limit: limit}
}

// Apply folds one change event into the timeline.
func (t *Timeline) Apply(kind Kind, message store.Message) {
	switch kind {
	case Added:
		for i, existing := range t.messages {
			if existing.ID == message.ID {
				t.messages[i] = message
				return
			}
		}
		t.messages = append(t.messages, message)
		sort.SliceStable(t.messages, func(i, j int) bool {
			return t.messages[i].CreatedAt.Before(t.messages[j].CreatedAt)
		})
		if t.limit > 0 && len(t.messages) > t.limit {
			t.messages = t.messages[len(t.messages)-t.limit:]
		}
	case Modified:
		for i, existing := range t.messages {
			if existing.ID == message.ID {
				t.messages[i] = message
				return
			}
		}
	case Removed:
		for i, existing := range t.messages {
			if existing.ID == message.ID {
				t.messages = append(t.messages[:i], t.messages[i+1:]...)
				return
			}
		}
	}
}

// Messages returns the current ascending snapshot.
func (t *Timeline) Messages() []store.Message {
	out := make([]store.Message, len(t.messages))
	copy(out, t.messages)
	return out
}
