// Package room holds the in-memory membership state for active rooms.
//
// Neither Room nor Registry locks internally: all mutation goes through the
// signaling hub's single event loop, which is the sole writer.
package room

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Participant is one member of a room, keyed by its connection identity.
type Participant struct {
	Identity string
	Name     string
	MediaTag string
	Muted    bool
}

// Room is the membership aggregate for a single room. The creator identity is
// recorded once at creation and never reassigned, even after the creator
// disconnects.
type Room struct {
	ID        string
	Creator   string
	CreatedAt time.Time

	participants map[string]*Participant
	order        []string
}

// NewRoomID returns a fresh opaque room identifier with 128 bits of
// cryptographically strong randomness. It does not register anything; the
// identifier only becomes a room when someone joins it.
func NewRoomID() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate room id: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}

func newRoom(id, creator string) *Room {
	return &Room{
		ID:           id,
		Creator:      creator,
		CreatedAt:    time.Now(),
		participants: make(map[string]*Participant),
	}
}

// AddParticipant inserts a participant keyed by identity. A stale entry for
// the same identity is overwritten in place; identities are unique per live
// connection.
func (r *Room) AddParticipant(identity, name, mediaTag string) *Participant {
	p := &Participant{
		Identity: identity,
		Name:     name,
		MediaTag: mediaTag,
	}
	if _, exists := r.participants[identity]; !exists {
		r.order = append(r.order, identity)
	}
	r.participants[identity] = p
	return p
}

// RemoveParticipant deletes the participant with the given identity. It is a
// no-op when the identity is not a member.
func (r *Room) RemoveParticipant(identity string) {
	if _, ok := r.participants[identity]; !ok {
		return
	}
	delete(r.participants, identity)
	for i, id := range r.order {
		if id == identity {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get returns the participant with the given identity, or nil.
func (r *Room) Get(identity string) *Participant {
	return r.participants[identity]
}

// IsCreator reports whether identity is the room's creator.
func (r *Room) IsCreator(identity string) bool {
	return identity == r.Creator
}

// Participants returns a snapshot of all members in insertion order. Nobody
// is filtered out; excluding the requester is the caller's concern.
func (r *Room) Participants() []*Participant {
	out := make([]*Participant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.participants[id])
	}
	return out
}

// IsEmpty reports whether the room has no members left.
func (r *Room) IsEmpty() bool {
	return len(r.participants) == 0
}

// Len returns the current member count.
func (r *Room) Len() int {
	return len(r.participants)
}
