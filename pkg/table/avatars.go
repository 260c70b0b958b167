package table

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/bystac/pokernetwork/pkg/packet"
)

// defaultSendQueue bounds the per-session outbound queue. A session that
// cannot drain its queue loses packets rather than stalling the table.
const defaultSendQueue = 64

// Avatar is one live client session bound to a player serial. A player may
// hold several simultaneous sessions; packets addressed to the serial fan
// out to all of them.
type Avatar struct {
	SessionID uuid.UUID

	serial int64
	name   string
	tables map[int64]struct{}
	send   chan packet.Packet

	// ProcessingHand is set while the client renders the previous hand;
	// IgnoreProcessing is set once the client missed the ready-to-play
	// deadline and its future ProcessingHand requests are ignored.
	ProcessingHand   bool
	IgnoreProcessing bool

	dropped int
}

// NewAvatar creates a session for the given player serial.
func NewAvatar(serial int64, name string) *Avatar {
	return &Avatar{
		SessionID: uuid.New(),
		serial:    serial,
		name:      name,
		tables:    make(map[int64]struct{}),
		send:      make(chan packet.Packet, defaultSendQueue),
	}
}

// Serial returns the player identity behind the session.
func (a *Avatar) Serial() int64 { return a.serial }

// Name returns the display name behind the session.
func (a *Avatar) Name() string { return a.name }

// Send queues a packet for delivery; a full queue drops the packet.
func (a *Avatar) Send(p packet.Packet) {
	select {
	case a.send <- p:
	default:
		a.dropped++
	}
}

// Packets exposes the session's outbound queue to the transport.
func (a *Avatar) Packets() <-chan packet.Packet { return a.send }

// Dropped returns how many packets were lost to a full queue.
func (a *Avatar) Dropped() int { return a.dropped }

// attachTable records the table id in the session's joined set.
func (a *Avatar) attachTable(gameID int64) { a.tables[gameID] = struct{}{} }

// detachTable removes the table id from the session's joined set.
func (a *Avatar) detachTable(gameID int64) { delete(a.tables, gameID) }

// HasTable reports whether the session has joined the table.
func (a *Avatar) HasTable(gameID int64) bool {
	_, ok := a.tables[gameID]
	return ok
}

// TableCount returns how many tables the session has joined.
func (a *Avatar) TableCount() int { return len(a.tables) }

func (a *Avatar) String() string {
	return fmt.Sprintf("avatar(%d/%s)", a.serial, a.SessionID)
}

// AvatarCollection indexes the live sessions of seated players by serial.
// Observers are kept in the table's flat observer list instead.
type AvatarCollection struct {
	serial2avatars map[int64][]*Avatar
}

// NewAvatarCollection returns an empty collection.
func NewAvatarCollection() *AvatarCollection {
	return &AvatarCollection{serial2avatars: make(map[int64][]*Avatar)}
}

// Get returns the sessions registered for the serial, oldest first.
func (c *AvatarCollection) Get(serial int64) []*Avatar {
	return c.serial2avatars[serial]
}

// Add registers a session; adding the same session twice is a no-op.
func (c *AvatarCollection) Add(avatar *Avatar) {
	serial := avatar.Serial()
	for _, existing := range c.serial2avatars[serial] {
		if existing == avatar {
			return
		}
	}
	c.serial2avatars[serial] = append(c.serial2avatars[serial], avatar)
}

// Remove unregisters a session. The session must be present.
func (c *AvatarCollection) Remove(avatar *Avatar) {
	serial := avatar.Serial()
	avatars := c.serial2avatars[serial]
	for i, existing := range avatars {
		if existing == avatar {
			c.serial2avatars[serial] = append(avatars[:i], avatars[i+1:]...)
			if len(c.serial2avatars[serial]) == 0 {
				delete(c.serial2avatars, serial)
			}
			return
		}
	}
	panic(fmt.Sprintf("expected %d avatar in %v", serial, avatars))
}

// Serials returns the serials with at least one live session.
func (c *AvatarCollection) Serials() []int64 {
	serials := make([]int64, 0, len(c.serial2avatars))
	for serial := range c.serial2avatars {
		serials = append(serials, serial)
	}
	return serials
}

// Iter calls fn for every registered session.
func (c *AvatarCollection) Iter(fn func(*Avatar)) {
	for _, avatars := range c.serial2avatars {
		for _, avatar := range avatars {
			fn(avatar)
		}
	}
}

// IsEmpty reports whether no session is registered.
func (c *AvatarCollection) IsEmpty() bool {
	return len(c.serial2avatars) == 0
}
