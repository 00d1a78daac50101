package broadcast

import (
	"errors"

	"github.com/wfunc/boardrelay/room"
)

var ErrRoomNotFound = errors.New("room not found")

// Broadcaster delivers a message to the occupants of a room, optionally
// excluding one session (the sender of a relayed payload).
type Broadcaster interface {
	BroadcastToRoom(roomID string, msgID uint16, data []byte) error
	BroadcastToRoomExcept(roomID, exceptSessionID string, msgID uint16, data []byte) error
}

// RoomBroadcaster fans a message out over the room's live occupant list.
type RoomBroadcaster struct {
	roomManager *room.Manager
}

func NewRoomBroadcaster(roomManager *room.Manager) *RoomBroadcaster {
	return &RoomBroadcaster{roomManager: roomManager}
}

func (b *RoomBroadcaster) BroadcastToRoom(roomID string, msgID uint16, data []byte) error {
	return b.send(roomID, "", msgID, data)
}

func (b *RoomBroadcaster) BroadcastToRoomExcept(roomID, exceptSessionID string, msgID uint16, data []byte) error {
	return b.send(roomID, exceptSessionID, msgID, data)
}

func (b *RoomBroadcaster) send(roomID, exceptSessionID string, msgID uint16, data []byte) error {
	rm, exists := b.roomManager.GetRoom(roomID)
	if !exists {
		return ErrRoomNotFound
	}

	for _, s := range rm.GetSessions() {
		if exceptSessionID != "" && s.ID == exceptSessionID {
			continue
		}
		if err := s.Send(msgID, data); err != nil {
			// A dead occupant is reaped by its own disconnect path.
			continue
		}
	}

	return nil
}
