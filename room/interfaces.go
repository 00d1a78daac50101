package room

// Broadcaster defines the interface for delivering messages to a room's
// occupants. Defined here to break the import cycle between room and broadcast.
type Broadcaster interface {
	BroadcastToRoom(roomID string, msgID uint16, data []byte) error
	BroadcastToRoomExcept(roomID, exceptSessionID string, msgID uint16, data []byte) error
}
