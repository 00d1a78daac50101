package models

import (
	"encoding/json"
	"time"

	"github.com/wfunc/boardrelay/room"
)

// --- wire payloads ---

type JoinRoomRequest struct {
	RoomID   string `json:"room_id"`
	GameType string `json:"game_type,omitempty"`
}

type JoinedRoom struct {
	RoomID  string    `json:"room_id"`
	Members int       `json:"members"`
	Role    room.Role `json:"role,omitempty"`
	GuestID string    `json:"guest_id,omitempty"`
}

type RoomPaired struct {
	RoomID    string               `json:"room_id"`
	Members   int                  `json:"members"`
	FirstRole room.Role            `json:"first_role"`
	GuestIDs  map[room.Role]string `json:"guest_ids,omitempty"`
}

type SetFirstRoleRequest struct {
	RoomID    string         `json:"room_id"`
	FirstRole room.FirstRole `json:"first_role"`
}

type StartGameRequest struct {
	RoomID string `json:"room_id"`
}

type PlayerMove struct {
	RoomID   string         `json:"room_id"`
	ColIndex *int           `json:"col_index,omitempty"`
	Position *room.Position `json:"position,omitempty"`
}

type SyncBoardRequest struct {
	RoomID       string          `json:"room_id"`
	Board        json.RawMessage `json:"board,omitempty"`
	CurrentRole  room.Role       `json:"current_role,omitempty"`
	LastPosition *room.Position  `json:"last_position,omitempty"`
}

type RestartRequest struct {
	RoomID string `json:"room_id"`
}

type RestartNotice struct {
	FirstRole room.Role `json:"first_role"`
}

type MembersUpdate struct {
	Members int `json:"members"`
}

type PeerDisconnected struct {
	Members int `json:"members"`
}

// --- archive models ---

// MatchRecord is appended to the archive when a room that paired at least
// once is reclaimed.
type MatchRecord struct {
	RoomID    string            `json:"room_id"`
	GameType  string            `json:"game_type"`
	GuestIDs  map[string]string `json:"guest_ids"`
	StartedAt time.Time         `json:"started_at"`
	EndedAt   time.Time         `json:"ended_at"`
	Duration  int               `json:"duration"` // seconds
}
