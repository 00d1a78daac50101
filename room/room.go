package room

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/wfunc/boardrelay/session"
	"github.com/wfunc/boardrelay/state"
)

// Role tags the two turn-holders of a room. Not a permission level.
type Role string

const (
	RoleFirst  Role = "first"
	RoleSecond Role = "second"
)

// FirstRole is the first-mover preference: a fixed role tag, or the random
// sentinel meaning "draw at pairing time and again on every restart".
type FirstRole string

const FirstRoleRandom FirstRole = "random"

func (f FirstRole) Valid() bool {
	switch f {
	case FirstRoleRandom, FirstRole(RoleFirst), FirstRole(RoleSecond):
		return true
	}
	return false
}

// GameType is fixed at room creation and informational only; the relay never
// interprets board contents.
type GameType string

const (
	GameConnect4 GameType = "connect4"
	GameReversi  GameType = "reversi"
	GameUnset    GameType = ""
)

type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Snapshot is the last board state a room observed. All fields optional;
// the board bytes are opaque to the relay.
type Snapshot struct {
	Board        json.RawMessage `json:"board,omitempty"`
	CurrentRole  Role            `json:"current_role,omitempty"`
	LastPosition *Position       `json:"last_position,omitempty"`
}

// Empty reports whether no field of the snapshot is set.
func (s Snapshot) Empty() bool {
	boardSet := len(s.Board) > 0 && string(s.Board) != "null"
	return !boardSet && s.CurrentRole == "" && s.LastPosition == nil
}

// Summary is a read-only view of a room for the diagnostic surfaces.
type Summary struct {
	ID       string `json:"room_id"`
	GameType string `json:"game_type"`
	Members  int    `json:"members"`
	Phase    string `json:"phase"`
}

// Room is one game session: up to two role-holding occupants plus any number
// of role-less ones. All multi-step decisions (assign+count+pair,
// release+reclaim-check) run under the room lock so concurrent transport
// events cannot interleave mid-mutation.
type Room struct {
	ID        string
	GameType  GameType
	CreatedAt time.Time

	mu            sync.Mutex
	occupants     map[string]*session.Session // sessionID -> session
	roles         map[Role]string             // role tag -> sessionID holding it
	guestIDs      map[Role]string             // role tag -> display-only guest ID
	snapshot      Snapshot
	firstRole     FirstRole
	phase         *state.BaseMachine
	presenceTimer int64 // timer task ID, 0 while no presence broadcaster runs
	pairedAt      time.Time
	pairedGuests  map[Role]string // guest IDs as of the last pairing
	closed        bool            // reclaimed; refuses joins from here on
	broadcaster   Broadcaster
	rnd           Rand
}

func NewRoom(id string, gameType GameType, broadcaster Broadcaster, rnd Rand) *Room {
	return &Room{
		ID:          id,
		GameType:    gameType,
		CreatedAt:   time.Now(),
		occupants:   make(map[string]*session.Session),
		roles:       make(map[Role]string),
		guestIDs:    make(map[Role]string),
		firstRole:   FirstRoleRandom,
		phase:       state.NewRoomMachine(),
		broadcaster: broadcaster,
		rnd:         rnd,
	}
}

// JoinResult is everything the coordinator needs to act on a join: the ack
// for the joiner, whether this join completed a pairing, and the snapshot to
// fast-forward the joiner with.
type JoinResult struct {
	Closed      bool // the room was reclaimed under us; look it up again
	Role        Role // "" when admitted without a role
	GuestID     string
	Members     int
	Paired      bool
	FirstMover  Role
	GuestIDs    map[Role]string
	Snapshot    Snapshot
	HasSnapshot bool
}

// Join admits a session, claims a role slot if one is free, and detects the
// exact moment occupancy crosses from below two to two.
func (r *Room) Join(sess *session.Session) JoinResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res JoinResult

	if r.closed {
		// Reclamation won the race for this object. The caller must resolve
		// the room ID through the manager again.
		res.Closed = true
		return res
	}

	if _, already := r.occupants[sess.ID]; already {
		// Re-join of a present occupant: report the current view, no pairing.
		res.Role, _ = r.roleOfLocked(sess.ID)
		res.GuestID = r.guestIDs[res.Role]
		res.Members = len(r.occupants)
		res.Snapshot, res.HasSnapshot = r.snapshotLocked()
		return res
	}

	prev := len(r.occupants)
	r.occupants[sess.ID] = sess
	res.Members = len(r.occupants)

	switch {
	case r.roles[RoleFirst] == "":
		res.Role = r.claimLocked(RoleFirst, sess.ID)
	case r.roles[RoleSecond] == "" && r.roles[RoleFirst] != sess.ID:
		res.Role = r.claimLocked(RoleSecond, sess.ID)
	default:
		// Both slots taken: admitted without a role. Still counted as an
		// occupant and still receives broadcasts.
	}
	res.GuestID = r.guestIDs[res.Role]

	res.Snapshot, res.HasSnapshot = r.snapshotLocked()

	if prev < 2 && res.Members == 2 {
		res.Paired = true
		res.FirstMover = r.resolveFirstMoverLocked()
		res.GuestIDs = r.guestIDsLocked()
		r.pairedAt = time.Now()
		r.pairedGuests = res.GuestIDs
		_ = r.phase.ChangeTo(state.PhasePaired)
	}

	return res
}

type LeaveResult struct {
	Found        bool
	ReleasedRole Role // "" when the leaver held no role
	Members      int
	Empty        bool
}

// Leave removes a session and vacates any role slot it held, along with the
// slot's guest ID. Safe to call for sessions that never joined.
func (r *Room) Leave(sessionID string) LeaveResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res LeaveResult
	if _, exists := r.occupants[sessionID]; exists {
		res.Found = true
		delete(r.occupants, sessionID)
	}

	for tag, holder := range r.roles {
		if holder == sessionID {
			delete(r.roles, tag)
			delete(r.guestIDs, tag)
			res.ReleasedRole = tag
		}
	}

	res.Members = len(r.occupants)
	res.Empty = res.Members == 0

	if res.Members < 2 && r.phase.GetCurrentState().GetID() != state.PhaseWaiting {
		_ = r.phase.ChangeTo(state.PhaseWaiting)
	}

	return res
}

// Restart resolves the first mover again (re-rolling only if the preference is
// still random) and clears the snapshot. Role holders are untouched.
func (r *Room) Restart() Role {
	r.mu.Lock()
	defer r.mu.Unlock()

	firstMover := r.resolveFirstMoverLocked()
	r.snapshot = Snapshot{}

	if r.phase.GetCurrentState().GetID() == state.PhasePlaying {
		_ = r.phase.ChangeTo(state.PhasePaired)
	}

	return firstMover
}

// SyncBoard unconditionally overwrites the stored snapshot.
func (r *Room) SyncBoard(snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshot = snap
}

// GetSnapshot returns the stored snapshot and whether any field of it is set.
func (r *Room) GetSnapshot() (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Room) SetFirstRole(pref FirstRole) error {
	if !pref.Valid() {
		return fmt.Errorf("invalid first role %q", pref)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.firstRole = pref
	return nil
}

// StartGame moves the room into the playing phase.
func (r *Room) StartGame() {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.phase.ChangeTo(state.PhasePlaying)
}

func (r *Room) IsPlaying() bool {
	return r.Phase() == state.PhasePlaying
}

func (r *Room) Phase() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase.GetCurrentState().GetID()
}

func (r *Room) Members() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.occupants)
}

// GetSessions returns a copy of the occupant list.
func (r *Room) GetSessions() []*session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions := make([]*session.Session, 0, len(r.occupants))
	for _, s := range r.occupants {
		sessions = append(sessions, s)
	}
	return sessions
}

func (r *Room) RoleOf(sessionID string) (Role, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roleOfLocked(sessionID)
}

// GuestIDs returns a copy of the current role -> guest ID mapping.
func (r *Room) GuestIDs() map[Role]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.guestIDsLocked()
}

// PairedAt reports when occupancy last reached two, zero if it never did.
func (r *Room) PairedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pairedAt
}

// PairedGuests returns the guest IDs captured at the last pairing. Leave
// releases the live guest IDs, so this is what outlives the occupants.
func (r *Room) PairedGuests() map[Role]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make(map[Role]string, len(r.pairedGuests))
	for tag, id := range r.pairedGuests {
		ids[tag] = id
	}
	return ids
}

// CloseIfEmpty permanently closes the room if no occupant remains, so a join
// that already resolved this object cannot land in it after it leaves the
// registry. Returns false when occupants remain or the room is already
// closed; only the caller that gets true may remove the room.
func (r *Room) CloseIfEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || len(r.occupants) > 0 {
		return false
	}
	r.closed = true
	return true
}

// SetPresenceTimer records the presence broadcaster's task ID; zero clears it.
func (r *Room) SetPresenceTimer(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presenceTimer = id
}

func (r *Room) PresenceTimer() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.presenceTimer
}

func (r *Room) Summarize() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Summary{
		ID:       r.ID,
		GameType: string(r.GameType),
		Members:  len(r.occupants),
		Phase:    r.phase.GetCurrentState().GetID(),
	}
}

// Broadcast sends a message to every occupant of the room.
func (r *Room) Broadcast(msgID uint16, data []byte) error {
	return r.broadcaster.BroadcastToRoom(r.ID, msgID, data)
}

// BroadcastExcept sends a message to every occupant except one, typically the
// sender of the payload being relayed.
func (r *Room) BroadcastExcept(exceptSessionID string, msgID uint16, data []byte) error {
	return r.broadcaster.BroadcastToRoomExcept(r.ID, exceptSessionID, msgID, data)
}

func (r *Room) claimLocked(tag Role, sessionID string) Role {
	r.roles[tag] = sessionID
	r.guestIDs[tag] = fmt.Sprintf("%06d", 100000+r.rnd.Intn(900000))
	return tag
}

func (r *Room) roleOfLocked(sessionID string) (Role, bool) {
	for tag, holder := range r.roles {
		if holder == sessionID {
			return tag, true
		}
	}
	return "", false
}

func (r *Room) guestIDsLocked() map[Role]string {
	ids := make(map[Role]string, len(r.guestIDs))
	for tag, id := range r.guestIDs {
		ids[tag] = id
	}
	return ids
}

func (r *Room) snapshotLocked() (Snapshot, bool) {
	if r.snapshot.Empty() {
		return Snapshot{}, false
	}
	return r.snapshot, true
}

// resolveFirstMoverLocked draws the first mover. A random preference is not
// persisted: the next restart re-rolls.
func (r *Room) resolveFirstMoverLocked() Role {
	if r.firstRole == FirstRoleRandom {
		if r.rnd.Intn(2) == 0 {
			return RoleFirst
		}
		return RoleSecond
	}
	return Role(r.firstRole)
}

// --- Room manager ---

// Manager owns the room table. Rooms are created lazily on first join and
// removed the moment their last occupant leaves; Remove on an absent room is
// a no-op.
type Manager struct {
	rooms map[string]*Room
	mutex sync.RWMutex
	rnd   Rand
}

func NewManager(rnd Rand) *Manager {
	if rnd == nil {
		rnd = NewRand(time.Now().UnixNano())
	}
	return &Manager{
		rooms: make(map[string]*Room),
		rnd:   rnd,
	}
}

// GetOrCreate returns the room for id, creating it if unseen. The second
// return value reports whether this call created it.
func (m *Manager) GetOrCreate(id string, gameType GameType, broadcaster Broadcaster) (*Room, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if room, exists := m.rooms[id]; exists {
		return room, false
	}

	room := NewRoom(id, gameType, broadcaster, m.rnd)
	m.rooms[id] = room
	return room, true
}

func (m *Manager) GetRoom(id string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	room, exists := m.rooms[id]
	return room, exists
}

// Remove deletes a room from the table; reports whether it was present.
func (m *Manager) Remove(id string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.rooms[id]; !exists {
		return false
	}
	delete(m.rooms, id)
	return true
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

// Summaries returns a read-only view of every live room.
func (m *Manager) Summaries() []Summary {
	m.mutex.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room)
	}
	m.mutex.RUnlock()

	summaries := make([]Summary, 0, len(rooms))
	for _, room := range rooms {
		summaries = append(summaries, room.Summarize())
	}
	return summaries
}
