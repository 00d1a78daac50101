package room

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/wfunc/boardrelay/network"
	"github.com/wfunc/boardrelay/session"
	"github.com/wfunc/boardrelay/state"
)

// MockBroadcaster is a test double for the Broadcaster interface.
type MockBroadcaster struct{}

func (m *MockBroadcaster) BroadcastToRoom(roomID string, msgID uint16, data []byte) error {
	return nil
}

func (m *MockBroadcaster) BroadcastToRoomExcept(roomID, exceptSessionID string, msgID uint16, data []byte) error {
	return nil
}

// MockConnection is a test double for the network.Connection interface.
type MockConnection struct{}

func (m *MockConnection) Send(msgID uint16, data []byte) error { return nil }
func (m *MockConnection) Close() error                         { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)  {}
func (m *MockConnection) ReadPacket() (*network.Packet, error) { return nil, nil }

// scriptRand returns a scripted sequence of draws so tests control role
// resolution and guest IDs.
type scriptRand struct {
	vals []int
	i    int
}

func (r *scriptRand) Intn(n int) int {
	v := r.vals[r.i%len(r.vals)]
	r.i++
	return v % n
}

func newTestSession(id string) *session.Session {
	return session.NewSession(id, &MockConnection{})
}

func newTestRoom(id string) *Room {
	return NewRoom(id, GameConnect4, &MockBroadcaster{}, NewRand(1))
}

func TestRoom_JoinAssignsRolesInOrder(t *testing.T) {
	room := newTestRoom("room1")

	resA := room.Join(newTestSession("a"))
	if resA.Role != RoleFirst {
		t.Fatalf("Expected first joiner to get role %q, got %q", RoleFirst, resA.Role)
	}
	if resA.Members != 1 {
		t.Errorf("Expected members to be 1, got %d", resA.Members)
	}
	if resA.Paired {
		t.Error("Pairing should not fire with a single occupant")
	}
	if len(resA.GuestID) != 6 {
		t.Errorf("Expected a 6-digit guest ID, got %q", resA.GuestID)
	}

	resB := room.Join(newTestSession("b"))
	if resB.Role != RoleSecond {
		t.Fatalf("Expected second joiner to get role %q, got %q", RoleSecond, resB.Role)
	}
	if resB.Members != 2 {
		t.Errorf("Expected members to be 2, got %d", resB.Members)
	}
	if !resB.Paired {
		t.Fatal("Pairing should fire when occupancy reaches 2")
	}
	if resB.FirstMover != RoleFirst && resB.FirstMover != RoleSecond {
		t.Errorf("First mover should be a concrete role, got %q", resB.FirstMover)
	}
	if len(resB.GuestIDs) != 2 {
		t.Errorf("Pairing should carry both guest IDs, got %v", resB.GuestIDs)
	}
}

func TestRoom_ThirdJoinGetsNoRole(t *testing.T) {
	room := newTestRoom("room2")
	room.Join(newTestSession("a"))
	room.Join(newTestSession("b"))

	res := room.Join(newTestSession("c"))
	if res.Role != "" {
		t.Fatalf("Third joiner should get no role, got %q", res.Role)
	}
	if res.GuestID != "" {
		t.Errorf("Role-less joiner should get no guest ID, got %q", res.GuestID)
	}
	if res.Members != 3 {
		t.Errorf("Role-less joiner is still counted: expected 3 members, got %d", res.Members)
	}
	if res.Paired {
		t.Error("Pairing must not re-trigger on occupancy above 2")
	}

	if role, ok := room.RoleOf("a"); !ok || role != RoleFirst {
		t.Errorf("Role slots must be unchanged, got a=%q ok=%v", role, ok)
	}
	if role, ok := room.RoleOf("b"); !ok || role != RoleSecond {
		t.Errorf("Role slots must be unchanged, got b=%q ok=%v", role, ok)
	}
}

func TestRoom_DoubleJoinSameConnection(t *testing.T) {
	room := newTestRoom("room3")
	room.Join(newTestSession("a"))

	res := room.Join(newTestSession("a"))
	if res.Members != 1 {
		t.Errorf("Re-join must not double-count: expected 1 member, got %d", res.Members)
	}
	if res.Role != RoleFirst {
		t.Errorf("Re-join should report the held role, got %q", res.Role)
	}
	if _, ok := room.RoleOf("a"); !ok {
		t.Error("Connection should still hold its role")
	}
	if role, _ := room.RoleOf("a"); role == RoleSecond {
		t.Error("A connection must never hold both role slots")
	}
}

func TestRoom_PairingRefiresAfterDrop(t *testing.T) {
	room := newTestRoom("room4")
	room.Join(newTestSession("a"))
	res := room.Join(newTestSession("b"))
	if !res.Paired {
		t.Fatal("Setup failed: initial pairing did not fire")
	}

	room.Leave("b")
	if got := room.Phase(); got != state.PhaseWaiting {
		t.Errorf("Expected phase %q after drop below 2, got %q", state.PhaseWaiting, got)
	}

	res = room.Join(newTestSession("b2"))
	if !res.Paired {
		t.Error("Pairing should fire again when occupancy re-reaches 2")
	}
	if res.Role != RoleSecond {
		t.Errorf("Reconnecting peer should reclaim the vacated slot, got %q", res.Role)
	}
}

func TestRoom_FixedFirstRoleHonored(t *testing.T) {
	room := newTestRoom("room5")
	if err := room.SetFirstRole(FirstRole(RoleSecond)); err != nil {
		t.Fatalf("SetFirstRole failed: %v", err)
	}

	room.Join(newTestSession("a"))
	res := room.Join(newTestSession("b"))
	if res.FirstMover != RoleSecond {
		t.Errorf("Expected fixed first mover %q, got %q", RoleSecond, res.FirstMover)
	}

	if got := room.Restart(); got != RoleSecond {
		t.Errorf("Restart must honor the fixed preference, got %q", got)
	}
}

func TestRoom_RandomFirstRoleRerollsOnRestart(t *testing.T) {
	// Draw order: guest ID for a, guest ID for b, pairing draw, restart draw.
	rnd := &scriptRand{vals: []int{7, 7, 0, 1}}
	room := NewRoom("room6", GameConnect4, &MockBroadcaster{}, rnd)

	room.Join(newTestSession("a"))
	res := room.Join(newTestSession("b"))
	if res.FirstMover != RoleFirst {
		t.Fatalf("Expected pairing draw 0 to resolve %q, got %q", RoleFirst, res.FirstMover)
	}

	// The random preference was not persisted, so restart rolls again.
	if got := room.Restart(); got != RoleSecond {
		t.Errorf("Expected restart draw 1 to resolve %q, got %q", RoleSecond, got)
	}
}

func TestRoom_SetFirstRoleRejectsGarbage(t *testing.T) {
	room := newTestRoom("room7")
	if err := room.SetFirstRole("third"); err == nil {
		t.Error("Expected an error for an invalid first role")
	}
}

func TestRoom_RestartClearsSnapshotBeforeNextSync(t *testing.T) {
	room := newTestRoom("room8")
	room.SyncBoard(Snapshot{Board: json.RawMessage(`[[1,2],[0,0]]`), CurrentRole: RoleFirst})

	room.Restart()
	if _, present := room.GetSnapshot(); present {
		t.Fatal("Restart must clear the snapshot")
	}

	after := Snapshot{Board: json.RawMessage(`[[0,0],[0,0]]`), CurrentRole: RoleSecond}
	room.SyncBoard(after)

	snap, present := room.GetSnapshot()
	if !present {
		t.Fatal("Snapshot should be present after sync")
	}
	if string(snap.Board) != string(after.Board) || snap.CurrentRole != after.CurrentRole {
		t.Errorf("Snapshot should equal the post-restart sync, got %+v", snap)
	}
}

func TestRoom_SnapshotFastForwardsLateJoiner(t *testing.T) {
	room := newTestRoom("room9")
	room.Join(newTestSession("a"))
	room.SyncBoard(Snapshot{Board: json.RawMessage(`[[1]]`)})

	res := room.Join(newTestSession("b"))
	if !res.HasSnapshot {
		t.Fatal("Late joiner should receive the stored snapshot")
	}
	if string(res.Snapshot.Board) != `[[1]]` {
		t.Errorf("Unexpected snapshot board: %s", res.Snapshot.Board)
	}
}

func TestRoom_JoinWithoutSnapshotSendsNothing(t *testing.T) {
	room := newTestRoom("room10")
	if res := room.Join(newTestSession("a")); res.HasSnapshot {
		t.Error("No snapshot should be reported before the first sync")
	}
}

func TestSnapshot_Empty(t *testing.T) {
	if !(Snapshot{}).Empty() {
		t.Error("Zero snapshot should be empty")
	}
	if !(Snapshot{Board: json.RawMessage(`null`)}).Empty() {
		t.Error("A JSON null board alone should still count as empty")
	}
	if (Snapshot{CurrentRole: RoleFirst}).Empty() {
		t.Error("A snapshot with any field set is not empty")
	}
}

func TestRoom_LeaveReleasesRoleAndGuestID(t *testing.T) {
	room := newTestRoom("room11")
	room.Join(newTestSession("a"))
	room.Join(newTestSession("b"))

	res := room.Leave("b")
	if !res.Found {
		t.Fatal("Leave should find a present occupant")
	}
	if res.ReleasedRole != RoleSecond {
		t.Errorf("Expected released role %q, got %q", RoleSecond, res.ReleasedRole)
	}
	if res.Members != 1 || res.Empty {
		t.Errorf("Expected 1 remaining member, got members=%d empty=%v", res.Members, res.Empty)
	}
	if _, ok := room.RoleOf("b"); ok {
		t.Error("Role slot should be vacated")
	}
	if ids := room.GuestIDs(); len(ids) != 1 {
		t.Errorf("Guest ID should be cleared with the role, got %v", ids)
	}
}

func TestRoom_CloseIfEmpty(t *testing.T) {
	room := newTestRoom("room15")
	room.Join(newTestSession("a"))

	if room.CloseIfEmpty() {
		t.Fatal("An occupied room must not close")
	}

	room.Leave("a")
	if !room.CloseIfEmpty() {
		t.Fatal("An empty room should close")
	}
	if room.CloseIfEmpty() {
		t.Error("Only one caller may win the close gate")
	}
}

func TestRoom_JoinRefusedAfterClose(t *testing.T) {
	room := newTestRoom("room16")
	if !room.CloseIfEmpty() {
		t.Fatal("Setup failed: close gate not taken")
	}

	res := room.Join(newTestSession("a"))
	if !res.Closed {
		t.Fatal("Join on a closed room must report Closed")
	}
	if res.Role != "" || res.Paired {
		t.Errorf("A refused join must not assign anything, got %+v", res)
	}
	if room.Members() != 0 {
		t.Errorf("A closed room must stay empty, got %d members", room.Members())
	}
}

func TestRoom_PairedGuestsSurviveLeave(t *testing.T) {
	room := newTestRoom("room14")
	room.Join(newTestSession("a"))
	room.Join(newTestSession("b"))

	paired := room.PairedGuests()
	if len(paired) != 2 {
		t.Fatalf("Pairing should capture both guest IDs, got %v", paired)
	}

	room.Leave("a")
	room.Leave("b")
	if ids := room.GuestIDs(); len(ids) != 0 {
		t.Errorf("Live guest IDs should be released, got %v", ids)
	}
	if got := room.PairedGuests(); len(got) != 2 {
		t.Errorf("Captured guest IDs should outlive the occupants, got %v", got)
	}
}

func TestRoom_LeaveUnknownSessionIsNoop(t *testing.T) {
	room := newTestRoom("room12")
	room.Join(newTestSession("a"))

	res := room.Leave("ghost")
	if res.Found {
		t.Error("Leave of an unknown session should report not found")
	}
	if res.Members != 1 {
		t.Errorf("Occupancy must be unchanged, got %d", res.Members)
	}
}

func TestRoom_PhaseFollowsLifecycle(t *testing.T) {
	room := newTestRoom("room13")
	if got := room.Phase(); got != state.PhaseWaiting {
		t.Fatalf("New room should be %q, got %q", state.PhaseWaiting, got)
	}

	room.Join(newTestSession("a"))
	room.Join(newTestSession("b"))
	if got := room.Phase(); got != state.PhasePaired {
		t.Errorf("Paired room should be %q, got %q", state.PhasePaired, got)
	}

	room.StartGame()
	if !room.IsPlaying() {
		t.Error("StartGame should move the room into playing")
	}

	room.Restart()
	if got := room.Phase(); got != state.PhasePaired {
		t.Errorf("Restart should return a playing room to %q, got %q", state.PhasePaired, got)
	}

	room.Leave("b")
	if got := room.Phase(); got != state.PhaseWaiting {
		t.Errorf("Peer loss should return the room to %q, got %q", state.PhaseWaiting, got)
	}
}

func TestManager_GetOrCreateIdempotent(t *testing.T) {
	manager := NewManager(NewRand(1))
	broadcaster := &MockBroadcaster{}

	room1, created := manager.GetOrCreate("X", GameConnect4, broadcaster)
	if !created {
		t.Fatal("First GetOrCreate should create the room")
	}
	if room1.GameType != GameConnect4 {
		t.Errorf("Expected game type %q, got %q", GameConnect4, room1.GameType)
	}

	room2, created := manager.GetOrCreate("X", GameReversi, broadcaster)
	if created {
		t.Error("Second GetOrCreate must not create")
	}
	if room2 != room1 {
		t.Error("GetOrCreate should return the same room instance")
	}
	if manager.Count() != 1 {
		t.Errorf("Expected room count 1, got %d", manager.Count())
	}
}

func TestManager_RemoveIdempotent(t *testing.T) {
	manager := NewManager(NewRand(1))
	manager.GetOrCreate("X", GameUnset, &MockBroadcaster{})

	if !manager.Remove("X") {
		t.Fatal("Remove should report the room was present")
	}
	if manager.Remove("X") {
		t.Error("Remove of an absent room must be a no-op")
	}
	if _, exists := manager.GetRoom("X"); exists {
		t.Error("Removed room should be absent")
	}
	if manager.Count() != 0 {
		t.Errorf("Expected room count 0, got %d", manager.Count())
	}
}

func TestManager_Summaries(t *testing.T) {
	manager := NewManager(NewRand(1))
	rm, _ := manager.GetOrCreate("X", GameConnect4, &MockBroadcaster{})
	rm.Join(newTestSession("a"))

	summaries := manager.Summaries()
	if len(summaries) != 1 {
		t.Fatalf("Expected 1 summary, got %d", len(summaries))
	}
	s := summaries[0]
	if s.ID != "X" || s.GameType != string(GameConnect4) || s.Members != 1 || s.Phase != state.PhaseWaiting {
		t.Errorf("Unexpected summary: %+v", s)
	}
}
