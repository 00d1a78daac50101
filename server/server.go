package server

import (
	"encoding/json"
	"net/http"
	stdrpc "net/rpc"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/boardrelay/broadcast"
	"github.com/wfunc/boardrelay/logger"
	"github.com/wfunc/boardrelay/models"
	"github.com/wfunc/boardrelay/monitor"
	"github.com/wfunc/boardrelay/network"
	"github.com/wfunc/boardrelay/room"
	relayrpc "github.com/wfunc/boardrelay/rpc"
	"github.com/wfunc/boardrelay/services"
	"github.com/wfunc/boardrelay/session"
	"github.com/wfunc/boardrelay/timer"
)

// RelayServer is the room session coordinator: it pairs two connections into
// a room, relays moves and board snapshots between them, and reclaims room
// memory when the last occupant leaves. It never validates a move.
type RelayServer struct {
	addr           string
	rpcAddr        string
	upgrader       websocket.Upgrader
	roomManager    *room.Manager
	sessionManager *session.Manager
	broadcaster    broadcast.Broadcaster
	timers         *timer.Manager
	recorder       *services.MatchRecorder
	monitor        *monitor.Monitor
	rpcServer      *relayrpc.Server
	presenceEvery  time.Duration
	shutdownChan   chan struct{}
}

func NewRelayServer(addr, rpcAddr string, presenceEvery time.Duration,
	recorder *services.MatchRecorder, mon *monitor.Monitor) *RelayServer {

	if presenceEvery <= 0 {
		presenceEvery = time.Second
	}

	s := &RelayServer{
		addr:           addr,
		rpcAddr:        rpcAddr,
		roomManager:    room.NewManager(nil),
		sessionManager: session.NewManager(),
		timers:         timer.NewManager(),
		recorder:       recorder,
		monitor:        mon,
		presenceEvery:  presenceEvery,
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.broadcaster = broadcast.NewRoomBroadcaster(s.roomManager)

	return s
}

// Rooms exposes the room table for the read-only diagnostic surfaces.
func (s *RelayServer) Rooms() *room.Manager {
	return s.roomManager
}

func (s *RelayServer) Start() error {
	rpcServer, err := relayrpc.NewServer(s.rpcAddr)
	if err != nil {
		return err
	}
	s.rpcServer = rpcServer
	stdrpc.Register(relayrpc.NewRelayDiag(s.roomManager, s.sessionManager))
	go s.rpcServer.Start()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	logger.Log.Infof("Relay server listening on %s", s.addr)
	return http.ListenAndServe(s.addr, mux)
}

func (s *RelayServer) Shutdown() {
	close(s.shutdownChan)
	s.timers.Stop()
	if s.rpcServer != nil {
		s.rpcServer.Stop()
	}
}

func (s *RelayServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *RelayServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	sess := session.NewSession(uuid.New().String(), wsConn)
	s.sessionManager.Add(sess)
	if s.monitor != nil {
		s.monitor.IncOnlinePlayers()
	}

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		s.leaveCurrentRoom(sess)
		s.sessionManager.Remove(sess.GetID())
		if s.monitor != nil {
			s.monitor.DecOnlinePlayers()
		}
		wsConn.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			packet, err := wsConn.ReadPacket()
			if err != nil {
				return
			}
			s.handlePacket(sess, packet)
		}
	}
}

func (s *RelayServer) handlePacket(sess *session.Session, packet *network.Packet) {
	start := time.Now()
	if s.monitor != nil {
		s.monitor.IncMessagesReceived()
		defer func() {
			s.monitor.ObserveMessageLatency(time.Since(start))
		}()
	}

	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		sess.Touch()
	case network.MsgTypeJoinRoom:
		s.handleJoinRoom(sess, packet)
	case network.MsgTypeLeaveRoom:
		s.leaveCurrentRoom(sess)
	case network.MsgTypeSetFirstRole:
		s.handleSetFirstRole(sess, packet)
	case network.MsgTypeStartGame:
		s.handleStartGame(sess, packet)
	case network.MsgTypePlayerMove:
		s.handlePlayerMove(sess, packet)
	case network.MsgTypeSyncBoard:
		s.handleSyncBoard(sess, packet)
	case network.MsgTypeRestart:
		s.handleRestart(sess, packet)
	default:
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
	}
}

func (s *RelayServer) handleJoinRoom(sess *session.Session, packet *network.Packet) {
	var req models.JoinRoomRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil || req.RoomID == "" {
		return
	}

	// One room per connection: a join elsewhere leaves the current room first.
	if sess.RoomID != "" && sess.RoomID != req.RoomID {
		s.leaveCurrentRoom(sess)
	}

	var (
		rm      *room.Room
		created bool
		res     room.JoinResult
	)
	for {
		rm, created = s.roomManager.GetOrCreate(req.RoomID, room.GameType(req.GameType), s.broadcaster)
		res = rm.Join(sess)
		if !res.Closed {
			break
		}
		// Reclamation closed this object between the lookup and the join;
		// it is about to leave (or has left) the registry. Resolve again so
		// the occupant lands in a registered room.
	}
	sess.RoomID = req.RoomID

	if created && s.monitor != nil {
		s.monitor.SetActiveRooms(s.roomManager.Count())
	}

	logger.Log.Infof("Session %s joined room %s as %q (members=%d)",
		sess.GetID(), req.RoomID, res.Role, res.Members)

	ack, _ := json.Marshal(models.JoinedRoom{
		RoomID:  req.RoomID,
		Members: res.Members,
		Role:    res.Role,
		GuestID: res.GuestID,
	})
	sess.Send(network.MsgTypeJoinedRoom, ack)

	// Fast-forward a late joiner or reconnecting participant; nobody else is
	// disturbed.
	if res.HasSnapshot {
		snap, _ := json.Marshal(res.Snapshot)
		sess.Send(network.MsgTypeBoardUpdated, snap)
	}

	if res.Paired {
		paired, _ := json.Marshal(models.RoomPaired{
			RoomID:    req.RoomID,
			Members:   res.Members,
			FirstRole: res.FirstMover,
			GuestIDs:  res.GuestIDs,
		})
		rm.Broadcast(network.MsgTypeRoomPaired, paired)
	}

	if created {
		s.startPresence(rm)
	}
}

func (s *RelayServer) handleSetFirstRole(sess *session.Session, packet *network.Packet) {
	var req models.SetFirstRoleRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}

	rm, exists := s.roomManager.GetRoom(req.RoomID)
	if !exists {
		return
	}

	if err := rm.SetFirstRole(req.FirstRole); err != nil {
		logger.Log.Warnf("Session %s sent bad first role for room %s: %v", sess.GetID(), req.RoomID, err)
	}
}

func (s *RelayServer) handleStartGame(sess *session.Session, packet *network.Packet) {
	var req models.StartGameRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}

	rm, exists := s.roomManager.GetRoom(req.RoomID)
	if !exists {
		return
	}

	rm.StartGame()
	started, _ := json.Marshal(models.StartGameRequest{RoomID: req.RoomID})
	rm.Broadcast(network.MsgTypeGameStarted, started)
}

func (s *RelayServer) handlePlayerMove(sess *session.Session, packet *network.Packet) {
	var req models.PlayerMove
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}

	rm, exists := s.roomManager.GetRoom(req.RoomID)
	if !exists {
		return
	}

	// Relayed verbatim; the relay keeps no move state.
	rm.BroadcastExcept(sess.GetID(), network.MsgTypeOpponentMove, packet.Data)
}

func (s *RelayServer) handleSyncBoard(sess *session.Session, packet *network.Packet) {
	var req models.SyncBoardRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}

	rm, exists := s.roomManager.GetRoom(req.RoomID)
	if !exists {
		return
	}

	snap := room.Snapshot{
		Board:        req.Board,
		CurrentRole:  req.CurrentRole,
		LastPosition: req.LastPosition,
	}
	rm.SyncBoard(snap)

	// The sender already has authoritative local state.
	payload, _ := json.Marshal(snap)
	rm.BroadcastExcept(sess.GetID(), network.MsgTypeBoardUpdated, payload)
}

func (s *RelayServer) handleRestart(sess *session.Session, packet *network.Packet) {
	var req models.RestartRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}

	rm, exists := s.roomManager.GetRoom(req.RoomID)
	if !exists {
		return
	}

	firstMover := rm.Restart()
	notice, _ := json.Marshal(models.RestartNotice{FirstRole: firstMover})
	rm.Broadcast(network.MsgTypeRestartNotice, notice)
}

// leaveCurrentRoom runs the disconnect flow for the session's current room:
// release any role, notify whoever remains, reclaim the room if it emptied.
// A session that never joined is a no-op.
func (s *RelayServer) leaveCurrentRoom(sess *session.Session) {
	roomID := sess.RoomID
	if roomID == "" {
		return
	}
	sess.RoomID = ""

	rm, exists := s.roomManager.GetRoom(roomID)
	if !exists {
		return
	}

	res := rm.Leave(sess.GetID())
	if res.Empty {
		s.reclaimRoom(rm)
		return
	}

	notice, _ := json.Marshal(models.PeerDisconnected{Members: res.Members})
	rm.Broadcast(network.MsgTypePeerDisconnected, notice)
}

// startPresence spawns the room's single presence broadcaster. Only the call
// that created the room reaches here, so a second join cannot duplicate it.
func (s *RelayServer) startPresence(rm *room.Room) {
	roomID := rm.ID
	id := s.timers.Schedule(s.presenceEvery, s.presenceEvery, func() {
		s.presenceTick(roomID)
	})
	rm.SetPresenceTimer(id)
}

// presenceTick re-reads live occupancy. Zero means the room is swept here,
// which also covers a disconnect event the coordinator somehow missed.
func (s *RelayServer) presenceTick(roomID string) {
	rm, exists := s.roomManager.GetRoom(roomID)
	if !exists {
		return
	}

	members := rm.Members()
	if members == 0 {
		s.reclaimRoom(rm)
		return
	}

	update, _ := json.Marshal(models.MembersUpdate{Members: members})
	rm.Broadcast(network.MsgTypeMembersUpdate, update)
}

// reclaimRoom cancels the presence broadcaster and frees the room. Both the
// disconnect path and the presence tick can reach this; the close gate is
// taken once, so whichever arrives second is a no-op. Closing under the room
// lock before removal keeps a concurrent join from occupying an object that
// is leaving the registry: Join refuses a closed room and the join handler
// resolves the room ID again.
func (s *RelayServer) reclaimRoom(rm *room.Room) {
	if !rm.CloseIfEmpty() {
		return
	}

	if id := rm.PresenceTimer(); id != 0 {
		s.timers.Cancel(id)
		rm.SetPresenceTimer(0)
	}
	s.roomManager.Remove(rm.ID)

	logger.Log.Infof("Room %s reclaimed", rm.ID)
	if s.monitor != nil {
		s.monitor.SetActiveRooms(s.roomManager.Count())
	}
	if s.recorder != nil {
		go s.recorder.RoomReclaimed(rm)
	}
}
