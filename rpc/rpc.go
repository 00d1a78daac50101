package rpc

import (
	"fmt"
	"net"
	"net/rpc"

	"github.com/wfunc/boardrelay/logger"
	"github.com/wfunc/boardrelay/room"
	"github.com/wfunc/boardrelay/session"
)

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
}

func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  addr,
	}, nil
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if _, ok := err.(*net.OpError); ok {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// RelayDiag exposes read-only reflections of coordinator state over net/rpc.
type RelayDiag struct {
	rooms    *room.Manager
	sessions *session.Manager
}

func NewRelayDiag(rooms *room.Manager, sessions *session.Manager) *RelayDiag {
	return &RelayDiag{rooms: rooms, sessions: sessions}
}

type RoomCountArgs struct{}

type RoomCountReply struct {
	Rooms    int
	Sessions int
}

func (d *RelayDiag) RoomCount(args *RoomCountArgs, reply *RoomCountReply) error {
	reply.Rooms = d.rooms.Count()
	reply.Sessions = d.sessions.Count()
	return nil
}

type RoomInfoArgs struct {
	RoomID string
}

type RoomInfoReply struct {
	Summary room.Summary
}

func (d *RelayDiag) RoomInfo(args *RoomInfoArgs, reply *RoomInfoReply) error {
	rm, exists := d.rooms.GetRoom(args.RoomID)
	if !exists {
		return fmt.Errorf("room %s not found", args.RoomID)
	}
	reply.Summary = rm.Summarize()
	return nil
}
