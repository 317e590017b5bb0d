package rpc

import (
	"net"
	"net/rpc"

	"github.com/Theras-Labs/card-server-evm/logger"
	"github.com/Theras-Labs/card-server-evm/registry"
	"github.com/Theras-Labs/card-server-evm/services"
)

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
}

// NewServer creates a new RPC server. Services are registered by the caller
// through net/rpc before Start.
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

// AdminService exposes the registry admin surface and player stats over
// net/rpc. Every mutating call names the acting address; the registry
// enforces ownership.
type AdminService struct {
	registry *registry.Registry
	stats    *services.StatsService
}

func NewAdminService(r *registry.Registry, stats *services.StatsService) *AdminService {
	return &AdminService{registry: r, stats: stats}
}

type SetFeeArgs struct {
	Caller      string
	BasisPoints uint64
}

func (a *AdminService) SetPlatformFee(args *SetFeeArgs, reply *bool) error {
	if err := a.registry.SetPlatformFee(args.Caller, args.BasisPoints); err != nil {
		return err
	}
	*reply = true
	return nil
}

type SetFeeRecipientArgs struct {
	Caller    string
	Recipient string
}

func (a *AdminService) SetFeeRecipient(args *SetFeeRecipientArgs, reply *bool) error {
	if err := a.registry.SetFeeRecipient(args.Caller, args.Recipient); err != nil {
		return err
	}
	*reply = true
	return nil
}

type PauseCreationArgs struct {
	Caller string
	Paused bool
}

func (a *AdminService) PauseCreation(args *PauseCreationArgs, reply *bool) error {
	if err := a.registry.SetCreationPaused(args.Caller, args.Paused); err != nil {
		return err
	}
	*reply = true
	return nil
}

type CancelMatchArgs struct {
	Caller  string
	MatchID string
}

func (a *AdminService) EmergencyCancelMatch(args *CancelMatchArgs, reply *bool) error {
	if err := a.registry.EmergencyCancelMatch(args.Caller, args.MatchID); err != nil {
		return err
	}
	*reply = true
	return nil
}

type GetPlayerStatsArgs struct {
	Address string
}

type GetPlayerStatsReply struct {
	Data map[string]interface{}
}

func (a *AdminService) GetPlayerStats(args *GetPlayerStatsArgs, reply *GetPlayerStatsReply) error {
	data, err := a.stats.GetPlayerStats(args.Address)
	if err != nil {
		return err
	}
	reply.Data = data
	return nil
}
