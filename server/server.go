package server

import (
	"encoding/json"
	"net/http"
	"net/rpc"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Theras-Labs/card-server-evm/broadcast"
	"github.com/Theras-Labs/card-server-evm/config"
	"github.com/Theras-Labs/card-server-evm/logger"
	"github.com/Theras-Labs/card-server-evm/match"
	"github.com/Theras-Labs/card-server-evm/monitor"
	"github.com/Theras-Labs/card-server-evm/network"
	"github.com/Theras-Labs/card-server-evm/registry"
	gamerpc "github.com/Theras-Labs/card-server-evm/rpc"
	"github.com/Theras-Labs/card-server-evm/rules"
	"github.com/Theras-Labs/card-server-evm/services"
	"github.com/Theras-Labs/card-server-evm/session"
	"github.com/Theras-Labs/card-server-evm/timer"
)

// GameServer terminates websocket connections and routes packets to the
// registry and match instances. It also runs the timeout sweeper and the
// stale-match expiry loop, both of which act as ordinary external callers
// of the match core.
type GameServer struct {
	cfg            *config.Config
	upgrader       websocket.Upgrader
	registry       *registry.Registry
	sessionManager *session.Manager
	broadcaster    broadcast.Broadcaster
	sweeper        *timer.Sweeper
	rpcServer      *gamerpc.Server
	mon            *monitor.Monitor
	shutdownChan   chan struct{}
}

func NewGameServer(cfg *config.Config, reg *registry.Registry, stats *services.StatsService, mon *monitor.Monitor) *GameServer {
	s := &GameServer{
		cfg:            cfg,
		registry:       reg,
		sessionManager: session.NewManager(),
		mon:            mon,
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.broadcaster = broadcast.NewMatchBroadcaster(reg, s.sessionManager)
	reg.SetBroadcaster(s.broadcaster)

	s.sweeper = timer.NewSweeper(s.probeTimeout, cfg.Game.SweepInterval)
	reg.SetTracker(s.sweeper)

	rpcServer, err := gamerpc.NewServer(cfg.Server.RPCAddress)
	if err != nil {
		logger.Log.Fatalf("Failed to create RPC server: %v", err)
	}
	s.rpcServer = rpcServer
	rpc.Register(gamerpc.NewAdminService(reg, stats))

	return s
}

func (s *GameServer) Start() error {
	go s.rpcServer.Start()
	s.sweeper.Start()
	go s.expiryLoop()

	http.HandleFunc("/ws", s.handleWebSocket)
	logger.Log.Infof("Game server listening on %s", s.cfg.Server.HTTPAddress)
	return http.ListenAndServe(s.cfg.Server.HTTPAddress, nil)
}

func (s *GameServer) Shutdown() {
	close(s.shutdownChan)
	s.sweeper.Stop()
	s.rpcServer.Stop()
}

// probeTimeout is the sweeper callback: it asks the match to apply a
// timeout, and lets the match reject probes that are premature or obsolete.
func (s *GameServer) probeTimeout(matchID string) {
	inst, exists := s.registry.Instance(matchID)
	if !exists {
		return
	}
	err := inst.HandleTimeout("timeout-sweeper")
	switch err {
	case nil:
		if s.mon != nil {
			s.mon.IncTimeouts()
		}
	case match.ErrTimeoutTooEarly, match.ErrWrongPhase:
		// The turn advanced or the match ended before the probe fired.
	default:
		logger.Log.Errorf("timeout probe for %s: %v", matchID, err)
	}
}

func (s *GameServer) expiryLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.registry.ExpireStaleMatches(s.cfg.Game.WaitingTTL); n > 0 {
				logger.Log.Infof("expired %d stale matches", n)
			}
		case <-s.shutdownChan:
			return
		}
	}
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	sess := session.NewSession(uuid.New().String(), wsConn)
	s.sessionManager.Add(sess)

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		s.sessionManager.Remove(sess.GetID())
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

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	started := time.Now()
	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		sess.LastActive = time.Now()
	case network.MsgTypeLogin:
		s.handleLogin(sess, packet)
	case network.MsgTypeCreateMatch:
		s.handleCreateMatch(sess, packet)
	case network.MsgTypeJoinMatch:
		s.handleJoinMatch(sess, packet)
	case network.MsgTypeForceStart:
		s.handleForceStart(sess, packet)
	case network.MsgTypePauseMatch:
		s.handlePause(sess, packet)
	case network.MsgTypeResumeMatch:
		s.handleResume(sess, packet)
	case network.MsgTypePlayerAction:
		s.handleAction(sess, packet)
	case network.MsgTypeTimeout:
		s.handleTimeout(sess, packet)
	case network.MsgTypeMatchState:
		s.handleMatchState(sess, packet)
	case network.MsgTypeActiveMatches:
		s.handleActiveMatches(sess)
	case network.MsgTypeMatchHistory:
		s.handleMatchHistory(sess)
	default:
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
	}
	if s.mon != nil {
		s.mon.ObserveActionLatency(time.Since(started))
	}
}

func (s *GameServer) sendError(sess *session.Session, op string, err error) {
	resp := map[string]string{"op": op, "error": err.Error()}
	data, _ := json.Marshal(resp)
	sess.Send(network.MsgTypeError, data)
}

func (s *GameServer) sendJSON(sess *session.Session, msgID uint16, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Log.Errorf("marshal response %d: %v", msgID, err)
		return
	}
	sess.Send(msgID, data)
}

func (s *GameServer) handleLogin(sess *session.Session, packet *network.Packet) {
	var req struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(packet.Data, &req); err != nil || req.Address == "" {
		s.sendError(sess, "login", match.ErrInvalidAction)
		return
	}
	sess.SetAddress(req.Address)
	s.sendJSON(sess, network.MsgTypeLogin, map[string]string{"address": req.Address})
}

// createMatchRequest is the wire form of a create call. Durations arrive in
// seconds.
type createMatchRequest struct {
	Players  [match.PlayerCount]string `json:"players"`
	Stake    uint64                    `json:"stake"`
	Settings struct {
		CardsPerPlayer       int  `json:"cards_per_player"`
		TurnTimeSeconds      int  `json:"turn_time_seconds"`
		MatchDurationSeconds int  `json:"match_duration_seconds"`
		PauseEnabled         bool `json:"pause_enabled"`
		PenaltyCards         uint `json:"penalty_cards"`
	} `json:"settings"`
}

func (s *GameServer) handleCreateMatch(sess *session.Session, packet *network.Packet) {
	var req createMatchRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		s.sendError(sess, "create_match", err)
		return
	}
	settings := rules.MatchSettings{
		CardsPerPlayer: req.Settings.CardsPerPlayer,
		TurnTimeLimit:  time.Duration(req.Settings.TurnTimeSeconds) * time.Second,
		MatchDuration:  time.Duration(req.Settings.MatchDurationSeconds) * time.Second,
		PauseEnabled:   req.Settings.PauseEnabled,
		PenaltyCards:   req.Settings.PenaltyCards,
	}

	caller := sess.Address()
	matchID, err := s.registry.CreateMatch(caller, caller, req.Players, settings, req.Stake)
	if err != nil {
		s.sendError(sess, "create_match", err)
		return
	}
	if s.mon != nil {
		s.mon.IncActions()
	}
	s.sendJSON(sess, network.MsgTypeCreateMatch, map[string]string{"match_id": matchID})
}

type matchRef struct {
	MatchID string `json:"match_id"`
}

func (s *GameServer) instanceFor(sess *session.Session, op string, data []byte) (*match.Match, bool) {
	var req matchRef
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendError(sess, op, err)
		return nil, false
	}
	inst, exists := s.registry.Instance(req.MatchID)
	if !exists {
		s.sendError(sess, op, registry.ErrMatchNotFound)
		return nil, false
	}
	return inst, true
}

func (s *GameServer) handleJoinMatch(sess *session.Session, packet *network.Packet) {
	inst, ok := s.instanceFor(sess, "join_match", packet.Data)
	if !ok {
		return
	}
	if err := inst.Join(sess.Address()); err != nil {
		s.sendError(sess, "join_match", err)
		return
	}
	s.sendJSON(sess, network.MsgTypeJoinMatch, map[string]string{"match_id": inst.ID()})
}

func (s *GameServer) handleForceStart(sess *session.Session, packet *network.Packet) {
	inst, ok := s.instanceFor(sess, "force_start", packet.Data)
	if !ok {
		return
	}
	if err := inst.ForceStart(sess.Address()); err != nil {
		s.sendError(sess, "force_start", err)
	}
}

func (s *GameServer) handlePause(sess *session.Session, packet *network.Packet) {
	inst, ok := s.instanceFor(sess, "pause_match", packet.Data)
	if !ok {
		return
	}
	if err := inst.Pause(sess.Address()); err != nil {
		s.sendError(sess, "pause_match", err)
	}
}

func (s *GameServer) handleResume(sess *session.Session, packet *network.Packet) {
	inst, ok := s.instanceFor(sess, "resume_match", packet.Data)
	if !ok {
		return
	}
	if err := inst.Resume(sess.Address()); err != nil {
		s.sendError(sess, "resume_match", err)
	}
}

type actionRequest struct {
	MatchID string          `json:"match_id"`
	Action  json.RawMessage `json:"action"`
}

func (s *GameServer) handleAction(sess *session.Session, packet *network.Packet) {
	var req actionRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		s.sendError(sess, "action", err)
		return
	}
	inst, exists := s.registry.Instance(req.MatchID)
	if !exists {
		s.sendError(sess, "action", registry.ErrMatchNotFound)
		return
	}
	if err := inst.HandleAction(sess.Address(), req.Action); err != nil {
		s.sendError(sess, "action", err)
		return
	}
	if s.mon != nil {
		s.mon.IncActions()
	}
}

func (s *GameServer) handleTimeout(sess *session.Session, packet *network.Packet) {
	inst, ok := s.instanceFor(sess, "timeout", packet.Data)
	if !ok {
		return
	}
	if err := inst.HandleTimeout(sess.Address()); err != nil {
		s.sendError(sess, "timeout", err)
		return
	}
	if s.mon != nil {
		s.mon.IncTimeouts()
	}
}

func (s *GameServer) handleMatchState(sess *session.Session, packet *network.Packet) {
	inst, ok := s.instanceFor(sess, "match_state", packet.Data)
	if !ok {
		return
	}
	s.sendJSON(sess, network.MsgTypeMatchState, inst.Snapshot())
}

func (s *GameServer) handleActiveMatches(sess *session.Session) {
	s.sendJSON(sess, network.MsgTypeActiveMatches, s.registry.ActiveMatches(sess.Address()))
}

func (s *GameServer) handleMatchHistory(sess *session.Session) {
	s.sendJSON(sess, network.MsgTypeMatchHistory, s.registry.MatchHistory(sess.Address()))
}
