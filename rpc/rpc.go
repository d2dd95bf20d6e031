package rpc

import (
	"net"
	"net/rpc"

	"github.com/wfunc/arena/logger"
	"github.com/wfunc/arena/services"
)

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
}

// NewServer creates a new RPC server. Services are registered by the
// caller through net/rpc before Start.
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

// ArenaService exposes read-side arena queries over net/rpc for other
// backend processes (payment gateway, analytics jobs).
type ArenaService struct {
	agentService *services.AgentService
	matchService *services.MatchService
}

func NewArenaService(as *services.AgentService, ms *services.MatchService) *ArenaService {
	return &ArenaService{agentService: as, matchService: ms}
}

type GetAgentArgs struct {
	AgentID string
}

type GetAgentReply struct {
	Data map[string]interface{}
}

func (s *ArenaService) GetAgentStats(args *GetAgentArgs, reply *GetAgentReply) error {
	agent, err := s.agentService.Get(args.AgentID)
	if err != nil {
		return err
	}
	reply.Data = map[string]interface{}{
		"agent_id":     agent.AgentID,
		"name":         agent.Name,
		"rating":       agent.Rating,
		"rank":         s.agentService.Rank(agent),
		"games_played": agent.GamesPlayed,
		"wins":         agent.Wins,
		"losses":       agent.Losses,
		"draws":        agent.Draws,
		"balance":      agent.Balance.String(),
	}
	return nil
}

type LeaderboardArgs struct {
	Limit int
}

type LeaderboardReply struct {
	Rows []map[string]interface{}
}

func (s *ArenaService) Leaderboard(args *LeaderboardArgs, reply *LeaderboardReply) error {
	agents, err := s.agentService.Leaderboard(args.Limit)
	if err != nil {
		return err
	}
	for i := range agents {
		agent := &agents[i]
		reply.Rows = append(reply.Rows, map[string]interface{}{
			"agent_id": agent.AgentID,
			"name":     agent.Name,
			"rating":   agent.Rating,
			"rank":     s.agentService.Rank(agent),
			"wins":     agent.Wins,
			"losses":   agent.Losses,
			"draws":    agent.Draws,
		})
	}
	return nil
}

type HistoryArgs struct {
	Limit int
}

type HistoryReply struct {
	Rows []map[string]interface{}
}

func (s *ArenaService) History(args *HistoryArgs, reply *HistoryReply) error {
	matches, err := s.matchService.History(args.Limit)
	if err != nil {
		return err
	}
	for i := range matches {
		m := &matches[i]
		reply.Rows = append(reply.Rows, map[string]interface{}{
			"match_id": m.MatchID,
			"player1":  m.Player1,
			"player2":  m.Player2,
			"status":   m.Status,
			"winner":   m.Winner,
			"reason":   m.Reason,
			"stake":    m.Stake.String(),
		})
	}
	return nil
}
