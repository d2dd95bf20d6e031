package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/rpc"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/wfunc/arena/broadcast"
	"github.com/wfunc/arena/logger"
	"github.com/wfunc/arena/persistence"
	arena_rpc "github.com/wfunc/arena/rpc"
	"github.com/wfunc/arena/services"
)

// ArenaServer is the HTTP surface of the arena: agent registration,
// match and challenge operations, the leaderboard and live websocket
// spectating.
type ArenaServer struct {
	addr        string
	upgrader    websocket.Upgrader
	agents      *services.AgentService
	matches     *services.MatchService
	stakes      *services.StakeService
	tournaments *services.TournamentService
	hub         *broadcast.Hub
	rpcServer   *arena_rpc.Server
	httpServer  *http.Server
}

func NewArenaServer(addr, rpcAddr string,
	agents *services.AgentService,
	matches *services.MatchService,
	stakes *services.StakeService,
	tournaments *services.TournamentService,
	hub *broadcast.Hub) *ArenaServer {

	s := &ArenaServer{
		addr:        addr,
		agents:      agents,
		matches:     matches,
		stakes:      stakes,
		tournaments: tournaments,
		hub:         hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	rpcServer, err := arena_rpc.NewServer(rpcAddr)
	if err != nil {
		logger.Log.Fatalf("Failed to create RPC server: %v", err)
	}
	s.rpcServer = rpcServer
	rpc.Register(arena_rpc.NewArenaService(agents, matches))

	return s
}

func (s *ArenaServer) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/agents", s.handleRegister)
	mux.HandleFunc("GET /api/agents/{id}", s.handleGetAgent)
	mux.HandleFunc("POST /api/agents/{id}/deposit", s.handleDeposit)
	mux.HandleFunc("GET /api/leaderboard", s.handleLeaderboard)

	mux.HandleFunc("POST /api/matches", s.handleRunMatch)
	mux.HandleFunc("GET /api/matches", s.handleHistory)

	mux.HandleFunc("POST /api/challenges", s.handleCreateChallenge)
	mux.HandleFunc("GET /api/challenges", s.handleOpenChallenges)
	mux.HandleFunc("POST /api/challenges/{id}/accept", s.handleAcceptChallenge)

	mux.HandleFunc("POST /api/tournaments", s.handleTournament)

	mux.HandleFunc("GET /ws/matches/{id}", s.handleSpectate)

	return mux
}

func (s *ArenaServer) Start() error {
	go s.rpcServer.Start()

	s.httpServer = &http.Server{Addr: s.addr, Handler: s.routes()}
	logger.Log.Infof("Arena server listening on %s", s.addr)
	return s.httpServer.ListenAndServe()
}

func (s *ArenaServer) Shutdown() {
	s.rpcServer.Stop()
	if s.httpServer != nil {
		s.httpServer.Close()
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, persistence.ErrRecordNotFound):
		status = http.StatusNotFound
	case errors.Is(err, persistence.ErrInsufficientFunds),
		errors.Is(err, services.ErrStakeOutOfRange),
		errors.Is(err, services.ErrSelfPlay),
		errors.Is(err, services.ErrAgentNotActive):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrChallengeExpired),
		errors.Is(err, services.ErrChallengeNotOpen),
		errors.Is(err, services.ErrNotYourChallenge),
		errors.Is(err, services.ErrAlreadySettled):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func (s *ArenaServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	agent, err := s.agents.Register(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, agent)
}

func (s *ArenaServer) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.agents.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent": agent,
		"rank":  s.agents.Rank(agent),
	})
}

func (s *ArenaServer) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount string `json:"amount"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid amount"})
		return
	}
	balance, err := s.agents.Deposit(r.PathValue("id"), amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"balance": balance.String()})
}

func (s *ArenaServer) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := s.agents.Leaderboard(0)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (s *ArenaServer) handleRunMatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Player1 string `json:"player1"`
		Player2 string `json:"player2"`
		Stake   string `json:"stake"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	stake := decimal.Zero
	if req.Stake != "" {
		var err error
		stake, err = decimal.NewFromString(req.Stake)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid stake"})
			return
		}
	}

	var err error
	var match interface{}
	var settlement interface{}
	if stake.Sign() > 0 {
		match, settlement, err = s.matches.RunStaked(r.Context(), req.Player1, req.Player2, stake)
	} else {
		match, settlement, err = s.matches.RunCasual(r.Context(), req.Player1, req.Player2)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"match":      match,
		"settlement": settlement,
	})
}

func (s *ArenaServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	matches, err := s.matches.History(0)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

func (s *ArenaServer) handleCreateChallenge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChallengerID string `json:"challenger_id"`
		TargetID     string `json:"target_id"`
		Stake        string `json:"stake"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	stake, err := decimal.NewFromString(req.Stake)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid stake"})
		return
	}
	challenge, err := s.stakes.CreateChallenge(req.ChallengerID, req.TargetID, stake)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, challenge)
}

func (s *ArenaServer) handleOpenChallenges(w http.ResponseWriter, r *http.Request) {
	challenges, err := s.stakes.OpenChallenges()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, challenges)
}

func (s *ArenaServer) handleAcceptChallenge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AcceptorID string `json:"acceptor_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	match, settlement, err := s.stakes.AcceptChallenge(r.Context(), r.PathValue("id"), req.AcceptorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"match":      match,
		"settlement": settlement,
	})
}

func (s *ArenaServer) handleTournament(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentIDs []string `json:"agent_ids"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.tournaments.RunRoundRobin(r.Context(), req.AgentIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleSpectate upgrades the connection and streams live match events
// until the client goes away or the match finishes.
func (s *ArenaServer) handleSpectate(w http.ResponseWriter, r *http.Request) {
	matchID := r.PathValue("id")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}

	sub := broadcast.NewWSSubscriber(conn)
	s.hub.Subscribe(matchID, sub)
	logger.Log.Infof("Spectator joined match %s from %s", matchID, conn.RemoteAddr())

	// Reads are discarded; the read loop only notices disconnects.
	go func() {
		defer func() {
			s.hub.Unsubscribe(matchID, sub)
			sub.Close()
			logger.Log.Infof("Spectator left match %s", matchID)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
