// services/match_service.go
package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wfunc/arena/logger"
	"github.com/wfunc/arena/match"
	"github.com/wfunc/arena/models"
	"github.com/wfunc/arena/monitor"
	"github.com/wfunc/arena/persistence"
	"github.com/wfunc/arena/strategy"
)

// MatchService is the settlement pipeline: escrow, orchestrate, rate,
// settle, bonus. Matches between distinct agent pairs run concurrently;
// the settlement transaction's row locks serialize anything that shares
// an agent.
type MatchService struct {
	db         persistence.Database
	agents     *AgentService
	settlement *SettlementService
	runner     *match.Runner
	monitor    *monitor.Monitor
}

func NewMatchService(db persistence.Database, agents *AgentService, settlement *SettlementService, runner *match.Runner, mon *monitor.Monitor) *MatchService {
	return &MatchService{
		db:         db,
		agents:     agents,
		settlement: settlement,
		runner:     runner,
		monitor:    mon,
	}
}

// matchup is a validated pairing, resolved before any money moves.
type matchup struct {
	agent1, agent2       *models.GormAgent
	strategy1, strategy2 strategy.Strategy
}

// prepare runs every pre-match validation: distinct agents, both
// active, both strategies resolvable. Nothing is escrowed or persisted
// until it succeeds.
func (s *MatchService) prepare(agent1ID, agent2ID string) (*matchup, error) {
	if agent1ID == agent2ID {
		return nil, ErrSelfPlay
	}

	agent1, err := s.db.GetAgent(agent1ID)
	if err != nil {
		return nil, err
	}
	agent2, err := s.db.GetAgent(agent2ID)
	if err != nil {
		return nil, err
	}
	if agent1.Status != models.AgentStatusActive || agent2.Status != models.AgentStatusActive {
		return nil, ErrAgentNotActive
	}

	strategy1, err := s.agents.StrategyFor(agent1)
	if err != nil {
		return nil, err
	}
	strategy2, err := s.agents.StrategyFor(agent2)
	if err != nil {
		return nil, err
	}

	return &matchup{
		agent1:    agent1,
		agent2:    agent2,
		strategy1: strategy1,
		strategy2: strategy2,
	}, nil
}

func newMatchRecord(agent1ID, agent2ID string, stake decimal.Decimal) *models.GormMatch {
	now := time.Now()
	return &models.GormMatch{
		MatchID:   "match_" + uuid.NewString(),
		Player1:   agent1ID,
		Player2:   agent2ID,
		Status:    models.MatchStatusActive,
		Stake:     stake,
		StartedAt: &now,
	}
}

// RunCasual plays an unstaked, rated match between two agents.
func (s *MatchService) RunCasual(ctx context.Context, agent1ID, agent2ID string) (*models.GormMatch, *models.SettlementResult, error) {
	m, err := s.prepare(agent1ID, agent2ID)
	if err != nil {
		return nil, nil, err
	}

	record := newMatchRecord(agent1ID, agent2ID, decimal.Zero)
	if err := s.db.CreateMatch(record); err != nil {
		return nil, nil, err
	}
	return s.play(ctx, record, m)
}

// RunStaked escrows stake from both agents and plays the match. All
// validation happens before any debit, and the two debits commit in one
// transaction with the match row, so a rejected request never moves
// money.
func (s *MatchService) RunStaked(ctx context.Context, agent1ID, agent2ID string, stake decimal.Decimal) (*models.GormMatch, *models.SettlementResult, error) {
	m, err := s.prepare(agent1ID, agent2ID)
	if err != nil {
		return nil, nil, err
	}

	record := newMatchRecord(agent1ID, agent2ID, stake)
	if err := s.db.Transaction(func(tx persistence.Database) error {
		if err := tx.DebitBalance(agent1ID, stake); err != nil {
			return err
		}
		if err := tx.DebitBalance(agent2ID, stake); err != nil {
			return err
		}
		return tx.CreateMatch(record)
	}); err != nil {
		return nil, nil, err
	}
	return s.play(ctx, record, m)
}

// RunEscrowed plays a staked match whose stakes were already locked by
// the challenge flow. A failure before the match row exists hands both
// stakes back; once the row is active, funds are the settlement's
// responsibility.
func (s *MatchService) RunEscrowed(ctx context.Context, agent1ID, agent2ID string, stake decimal.Decimal) (*models.GormMatch, *models.SettlementResult, error) {
	m, err := s.prepare(agent1ID, agent2ID)
	if err != nil {
		s.refundEscrow(agent1ID, agent2ID, stake)
		return nil, nil, err
	}

	record := newMatchRecord(agent1ID, agent2ID, stake)
	if err := s.db.CreateMatch(record); err != nil {
		s.refundEscrow(agent1ID, agent2ID, stake)
		return nil, nil, err
	}
	return s.play(ctx, record, m)
}

func (s *MatchService) refundEscrow(agent1ID, agent2ID string, stake decimal.Decimal) {
	err := s.db.Transaction(func(tx persistence.Database) error {
		if err := tx.CreditBalance(agent1ID, stake); err != nil {
			return err
		}
		return tx.CreditBalance(agent2ID, stake)
	})
	if err != nil {
		logger.Log.Errorw("escrow refund failed",
			"agent1", agent1ID, "agent2", agent2ID,
			"stake", stake.String(), "error", err)
	}
}

func (s *MatchService) play(ctx context.Context, record *models.GormMatch, m *matchup) (*models.GormMatch, *models.SettlementResult, error) {
	if s.monitor != nil {
		s.monitor.MatchStarted()
	}
	result := s.runner.Run(ctx, record.MatchID, m.strategy1, m.strategy2)
	if s.monitor != nil {
		s.monitor.MatchCompleted(string(result.Reason))
		for _, timing := range result.Timings {
			s.monitor.ObserveMoveLatency(timing.Took)
		}
	}

	logger.Log.Infow("match finished",
		"match_id", record.MatchID,
		"player1", m.agent1.Name,
		"player2", m.agent2.Name,
		"winner", result.Winner.String(),
		"reason", result.Reason,
		"plies", result.Plies,
	)

	// Settlement is atomic: a failure here leaves every balance and
	// rating untouched and the match row still active, so it can be
	// settled again once the ledger recovers.
	settlement, err := s.settlement.Settle(record.MatchID, result)
	if err != nil {
		logger.Log.Errorw("settlement failed", "match_id", record.MatchID, "error", err)
		return record, nil, err
	}

	settled, err := s.db.GetMatch(record.MatchID)
	if err != nil {
		logger.Log.Warnw("re-reading settled match failed, returning pre-settlement record",
			"match_id", record.MatchID, "error", err)
		return record, settlement, nil
	}
	return settled, settlement, nil
}

// History returns recent matches, newest first.
func (s *MatchService) History(limit int) ([]models.GormMatch, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.db.ListMatches(limit)
}
