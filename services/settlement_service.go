// services/settlement_service.go
package services

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wfunc/arena/game"
	"github.com/wfunc/arena/models"
	"github.com/wfunc/arena/monitor"
	"github.com/wfunc/arena/persistence"
	"github.com/wfunc/arena/rating"
)

// moneyPlaces is the precision money is rounded to. Rounding happens
// exactly once, at rake computation; everything after is subtraction,
// so payout + rake == pot holds exactly.
const moneyPlaces = 6

// Milestone is one parsed reward tier.
type Milestone struct {
	Rating int
	Reward decimal.Decimal
	Name   string
}

// SettlementService applies the full economic and rating outcome of one
// match as a single transaction: Elo update, stat counters, payout and
// milestone bonuses all land together or not at all.
type SettlementService struct {
	db         persistence.Database
	elo        rating.Config
	rakeRate   decimal.Decimal // fraction of the pot, e.g. 0.05
	milestones []Milestone
	monitor    *monitor.Monitor
}

func NewSettlementService(db persistence.Database, elo rating.Config, rakeRate decimal.Decimal, milestones []Milestone, mon *monitor.Monitor) *SettlementService {
	return &SettlementService{
		db:         db,
		elo:        elo,
		rakeRate:   rakeRate,
		milestones: milestones,
		monitor:    mon,
	}
}

// score maps a match result to player 1's actual Elo score.
func score(result *models.MatchResult) float64 {
	switch result.Winner {
	case game.Player1:
		return rating.ScoreWin
	case game.Player2:
		return rating.ScoreLoss
	}
	return rating.ScoreDraw
}

// Settle finalizes a match from its MatchResult. The match row must be
// in active status with both stakes already escrowed (stake zero for
// casual matches). Settling a completed match fails with
// ErrAlreadySettled and changes nothing.
func (s *SettlementService) Settle(matchID string, result *models.MatchResult) (*models.SettlementResult, error) {
	var settlement *models.SettlementResult

	err := s.db.Transaction(func(tx persistence.Database) error {
		// Lock both agents before reading the match: two settlements
		// that share an agent serialize here, so the loser of the race
		// observes the completed status below.
		probe, err := tx.GetMatch(matchID)
		if err != nil {
			return err
		}

		agents, err := tx.LockAgents(probe.Player1, probe.Player2)
		if err != nil {
			return err
		}
		agent1, agent2 := agents[0], agents[1]

		match, err := tx.GetMatch(matchID)
		if err != nil {
			return err
		}
		if match.Status == models.MatchStatusCompleted {
			return ErrAlreadySettled
		}
		if match.Status != models.MatchStatusActive {
			return fmt.Errorf("%w: status %s", ErrMatchNotSettleable, match.Status)
		}

		settlement = &models.SettlementResult{
			MatchID:    matchID,
			Milestones: []models.MilestoneUnlock{},
		}

		s.applyRatings(agent1, agent2, result, settlement)

		if match.Stake.Sign() > 0 {
			if err := s.applyPayout(tx, match, agent1, agent2, result, settlement); err != nil {
				return err
			}
		}

		if err := s.applyMilestones(tx, agent1, settlement); err != nil {
			return err
		}
		if err := s.applyMilestones(tx, agent2, settlement); err != nil {
			return err
		}

		if err := tx.UpdateAgent(agent1); err != nil {
			return err
		}
		if err := tx.UpdateAgent(agent2); err != nil {
			return err
		}

		return s.completeMatch(tx, match, result, settlement)
	})

	if err != nil {
		if s.monitor != nil && err != ErrAlreadySettled {
			s.monitor.SettlementFailed()
		}
		return nil, err
	}
	return settlement, nil
}

func (s *SettlementService) applyRatings(agent1, agent2 *models.GormAgent, result *models.MatchResult, settlement *models.SettlementResult) {
	actual := score(result)
	new1, new2 := s.elo.Update(agent1.Rating, agent1.GamesPlayed,
		agent2.Rating, agent2.GamesPlayed, actual)

	settlement.RatingChange1 = new1 - agent1.Rating
	settlement.RatingChange2 = new2 - agent2.Rating
	settlement.NewRating1 = new1
	settlement.NewRating2 = new2

	agent1.Rating = new1
	agent2.Rating = new2
	agent1.GamesPlayed++
	agent2.GamesPlayed++

	switch result.Winner {
	case game.Player1:
		agent1.Wins++
		agent2.Losses++
	case game.Player2:
		agent2.Wins++
		agent1.Losses++
	default:
		agent1.Draws++
		agent2.Draws++
	}
}

// applyPayout distributes the pot. Forfeits are decisive results: the
// forfeiting player's stake stays in the pot and the winner collects
// pot minus rake. On a draw each player is refunded stake - rake/2, so
// the house collects the full rake either way.
func (s *SettlementService) applyPayout(tx persistence.Database, match *models.GormMatch, agent1, agent2 *models.GormAgent, result *models.MatchResult, settlement *models.SettlementResult) error {
	pot := match.Stake.Mul(decimal.NewFromInt(2))
	rake := pot.Mul(s.rakeRate).Round(moneyPlaces)
	payout := pot.Sub(rake)

	match.Pot = pot
	match.Rake = rake
	settlement.Pot = pot
	settlement.Payout = &models.Payout{Rake: rake}

	switch result.Winner {
	case game.Player1, game.Player2:
		winnerID := agent1.AgentID
		if result.Winner == game.Player2 {
			winnerID = agent2.AgentID
		}
		if err := tx.CreditBalance(winnerID, payout); err != nil {
			return err
		}
		settlement.Payout.WinnerAmount = payout
	default:
		refund := match.Stake.Sub(rake.Div(decimal.NewFromInt(2)))
		if err := tx.CreditBalance(agent1.AgentID, refund); err != nil {
			return err
		}
		if err := tx.CreditBalance(agent2.AgentID, refund); err != nil {
			return err
		}
	}

	if s.monitor != nil {
		s.monitor.AddRake(rake.InexactFloat64())
	}
	return nil
}

// applyMilestones credits every configured tier the agent's new rating
// reaches for the first time. Claims are monotonic; a later rating drop
// never revokes them.
func (s *SettlementService) applyMilestones(tx persistence.Database, agent *models.GormAgent, settlement *models.SettlementResult) error {
	for _, tier := range s.milestones {
		if agent.Rating < tier.Rating || agent.Claimed(tier.Rating) {
			continue
		}
		if err := tx.CreditBalance(agent.AgentID, tier.Reward); err != nil {
			return err
		}
		agent.ClaimedMilestones = append(agent.ClaimedMilestones, int64(tier.Rating))
		settlement.Milestones = append(settlement.Milestones, models.MilestoneUnlock{
			AgentID: agent.AgentID,
			Rating:  tier.Rating,
			Name:    tier.Name,
			Reward:  tier.Reward,
		})
		if s.monitor != nil {
			s.monitor.MilestoneUnlocked()
		}
	}
	return nil
}

func (s *SettlementService) completeMatch(tx persistence.Database, match *models.GormMatch, result *models.MatchResult, settlement *models.SettlementResult) error {
	switch result.Winner {
	case game.Player1:
		match.Winner = match.Player1
	case game.Player2:
		match.Winner = match.Player2
	}
	switch result.FaultPlayer {
	case game.Player1:
		match.FaultPlayer = match.Player1
	case game.Player2:
		match.FaultPlayer = match.Player2
	}

	match.Status = models.MatchStatusCompleted
	match.Reason = string(result.Reason)
	match.Plies = result.Plies
	match.Moves = result.Moves
	match.Settlement = settlement
	match.FinalBoard = game.Render(result.FinalState.Board)
	now := time.Now()
	match.CompletedAt = &now

	return tx.UpdateMatch(match)
}
