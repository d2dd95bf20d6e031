// services/stake_service.go
package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wfunc/arena/logger"
	"github.com/wfunc/arena/models"
	"github.com/wfunc/arena/persistence"
	"github.com/wfunc/arena/schedule"
)

// StakeService manages the challenge lifecycle. A challenge escrows the
// challenger's stake the moment it is created; acceptance escrows the
// acceptor's and hands both to the match pipeline, expiry refunds the
// challenger.
type StakeService struct {
	db       persistence.Database
	matches  *MatchService
	sweeper  *schedule.ExpirySweeper
	minStake decimal.Decimal
	maxStake decimal.Decimal
	ttl      time.Duration
}

func NewStakeService(db persistence.Database, matches *MatchService, sweeper *schedule.ExpirySweeper, minStake, maxStake decimal.Decimal, ttl time.Duration) *StakeService {
	return &StakeService{
		db:       db,
		matches:  matches,
		sweeper:  sweeper,
		minStake: minStake,
		maxStake: maxStake,
		ttl:      ttl,
	}
}

func (s *StakeService) validateStake(stake decimal.Decimal) error {
	if stake.LessThan(s.minStake) || stake.GreaterThan(s.maxStake) {
		return ErrStakeOutOfRange
	}
	return nil
}

// CreateChallenge escrows the challenger's stake and posts a challenge
// that expires after the configured TTL. An empty targetID is an open
// challenge any agent may accept.
func (s *StakeService) CreateChallenge(challengerID, targetID string, stake decimal.Decimal) (*models.GormChallenge, error) {
	if err := s.validateStake(stake); err != nil {
		return nil, err
	}
	if targetID == challengerID {
		return nil, ErrSelfPlay
	}

	challenger, err := s.db.GetAgent(challengerID)
	if err != nil {
		return nil, err
	}
	if challenger.Status != models.AgentStatusActive {
		return nil, ErrAgentNotActive
	}

	challenge := &models.GormChallenge{
		ChallengeID:  "chal_" + uuid.NewString(),
		ChallengerID: challengerID,
		TargetID:     targetID,
		Stake:        stake,
		Status:       models.MatchStatusPending,
		ExpiresAt:    time.Now().Add(s.ttl),
	}

	err = s.db.Transaction(func(tx persistence.Database) error {
		if err := tx.DebitBalance(challengerID, stake); err != nil {
			return err
		}
		return tx.CreateChallenge(challenge)
	})
	if err != nil {
		return nil, err
	}

	s.sweeper.Schedule(challenge.ChallengeID, challenge.ExpiresAt, s.expire)
	logger.Log.Infow("challenge created",
		"challenge_id", challenge.ChallengeID,
		"challenger", challengerID,
		"target", targetID,
		"stake", stake.String(),
	)
	return challenge, nil
}

// AcceptChallenge escrows the acceptor's stake, closes the challenge and
// runs the match. The challenger's stake is already locked, so the pot
// is complete once the acceptor's debit lands. Every rejection happens
// before that debit commits; a rejected challenge stays pending, so the
// challenger's stake is still covered by the expiry refund.
func (s *StakeService) AcceptChallenge(ctx context.Context, challengeID, acceptorID string) (*models.GormMatch, *models.SettlementResult, error) {
	var challenge *models.GormChallenge

	err := s.db.Transaction(func(tx persistence.Database) error {
		var err error
		challenge, err = tx.GetChallenge(challengeID)
		if err != nil {
			return err
		}
		if challenge.Status != models.MatchStatusPending {
			return ErrChallengeNotOpen
		}
		if time.Now().After(challenge.ExpiresAt) {
			return ErrChallengeExpired
		}
		if challenge.ChallengerID == acceptorID {
			return ErrSelfPlay
		}
		if challenge.TargetID != "" && challenge.TargetID != acceptorID {
			return ErrNotYourChallenge
		}
		// The full pre-match validation (both agents active, strategies
		// resolvable) runs before any money moves.
		if _, err := s.matches.prepare(challenge.ChallengerID, acceptorID); err != nil {
			return err
		}
		if err := tx.DebitBalance(acceptorID, challenge.Stake); err != nil {
			return err
		}
		challenge.Status = models.MatchStatusActive
		return tx.UpdateChallenge(challenge)
	})
	if err != nil {
		return nil, nil, err
	}

	s.sweeper.Cancel(challengeID)

	return s.matches.RunEscrowed(ctx, challenge.ChallengerID, acceptorID, challenge.Stake)
}

// expire is the sweeper callback. It refunds the challenger if the
// challenge is still open; a challenge accepted between the deadline and
// the sweep is left alone.
func (s *StakeService) expire(challengeID string) {
	err := s.db.Transaction(func(tx persistence.Database) error {
		challenge, err := tx.GetChallenge(challengeID)
		if err != nil {
			return err
		}
		if challenge.Status != models.MatchStatusPending {
			return nil
		}
		if err := tx.CreditBalance(challenge.ChallengerID, challenge.Stake); err != nil {
			return err
		}
		challenge.Status = models.MatchStatusAborted
		return tx.UpdateChallenge(challenge)
	})
	if err != nil {
		logger.Log.Errorw("challenge expiry failed", "challenge_id", challengeID, "error", err)
		return
	}
	logger.Log.Infow("challenge expired", "challenge_id", challengeID)
}

// ExpireNow forces the expiry path for a challenge, used by tests and
// by the admin surface.
func (s *StakeService) ExpireNow(challengeID string) {
	s.sweeper.Cancel(challengeID)
	s.expire(challengeID)
}

// OpenChallenges lists pending challenges that have not passed their
// deadline yet.
func (s *StakeService) OpenChallenges() ([]models.GormChallenge, error) {
	challenges, err := s.db.ListOpenChallenges()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	open := challenges[:0]
	for _, c := range challenges {
		if now.Before(c.ExpiresAt) {
			open = append(open, c)
		}
	}
	return open, nil
}

// Restore re-arms expiry timers for pending challenges after a restart.
func (s *StakeService) Restore() error {
	challenges, err := s.db.ListOpenChallenges()
	if err != nil {
		return err
	}
	for _, c := range challenges {
		s.sweeper.Schedule(c.ChallengeID, c.ExpiresAt, s.expire)
	}
	if len(challenges) > 0 {
		logger.Log.Infow("restored challenge timers", "count", len(challenges))
	}
	return nil
}
