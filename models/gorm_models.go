// models/gorm_models.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Agent lifecycle states. Agents are never physically deleted.
const (
	AgentStatusActive   = "active"
	AgentStatusInactive = "inactive"
	AgentStatusBanned   = "banned"
)

// Match/challenge lifecycle. Transitions are one-way:
// pending -> active -> completed | aborted.
const (
	MatchStatusPending   = "pending"
	MatchStatusActive    = "active"
	MatchStatusCompleted = "completed"
	MatchStatusAborted   = "aborted"
)

// GormAgent is a registered competitor.
type GormAgent struct {
	gorm.Model
	AgentID     string `gorm:"uniqueIndex;not null"`
	Name        string `gorm:"not null"`
	Owner       string
	Description string

	// Strategy binding: builtin name, or a webhook URL for remote agents.
	Strategy string `gorm:"default:'random'"`
	Webhook  string

	Rating      int             `gorm:"not null"`
	GamesPlayed int             `gorm:"default:0"`
	Wins        int             `gorm:"default:0"`
	Losses      int             `gorm:"default:0"`
	Draws       int             `gorm:"default:0"`
	Balance     decimal.Decimal `gorm:"type:numeric(20,10);default:0"`
	Status      string          `gorm:"default:'active'"`

	// ClaimedMilestones holds claimed rating thresholds as a sorted
	// int slice. Monotonic, entries are never removed.
	ClaimedMilestones []int64 `gorm:"type:jsonb;serializer:json"`
}

// Claimed reports whether the milestone threshold was already paid out.
func (a *GormAgent) Claimed(rating int) bool {
	for _, r := range a.ClaimedMilestones {
		if r == int64(rating) {
			return true
		}
	}
	return false
}

// GormMatch is one staked or casual match record.
type GormMatch struct {
	gorm.Model
	MatchID string `gorm:"uniqueIndex;not null"`
	Player1 string `gorm:"index;not null"`
	Player2 string `gorm:"index;not null"`
	Status  string `gorm:"index;not null"`

	Stake decimal.Decimal `gorm:"type:numeric(20,10);default:0"`
	Pot   decimal.Decimal `gorm:"type:numeric(20,10);default:0"`
	Rake  decimal.Decimal `gorm:"type:numeric(20,10);default:0"`

	Winner      string
	Reason      string
	FaultPlayer string
	Plies       int
	Moves       []Move            `gorm:"type:jsonb;serializer:json"`
	Settlement  *SettlementResult `gorm:"type:jsonb;serializer:json"`
	FinalBoard  string            `gorm:"type:text"`

	StartedAt   *time.Time
	CompletedAt *time.Time
}

// GormChallenge is a pending staked challenge. The challenger's stake is
// already escrowed while the challenge sits here; expiry refunds it.
type GormChallenge struct {
	gorm.Model
	ChallengeID  string          `gorm:"uniqueIndex;not null"`
	ChallengerID string          `gorm:"index;not null"`
	TargetID     string          // empty = open challenge
	Stake        decimal.Decimal `gorm:"type:numeric(20,10);not null"`
	Status       string          `gorm:"index;not null"`
	ExpiresAt    time.Time       `gorm:"index;not null"`
}
