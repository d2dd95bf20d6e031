// models/models.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/wfunc/arena/game"
)

// EndReason states how a match reached its terminal outcome.
type EndReason string

const (
	ReasonWin         EndReason = "win"
	ReasonDraw        EndReason = "draw"
	ReasonTimeout     EndReason = "timeout"
	ReasonInvalidMove EndReason = "invalid_move"
	ReasonError       EndReason = "error"
)

// Natural reports whether the game ended by the rules rather than by a
// forfeit condition.
func (r EndReason) Natural() bool {
	return r == ReasonWin || r == ReasonDraw
}

// Move is one recorded ply.
type Move struct {
	Player game.Cell `json:"player"`
	Column int       `json:"column"`
}

// MoveTiming records how long a player took over one move.
type MoveTiming struct {
	Player game.Cell     `json:"player"`
	Took   time.Duration `json:"took"`
}

// MatchResult is the immutable outcome of one orchestrated game. The
// orchestrator produces it; rating and settlement only ever read it.
type MatchResult struct {
	Winner      game.Cell    `json:"winner"` // Empty on draw or abort without winner
	Reason      EndReason    `json:"reason"`
	FaultPlayer game.Cell    `json:"fault_player,omitempty"` // set for non-natural endings
	Plies       int          `json:"plies"`
	Moves       []Move       `json:"moves"`
	Timings     []MoveTiming `json:"timings"`
	FinalState  game.State   `json:"final_state"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt time.Time    `json:"completed_at"`
}

// MilestoneUnlock is a one-time rating milestone bonus credited during
// settlement.
type MilestoneUnlock struct {
	AgentID string          `json:"agent_id"`
	Rating  int             `json:"rating"`
	Name    string          `json:"name"`
	Reward  decimal.Decimal `json:"reward"`
}

// Payout is the economic outcome of a staked match.
type Payout struct {
	WinnerAmount decimal.Decimal `json:"winner_amount"`
	Rake         decimal.Decimal `json:"rake"`
}

// SettlementResult reports everything a completed settlement applied:
// rating changes, payout split and any milestone bonuses. All of it lands
// in one transaction or not at all.
type SettlementResult struct {
	MatchID       string            `json:"match_id"`
	RatingChange1 int               `json:"rating_change_player1"`
	RatingChange2 int               `json:"rating_change_player2"`
	NewRating1    int               `json:"new_rating_player1"`
	NewRating2    int               `json:"new_rating_player2"`
	Pot           decimal.Decimal   `json:"pot"`
	Payout        *Payout           `json:"payout,omitempty"` // nil for unstaked matches
	Milestones    []MilestoneUnlock `json:"milestones_unlocked"`
}
