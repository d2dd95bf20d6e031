// persistence/interface.go
package persistence

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/wfunc/arena/models"
)

var (
	ErrRecordNotFound    = errors.New("record not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Database is the repository surface the services depend on. Both the
// GORM and the raw PostgreSQL backends implement it, and tests inject
// in-memory doubles.
//
// Transaction runs fn against a transaction-bound Database; returning an
// error rolls everything back. LockAgents takes row locks in sorted-id
// order inside a transaction, which is the serialization primitive that
// keeps concurrent settlements from losing updates on a shared agent.
type Database interface {
	CreateAgent(agent *models.GormAgent) error
	GetAgent(agentID string) (*models.GormAgent, error)
	// UpdateAgent never writes the balance column; balances move only
	// through CreditBalance and DebitBalance.
	UpdateAgent(agent *models.GormAgent) error
	ListAgents(limit int) ([]models.GormAgent, error)
	Leaderboard(limit int) ([]models.GormAgent, error)

	// CreditBalance and DebitBalance adjust a non-negative balance.
	// Debit below zero fails with ErrInsufficientFunds and mutates
	// nothing.
	CreditBalance(agentID string, amount decimal.Decimal) error
	DebitBalance(agentID string, amount decimal.Decimal) error

	CreateMatch(match *models.GormMatch) error
	GetMatch(matchID string) (*models.GormMatch, error)
	UpdateMatch(match *models.GormMatch) error
	ListMatches(limit int) ([]models.GormMatch, error)

	CreateChallenge(challenge *models.GormChallenge) error
	GetChallenge(challengeID string) (*models.GormChallenge, error)
	UpdateChallenge(challenge *models.GormChallenge) error
	ListOpenChallenges() ([]models.GormChallenge, error)

	LockAgents(agentIDs ...string) ([]*models.GormAgent, error)
	Transaction(fn func(tx Database) error) error
	Close() error
}
