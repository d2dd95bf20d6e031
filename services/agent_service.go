// services/agent_service.go
package services

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wfunc/arena/models"
	"github.com/wfunc/arena/persistence"
	"github.com/wfunc/arena/rating"
	"github.com/wfunc/arena/strategy"
)

// AgentService handles registration, lookup and balance deposits.
type AgentService struct {
	db           persistence.Database
	elo          rating.Config
	minimaxDepth int
}

func NewAgentService(db persistence.Database, elo rating.Config, minimaxDepth int) *AgentService {
	return &AgentService{db: db, elo: elo, minimaxDepth: minimaxDepth}
}

// RegisterRequest is what a new competitor supplies.
type RegisterRequest struct {
	Name        string `json:"name"`
	Owner       string `json:"owner"`
	Description string `json:"description"`
	Strategy    string `json:"strategy"`
	Webhook     string `json:"webhook"`
}

// Register creates an agent with the configured initial rating and a
// zero balance.
func (s *AgentService) Register(req RegisterRequest) (*models.GormAgent, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("agent name is required")
	}
	strategyName := req.Strategy
	if strategyName == "" {
		strategyName = strategy.BuiltinRandom
	}
	if req.Webhook == "" {
		if _, err := strategy.ForBuiltin(strategyName, s.minimaxDepth); err != nil {
			return nil, err
		}
	}

	agent := &models.GormAgent{
		AgentID:           "agent_" + uuid.NewString(),
		Name:              req.Name,
		Owner:             req.Owner,
		Description:       req.Description,
		Strategy:          strategyName,
		Webhook:           req.Webhook,
		Rating:            s.elo.InitialRating,
		Balance:           decimal.Zero,
		Status:            models.AgentStatusActive,
		ClaimedMilestones: []int64{},
	}
	if err := s.db.CreateAgent(agent); err != nil {
		return nil, err
	}
	return agent, nil
}

func (s *AgentService) Get(agentID string) (*models.GormAgent, error) {
	return s.db.GetAgent(agentID)
}

func (s *AgentService) Leaderboard(limit int) ([]models.GormAgent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.db.Leaderboard(limit)
}

// Deposit credits funds onto an agent's balance. The payment-protocol
// verification happens upstream; by the time this runs the money is
// considered received.
func (s *AgentService) Deposit(agentID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("deposit must be positive")
	}
	var balance decimal.Decimal
	err := s.db.Transaction(func(tx persistence.Database) error {
		if err := tx.CreditBalance(agentID, amount); err != nil {
			return err
		}
		agent, err := tx.GetAgent(agentID)
		if err != nil {
			return err
		}
		balance = agent.Balance
		return nil
	})
	return balance, err
}

// StrategyFor resolves the decision function bound to an agent: a
// webhook proxy for remote agents, otherwise the named builtin.
func (s *AgentService) StrategyFor(agent *models.GormAgent) (strategy.Strategy, error) {
	if agent.Webhook != "" {
		return strategy.NewWebhook(agent.Name, agent.Webhook), nil
	}
	return strategy.ForBuiltin(agent.Strategy, s.minimaxDepth)
}

// Rank is the display tier for an agent's current rating.
func (s *AgentService) Rank(agent *models.GormAgent) string {
	return rating.Rank(agent.Rating)
}
