package services

import (
	"errors"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/wfunc/arena/logger"
	"github.com/wfunc/arena/models"
	"github.com/wfunc/arena/persistence"
)

func init() {
	logger.Init()
}

// mockDatabase is an in-memory Database double. Transaction snapshots
// the whole store and restores it on error, giving the same all-or-
// nothing behavior the real backends get from PostgreSQL.
type mockDatabase struct {
	mu         sync.Mutex
	agents     map[string]*models.GormAgent
	matches    map[string]*models.GormMatch
	challenges map[string]*models.GormChallenge

	// failCredit forces CreditBalance to fail for an agent, to exercise
	// rollback paths.
	failCredit map[string]error

	// failCompletedReads makes GetMatch fail once a match is completed,
	// to exercise the post-settlement re-read path.
	failCompletedReads bool
}

func newMockDatabase() *mockDatabase {
	return &mockDatabase{
		agents:     make(map[string]*models.GormAgent),
		matches:    make(map[string]*models.GormMatch),
		challenges: make(map[string]*models.GormChallenge),
		failCredit: make(map[string]error),
	}
}

func copyAgent(a *models.GormAgent) *models.GormAgent {
	cp := *a
	cp.ClaimedMilestones = append([]int64(nil), a.ClaimedMilestones...)
	return &cp
}

func copyMatch(m *models.GormMatch) *models.GormMatch {
	cp := *m
	cp.Moves = append([]models.Move(nil), m.Moves...)
	return &cp
}

func copyChallenge(c *models.GormChallenge) *models.GormChallenge {
	cp := *c
	return &cp
}

func (m *mockDatabase) CreateAgent(agent *models.GormAgent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[agent.AgentID] = copyAgent(agent)
	return nil
}

func (m *mockDatabase) GetAgent(agentID string) (*models.GormAgent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[agentID]
	if !ok {
		return nil, persistence.ErrRecordNotFound
	}
	return copyAgent(agent), nil
}

func (m *mockDatabase) UpdateAgent(agent *models.GormAgent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.agents[agent.AgentID]
	if !ok {
		return persistence.ErrRecordNotFound
	}
	// Balance is owned by Credit/DebitBalance, not by row updates.
	balance := stored.Balance
	cp := copyAgent(agent)
	cp.Balance = balance
	m.agents[agent.AgentID] = cp
	return nil
}

func (m *mockDatabase) ListAgents(limit int) ([]models.GormAgent, error) {
	return m.Leaderboard(limit)
}

func (m *mockDatabase) Leaderboard(limit int) ([]models.GormAgent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.GormAgent, 0, len(m.agents))
	for _, a := range m.agents {
		out = append(out, *copyAgent(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rating > out[j].Rating })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockDatabase) CreditBalance(agentID string, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failCredit[agentID]; err != nil {
		return err
	}
	agent, ok := m.agents[agentID]
	if !ok {
		return persistence.ErrRecordNotFound
	}
	agent.Balance = agent.Balance.Add(amount)
	return nil
}

func (m *mockDatabase) DebitBalance(agentID string, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[agentID]
	if !ok {
		return persistence.ErrRecordNotFound
	}
	if agent.Balance.LessThan(amount) {
		return persistence.ErrInsufficientFunds
	}
	agent.Balance = agent.Balance.Sub(amount)
	return nil
}

func (m *mockDatabase) CreateMatch(match *models.GormMatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matches[match.MatchID] = copyMatch(match)
	return nil
}

func (m *mockDatabase) GetMatch(matchID string) (*models.GormMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	match, ok := m.matches[matchID]
	if !ok {
		return nil, persistence.ErrRecordNotFound
	}
	if m.failCompletedReads && match.Status == models.MatchStatusCompleted {
		return nil, errors.New("read replica unavailable")
	}
	return copyMatch(match), nil
}

func (m *mockDatabase) UpdateMatch(match *models.GormMatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.matches[match.MatchID]; !ok {
		return persistence.ErrRecordNotFound
	}
	m.matches[match.MatchID] = copyMatch(match)
	return nil
}

func (m *mockDatabase) ListMatches(limit int) ([]models.GormMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.GormMatch, 0, len(m.matches))
	for _, mt := range m.matches {
		out = append(out, *copyMatch(mt))
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockDatabase) CreateChallenge(challenge *models.GormChallenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.challenges[challenge.ChallengeID] = copyChallenge(challenge)
	return nil
}

func (m *mockDatabase) GetChallenge(challengeID string) (*models.GormChallenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.challenges[challengeID]
	if !ok {
		return nil, persistence.ErrRecordNotFound
	}
	return copyChallenge(c), nil
}

func (m *mockDatabase) UpdateChallenge(challenge *models.GormChallenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.challenges[challenge.ChallengeID]; !ok {
		return persistence.ErrRecordNotFound
	}
	m.challenges[challenge.ChallengeID] = copyChallenge(challenge)
	return nil
}

func (m *mockDatabase) ListOpenChallenges() ([]models.GormChallenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.GormChallenge{}
	for _, c := range m.challenges {
		if c.Status == models.MatchStatusPending {
			out = append(out, *copyChallenge(c))
		}
	}
	return out, nil
}

func (m *mockDatabase) LockAgents(agentIDs ...string) ([]*models.GormAgent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.GormAgent, 0, len(agentIDs))
	for _, id := range agentIDs {
		agent, ok := m.agents[id]
		if !ok {
			return nil, persistence.ErrRecordNotFound
		}
		out = append(out, copyAgent(agent))
	}
	return out, nil
}

func (m *mockDatabase) Transaction(fn func(tx persistence.Database) error) error {
	m.mu.Lock()
	snapAgents := make(map[string]*models.GormAgent, len(m.agents))
	for k, v := range m.agents {
		snapAgents[k] = copyAgent(v)
	}
	snapMatches := make(map[string]*models.GormMatch, len(m.matches))
	for k, v := range m.matches {
		snapMatches[k] = copyMatch(v)
	}
	snapChallenges := make(map[string]*models.GormChallenge, len(m.challenges))
	for k, v := range m.challenges {
		snapChallenges[k] = copyChallenge(v)
	}
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.agents = snapAgents
		m.matches = snapMatches
		m.challenges = snapChallenges
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *mockDatabase) Close() error { return nil }

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testAgent(id, name string, rating int, balance string) *models.GormAgent {
	return &models.GormAgent{
		AgentID:           id,
		Name:              name,
		Strategy:          "random",
		Rating:            rating,
		Balance:           dec(balance),
		Status:            models.AgentStatusActive,
		ClaimedMilestones: []int64{},
	}
}
