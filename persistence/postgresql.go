// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	// PostgreSQL driver
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/wfunc/arena/models"
)

// PostgreSQL is the raw database/sql implementation of Database. It
// covers the same surface as the GORM backend for deployments that
// prefer hand-written SQL.
type PostgreSQL struct {
	db *sql.DB
	tx *sql.Tx
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

func (p *PostgreSQL) q() querier {
	if p.tx != nil {
		return p.tx
	}
	return p.db
}

func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	p := &PostgreSQL{db: db}
	if err := p.createTables(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PostgreSQL) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			id SERIAL PRIMARY KEY,
			agent_id TEXT UNIQUE NOT NULL,
			name TEXT NOT NULL,
			owner TEXT DEFAULT '',
			description TEXT DEFAULT '',
			strategy TEXT DEFAULT 'random',
			webhook TEXT DEFAULT '',
			rating INT NOT NULL,
			games_played INT DEFAULT 0,
			wins INT DEFAULT 0,
			losses INT DEFAULT 0,
			draws INT DEFAULT 0,
			balance NUMERIC(20,10) DEFAULT 0,
			status TEXT DEFAULT 'active',
			claimed_milestones JSONB DEFAULT '[]',
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS matches (
			id SERIAL PRIMARY KEY,
			match_id TEXT UNIQUE NOT NULL,
			player1 TEXT NOT NULL,
			player2 TEXT NOT NULL,
			status TEXT NOT NULL,
			stake NUMERIC(20,10) DEFAULT 0,
			pot NUMERIC(20,10) DEFAULT 0,
			rake NUMERIC(20,10) DEFAULT 0,
			winner TEXT DEFAULT '',
			reason TEXT DEFAULT '',
			fault_player TEXT DEFAULT '',
			plies INT DEFAULT 0,
			moves JSONB DEFAULT '[]',
			settlement JSONB,
			final_board TEXT DEFAULT '',
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS challenges (
			id SERIAL PRIMARY KEY,
			challenge_id TEXT UNIQUE NOT NULL,
			challenger_id TEXT NOT NULL,
			target_id TEXT DEFAULT '',
			stake NUMERIC(20,10) NOT NULL,
			status TEXT NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_agents_rating ON agents(rating DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_challenges_status ON challenges(status, expires_at)`,
	}
	for _, stmt := range stmts {
		if _, err := p.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

const agentColumns = `agent_id, name, owner, description, strategy, webhook,
	rating, games_played, wins, losses, draws, balance, status, claimed_milestones`

func scanAgent(row interface{ Scan(...interface{}) error }) (*models.GormAgent, error) {
	var agent models.GormAgent
	var claimed []byte
	err := row.Scan(&agent.AgentID, &agent.Name, &agent.Owner, &agent.Description,
		&agent.Strategy, &agent.Webhook, &agent.Rating, &agent.GamesPlayed,
		&agent.Wins, &agent.Losses, &agent.Draws, &agent.Balance,
		&agent.Status, &claimed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	if len(claimed) > 0 {
		if err := json.Unmarshal(claimed, &agent.ClaimedMilestones); err != nil {
			return nil, err
		}
	}
	return &agent, nil
}

func (p *PostgreSQL) CreateAgent(agent *models.GormAgent) error {
	claimed, err := json.Marshal(agent.ClaimedMilestones)
	if err != nil {
		return err
	}
	_, err = p.q().Exec(`
		INSERT INTO agents (agent_id, name, owner, description, strategy, webhook,
			rating, games_played, wins, losses, draws, balance, status, claimed_milestones)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		agent.AgentID, agent.Name, agent.Owner, agent.Description,
		agent.Strategy, agent.Webhook, agent.Rating, agent.GamesPlayed,
		agent.Wins, agent.Losses, agent.Draws, agent.Balance,
		agent.Status, claimed)
	return err
}

func (p *PostgreSQL) GetAgent(agentID string) (*models.GormAgent, error) {
	row := p.q().QueryRow(
		`SELECT `+agentColumns+` FROM agents WHERE agent_id = $1`, agentID)
	return scanAgent(row)
}

// UpdateAgent writes everything except balance. Balance changes go
// through CreditBalance/DebitBalance only; settlement credits a payout
// and then saves the same row, and excluding balance here keeps the save
// from overwriting the credit with a stale in-memory value.
func (p *PostgreSQL) UpdateAgent(agent *models.GormAgent) error {
	claimed, err := json.Marshal(agent.ClaimedMilestones)
	if err != nil {
		return err
	}
	result, err := p.q().Exec(`
		UPDATE agents SET name=$2, owner=$3, description=$4, strategy=$5,
			webhook=$6, rating=$7, games_played=$8, wins=$9, losses=$10,
			draws=$11, status=$12, claimed_milestones=$13,
			updated_at=NOW()
		WHERE agent_id=$1`,
		agent.AgentID, agent.Name, agent.Owner, agent.Description,
		agent.Strategy, agent.Webhook, agent.Rating, agent.GamesPlayed,
		agent.Wins, agent.Losses, agent.Draws,
		agent.Status, claimed)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (p *PostgreSQL) listAgents(query string, args ...interface{}) ([]models.GormAgent, error) {
	rows, err := p.q().Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []models.GormAgent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *agent)
	}
	return agents, rows.Err()
}

func (p *PostgreSQL) ListAgents(limit int) ([]models.GormAgent, error) {
	return p.listAgents(
		`SELECT `+agentColumns+` FROM agents WHERE status = $1 LIMIT $2`,
		models.AgentStatusActive, limit)
}

func (p *PostgreSQL) Leaderboard(limit int) ([]models.GormAgent, error) {
	return p.listAgents(
		`SELECT `+agentColumns+` FROM agents WHERE status = $1 ORDER BY rating DESC LIMIT $2`,
		models.AgentStatusActive, limit)
}

func (p *PostgreSQL) CreditBalance(agentID string, amount decimal.Decimal) error {
	result, err := p.q().Exec(
		`UPDATE agents SET balance = balance + $2, updated_at = NOW() WHERE agent_id = $1`,
		agentID, amount)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (p *PostgreSQL) DebitBalance(agentID string, amount decimal.Decimal) error {
	result, err := p.q().Exec(
		`UPDATE agents SET balance = balance - $2, updated_at = NOW()
		 WHERE agent_id = $1 AND balance >= $2`,
		agentID, amount)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := p.GetAgent(agentID); err != nil {
			return err
		}
		return ErrInsufficientFunds
	}
	return nil
}

func (p *PostgreSQL) CreateMatch(match *models.GormMatch) error {
	moves, err := json.Marshal(match.Moves)
	if err != nil {
		return err
	}
	settlement, err := marshalNullable(match.Settlement)
	if err != nil {
		return err
	}
	_, err = p.q().Exec(`
		INSERT INTO matches (match_id, player1, player2, status, stake, pot, rake,
			winner, reason, fault_player, plies, moves, settlement, final_board,
			started_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		match.MatchID, match.Player1, match.Player2, match.Status,
		match.Stake, match.Pot, match.Rake, match.Winner, match.Reason,
		match.FaultPlayer, match.Plies, moves, settlement, match.FinalBoard,
		match.StartedAt, match.CompletedAt)
	return err
}

func (p *PostgreSQL) GetMatch(matchID string) (*models.GormMatch, error) {
	row := p.q().QueryRow(`
		SELECT match_id, player1, player2, status, stake, pot, rake, winner,
			reason, fault_player, plies, moves, settlement, final_board,
			started_at, completed_at
		FROM matches WHERE match_id = $1`, matchID)
	return scanMatch(row)
}

func scanMatch(row interface{ Scan(...interface{}) error }) (*models.GormMatch, error) {
	var match models.GormMatch
	var moves, settlement []byte
	err := row.Scan(&match.MatchID, &match.Player1, &match.Player2,
		&match.Status, &match.Stake, &match.Pot, &match.Rake, &match.Winner,
		&match.Reason, &match.FaultPlayer, &match.Plies, &moves, &settlement,
		&match.FinalBoard, &match.StartedAt, &match.CompletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	if len(moves) > 0 {
		if err := json.Unmarshal(moves, &match.Moves); err != nil {
			return nil, err
		}
	}
	if len(settlement) > 0 {
		if err := json.Unmarshal(settlement, &match.Settlement); err != nil {
			return nil, err
		}
	}
	return &match, nil
}

func (p *PostgreSQL) UpdateMatch(match *models.GormMatch) error {
	moves, err := json.Marshal(match.Moves)
	if err != nil {
		return err
	}
	settlement, err := marshalNullable(match.Settlement)
	if err != nil {
		return err
	}
	result, err := p.q().Exec(`
		UPDATE matches SET status=$2, stake=$3, pot=$4, rake=$5, winner=$6,
			reason=$7, fault_player=$8, plies=$9, moves=$10, settlement=$11,
			final_board=$12, started_at=$13, completed_at=$14, updated_at=NOW()
		WHERE match_id=$1`,
		match.MatchID, match.Status, match.Stake, match.Pot, match.Rake,
		match.Winner, match.Reason, match.FaultPlayer, match.Plies, moves,
		settlement, match.FinalBoard, match.StartedAt, match.CompletedAt)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (p *PostgreSQL) ListMatches(limit int) ([]models.GormMatch, error) {
	rows, err := p.q().Query(`
		SELECT match_id, player1, player2, status, stake, pot, rake, winner,
			reason, fault_player, plies, moves, settlement, final_board,
			started_at, completed_at
		FROM matches ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []models.GormMatch
	for rows.Next() {
		match, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, *match)
	}
	return matches, rows.Err()
}

func (p *PostgreSQL) CreateChallenge(challenge *models.GormChallenge) error {
	_, err := p.q().Exec(`
		INSERT INTO challenges (challenge_id, challenger_id, target_id, stake, status, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		challenge.ChallengeID, challenge.ChallengerID, challenge.TargetID,
		challenge.Stake, challenge.Status, challenge.ExpiresAt)
	return err
}

func (p *PostgreSQL) GetChallenge(challengeID string) (*models.GormChallenge, error) {
	var c models.GormChallenge
	err := p.q().QueryRow(`
		SELECT challenge_id, challenger_id, target_id, stake, status, expires_at
		FROM challenges WHERE challenge_id = $1`, challengeID).
		Scan(&c.ChallengeID, &c.ChallengerID, &c.TargetID, &c.Stake,
			&c.Status, &c.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (p *PostgreSQL) UpdateChallenge(challenge *models.GormChallenge) error {
	result, err := p.q().Exec(`
		UPDATE challenges SET status=$2, expires_at=$3, updated_at=NOW()
		WHERE challenge_id=$1`,
		challenge.ChallengeID, challenge.Status, challenge.ExpiresAt)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (p *PostgreSQL) ListOpenChallenges() ([]models.GormChallenge, error) {
	rows, err := p.q().Query(`
		SELECT challenge_id, challenger_id, target_id, stake, status, expires_at
		FROM challenges WHERE status = $1 ORDER BY expires_at ASC`,
		models.MatchStatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var challenges []models.GormChallenge
	for rows.Next() {
		var c models.GormChallenge
		if err := rows.Scan(&c.ChallengeID, &c.ChallengerID, &c.TargetID,
			&c.Stake, &c.Status, &c.ExpiresAt); err != nil {
			return nil, err
		}
		challenges = append(challenges, c)
	}
	return challenges, rows.Err()
}

func (p *PostgreSQL) LockAgents(agentIDs ...string) ([]*models.GormAgent, error) {
	ids := append([]string(nil), agentIDs...)
	sort.Strings(ids)

	byID := make(map[string]*models.GormAgent, len(ids))
	for _, id := range ids {
		row := p.q().QueryRow(
			`SELECT `+agentColumns+` FROM agents WHERE agent_id = $1 FOR UPDATE`, id)
		agent, err := scanAgent(row)
		if err != nil {
			return nil, err
		}
		byID[id] = agent
	}

	out := make([]*models.GormAgent, len(agentIDs))
	for i, id := range agentIDs {
		out[i] = byID[id]
	}
	return out, nil
}

func (p *PostgreSQL) Transaction(fn func(tx Database) error) error {
	if p.tx != nil {
		// Already inside a transaction; PostgreSQL has no nesting here.
		return fn(p)
	}
	tx, err := p.db.Begin()
	if err != nil {
		return err
	}
	if err := fn(&PostgreSQL{db: p.db, tx: tx}); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (p *PostgreSQL) Close() error {
	return p.db.Close()
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func marshalNullable(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(*models.SettlementResult); ok && s == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
