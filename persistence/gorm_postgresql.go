// persistence/gorm_postgresql.go
package persistence

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wfunc/arena/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// GormPostgreSQL implements Database on GORM.
type GormPostgreSQL struct {
	db *gorm.DB
}

func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	gormLogger := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold: time.Second,
			LogLevel:      gormlogger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := autoMigrate(db); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.GormAgent{},
		&models.GormMatch{},
		&models.GormChallenge{},
	)
}

func (p *GormPostgreSQL) CreateAgent(agent *models.GormAgent) error {
	return p.db.Create(agent).Error
}

func (p *GormPostgreSQL) GetAgent(agentID string) (*models.GormAgent, error) {
	var agent models.GormAgent
	if err := p.db.Where("agent_id = ?", agentID).First(&agent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &agent, nil
}

// UpdateAgent persists everything except the balance column, which is
// owned by CreditBalance/DebitBalance. Settlement credits a payout and
// then saves the same row; omitting balance keeps the save from
// overwriting the credit with the stale in-memory value.
func (p *GormPostgreSQL) UpdateAgent(agent *models.GormAgent) error {
	return p.db.Omit("balance").Save(agent).Error
}

func (p *GormPostgreSQL) ListAgents(limit int) ([]models.GormAgent, error) {
	var agents []models.GormAgent
	err := p.db.Where("status = ?", models.AgentStatusActive).
		Limit(limit).Find(&agents).Error
	return agents, err
}

func (p *GormPostgreSQL) Leaderboard(limit int) ([]models.GormAgent, error) {
	var agents []models.GormAgent
	err := p.db.Where("status = ?", models.AgentStatusActive).
		Order("rating DESC").Limit(limit).Find(&agents).Error
	return agents, err
}

func (p *GormPostgreSQL) CreditBalance(agentID string, amount decimal.Decimal) error {
	result := p.db.Model(&models.GormAgent{}).
		Where("agent_id = ?", agentID).
		Update("balance", gorm.Expr("balance + ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (p *GormPostgreSQL) DebitBalance(agentID string, amount decimal.Decimal) error {
	// The balance >= amount predicate makes the debit atomic; a zero
	// row count distinguishes an underfunded agent from a missing one.
	result := p.db.Model(&models.GormAgent{}).
		Where("agent_id = ? AND balance >= ?", agentID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := p.GetAgent(agentID); err != nil {
			return err
		}
		return ErrInsufficientFunds
	}
	return nil
}

func (p *GormPostgreSQL) CreateMatch(match *models.GormMatch) error {
	return p.db.Create(match).Error
}

func (p *GormPostgreSQL) GetMatch(matchID string) (*models.GormMatch, error) {
	var match models.GormMatch
	if err := p.db.Where("match_id = ?", matchID).First(&match).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &match, nil
}

func (p *GormPostgreSQL) UpdateMatch(match *models.GormMatch) error {
	return p.db.Save(match).Error
}

func (p *GormPostgreSQL) ListMatches(limit int) ([]models.GormMatch, error) {
	var matches []models.GormMatch
	err := p.db.Order("created_at DESC").Limit(limit).Find(&matches).Error
	return matches, err
}

func (p *GormPostgreSQL) CreateChallenge(challenge *models.GormChallenge) error {
	return p.db.Create(challenge).Error
}

func (p *GormPostgreSQL) GetChallenge(challengeID string) (*models.GormChallenge, error) {
	var challenge models.GormChallenge
	if err := p.db.Where("challenge_id = ?", challengeID).First(&challenge).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &challenge, nil
}

func (p *GormPostgreSQL) UpdateChallenge(challenge *models.GormChallenge) error {
	return p.db.Save(challenge).Error
}

func (p *GormPostgreSQL) ListOpenChallenges() ([]models.GormChallenge, error) {
	var challenges []models.GormChallenge
	err := p.db.Where("status = ?", models.MatchStatusPending).
		Order("expires_at ASC").Find(&challenges).Error
	return challenges, err
}

// LockAgents selects the agent rows FOR UPDATE in sorted-id order.
// Sorting makes two settlements that share an agent acquire locks in the
// same order, so they serialize instead of deadlocking.
func (p *GormPostgreSQL) LockAgents(agentIDs ...string) ([]*models.GormAgent, error) {
	ids := append([]string(nil), agentIDs...)
	sort.Strings(ids)

	byID := make(map[string]*models.GormAgent, len(ids))
	for _, id := range ids {
		var agent models.GormAgent
		err := p.db.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("agent_id = ?", id).First(&agent).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrRecordNotFound
			}
			return nil, err
		}
		byID[id] = &agent
	}

	// Return in the caller's order.
	out := make([]*models.GormAgent, len(agentIDs))
	for i, id := range agentIDs {
		out[i] = byID[id]
	}
	return out, nil
}

func (p *GormPostgreSQL) Transaction(fn func(tx Database) error) error {
	return p.db.Transaction(func(tx *gorm.DB) error {
		return fn(&GormPostgreSQL{db: tx})
	})
}

func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
