package main

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/wfunc/arena/broadcast"
	"github.com/wfunc/arena/config"
	"github.com/wfunc/arena/logger"
	"github.com/wfunc/arena/match"
	"github.com/wfunc/arena/monitor"
	"github.com/wfunc/arena/persistence"
	"github.com/wfunc/arena/rating"
	"github.com/wfunc/arena/schedule"
	"github.com/wfunc/arena/server"
	"github.com/wfunc/arena/services"
)

func main() {
	// Initialize logger
	logger.Init()

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Database
	db, err := persistence.NewGormPostgreSQL(
		cfg.Database.Postgres.Host,
		cfg.Database.Postgres.Port,
		cfg.Database.Postgres.User,
		cfg.Database.Postgres.Password,
		cfg.Database.Postgres.DBName,
	)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	logger.Log.Info("Database connection successful.")

	// Monitoring endpoint (prometheus + expvar)
	mon := monitor.NewMonitor("arena")
	mon.StartServer(cfg.Server.MonitorAddress)

	elo := rating.Config{
		InitialRating:    cfg.Arena.Elo.InitialRating,
		KFactorNew:       cfg.Arena.Elo.KFactorNew,
		KFactorSettled:   cfg.Arena.Elo.KFactorSettled,
		ProvisionalGames: cfg.Arena.Elo.ProvisionalGames,
	}

	rakeRate, err := decimal.NewFromString(cfg.Arena.Stakes.RakePercent)
	if err != nil {
		logger.Log.Fatalf("Invalid rake_percent: %v", err)
	}
	rakeRate = rakeRate.Div(decimal.NewFromInt(100))
	minStake, err := decimal.NewFromString(cfg.Arena.Stakes.MinStake)
	if err != nil {
		logger.Log.Fatalf("Invalid min_stake: %v", err)
	}
	maxStake, err := decimal.NewFromString(cfg.Arena.Stakes.MaxStake)
	if err != nil {
		logger.Log.Fatalf("Invalid max_stake: %v", err)
	}

	milestones := make([]services.Milestone, 0, len(cfg.Arena.Milestones))
	for _, tier := range cfg.Arena.Milestones {
		reward, err := decimal.NewFromString(tier.Reward)
		if err != nil {
			logger.Log.Fatalf("Invalid milestone reward %q: %v", tier.Reward, err)
		}
		milestones = append(milestones, services.Milestone{
			Rating: tier.Rating,
			Reward: reward,
			Name:   tier.Name,
		})
	}

	// Live spectating hub doubles as the match observer.
	hub := broadcast.NewHub()
	runner := match.NewRunner(match.Config{
		MoveTimeout: cfg.Arena.Match.MoveTimeout,
		GameTimeout: cfg.Arena.Match.GameTimeout,
		MaxPlies:    cfg.Arena.Match.MaxPlies,
	}, hub)

	agentService := services.NewAgentService(db, elo, cfg.Arena.Match.MinimaxDepth)
	settlementService := services.NewSettlementService(db, elo, rakeRate, milestones, mon)
	matchService := services.NewMatchService(db, agentService, settlementService, runner, mon)
	tournamentService := services.NewTournamentService(db, matchService)

	sweeper := schedule.NewExpirySweeper(10 * time.Second)
	defer sweeper.Stop()
	stakeService := services.NewStakeService(db, matchService, sweeper,
		minStake, maxStake, cfg.Arena.Stakes.ChallengeTTL)

	// Re-arm expiry timers for challenges that outlived the last process.
	if err := stakeService.Restore(); err != nil {
		logger.Log.Errorf("Failed to restore challenge timers: %v", err)
	}

	arenaServer := server.NewArenaServer(
		cfg.Server.HTTPAddress,
		cfg.Server.RPCAddress,
		agentService,
		matchService,
		stakeService,
		tournamentService,
		hub,
	)

	logger.Log.Infof("Starting arena server on %s", cfg.Server.HTTPAddress)
	if err := arenaServer.Start(); err != nil {
		logger.Log.Fatalf("Failed to start server: %v", err)
	}
}
