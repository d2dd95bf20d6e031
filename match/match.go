// match/match.go
package match

import (
	"context"
	"fmt"
	"time"

	"github.com/wfunc/arena/game"
	"github.com/wfunc/arena/models"
	"github.com/wfunc/arena/strategy"
)

// Config bounds one orchestrated game.
type Config struct {
	MoveTimeout time.Duration
	GameTimeout time.Duration
	MaxPlies    int
}

func DefaultConfig() Config {
	return Config{
		MoveTimeout: 5 * time.Second,
		GameTimeout: 5 * time.Minute,
		MaxPlies:    100,
	}
}

// Observer receives live match events. The broadcast hub implements it;
// a nil observer is fine.
type Observer interface {
	OnMove(matchID string, mv models.Move, state game.State)
	OnFinish(matchID string, result *models.MatchResult)
}

// Runner drives one game between two strategies to a terminal outcome.
// It performs no rating or economic mutation; it only produces the
// MatchResult that downstream settlement consumes.
type Runner struct {
	cfg      Config
	observer Observer
}

func NewRunner(cfg Config, observer Observer) *Runner {
	if cfg.MoveTimeout <= 0 {
		cfg.MoveTimeout = DefaultConfig().MoveTimeout
	}
	if cfg.GameTimeout <= 0 {
		cfg.GameTimeout = DefaultConfig().GameTimeout
	}
	if cfg.MaxPlies <= 0 {
		cfg.MaxPlies = DefaultConfig().MaxPlies
	}
	return &Runner{cfg: cfg, observer: observer}
}

// decision carries a strategy's answer across the timeout boundary.
type decision struct {
	col int
	err error
}

// Run plays player1 against player2 until win, draw, forfeit or budget
// exhaustion. A timeout, an illegal column or a strategy error forfeits
// the game to the opponent with the fault recorded; the partial move
// history is always retained.
func (r *Runner) Run(ctx context.Context, matchID string, player1, player2 strategy.Strategy) *models.MatchResult {
	state := game.NewState()
	result := &models.MatchResult{
		Moves:     []models.Move{},
		Timings:   []models.MoveTiming{},
		StartedAt: time.Now(),
	}

	gameCtx, cancel := context.WithTimeout(ctx, r.cfg.GameTimeout)
	defer cancel()

	for !state.Over && state.Ply < r.cfg.MaxPlies {
		mover := state.Current
		active := player1
		if mover == game.Player2 {
			active = player2
		}

		select {
		case <-gameCtx.Done():
			return r.forfeit(matchID, result, state, mover, models.ReasonTimeout)
		default:
		}

		col, took, err := r.decide(gameCtx, active, state)
		result.Timings = append(result.Timings, models.MoveTiming{Player: mover, Took: took})

		if err != nil {
			reason := models.ReasonError
			if gameCtx.Err() != nil || err == context.DeadlineExceeded {
				reason = models.ReasonTimeout
			}
			return r.forfeit(matchID, result, state, mover, reason)
		}

		next, err := state.Apply(col)
		if err != nil {
			return r.forfeit(matchID, result, state, mover, models.ReasonInvalidMove)
		}

		mv := models.Move{Player: mover, Column: col}
		result.Moves = append(result.Moves, mv)
		state = next

		if r.observer != nil {
			r.observer.OnMove(matchID, mv, state)
		}
	}

	result.Winner = state.Winner
	result.Plies = state.Ply
	result.FinalState = state
	result.CompletedAt = time.Now()
	if state.Winner != game.Empty {
		result.Reason = models.ReasonWin
	} else {
		// Board full, or the ply budget ran out without a winner.
		result.Reason = models.ReasonDraw
	}

	if r.observer != nil {
		r.observer.OnFinish(matchID, result)
	}
	return result
}

// decide invokes the strategy under the per-move timeout. The strategy
// runs in its own goroutine so a stuck implementation cannot wedge the
// orchestrator; its context is cancelled on return either way, and the
// immutable state snapshot means an abandoned call cannot corrupt the
// game.
func (r *Runner) decide(ctx context.Context, s strategy.Strategy, state game.State) (int, time.Duration, error) {
	moveCtx, cancel := context.WithTimeout(ctx, r.cfg.MoveTimeout)
	defer cancel()

	start := time.Now()
	ch := make(chan decision, 1)
	go func() {
		col, err := s.Decide(moveCtx, state)
		ch <- decision{col: col, err: err}
	}()

	select {
	case d := <-ch:
		if d.err != nil {
			return 0, time.Since(start), fmt.Errorf("strategy %s: %w", s.Name(), d.err)
		}
		return d.col, time.Since(start), nil
	case <-moveCtx.Done():
		return 0, time.Since(start), context.DeadlineExceeded
	}
}

// forfeit resolves a non-natural ending deterministically: the opponent
// of the offending player wins.
func (r *Runner) forfeit(matchID string, result *models.MatchResult, state game.State, fault game.Cell, reason models.EndReason) *models.MatchResult {
	result.Winner = fault.Opponent()
	result.Reason = reason
	result.FaultPlayer = fault
	result.Plies = state.Ply
	result.FinalState = state
	result.CompletedAt = time.Now()

	if r.observer != nil {
		r.observer.OnFinish(matchID, result)
	}
	return result
}
