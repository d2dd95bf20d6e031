// strategy/strategy.go
package strategy

import (
	"context"
	"errors"
	"math/rand"

	"github.com/wfunc/arena/game"
)

// Strategy decides the next column from a read-only snapshot of the game.
// Implementations must not hold references into server-side state; third
// party strategies are untrusted and only ever see the copy they are given.
// A strategy is not required to validate its own output, the match runner
// treats an illegal column as a forfeit.
type Strategy interface {
	Name() string
	Decide(ctx context.Context, state game.State) (int, error)
}

var ErrNoValidActions = errors.New("no valid actions in state")

// centerOrder is the fixed preference order by distance from the center
// column.
var centerOrder = [game.Cols]int{3, 2, 4, 1, 5, 0, 6}

// Random picks uniformly over the valid actions. The RNG is injectable so
// tests can replay a seed.
type Random struct {
	rng *rand.Rand
}

func NewRandom(seed int64) *Random {
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

func (s *Random) Name() string { return "random" }

func (s *Random) Decide(ctx context.Context, state game.State) (int, error) {
	if len(state.ValidActions) == 0 {
		return 0, ErrNoValidActions
	}
	return state.ValidActions[s.rng.Intn(len(state.ValidActions))], nil
}

// Center plays the first legal column in the fixed center-out order.
type Center struct{}

func (Center) Name() string { return "center" }

func (Center) Decide(ctx context.Context, state game.State) (int, error) {
	for _, col := range centerOrder {
		if state.Legal(col) {
			return col, nil
		}
	}
	return 0, ErrNoValidActions
}

// Blocking takes an immediate win when one exists, otherwise blocks an
// immediate opponent win, otherwise falls back to the center order.
type Blocking struct{}

func (Blocking) Name() string { return "blocking" }

func (Blocking) Decide(ctx context.Context, state game.State) (int, error) {
	me := state.Current
	opponent := me.Opponent()

	for _, col := range state.ValidActions {
		if winsAt(state.Board, col, me) {
			return col, nil
		}
	}
	for _, col := range state.ValidActions {
		if winsAt(state.Board, col, opponent) {
			return col, nil
		}
	}
	return Center{}.Decide(ctx, state)
}

// winsAt simulates dropping player's piece into col and checks for a
// connected four through the landing square.
func winsAt(b game.Board, col int, player game.Cell) bool {
	row := game.DropRow(b, col)
	if row < 0 {
		return false
	}
	b[row][col] = player
	return game.CheckWinner(b) == player
}
