// strategy/minimax.go
package strategy

import (
	"context"
	"math"

	"github.com/wfunc/arena/game"
)

const DefaultMinimaxDepth = 5

// Terminal utilities. Wins found closer to the root keep more remaining
// depth and therefore score higher, so the search prefers faster wins and
// slower losses.
const (
	winScore  = 1000
	lossScore = -1000
)

// Minimax runs a fixed-depth alpha-beta search from the mover's
// perspective.
type Minimax struct {
	Depth int
}

func NewMinimax(depth int) *Minimax {
	if depth < 1 {
		depth = DefaultMinimaxDepth
	}
	return &Minimax{Depth: depth}
}

func (s *Minimax) Name() string { return "minimax" }

func (s *Minimax) Decide(ctx context.Context, state game.State) (int, error) {
	if len(state.ValidActions) == 0 {
		return 0, ErrNoValidActions
	}

	me := state.Current
	bestScore := math.MinInt
	bestMove := state.ValidActions[0]

	for _, col := range state.ValidActions {
		next := simulate(state.Board, col, me)
		score := s.search(next, s.Depth-1, math.MinInt, math.MaxInt, false, me)
		if score > bestScore {
			bestScore = score
			bestMove = col
		}
	}
	return bestMove, nil
}

// search is plain negamax-free minimax with alpha-beta cutoffs. The
// maximizing side is always the player who owns the root call.
func (s *Minimax) search(b game.Board, depth, alpha, beta int, maximizing bool, me game.Cell) int {
	winner := game.CheckWinner(b)
	if winner == me {
		return winScore + depth
	}
	if winner == me.Opponent() {
		return lossScore - depth
	}
	if boardFull(b) {
		return 0
	}
	if depth == 0 {
		return evaluate(b, me)
	}

	mover := me
	if !maximizing {
		mover = me.Opponent()
	}

	if maximizing {
		best := math.MinInt
		for col := 0; col < game.Cols; col++ {
			if b[0][col] != game.Empty {
				continue
			}
			score := s.search(simulate(b, col, mover), depth-1, alpha, beta, false, me)
			if score > best {
				best = score
			}
			if score > alpha {
				alpha = score
			}
			if beta <= alpha {
				break
			}
		}
		return best
	}

	best := math.MaxInt
	for col := 0; col < game.Cols; col++ {
		if b[0][col] != game.Empty {
			continue
		}
		score := s.search(simulate(b, col, mover), depth-1, alpha, beta, true, me)
		if score < best {
			best = score
		}
		if score < beta {
			beta = score
		}
		if beta <= alpha {
			break
		}
	}
	return best
}

func simulate(b game.Board, col int, player game.Cell) game.Board {
	row := game.DropRow(b, col)
	if row >= 0 {
		b[row][col] = player
	}
	return b
}

func boardFull(b game.Board) bool {
	for col := 0; col < game.Cols; col++ {
		if b[0][col] == game.Empty {
			return false
		}
	}
	return true
}

// evaluate scores a non-terminal leaf for player: a fixed bonus per piece
// in the center column plus a score over every length-4 window.
func evaluate(b game.Board, player game.Cell) int {
	score := 0
	opponent := player.Opponent()

	center := game.Cols / 2
	for row := 0; row < game.Rows; row++ {
		if b[row][center] == player {
			score += 3
		} else if b[row][center] == opponent {
			score -= 3
		}
	}

	// Horizontal windows
	for row := 0; row < game.Rows; row++ {
		for col := 0; col <= game.Cols-game.WinLength; col++ {
			score += scoreWindow(player,
				b[row][col], b[row][col+1], b[row][col+2], b[row][col+3])
		}
	}
	// Vertical windows
	for row := 0; row <= game.Rows-game.WinLength; row++ {
		for col := 0; col < game.Cols; col++ {
			score += scoreWindow(player,
				b[row][col], b[row+1][col], b[row+2][col], b[row+3][col])
		}
	}
	// Diagonal down-right
	for row := 0; row <= game.Rows-game.WinLength; row++ {
		for col := 0; col <= game.Cols-game.WinLength; col++ {
			score += scoreWindow(player,
				b[row][col], b[row+1][col+1], b[row+2][col+2], b[row+3][col+3])
		}
	}
	// Diagonal down-left
	for row := 0; row <= game.Rows-game.WinLength; row++ {
		for col := game.WinLength - 1; col < game.Cols; col++ {
			score += scoreWindow(player,
				b[row][col], b[row+1][col-1], b[row+2][col-2], b[row+3][col-3])
		}
	}
	return score
}

// scoreWindow rewards near-completions for player and penalizes live
// three-threats for the opponent inside one length-4 window.
func scoreWindow(player game.Cell, cells ...game.Cell) int {
	opponent := player.Opponent()
	var mine, theirs, empty int
	for _, c := range cells {
		switch c {
		case player:
			mine++
		case opponent:
			theirs++
		default:
			empty++
		}
	}

	switch {
	case mine == 4:
		return 100
	case mine == 3 && empty == 1:
		return 5
	case mine == 2 && empty == 2:
		return 2
	case theirs == 3 && empty == 1:
		return -4
	}
	return 0
}
