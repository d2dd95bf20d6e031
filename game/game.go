// game/game.go
package game

import (
	"errors"
	"strings"
)

const (
	Rows = 6
	Cols = 7

	// WinLength pieces in a row/column/diagonal win the game.
	WinLength = 4
)

// Cell is one board position: empty or owned by a player.
type Cell int8

const (
	Empty Cell = iota
	Player1
	Player2
)

// Opponent returns the other player. Calling it on Empty returns Empty.
func (c Cell) Opponent() Cell {
	switch c {
	case Player1:
		return Player2
	case Player2:
		return Player1
	}
	return Empty
}

func (c Cell) String() string {
	switch c {
	case Player1:
		return "player1"
	case Player2:
		return "player2"
	}
	return "empty"
}

// Board is a value type so copying a State copies the grid.
// Row 0 is the top row; pieces drop toward row Rows-1.
type Board [Rows][Cols]Cell

// State is an immutable snapshot of a game in progress. Apply never
// mutates its receiver; every transition returns a fresh State.
type State struct {
	Board        Board  `json:"board"`
	Current      Cell   `json:"current_player"`
	Ply          int    `json:"ply"`
	ValidActions []int  `json:"valid_actions"`
	Winner       Cell   `json:"winner"`
	Draw         bool   `json:"draw"`
	Over         bool   `json:"over"`
}

var (
	ErrGameOver      = errors.New("game is already over")
	ErrInvalidColumn = errors.New("column is out of range or full")
)

// NewState returns the empty starting position with Player1 to move.
func NewState() State {
	var b Board
	return State{
		Board:        b,
		Current:      Player1,
		ValidActions: validActions(b),
	}
}

// validActions returns the columns that still have room, in order.
func validActions(b Board) []int {
	actions := make([]int, 0, Cols)
	for col := 0; col < Cols; col++ {
		if b[0][col] == Empty {
			actions = append(actions, col)
		}
	}
	return actions
}

// Legal reports whether col is in the current valid-action set.
func (s State) Legal(col int) bool {
	if s.Over || col < 0 || col >= Cols {
		return false
	}
	return s.Board[0][col] == Empty
}

// Apply drops the current player's piece into col and returns the next
// state. The receiver is left untouched.
func (s State) Apply(col int) (State, error) {
	if s.Over {
		return s, ErrGameOver
	}
	if !s.Legal(col) {
		return s, ErrInvalidColumn
	}

	next := s
	row := DropRow(next.Board, col)
	next.Board[row][col] = s.Current

	winner := CheckWinner(next.Board)
	draw := winner == Empty && isFull(next.Board)

	next.Current = s.Current.Opponent()
	next.Ply = s.Ply + 1
	next.Winner = winner
	next.Draw = draw
	next.Over = winner != Empty || draw
	if next.Over {
		next.ValidActions = []int{}
	} else {
		next.ValidActions = validActions(next.Board)
	}
	return next, nil
}

// DropRow returns the row a piece dropped into col would land on,
// or -1 if the column is full.
func DropRow(b Board, col int) int {
	for row := Rows - 1; row >= 0; row-- {
		if b[row][col] == Empty {
			return row
		}
	}
	return -1
}

// CheckWinner scans every length-4 window in the four directions and
// returns the winning player, or Empty if nobody has connected four.
func CheckWinner(b Board) Cell {
	// Horizontal
	for row := 0; row < Rows; row++ {
		for col := 0; col <= Cols-WinLength; col++ {
			cell := b[row][col]
			if cell != Empty &&
				cell == b[row][col+1] &&
				cell == b[row][col+2] &&
				cell == b[row][col+3] {
				return cell
			}
		}
	}

	// Vertical
	for row := 0; row <= Rows-WinLength; row++ {
		for col := 0; col < Cols; col++ {
			cell := b[row][col]
			if cell != Empty &&
				cell == b[row+1][col] &&
				cell == b[row+2][col] &&
				cell == b[row+3][col] {
				return cell
			}
		}
	}

	// Diagonal down-right
	for row := 0; row <= Rows-WinLength; row++ {
		for col := 0; col <= Cols-WinLength; col++ {
			cell := b[row][col]
			if cell != Empty &&
				cell == b[row+1][col+1] &&
				cell == b[row+2][col+2] &&
				cell == b[row+3][col+3] {
				return cell
			}
		}
	}

	// Diagonal down-left
	for row := 0; row <= Rows-WinLength; row++ {
		for col := WinLength - 1; col < Cols; col++ {
			cell := b[row][col]
			if cell != Empty &&
				cell == b[row+1][col-1] &&
				cell == b[row+2][col-2] &&
				cell == b[row+3][col-3] {
				return cell
			}
		}
	}

	return Empty
}

func isFull(b Board) bool {
	for col := 0; col < Cols; col++ {
		if b[0][col] == Empty {
			return false
		}
	}
	return true
}

// Occupied counts placed pieces. Always equals Ply for reachable states.
func Occupied(b Board) int {
	n := 0
	for row := 0; row < Rows; row++ {
		for col := 0; col < Cols; col++ {
			if b[row][col] != Empty {
				n++
			}
		}
	}
	return n
}

// Render dumps the board as ASCII for logs and the spectator client.
func Render(b Board) string {
	symbols := []byte{'.', 'X', 'O'}
	var sb strings.Builder
	for row := 0; row < Rows; row++ {
		sb.WriteByte('|')
		for col := 0; col < Cols; col++ {
			sb.WriteByte(symbols[b[row][col]])
			sb.WriteByte('|')
		}
		sb.WriteByte('\n')
	}
	sb.WriteString(" 0 1 2 3 4 5 6\n")
	return sb.String()
}
