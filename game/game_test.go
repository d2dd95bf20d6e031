package game

import (
	"testing"
)

// play applies a sequence of moves, failing the test on any error.
func play(t *testing.T, s State, cols ...int) State {
	t.Helper()
	for _, col := range cols {
		next, err := s.Apply(col)
		if err != nil {
			t.Fatalf("Apply(%d) at ply %d failed: %v", col, s.Ply, err)
		}
		s = next
	}
	return s
}

func TestNewState(t *testing.T) {
	s := NewState()

	if s.Current != Player1 {
		t.Errorf("Expected Player1 to move first, got %v", s.Current)
	}
	if s.Ply != 0 {
		t.Errorf("Expected ply 0, got %d", s.Ply)
	}
	if len(s.ValidActions) != Cols {
		t.Errorf("Expected %d valid actions, got %d", Cols, len(s.ValidActions))
	}
	if s.Over || s.Draw || s.Winner != Empty {
		t.Error("New state should not be terminal")
	}
}

func TestApply_VerticalWin(t *testing.T) {
	// P1 stacks column 0, P2 stacks column 1. P1 connects four on ply 7.
	s := play(t, NewState(), 0, 1, 0, 1, 0, 1, 0)

	if !s.Over {
		t.Fatal("Game should be over after four in column 0")
	}
	if s.Winner != Player1 {
		t.Errorf("Expected Player1 to win, got %v", s.Winner)
	}
	if s.Ply != 7 {
		t.Errorf("Expected 7 plies, got %d", s.Ply)
	}
	if len(s.ValidActions) != 0 {
		t.Errorf("Terminal state must have no valid actions, got %v", s.ValidActions)
	}
}

func TestApply_HorizontalWin(t *testing.T) {
	s := play(t, NewState(), 0, 0, 1, 1, 2, 2, 3)

	if s.Winner != Player1 {
		t.Errorf("Expected Player1 horizontal win, got %v", s.Winner)
	}
}

func TestApply_DiagonalWin(t *testing.T) {
	// Build a down-right diagonal for Player1: pieces at heights 1,2,3,4
	// in columns 0..3.
	s := play(t, NewState(), 0, 1, 1, 2, 2, 3, 2, 3, 3, 6, 3)

	if s.Winner != Player1 {
		t.Errorf("Expected Player1 diagonal win, got %v\n%s", s.Winner, Render(s.Board))
	}
}

func TestApply_OccupancyMatchesPly(t *testing.T) {
	s := NewState()
	moves := []int{3, 3, 2, 4, 1, 5, 0, 6, 2, 4}
	for i, col := range moves {
		var err error
		s, err = s.Apply(col)
		if err != nil {
			t.Fatalf("Apply(%d) failed: %v", col, err)
		}
		if got := Occupied(s.Board); got != i+1 {
			t.Fatalf("After %d moves, occupied = %d", i+1, got)
		}
		if s.Ply != i+1 {
			t.Fatalf("After %d moves, ply = %d", i+1, s.Ply)
		}
	}
}

func TestApply_DeterministicReplay(t *testing.T) {
	moves := []int{3, 2, 3, 4, 0, 3, 5, 3}

	a := play(t, NewState(), moves...)
	b := play(t, NewState(), moves...)

	if a.Board != b.Board {
		t.Error("Same move sequence should produce identical boards")
	}
	if a.Winner != b.Winner || a.Over != b.Over || a.Ply != b.Ply {
		t.Error("Same move sequence should produce identical outcomes")
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	s := NewState()
	next, err := s.Apply(3)
	if err != nil {
		t.Fatal(err)
	}

	if Occupied(s.Board) != 0 {
		t.Error("Apply mutated its input state")
	}
	if s.Ply != 0 || s.Current != Player1 {
		t.Error("Apply mutated input metadata")
	}
	if Occupied(next.Board) != 1 {
		t.Error("Apply did not place a piece in the new state")
	}
}

func TestApply_InvalidColumn(t *testing.T) {
	s := NewState()

	if _, err := s.Apply(-1); err != ErrInvalidColumn {
		t.Errorf("Expected ErrInvalidColumn for -1, got %v", err)
	}
	if _, err := s.Apply(Cols); err != ErrInvalidColumn {
		t.Errorf("Expected ErrInvalidColumn for %d, got %v", Cols, err)
	}

	// Fill column 2 completely.
	for i := 0; i < Rows; i++ {
		var err error
		s, err = s.Apply(2)
		if err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Apply(2); err != ErrInvalidColumn {
		t.Errorf("Expected ErrInvalidColumn for full column, got %v", err)
	}
	for _, col := range s.ValidActions {
		if col == 2 {
			t.Error("Full column 2 must not be in the valid-action set")
		}
	}
}

func TestApply_GameOver(t *testing.T) {
	s := play(t, NewState(), 0, 1, 0, 1, 0, 1, 0)
	if !s.Over {
		t.Fatal("Setup failed: game should be over")
	}

	if _, err := s.Apply(3); err != ErrGameOver {
		t.Errorf("Expected ErrGameOver, got %v", err)
	}
}

func TestApply_Draw(t *testing.T) {
	// Column fill order chosen so no four-in-a-row ever forms: pair up
	// columns (0,1), (2,3), (4,5) with offset stacking, then column 6.
	moves := []int{
		0, 1, 0, 1, 0, 1, 1, 0, 1, 0, 1, 0,
		2, 3, 2, 3, 2, 3, 3, 2, 3, 2, 3, 2,
		4, 5, 4, 5, 4, 5, 5, 4, 5, 4, 5, 4,
		6, 6, 6, 6, 6, 6,
	}
	s := play(t, NewState(), moves...)

	if s.Winner != Empty {
		t.Fatalf("Expected no winner, got %v\n%s", s.Winner, Render(s.Board))
	}
	if !s.Draw || !s.Over {
		t.Errorf("Full board with no winner must be a draw (draw=%v over=%v)", s.Draw, s.Over)
	}
	if s.Ply != Rows*Cols {
		t.Errorf("Expected %d plies, got %d", Rows*Cols, s.Ply)
	}
}

func TestCheckWinner_AtMostOne(t *testing.T) {
	// Winner detection runs after every single move, so a reachable
	// terminal board has exactly one connected-four owner.
	s := NewState()
	moves := []int{0, 1, 0, 1, 0, 1, 0}
	for _, col := range moves {
		var err error
		s, err = s.Apply(col)
		if err != nil {
			t.Fatal(err)
		}
		w := CheckWinner(s.Board)
		if w != Empty && w != Player1 && w != Player2 {
			t.Fatalf("CheckWinner returned invalid player %v", w)
		}
	}
	if CheckWinner(s.Board) != Player1 {
		t.Error("Expected Player1 as the single winner")
	}
}
