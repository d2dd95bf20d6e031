package strategy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wfunc/arena/game"
)

func mustApply(t *testing.T, s game.State, cols ...int) game.State {
	t.Helper()
	for _, col := range cols {
		next, err := s.Apply(col)
		if err != nil {
			t.Fatalf("Apply(%d) failed: %v", col, err)
		}
		s = next
	}
	return s
}

func legal(state game.State, col int) bool {
	for _, c := range state.ValidActions {
		if c == col {
			return true
		}
	}
	return false
}

// Every builtin must return a member of the valid-action set for any
// reachable non-terminal state. Random self-play reaches a good spread.
func TestBuiltins_AlwaysLegal(t *testing.T) {
	strategies := []Strategy{
		NewRandom(1),
		Center{},
		Blocking{},
		NewMinimax(3),
	}
	driver := NewRandom(42)

	for _, s := range strategies {
		state := game.NewState()
		for !state.Over {
			col, err := s.Decide(context.Background(), state)
			if err != nil {
				t.Fatalf("%s returned error: %v", s.Name(), err)
			}
			if !legal(state, col) {
				t.Fatalf("%s played illegal column %d\n%s", s.Name(), col, game.Render(state.Board))
			}

			// Advance with a random legal move so the strategy under
			// test sees varied positions.
			drive, err := driver.Decide(context.Background(), state)
			if err != nil {
				t.Fatal(err)
			}
			state, err = state.Apply(drive)
			if err != nil {
				t.Fatal(err)
			}
		}
	}
}

func TestRandom_Seeded(t *testing.T) {
	state := game.NewState()

	a := NewRandom(7)
	b := NewRandom(7)
	for i := 0; i < 20; i++ {
		colA, _ := a.Decide(context.Background(), state)
		colB, _ := b.Decide(context.Background(), state)
		if colA != colB {
			t.Fatal("Same seed should produce the same move sequence")
		}
	}
}

func TestCenter_PrefersCenterOut(t *testing.T) {
	state := game.NewState()

	col, err := Center{}.Decide(context.Background(), state)
	if err != nil {
		t.Fatal(err)
	}
	if col != 3 {
		t.Errorf("Expected center column 3 on empty board, got %d", col)
	}

	// Fill column 3, next preference is 2.
	state = mustApply(t, state, 3, 3, 3, 3, 3, 3)
	col, err = Center{}.Decide(context.Background(), state)
	if err != nil {
		t.Fatal(err)
	}
	if col != 2 {
		t.Errorf("Expected column 2 once 3 is full, got %d", col)
	}
}

func TestBlocking_TakesOwnWin(t *testing.T) {
	// P1 has three in column 0 and it is P1 to move.
	state := mustApply(t, game.NewState(), 0, 6, 0, 6, 0, 5)

	col, err := Blocking{}.Decide(context.Background(), state)
	if err != nil {
		t.Fatal(err)
	}
	if col != 0 {
		t.Errorf("Expected Blocking to complete its four in column 0, got %d", col)
	}
}

func TestBlocking_BlocksOpponentWin(t *testing.T) {
	// P1 threatens column 0 with three stacked; P2 to move must block.
	state := mustApply(t, game.NewState(), 0, 6, 0, 5, 0)

	if state.Current != game.Player2 {
		t.Fatal("Setup failed: expected Player2 to move")
	}
	col, err := Blocking{}.Decide(context.Background(), state)
	if err != nil {
		t.Fatal(err)
	}
	if col != 0 {
		t.Errorf("Expected Blocking to block column 0, got %d", col)
	}
}

func TestMinimax_TakesImmediateWin(t *testing.T) {
	state := mustApply(t, game.NewState(), 0, 6, 0, 6, 0, 5)

	col, err := NewMinimax(3).Decide(context.Background(), state)
	if err != nil {
		t.Fatal(err)
	}
	if col != 0 {
		t.Errorf("Expected Minimax to win in column 0, got %d", col)
	}
}

func TestMinimax_DoesNotHandOverWin(t *testing.T) {
	// P2 has three stacked in column 6. P1 to move at depth >= 1 must
	// spend its move blocking; anything else loses on the reply.
	state := mustApply(t, game.NewState(), 0, 6, 1, 6, 0, 6)

	if state.Current != game.Player1 {
		t.Fatal("Setup failed: expected Player1 to move")
	}
	col, err := NewMinimax(2).Decide(context.Background(), state)
	if err != nil {
		t.Fatal(err)
	}
	if col != 6 {
		t.Errorf("Expected Minimax to block column 6, got %d", col)
	}
}

func TestMinimax_BeatsRandomMostly(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping self-play series in short mode")
	}

	minimax := NewMinimax(4)
	random := NewRandom(99)

	wins := 0
	const games = 5
	for i := 0; i < games; i++ {
		state := game.NewState()
		for !state.Over && state.Ply < game.Rows*game.Cols {
			var s Strategy = minimax
			if state.Current == game.Player2 {
				s = random
			}
			col, err := s.Decide(context.Background(), state)
			if err != nil {
				t.Fatal(err)
			}
			state, err = state.Apply(col)
			if err != nil {
				t.Fatal(err)
			}
		}
		if state.Winner == game.Player1 {
			wins++
		}
	}
	if wins < games-1 {
		t.Errorf("Minimax won only %d/%d games against random", wins, games)
	}
}

func TestWebhook_Decide(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req webhookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Bad request body: %v", err)
		}
		if req.Game != "connect4" {
			t.Errorf("Expected game connect4, got %q", req.Game)
		}
		json.NewEncoder(w).Encode(map[string]int{"column": 4})
	}))
	defer srv.Close()

	wh := NewWebhook("remote-bot", srv.URL)
	col, err := wh.Decide(context.Background(), game.NewState())
	if err != nil {
		t.Fatal(err)
	}
	if col != 4 {
		t.Errorf("Expected column 4, got %d", col)
	}
}

func TestWebhook_ContextCancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	wh := NewWebhook("remote-bot", srv.URL)
	if _, err := wh.Decide(ctx, game.NewState()); err == nil {
		t.Error("Expected error from cancelled context")
	}
}

func TestForBuiltin(t *testing.T) {
	for _, name := range []string{BuiltinRandom, BuiltinCenter, BuiltinBlocking, BuiltinMinimax} {
		s, err := ForBuiltin(name, 0)
		if err != nil {
			t.Errorf("ForBuiltin(%q) failed: %v", name, err)
		}
		if s == nil {
			t.Errorf("ForBuiltin(%q) returned nil strategy", name)
		}
	}
	if _, err := ForBuiltin("quantum", 0); err == nil {
		t.Error("Expected error for unknown strategy name")
	}
}
