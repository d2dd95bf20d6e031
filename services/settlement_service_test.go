package services

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wfunc/arena/game"
	"github.com/wfunc/arena/models"
	"github.com/wfunc/arena/rating"
)

func testMilestones() []Milestone {
	return []Milestone{
		{Rating: 1600, Reward: dec("0.50"), Name: "Class B"},
		{Rating: 1800, Reward: dec("1.00"), Name: "Class A"},
		{Rating: 2000, Reward: dec("2.00"), Name: "Expert"},
	}
}

func newSettlementFixture(t *testing.T, stake string) (*mockDatabase, *SettlementService, string) {
	t.Helper()
	db := newMockDatabase()
	if err := db.CreateAgent(testAgent("a1", "Alpha", 1500, "100")); err != nil {
		t.Fatal(err)
	}
	if err := db.CreateAgent(testAgent("a2", "Beta", 1500, "100")); err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	match := &models.GormMatch{
		MatchID:   "m1",
		Player1:   "a1",
		Player2:   "a2",
		Status:    models.MatchStatusActive,
		Stake:     dec(stake),
		StartedAt: &now,
	}
	if err := db.CreateMatch(match); err != nil {
		t.Fatal(err)
	}

	svc := NewSettlementService(db, rating.DefaultConfig(), dec("0.05"), testMilestones(), nil)
	return db, svc, "m1"
}

func winResult(winner game.Cell) *models.MatchResult {
	return &models.MatchResult{
		Winner:     winner,
		Reason:     models.ReasonWin,
		Plies:      7,
		Moves:      []models.Move{},
		FinalState: game.NewState(),
	}
}

func TestSettle_WinnerPayoutConservesPot(t *testing.T) {
	db, svc, matchID := newSettlementFixture(t, "10")

	settlement, err := svc.Settle(matchID, winResult(game.Player1))
	if err != nil {
		t.Fatalf("Settle failed: %v", err)
	}

	if !settlement.Pot.Equal(dec("20")) {
		t.Errorf("Pot = %s, want 20", settlement.Pot)
	}
	if !settlement.Payout.Rake.Equal(dec("1")) {
		t.Errorf("Rake = %s, want 1 (5%% of 20)", settlement.Payout.Rake)
	}
	if !settlement.Payout.WinnerAmount.Equal(dec("19")) {
		t.Errorf("WinnerAmount = %s, want 19", settlement.Payout.WinnerAmount)
	}
	sum := settlement.Payout.WinnerAmount.Add(settlement.Payout.Rake)
	if !sum.Equal(settlement.Pot) {
		t.Errorf("payout + rake = %s, must equal pot %s exactly", sum, settlement.Pot)
	}

	winner, _ := db.GetAgent("a1")
	loser, _ := db.GetAgent("a2")
	if !winner.Balance.Equal(dec("119")) {
		t.Errorf("winner balance = %s, want 119 (100 + 19, stake escrowed upstream)", winner.Balance)
	}
	if !loser.Balance.Equal(dec("100")) {
		t.Errorf("loser balance = %s, want 100 untouched", loser.Balance)
	}
}

func TestSettle_EloApplied(t *testing.T) {
	db, svc, matchID := newSettlementFixture(t, "0")

	settlement, err := svc.Settle(matchID, winResult(game.Player1))
	if err != nil {
		t.Fatalf("Settle failed: %v", err)
	}

	if settlement.NewRating1 != 1516 || settlement.NewRating2 != 1484 {
		t.Errorf("ratings = %d/%d, want 1516/1484", settlement.NewRating1, settlement.NewRating2)
	}
	if settlement.Payout != nil {
		t.Error("Unstaked match must carry no payout")
	}

	a1, _ := db.GetAgent("a1")
	a2, _ := db.GetAgent("a2")
	if a1.Rating != 1516 || a2.Rating != 1484 {
		t.Errorf("persisted ratings = %d/%d, want 1516/1484", a1.Rating, a2.Rating)
	}
	if a1.GamesPlayed != 1 || a1.Wins != 1 || a2.Losses != 1 {
		t.Error("win/loss counters not applied")
	}
	if !a1.Balance.Equal(dec("100")) || !a2.Balance.Equal(dec("100")) {
		t.Error("Casual match must not move balances")
	}
}

func TestSettle_DrawRefunds(t *testing.T) {
	db, svc, matchID := newSettlementFixture(t, "10")

	result := &models.MatchResult{
		Winner:     game.Empty,
		Reason:     models.ReasonDraw,
		Plies:      42,
		FinalState: game.NewState(),
	}
	settlement, err := svc.Settle(matchID, result)
	if err != nil {
		t.Fatalf("Settle failed: %v", err)
	}

	// Each side gets stake minus half the rake back; the house still
	// collects the full rake.
	a1, _ := db.GetAgent("a1")
	a2, _ := db.GetAgent("a2")
	if !a1.Balance.Equal(dec("109.5")) || !a2.Balance.Equal(dec("109.5")) {
		t.Errorf("draw balances = %s/%s, want 109.5 each", a1.Balance, a2.Balance)
	}
	if !settlement.Payout.Rake.Equal(dec("1")) {
		t.Errorf("Rake = %s, want 1", settlement.Payout.Rake)
	}
	if a1.Draws != 1 || a2.Draws != 1 {
		t.Error("draw counters not applied")
	}
}

func TestSettle_ForfeitIsDecisive(t *testing.T) {
	db, svc, matchID := newSettlementFixture(t, "10")

	result := &models.MatchResult{
		Winner:      game.Player2,
		Reason:      models.ReasonTimeout,
		FaultPlayer: game.Player1,
		Plies:       3,
		FinalState:  game.NewState(),
	}
	if _, err := svc.Settle(matchID, result); err != nil {
		t.Fatalf("Settle failed: %v", err)
	}

	winner, _ := db.GetAgent("a2")
	if !winner.Balance.Equal(dec("119")) {
		t.Errorf("forfeit winner balance = %s, want 119", winner.Balance)
	}
	match, _ := db.GetMatch(matchID)
	if match.Winner != "a2" || match.FaultPlayer != "a1" {
		t.Errorf("match winner/fault = %s/%s, want a2/a1", match.Winner, match.FaultPlayer)
	}
	if match.Reason != string(models.ReasonTimeout) {
		t.Errorf("reason = %s, want timeout", match.Reason)
	}
}

func TestSettle_Idempotent(t *testing.T) {
	db, svc, matchID := newSettlementFixture(t, "10")
	result := winResult(game.Player1)

	if _, err := svc.Settle(matchID, result); err != nil {
		t.Fatalf("first Settle failed: %v", err)
	}
	before, _ := db.GetAgent("a1")

	_, err := svc.Settle(matchID, result)
	if !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("second Settle err = %v, want ErrAlreadySettled", err)
	}

	after, _ := db.GetAgent("a1")
	if !after.Balance.Equal(before.Balance) || after.Rating != before.Rating {
		t.Error("Rejected settlement must not change anything")
	}
	if after.GamesPlayed != 1 {
		t.Errorf("GamesPlayed = %d, want 1", after.GamesPlayed)
	}
}

func TestSettle_RollbackOnCreditFailure(t *testing.T) {
	db, svc, matchID := newSettlementFixture(t, "10")
	db.failCredit["a1"] = errors.New("ledger unavailable")

	_, err := svc.Settle(matchID, winResult(game.Player1))
	if err == nil {
		t.Fatal("Settle should fail when the payout credit fails")
	}

	// The whole transaction rolls back: ratings, counters and the match
	// row are all untouched, so the match can be settled again later.
	a1, _ := db.GetAgent("a1")
	a2, _ := db.GetAgent("a2")
	if a1.Rating != 1500 || a2.Rating != 1500 {
		t.Errorf("ratings = %d/%d, want both 1500 after rollback", a1.Rating, a2.Rating)
	}
	if a1.GamesPlayed != 0 || a2.GamesPlayed != 0 {
		t.Error("games played must roll back")
	}
	match, _ := db.GetMatch(matchID)
	if match.Status != models.MatchStatusActive {
		t.Errorf("match status = %s, want active for retry", match.Status)
	}

	delete(db.failCredit, "a1")
	if _, err := svc.Settle(matchID, winResult(game.Player1)); err != nil {
		t.Fatalf("retry after recovery failed: %v", err)
	}
}

func TestSettle_MilestoneClaimedOnce(t *testing.T) {
	db := newMockDatabase()
	// 1590 + a provisional win over 1500 crosses the 1600 tier.
	db.CreateAgent(testAgent("a1", "Alpha", 1590, "0"))
	db.CreateAgent(testAgent("a2", "Beta", 1500, "0"))
	svc := NewSettlementService(db, rating.DefaultConfig(), dec("0.05"), testMilestones(), nil)

	for i, matchID := range []string{"m1", "m2"} {
		now := time.Now()
		db.CreateMatch(&models.GormMatch{
			MatchID: matchID, Player1: "a1", Player2: "a2",
			Status: models.MatchStatusActive, Stake: decimal.Zero, StartedAt: &now,
		})
		settlement, err := svc.Settle(matchID, winResult(game.Player1))
		if err != nil {
			t.Fatalf("Settle %s failed: %v", matchID, err)
		}
		if i == 0 {
			if len(settlement.Milestones) != 1 || settlement.Milestones[0].Rating != 1600 {
				t.Fatalf("first crossing should unlock the 1600 tier, got %+v", settlement.Milestones)
			}
		} else if len(settlement.Milestones) != 0 {
			t.Errorf("second win past the tier must not pay again, got %+v", settlement.Milestones)
		}
	}

	a1, _ := db.GetAgent("a1")
	if !a1.Balance.Equal(dec("0.50")) {
		t.Errorf("balance = %s, want exactly one 0.50 reward", a1.Balance)
	}
	if !a1.Claimed(1600) {
		t.Error("1600 tier should be recorded as claimed")
	}
}

func TestSettle_RakeRoundsOnce(t *testing.T) {
	db, svc, _ := newSettlementFixture(t, "0")

	// An awkward stake whose exact rake exceeds the money precision.
	now := time.Now()
	db.CreateMatch(&models.GormMatch{
		MatchID: "m-odd", Player1: "a1", Player2: "a2",
		Status: models.MatchStatusActive, Stake: dec("0.333333"), StartedAt: &now,
	})
	settlement, err := svc.Settle("m-odd", winResult(game.Player2))
	if err != nil {
		t.Fatalf("Settle failed: %v", err)
	}
	sum := settlement.Payout.WinnerAmount.Add(settlement.Payout.Rake)
	if !sum.Equal(settlement.Pot) {
		t.Errorf("payout + rake = %s, pot = %s; conservation must be exact", sum, settlement.Pot)
	}
}
