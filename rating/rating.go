// rating/rating.go
package rating

import (
	"math"
)

// Scores for the actual outcome from player A's perspective.
const (
	ScoreWin  = 1.0
	ScoreDraw = 0.5
	ScoreLoss = 0.0
)

// Config holds the Elo parameters. The zero value is not usable; use
// DefaultConfig or the values from the arena config section.
type Config struct {
	InitialRating    int
	KFactorNew       int
	KFactorSettled   int
	ProvisionalGames int
}

func DefaultConfig() Config {
	return Config{
		InitialRating:    1500,
		KFactorNew:       32,
		KFactorSettled:   16,
		ProvisionalGames: 30,
	}
}

// ExpectedScore is the probability of A scoring against B on the
// logistic curve with base 10 and scale 400.
func ExpectedScore(ratingA, ratingB int) float64 {
	return 1 / (1 + math.Pow(10, float64(ratingB-ratingA)/400))
}

// KFactor is higher while a player is provisional so early ratings
// converge quickly.
func (c Config) KFactor(gamesPlayed int) int {
	if gamesPlayed < c.ProvisionalGames {
		return c.KFactorNew
	}
	return c.KFactorSettled
}

// Update computes both players' new ratings for one match. score is the
// actual outcome for A (1, 0.5 or 0). Each side uses its own K-factor and
// rounds independently.
func (c Config) Update(ratingA, gamesA, ratingB, gamesB int, score float64) (newA, newB int) {
	expectedA := ExpectedScore(ratingA, ratingB)
	expectedB := 1 - expectedA

	kA := c.KFactor(gamesA)
	kB := c.KFactor(gamesB)

	newA = ratingA + int(math.Round(float64(kA)*(score-expectedA)))
	newB = ratingB + int(math.Round(float64(kB)*((1-score)-expectedB)))
	return newA, newB
}

// Rank maps a rating onto the fixed ladder tiers.
func Rank(rating int) string {
	switch {
	case rating >= 2400:
		return "Grandmaster"
	case rating >= 2200:
		return "Master"
	case rating >= 2000:
		return "Expert"
	case rating >= 1800:
		return "Class A"
	case rating >= 1600:
		return "Class B"
	case rating >= 1400:
		return "Class C"
	case rating >= 1200:
		return "Class D"
	}
	return "Novice"
}
