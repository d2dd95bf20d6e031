// services/tournament_service.go
package services

import (
	"context"
	"sort"

	"github.com/wfunc/arena/logger"
	"github.com/wfunc/arena/models"
	"github.com/wfunc/arena/persistence"
)

// Standing is one row of a tournament table. Points are 2 per win and
// 1 per draw, ties broken by post-tournament rating.
type Standing struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
	Points  int    `json:"points"`
	Wins    int    `json:"wins"`
	Draws   int    `json:"draws"`
	Losses  int    `json:"losses"`
	Rating  int    `json:"rating"`
}

// TournamentResult is the outcome of one round-robin run.
type TournamentResult struct {
	Standings []Standing `json:"standings"`
	Matches   []string   `json:"matches"`
}

// TournamentService runs round-robin tournaments of casual rated matches.
type TournamentService struct {
	db      persistence.Database
	matches *MatchService
}

func NewTournamentService(db persistence.Database, matches *MatchService) *TournamentService {
	return &TournamentService{db: db, matches: matches}
}

// RunRoundRobin plays every agent against every other once, with colors
// assigned by pairing order. Matches are unstaked but rated, so the
// tournament moves the ladder. A single failed match aborts the run;
// already-played matches stay settled.
func (s *TournamentService) RunRoundRobin(ctx context.Context, agentIDs []string) (*TournamentResult, error) {
	if len(agentIDs) < 2 {
		return nil, ErrSelfPlay
	}

	tally := make(map[string]*Standing, len(agentIDs))
	for _, id := range agentIDs {
		agent, err := s.db.GetAgent(id)
		if err != nil {
			return nil, err
		}
		if agent.Status != models.AgentStatusActive {
			return nil, ErrAgentNotActive
		}
		tally[id] = &Standing{AgentID: id, Name: agent.Name}
	}

	result := &TournamentResult{}
	for i := 0; i < len(agentIDs); i++ {
		for j := i + 1; j < len(agentIDs); j++ {
			id1, id2 := agentIDs[i], agentIDs[j]
			match, _, err := s.matches.RunCasual(ctx, id1, id2)
			if err != nil {
				return nil, err
			}
			result.Matches = append(result.Matches, match.MatchID)

			switch match.Winner {
			case id1:
				tally[id1].Points += 2
				tally[id1].Wins++
				tally[id2].Losses++
			case id2:
				tally[id2].Points += 2
				tally[id2].Wins++
				tally[id1].Losses++
			default:
				tally[id1].Points++
				tally[id2].Points++
				tally[id1].Draws++
				tally[id2].Draws++
			}
		}
	}

	for id, standing := range tally {
		agent, err := s.db.GetAgent(id)
		if err != nil {
			return nil, err
		}
		standing.Rating = agent.Rating
		result.Standings = append(result.Standings, *standing)
	}
	sort.Slice(result.Standings, func(a, b int) bool {
		if result.Standings[a].Points != result.Standings[b].Points {
			return result.Standings[a].Points > result.Standings[b].Points
		}
		return result.Standings[a].Rating > result.Standings[b].Rating
	})

	logger.Log.Infow("tournament finished",
		"agents", len(agentIDs),
		"matches", len(result.Matches),
		"winner", result.Standings[0].Name,
	)
	return result, nil
}
