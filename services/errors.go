// services/errors.go
package services

import "errors"

var (
	ErrAgentNotActive     = errors.New("agent is not active")
	ErrSelfPlay           = errors.New("agent cannot play against itself")
	ErrStakeOutOfRange    = errors.New("stake outside allowed range")
	ErrChallengeExpired   = errors.New("challenge expired")
	ErrChallengeNotOpen   = errors.New("challenge is not open")
	ErrNotYourChallenge   = errors.New("challenge targets a different agent")
	ErrAlreadySettled     = errors.New("match already settled")
	ErrMatchNotSettleable = errors.New("match is not in a settleable state")
)
