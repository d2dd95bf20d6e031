// strategy/registry.go
package strategy

import (
	"fmt"
	"time"
)

// Builtin strategy names, as stored on registered agents.
const (
	BuiltinRandom   = "random"
	BuiltinCenter   = "center"
	BuiltinBlocking = "blocking"
	BuiltinMinimax  = "minimax"
)

// ForBuiltin maps a stored strategy name to a fresh instance. Random gets
// a time seed here; tests construct NewRandom directly with a fixed seed.
func ForBuiltin(name string, minimaxDepth int) (Strategy, error) {
	switch name {
	case BuiltinRandom:
		return NewRandom(time.Now().UnixNano()), nil
	case BuiltinCenter:
		return Center{}, nil
	case BuiltinBlocking:
		return Blocking{}, nil
	case BuiltinMinimax:
		return NewMinimax(minimaxDepth), nil
	}
	return nil, fmt.Errorf("unknown builtin strategy %q", name)
}
