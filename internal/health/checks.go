package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"
)

// Errors reported by the built-in checks.
var (
	ErrNoRules     = errors.New("no rules loaded")
	ErrCircuitOpen = errors.New("upstream circuit open")
)

// RulesCheck fails while count reports zero rules.
func RulesCheck(count func() int) Check {
	return NewCheckFunc("rules", func(context.Context) error {
		if count() == 0 {
			return ErrNoRules
		}
		return nil
	})
}

// BreakerCheck fails while the upstream circuit is open.
func BreakerCheck(name string, state func() gobreaker.State) Check {
	return NewCheckFunc("circuit_breaker", func(context.Context) error {
		if s := state(); s == gobreaker.StateOpen {
			return fmt.Errorf("%w: %s", ErrCircuitOpen, name)
		}
		return nil
	})
}
