// Package builtins registers the bundled strategies.
package builtins

import (
	"github.com/newthinker/quantsweep/internal/strategy"
	"github.com/newthinker/quantsweep/internal/strategy/ma_crossover"
	"github.com/newthinker/quantsweep/internal/strategy/mean_reversion"
	"github.com/newthinker/quantsweep/internal/strategy/momentum"
	"github.com/newthinker/quantsweep/internal/strategy/volume_surge"
)

// Registrations lists every bundled strategy.
func Registrations() []strategy.Registration {
	return []strategy.Registration{
		momentum.Registration(),
		mean_reversion.Registration(),
		ma_crossover.Registration(),
		volume_surge.Registration(),
	}
}

// Register adds every bundled strategy to reg.
func Register(reg *strategy.Registry) error {
	for _, r := range Registrations() {
		if err := reg.Register(r); err != nil {
			return err
		}
	}
	return nil
}
