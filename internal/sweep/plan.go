package sweep

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/newthinker/quantsweep/internal/core"
	"github.com/newthinker/quantsweep/internal/execution"
	"github.com/newthinker/quantsweep/internal/strategy"
)

var validate = validator.New()

// Plan describes one parameter sweep.
type Plan struct {
	Name           string          `yaml:"name" json:"name,omitempty"`
	Strategy       string          `yaml:"strategy" json:"strategy" validate:"required"`
	Symbols        []string        `yaml:"symbols" json:"symbols,omitempty" validate:"dive,required"`
	Start          string          `yaml:"start" json:"start,omitempty" validate:"omitempty,datetime=2006-01-02"`
	End            string          `yaml:"end" json:"end,omitempty" validate:"omitempty,datetime=2006-01-02"`
	InitialCapital float64         `yaml:"initial_capital" json:"initial_capital" default:"1000000" validate:"gt=0"`
	Grid           Grid            `yaml:"grid" json:"grid"`
	Fixed          strategy.Params `yaml:"fixed" json:"fixed,omitempty"`
	Costs          *CostOverrides  `yaml:"costs" json:"costs,omitempty"`
	MinTrades      *int            `yaml:"min_trades" json:"min_trades,omitempty" validate:"omitempty,gte=0"`
	Workers        int             `yaml:"workers" json:"workers,omitempty" validate:"gte=0"`
	Timeout        time.Duration   `yaml:"timeout" json:"timeout,omitempty" validate:"gte=0"`
}

// MinTradesOr returns the plan's minimum trade count, or def when unset.
func (p *Plan) MinTradesOr(def int) int {
	if p.MinTrades == nil {
		return def
	}
	return *p.MinTrades
}

// CostOverrides replaces individual cost rates; nil fields keep the
// configured value.
type CostOverrides struct {
	CommissionRate *float64 `yaml:"commission_rate" json:"commission_rate,omitempty" validate:"omitempty,gte=0,lt=1"`
	StampDutyRate  *float64 `yaml:"stamp_duty_rate" json:"stamp_duty_rate,omitempty" validate:"omitempty,gte=0,lt=1"`
	SlippageRate   *float64 `yaml:"slippage_rate" json:"slippage_rate,omitempty" validate:"omitempty,gte=0,lt=1"`
}

// Apply returns base with the set overrides applied.
func (o *CostOverrides) Apply(base execution.CostConfig) execution.CostConfig {
	if o == nil {
		return base
	}
	if o.CommissionRate != nil {
		base.CommissionRate = *o.CommissionRate
	}
	if o.StampDutyRate != nil {
		base.StampDutyRate = *o.StampDutyRate
	}
	if o.SlippageRate != nil {
		base.SlippageRate = *o.SlippageRate
	}
	return base
}

// LoadPlan reads a plan file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan: %w", err)
	}
	return ParsePlan(bytes.NewReader(data))
}

// ParsePlan decodes a YAML plan, applies defaults and validates it. Unknown
// fields are an error.
func ParsePlan(r io.Reader) (*Plan, error) {
	var p Plan
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("decoding plan: %w", err))
	}
	if err := p.Normalize(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Normalize fills defaults and validates p.
func (p *Plan) Normalize() error {
	if err := defaults.Set(p); err != nil {
		return core.WrapError(core.ErrConfigInvalid, err)
	}
	return p.Validate()
}

// Validate checks field constraints, the date range and the grid shape.
func (p *Plan) Validate() error {
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fieldMessage(fe))
			}
			if hasTag(verrs, "required") {
				return core.Errorf(core.ErrConfigMissing, "%s", strings.Join(msgs, "; "))
			}
			return core.Errorf(core.ErrConfigInvalid, "%s", strings.Join(msgs, "; "))
		}
		return core.WrapError(core.ErrConfigInvalid, err)
	}

	start, end, err := p.Range()
	if err != nil {
		return err
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return core.Errorf(core.ErrEmptyDateRange, "end %s before start %s", p.End, p.Start)
	}

	for _, k := range p.Grid.Keys() {
		if len(p.Grid[k]) == 0 {
			return core.Errorf(core.ErrMalformedGrid, "parameter %q has no candidate values", k)
		}
	}
	return nil
}

// Range returns the parsed start and end dates; an empty field gives a zero
// time.
func (p *Plan) Range() (start, end time.Time, err error) {
	if p.Start != "" {
		if start, err = core.ParseDate(p.Start); err != nil {
			return time.Time{}, time.Time{}, core.WrapError(core.ErrConfigInvalid, err)
		}
	}
	if p.End != "" {
		if end, err = core.ParseDate(p.End); err != nil {
			return time.Time{}, time.Time{}, core.WrapError(core.ErrConfigInvalid, err)
		}
	}
	return start, end, nil
}

func hasTag(verrs validator.ValidationErrors, tag string) bool {
	for _, fe := range verrs {
		if fe.Tag() == tag {
			return true
		}
	}
	return false
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "datetime":
		return fmt.Sprintf("%s must be a date formatted %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}
