package strategy

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/newthinker/quantsweep/internal/core"
)

// Params is a loosely typed parameter map as decoded from YAML, JSON or
// flags. Decoding goes through mapstructure, which accepts any numeric
// representation but never converts between strings, numbers and bools.
type Params map[string]any

// Clone returns a shallow copy.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge returns a copy of p with every key of over applied on top.
func (p Params) Merge(over Params) Params {
	out := p.Clone()
	for k, v := range over {
		out[k] = v
	}
	return out
}

// Keys returns the parameter names in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Decode copies p onto out, a pointer to a struct whose fields carry
// mapstructure tags. Fields absent from p keep their current value, so out
// is normally pre-filled with defaults. A key out does not declare is an
// error, as is any value of the wrong kind.
func (p Params) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:  mapstructure.DecodeHookFuncType(integralOnly),
		ErrorUnused: true,
		Result:      out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(map[string]any(p)); err != nil {
		return typeError(err)
	}
	return nil
}

// Float returns key as a float64, or def when absent.
func (p Params) Float(key string, def float64) (float64, error) {
	v := def
	err := p.decodeKey(key, &v)
	return v, err
}

// Int returns key as an int, or def when absent. Floats are accepted only
// when integral.
func (p Params) Int(key string, def int) (int, error) {
	v := def
	err := p.decodeKey(key, &v)
	return v, err
}

// Bool returns key as a bool, or def when absent.
func (p Params) Bool(key string, def bool) (bool, error) {
	v := def
	err := p.decodeKey(key, &v)
	return v, err
}

func (p Params) decodeKey(key string, out any) error {
	raw, ok := p[key]
	if !ok || raw == nil {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.DecodeHookFuncType(integralOnly),
		Result:     out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return typeError(fmt.Errorf("%s: %w", key, err))
	}
	return nil
}

// typeError marks err as a decoding failure. It matches both
// core.ErrInvalidParameter and core.ErrParameterType.
func typeError(err error) error {
	return core.WrapError(core.ErrInvalidParameter, core.WrapError(core.ErrParameterType, err))
}

// integralOnly stops mapstructure from truncating fractional numbers into
// integer fields.
func integralOnly(from, to reflect.Type, data any) (any, error) {
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return data, nil
	}
	switch from.Kind() {
	case reflect.Float32, reflect.Float64:
		f := reflect.ValueOf(data).Float()
		if f != math.Trunc(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("want integer, got %v", data)
		}
	}
	return data, nil
}

// Fingerprint renders the parameters as a stable "k=v,k=v" string.
func (p Params) Fingerprint() string {
	var b strings.Builder
	for i, k := range p.Keys() {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%v", k, p[k])
	}
	return b.String()
}
