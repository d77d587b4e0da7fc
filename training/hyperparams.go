package training

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/soilspec/pkg/errors"
)

// Hyperparams holds per-algorithm settings as decoded from YAML or JSON.
// Numbers may arrive as int, int64, uint64 or float64; lists as []any.
type Hyperparams map[string]any

// Clone returns a shallow copy.
func (h Hyperparams) Clone() Hyperparams {
	out := make(Hyperparams, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Strings renders every value with fmt, sorted by key. Artifacts store this
// form so that gob never has to encode interface values.
func (h Hyperparams) Strings() map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = fmt.Sprint(v)
	}
	return out
}

// Keys returns the sorted keys.
func (h Hyperparams) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Int returns key as an int, or def when absent.
func (h Hyperparams) Int(key string, def int) (int, error) {
	v, ok := h[key]
	if !ok || v == nil {
		return def, nil
	}
	return toInt(key, v)
}

// Float returns key as a float64, or def when absent.
func (h Hyperparams) Float(key string, def float64) (float64, error) {
	v, ok := h[key]
	if !ok || v == nil {
		return def, nil
	}
	return toFloat(key, v)
}

// Bool returns key as a bool, or def when absent.
func (h Hyperparams) Bool(key string, def bool) (bool, error) {
	v, ok := h[key]
	if !ok || v == nil {
		return def, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return def, errors.NewValidationError(key, "must be a boolean", v)
		}
		return parsed, nil
	}
	return def, errors.NewValidationError(key, "must be a boolean", v)
}

// String returns key as a string, or def when absent.
func (h Hyperparams) String(key, def string) (string, error) {
	v, ok := h[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return def, errors.NewValidationError(key, "must be a string", v)
	}
	return s, nil
}

// Ints returns key as a list of ints, or def when absent. A single number or
// a comma separated string such as "256,128" is accepted too.
func (h Hyperparams) Ints(key string, def []int) ([]int, error) {
	v, ok := h[key]
	if !ok || v == nil {
		return def, nil
	}
	switch list := v.(type) {
	case []int:
		return append([]int(nil), list...), nil
	case []any:
		out := make([]int, len(list))
		for i, item := range list {
			n, err := toInt(key, item)
			if err != nil {
				return def, err
			}
			out[i] = n
		}
		return out, nil
	case string:
		var out []int
		for _, part := range strings.Split(list, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return def, errors.NewValidationError(key, "must be a list of integers", v)
			}
			out = append(out, n)
		}
		return out, nil
	default:
		n, err := toInt(key, v)
		if err != nil {
			return def, errors.NewValidationError(key, "must be a list of integers", v)
		}
		return []int{n}, nil
	}
}

func toInt(key string, v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, errors.NewValidationError(key, "must be an integer", v)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, errors.NewValidationError(key, "must be an integer", v)
		}
		return i, nil
	}
	return 0, errors.NewValidationError(key, "must be an integer", v)
}

func toFloat(key string, v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, errors.NewValidationError(key, "must be a number", v)
		}
		return f, nil
	}
	return 0, errors.NewValidationError(key, "must be a number", v)
}

// reader collects the first conversion error and the keys it consumed, so a
// constructor can read all of its settings and check once.
type reader struct {
	hp   Hyperparams
	used map[string]bool
	err  error
}

func newReader(hp Hyperparams) *reader {
	return &reader{hp: hp, used: make(map[string]bool)}
}

func (r *reader) int(key string, def int) int {
	r.used[key] = true
	v, err := r.hp.Int(key, def)
	r.keep(err)
	return v
}

func (r *reader) float(key string, def float64) float64 {
	r.used[key] = true
	v, err := r.hp.Float(key, def)
	r.keep(err)
	return v
}

func (r *reader) bool(key string, def bool) bool {
	r.used[key] = true
	v, err := r.hp.Bool(key, def)
	r.keep(err)
	return v
}

func (r *reader) string(key, def string) string {
	r.used[key] = true
	v, err := r.hp.String(key, def)
	r.keep(err)
	return v
}

func (r *reader) ints(key string, def []int) []int {
	r.used[key] = true
	v, err := r.hp.Ints(key, def)
	r.keep(err)
	return v
}

func (r *reader) has(key string) bool {
	_, ok := r.hp[key]
	return ok
}

func (r *reader) keep(err error) {
	if r.err == nil && err != nil {
		r.err = err
	}
}

// done reports the first conversion error, or an unknown key.
func (r *reader) done() error {
	if r.err != nil {
		return r.err
	}
	for _, k := range r.hp.Keys() {
		if !r.used[k] {
			return errors.NewValidationError(k, "unknown hyperparameter", r.hp[k])
		}
	}
	return nil
}
