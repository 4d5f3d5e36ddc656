package augment

import (
	"fmt"
	"sort"
)

// LayerParams are the keyword arguments of one layer as read from an
// experiment config, e.g. {"mode": "horizontal"} or {"factor": 0.1}
type LayerParams map[string]any

// Range is a closed interval a random value is drawn from
type Range struct {
	Lower float64
	Upper float64
}

func (r Range) sample(rng Rand) float64 {
	if r.Upper <= r.Lower {
		return r.Lower
	}
	return r.Lower + rng.Float64()*(r.Upper-r.Lower)
}

// Rand is the subset of *rand.Rand the layers draw from
type Rand interface {
	Float64() float64
}

func (p LayerParams) checkKeys(layer string, allowed ...string) error {
	var unknown []string
	for k := range p {
		known := false
		for _, a := range allowed {
			if k == a {
				known = true
				break
			}
		}
		if !known {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%s: unknown parameters %v", layer, unknown)
	}
	return nil
}

func (p LayerParams) has(key string) bool {
	_, ok := p[key]
	return ok
}

func (p LayerParams) str(key, def string) (string, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %T", key, v)
	}
	return s, nil
}

// symmetricRange reads key as either a single value f, meaning [-f, f], or a
// two element list [lower, upper]
func (p LayerParams) symmetricRange(key string) (Range, error) {
	v, ok := p[key]
	if !ok {
		return Range{}, fmt.Errorf("%s is required", key)
	}
	if list, ok := v.([]any); ok {
		if len(list) != 2 {
			return Range{}, fmt.Errorf("%s must have 2 elements, got %d", key, len(list))
		}
		lo, err := toFloat(list[0])
		if err != nil {
			return Range{}, fmt.Errorf("%s: %w", key, err)
		}
		hi, err := toFloat(list[1])
		if err != nil {
			return Range{}, fmt.Errorf("%s: %w", key, err)
		}
		if lo > hi {
			return Range{}, fmt.Errorf("%s: lower bound %v exceeds upper bound %v", key, lo, hi)
		}
		return Range{Lower: lo, Upper: hi}, nil
	}
	f, err := toFloat(v)
	if err != nil {
		return Range{}, fmt.Errorf("%s: %w", key, err)
	}
	if f < 0 {
		f = -f
	}
	return Range{Lower: -f, Upper: f}, nil
}

// contrastRange reads key as either a single value f, meaning [-f, f], or a
// two element list [lower, upper], meaning [-lower, upper]. Both bounds are
// magnitudes and must lie in [0, 1].
func (p LayerParams) contrastRange(key string) (Range, error) {
	v, ok := p[key]
	if !ok {
		return Range{}, fmt.Errorf("%s is required", key)
	}
	var lo, hi float64
	if list, ok := v.([]any); ok {
		if len(list) != 2 {
			return Range{}, fmt.Errorf("%s must have 2 elements, got %d", key, len(list))
		}
		var err error
		if lo, err = toFloat(list[0]); err != nil {
			return Range{}, fmt.Errorf("%s: %w", key, err)
		}
		if hi, err = toFloat(list[1]); err != nil {
			return Range{}, fmt.Errorf("%s: %w", key, err)
		}
	} else {
		f, err := toFloat(v)
		if err != nil {
			return Range{}, fmt.Errorf("%s: %w", key, err)
		}
		lo, hi = f, f
	}
	if lo < 0 || hi < 0 || lo > 1 || hi > 1 {
		return Range{}, fmt.Errorf("%s must be within [0, 1], got [%v, %v]", key, lo, hi)
	}
	return Range{Lower: -lo, Upper: hi}, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}
