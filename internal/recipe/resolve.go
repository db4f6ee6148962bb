package recipe

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Resolve merges a recipe's defaults with caller overrides into the final
// parameter set for one submission. Overrides always win. The result is a
// fresh map each call; resolution is pure and repeatable.
func (s *Store) Resolve(kind Kind, name string, overrides map[string]string) (map[string]interface{}, error) {
	r, err := s.Lookup(kind, name)
	if err != nil {
		return nil, err
	}

	resolved := make(map[string]interface{}, len(r.Defaults)+len(overrides))
	for k, v := range r.Defaults {
		resolved[k] = v
	}

	for k, raw := range overrides {
		coerced, err := coerce(raw, r.Defaults[k])
		if err != nil {
			return nil, &InvalidOverrideError{Key: k, Raw: raw, Reason: err.Error()}
		}
		resolved[k] = coerced
	}

	var missing []string
	for _, key := range r.Required {
		if empty(resolved[key]) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &MissingParamsError{Keys: missing}
	}

	return resolved, nil
}

// coerce converts a textual override to the semantic type implied by the
// recipe default. With no default to learn from, the raw string stands.
func coerce(raw string, def interface{}) (interface{}, error) {
	switch d := def.(type) {
	case nil:
		return raw, nil
	case int:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("expected integer")
		}
		return n, nil
	case int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("expected integer")
		}
		return n, nil
	case float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("expected number")
		}
		return f, nil
	case bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("expected boolean")
		}
		return b, nil
	case string:
		// Defaults that read as durations keep that meaning for overrides.
		if _, err := time.ParseDuration(d); err == nil {
			if _, err := time.ParseDuration(raw); err != nil {
				return nil, fmt.Errorf("expected duration like %q", d)
			}
		}
		return raw, nil
	default:
		return raw, nil
	}
}

func empty(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	default:
		return false
	}
}
