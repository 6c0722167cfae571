package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Declared types a manifest config key (or caller) may require.
const (
	TypeString = "string"
	TypeInt    = "int"
	TypeFloat  = "float"
	TypeBool   = "bool"
	TypeList   = "list"
)

var truthy = map[string]bool{"true": true, "1": true, "yes": true, "on": true}
var falsy = map[string]bool{"false": true, "0": true, "no": true, "off": true}

// coerce converts value to the expected declared type. String sources are
// parsed; already-typed values pass through or convert where lossless.
func coerce(unitID, key string, value interface{}, expected string) (interface{}, error) {
	if expected == "" {
		return value, nil
	}

	fail := func() (interface{}, error) {
		return nil, &TypeError{UnitID: unitID, Key: key, Expected: expected, Actual: fmt.Sprintf("%T", value)}
	}

	switch expected {
	case TypeString:
		switch v := value.(type) {
		case string:
			return v, nil
		case int, int64, float64, bool:
			return fmt.Sprintf("%v", v), nil
		}
		return fail()

	case TypeInt:
		switch v := value.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			if v == float64(int(v)) {
				return int(v), nil
			}
			return fail()
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fail()
			}
			return n, nil
		}
		return fail()

	case TypeFloat:
		switch v := value.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return fail()
			}
			return f, nil
		}
		return fail()

	case TypeBool:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			lower := strings.ToLower(strings.TrimSpace(v))
			if truthy[lower] {
				return true, nil
			}
			if falsy[lower] {
				return false, nil
			}
			return fail()
		case int:
			return v != 0, nil
		}
		return fail()

	case TypeList:
		switch v := value.(type) {
		case []interface{}:
			return v, nil
		case []string:
			out := make([]interface{}, len(v))
			for i, s := range v {
				out[i] = s
			}
			return out, nil
		case string:
			parts := strings.Split(v, ",")
			out := make([]interface{}, 0, len(parts))
			for _, p := range parts {
				out = append(out, strings.TrimSpace(p))
			}
			return out, nil
		}
		return fail()
	}

	return nil, fmt.Errorf("unknown declared type %q for %s.%s", expected, unitID, key)
}
