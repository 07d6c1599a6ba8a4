// Package config loads relayload run settings from flags, positional
// arguments, RELAYLOAD_* environment variables and JSON/YAML files.
package config

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Values arriving from viper are loosely typed: YAML yields int and float64,
// JSON yields float64, environment variables yield strings.

// lookupSetting returns the first non-nil value stored under any candidate
// key, trying each key as given and lowercased.
func lookupSetting(settings map[string]interface{}, candidates ...string) (interface{}, bool) {
	for _, key := range candidates {
		for _, k := range []string{key, strings.ToLower(key)} {
			if val, ok := settings[k]; ok && val != nil {
				return val, true
			}
		}
	}
	return nil, false
}

func asString(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return fmt.Sprint(v), nil
	}
}

// number reports the numeric value of any Go integer or float kind.
func number(value interface{}) (float64, bool) {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}

func asInt(value interface{}) (int, error) {
	if value == nil {
		return 0, nil
	}
	if s, ok := value.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, nil
		}
		return strconv.Atoi(s)
	}
	if n, ok := number(value); ok {
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%v is not a whole number", value)
		}
		return int(n), nil
	}
	return 0, fmt.Errorf("unsupported numeric type %T", value)
}

func asFloat64(value interface{}) (float64, error) {
	if value == nil {
		return 0, nil
	}
	if s, ok := value.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, nil
		}
		return strconv.ParseFloat(s, 64)
	}
	if n, ok := number(value); ok {
		return n, nil
	}
	return 0, fmt.Errorf("unsupported float type %T", value)
}

func asBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return false, nil
		}
		return strconv.ParseBool(v)
	default:
		return false, fmt.Errorf("unsupported boolean type %T", value)
	}
}

// asDuration accepts a time.Duration, a Go duration string, or a bare number
// of seconds (as a number or a string), matching the duration-seconds
// positional argument.
func asDuration(value interface{}) (time.Duration, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return 0, nil
		}
		d, err := time.ParseDuration(v)
		if err == nil {
			return d, nil
		}
		secs, ferr := strconv.ParseFloat(v, 64)
		if ferr != nil {
			return 0, err
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	if n, ok := number(value); ok {
		return time.Duration(n * float64(time.Second)), nil
	}
	return 0, fmt.Errorf("unsupported duration type %T", value)
}

// asStringMap reads a header table. Keys must be non-empty.
func asStringMap(value interface{}) (map[string]string, error) {
	if value == nil {
		return nil, nil
	}
	entries, err := toStringKeyMap(value, false)
	if err != nil {
		return nil, fmt.Errorf("headers: %w", err)
	}
	result := make(map[string]string, len(entries))
	for k, val := range entries {
		if k == "" {
			return nil, fmt.Errorf("header key cannot be empty")
		}
		result[k], _ = asString(val)
	}
	return result, nil
}

// toStringKeyMap normalises the map shapes viper and yaml.v3 produce. With
// lower set, keys are also lowercased.
func toStringKeyMap(value interface{}, lower bool) (map[string]interface{}, error) {
	norm := func(k string) string {
		k = strings.TrimSpace(k)
		if lower {
			k = strings.ToLower(k)
		}
		return k
	}

	result := map[string]interface{}{}
	switch v := value.(type) {
	case map[string]interface{}:
		for key, val := range v {
			result[norm(key)] = val
		}
	case map[string]string:
		for key, val := range v {
			result[norm(key)] = val
		}
	case map[interface{}]interface{}:
		for key, val := range v {
			str, _ := asString(key)
			result[norm(str)] = val
		}
	default:
		return nil, fmt.Errorf("expected map, got %T", value)
	}
	return result, nil
}
