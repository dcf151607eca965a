package taskrunner

import (
	"fmt"
	"strings"
)

// EnvVar is one container environment entry.
type EnvVar struct {
	Name  string
	Value string
}

// ParseEnvVars parses NAME=VALUE pairs. Each pair must hold exactly one "="
// and a non-empty name. A repeated name keeps its first position and takes
// the last value.
func ParseEnvVars(pairs []string) ([]EnvVar, error) {
	out := make([]EnvVar, 0, len(pairs))
	index := make(map[string]int, len(pairs))
	for _, pair := range pairs {
		if strings.Count(pair, "=") != 1 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidEnvVarFormat, pair)
		}
		name, value, _ := strings.Cut(pair, "=")
		if name == "" {
			return nil, fmt.Errorf("%w: %q has an empty name", ErrInvalidEnvVarFormat, pair)
		}
		if i, ok := index[name]; ok {
			out[i].Value = value
			continue
		}
		index[name] = len(out)
		out = append(out, EnvVar{Name: name, Value: value})
	}
	return out, nil
}
