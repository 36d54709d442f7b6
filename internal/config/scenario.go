package config

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/BurntSushi/toml"
)

// ScenarioParams is the flattened parameter map passed to the simulator as
// one --key=value flag per entry.
type ScenarioParams map[string]string

// Keys returns the parameter names in sorted order.
func (p ScenarioParams) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LoadScenarioConfig loads and flattens a scenario TOML file from the given
// filesystem. A key may hold a scalar or a list; lists contribute their first
// element and empty lists are dropped.
func LoadScenarioConfig(fsys fs.FS, name string) (ScenarioParams, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}

	var raw map[string]any
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}

	params := make(ScenarioParams, len(raw))
	for k, v := range raw {
		if list, ok := v.([]any); ok {
			if len(list) == 0 {
				continue
			}
			v = list[0]
		}
		s, err := formatParam(v)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", k, err)
		}
		params[k] = s
	}

	return params, nil
}

// LoadScenarioFile is a convenience wrapper around LoadScenarioConfig for a
// path on the local filesystem. An empty path yields no parameters.
func LoadScenarioFile(path string) (ScenarioParams, error) {
	if path == "" {
		return ScenarioParams{}, nil
	}
	return LoadScenarioConfig(os.DirFS(filepath.Dir(path)), filepath.Base(path))
}

func formatParam(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}
