package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// universeDocument accepts both supported shapes of a universe file: a bare
// YAML list of symbols, or a mapping with a "universe" key holding the list.
type universeDocument struct {
	Universe []string `yaml:"universe"`
}

// LoadUniverse loads the instrument universe from the given path. Symbols
// are trimmed, deduplicated, and returned sorted.
func LoadUniverse(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read universe file: %w", err)
	}

	var symbols []string
	if err := yaml.Unmarshal(data, &symbols); err != nil {
		var doc universeDocument
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse universe file: %w", err)
		}
		symbols = doc.Universe
	}

	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("universe file %s contains no symbols", path)
	}
	sort.Strings(out)
	return out, nil
}
