package wfeatures

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNoFeatureStates is returned when a state source lists no features.
var ErrNoFeatureStates = errors.New("no feature states found")

// LoadStates reads recorded feature states for offline evaluation.
//
// Files ending in .yaml or .yml hold a mapping of feature name to state.
// Any other file is parsed as the output of `dism /Get-Features`, either
// for the running system (/Online) or a mounted image (/Image:).
func LoadStates(path string) (StaticQuerier, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load states: %w", err)
	}
	defer f.Close()

	var sq StaticQuerier
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		sq, err = parseStatesYAML(f)
	default:
		sq, err = ParseDISMFeatures(f)
	}
	if err != nil {
		return nil, fmt.Errorf("load states %q: %w", path, err)
	}
	return sq, nil
}

func parseStatesYAML(r io.Reader) (StaticQuerier, error) {
	var raw map[string]FeatureState
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoFeatureStates
		}
		return nil, fmt.Errorf("decode states: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrNoFeatureStates
	}
	return NewStaticQuerier(raw), nil
}

// ParseDISMFeatures parses the list output of `dism /Get-Features`:
//
//	Feature Name : SMB1Protocol
//	State : Disabled
//
// Header, footer and blank lines are skipped. A state line without a
// preceding feature name, or with an unrecognized value, is an error.
func ParseDISMFeatures(r io.Reader) (StaticQuerier, error) {
	states := make(map[string]FeatureState)
	scanner := bufio.NewScanner(r)

	var current string
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "feature name":
			current = value
		case "state":
			if current == "" {
				return nil, fmt.Errorf("line %d: state without feature name", lineNo)
			}
			st, err := ParseFeatureState(value)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			states[current] = st
			current = ""
		}
		// Other keys (Deployment Image Servicing..., Version, Image Version) are ignored.
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(states) == 0 {
		return nil, ErrNoFeatureStates
	}
	return NewStaticQuerier(states), nil
}
