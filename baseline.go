package wfeatures

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Baseline is a named set of feature expectations for a host image.
type Baseline struct {
	Name         string        `yaml:"name" json:"name"`
	Title        string        `yaml:"title,omitempty" json:"title,omitempty"`
	Description  string        `yaml:"description,omitempty" json:"description,omitempty"`
	Impact       float64       `yaml:"impact" json:"impact"` // severity of a violation, 0 to 1
	Expectations []Expectation `yaml:"features" json:"features"`
}

// defaultFeatures must not be installed on a Windows 10 Enterprise session host.
var defaultFeatures = []string{
	"Printing-XPSServices-Features",
	"SMB1Protocol",
	"WorkFolders-Client",
	"FaxServicesClientPackage",
	"WindowsMediaPlayer",
}

// DefaultBaseline returns the built-in Windows 10 Enterprise session host baseline.
// Each call returns a fresh copy.
func DefaultBaseline() *Baseline {
	exps := make([]Expectation, 0, len(defaultFeatures))
	for _, name := range defaultFeatures {
		exps = append(exps, NotInstalled(name))
	}
	return &Baseline{
		Name:         "Windows 10 Enterprise",
		Title:        "Windows 10 Enterprise features install state",
		Description:  "A specified set of Windows 10 Enterprise features should be installed or not present",
		Impact:       1.0,
		Expectations: exps,
	}
}

// LoadBaseline reads and validates a YAML baseline file.
func LoadBaseline(path string) (*Baseline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load baseline: %w", err)
	}
	defer f.Close()

	b, err := ParseBaseline(f)
	if err != nil {
		return nil, fmt.Errorf("load baseline %q: %w", path, err)
	}
	return b, nil
}

// ParseBaseline decodes a YAML baseline, rejecting unknown fields, and
// normalizes it with [Baseline.Normalize].
func ParseBaseline(r io.Reader) (*Baseline, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var b Baseline
	if err := dec.Decode(&b); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty baseline")
		}
		return nil, fmt.Errorf("decode baseline: %w", err)
	}
	if err := b.Normalize(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Normalize validates the baseline and removes duplicate expectations.
//
// Names are compared case-insensitively; the first occurrence is kept and
// the output order is otherwise stable. A duplicate that asks for a
// different installed state than an earlier entry is an error.
func (b *Baseline) Normalize() error {
	if strings.TrimSpace(b.Name) == "" {
		return errors.New("baseline: missing name")
	}
	if b.Impact < 0 || b.Impact > 1 {
		return fmt.Errorf("baseline %q: impact %v out of range [0, 1]", b.Name, b.Impact)
	}
	if len(b.Expectations) == 0 {
		return fmt.Errorf("baseline %q: no features", b.Name)
	}

	seen := make(map[string]Expectation, len(b.Expectations))
	exps := make([]Expectation, 0, len(b.Expectations))
	for i, exp := range b.Expectations {
		exp.Name = strings.TrimSpace(exp.Name)
		if exp.Name == "" {
			return fmt.Errorf("baseline %q: feature %d: empty name", b.Name, i)
		}
		if err := ValidateFeatureName(exp.Name); err != nil {
			return fmt.Errorf("baseline %q: feature %d: %w", b.Name, i, err)
		}

		key := strings.ToLower(exp.Name)
		if prev, ok := seen[key]; ok {
			if prev.Installed != exp.Installed {
				return fmt.Errorf("baseline %q: conflicting expectations for %s", b.Name, exp.Name)
			}
			continue
		}
		seen[key] = exp
		exps = append(exps, exp)
	}
	b.Expectations = exps
	return nil
}
