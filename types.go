package wfeatures

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrUnsupportedPlatform is returned when the running OS cannot answer feature queries.
	ErrUnsupportedPlatform = errors.New("feature queries require Windows")
	// ErrUnknownFeature is returned when the queried feature name is not known to the host.
	ErrUnknownFeature = errors.New("unknown feature")
	// ErrInvalidFeatureName is returned for names that cannot be a Windows feature identifier.
	ErrInvalidFeatureName = errors.New("invalid feature name")
	// ErrQueryUnavailable is returned when no query mechanism is available on the host.
	ErrQueryUnavailable = errors.New("feature query mechanism unavailable")
)

// QueryError records a failed attempt to determine the state of a feature.
// It means the state is unknown, not that the feature is absent.
type QueryError struct {
	Feature string
	Err     error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query feature %s: %v", e.Feature, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// FeatureError represents an expectation that does not hold on the host.
type FeatureError struct {
	Feature string
	Reason  string
	Err     error
}

func (e *FeatureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("feature %s: %s: %v", e.Feature, e.Reason, e.Err)
	}
	return fmt.Sprintf("feature %s: %s", e.Feature, e.Reason)
}

func (e *FeatureError) Unwrap() error {
	return e.Err
}

// FeatureState is the installation state of a Windows optional feature.
type FeatureState int

const (
	// StateUnknown means the state could not be mapped.
	StateUnknown FeatureState = iota
	// StateDisabled means the feature is not installed but its payload is present.
	StateDisabled
	// StateDisabledWithPayloadRemoved means the feature is not installed and its payload was removed.
	StateDisabledWithPayloadRemoved
	// StateEnabled means the feature is installed.
	StateEnabled
	// StateEnablePending means the feature is installed after the next reboot.
	StateEnablePending
	// StateDisablePending means the feature is removed after the next reboot.
	StateDisablePending
)

var stateNames = map[FeatureState]string{
	StateUnknown:                    "unknown",
	StateDisabled:                   "disabled",
	StateDisabledWithPayloadRemoved: "disabled-with-payload-removed",
	StateEnabled:                    "enabled",
	StateEnablePending:              "enable-pending",
	StateDisablePending:             "disable-pending",
}

// stateAliases maps normalized DISM and ServerManager spellings to states.
// Keys are lowercase with spaces, dashes and underscores removed.
var stateAliases = map[string]FeatureState{
	"unknown":                    StateUnknown,
	"disabled":                   StateDisabled,
	"disabledwithpayloadremoved": StateDisabledWithPayloadRemoved,
	"enabled":                    StateEnabled,
	"enablepending":              StateEnablePending,
	"disablepending":             StateDisablePending,
	// Get-WindowsFeature InstallState values.
	"installed":        StateEnabled,
	"available":        StateDisabled,
	"removed":          StateDisabledWithPayloadRemoved,
	"installpending":   StateEnablePending,
	"uninstallpending": StateDisablePending,
}

// Installed reports whether the state counts as installed.
// Only [StateEnabled] does: pending transitions have not taken effect yet.
func (s FeatureState) Installed() bool {
	return s == StateEnabled
}

func (s FeatureState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("FeatureState(%d)", s)
}

// MarshalText implements [encoding.TextMarshaler].
func (s FeatureState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (s *FeatureState) UnmarshalText(text []byte) error {
	st, err := ParseFeatureState(string(text))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// ParseFeatureState parses a state as printed by DISM, Get-WindowsOptionalFeature
// or Get-WindowsFeature. Matching ignores case, spaces, dashes and underscores.
func ParseFeatureState(s string) (FeatureState, error) {
	key := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '_', '\t':
			return -1
		}
		return r
	}, strings.ToLower(s))
	if st, ok := stateAliases[key]; ok {
		return st, nil
	}
	return StateUnknown, fmt.Errorf("unrecognized feature state %q", s)
}

var featureNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateFeatureName returns [ErrInvalidFeatureName] if name cannot be
// a Windows optional feature identifier.
func ValidateFeatureName(name string) error {
	if !featureNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidFeatureName, name)
	}
	return nil
}

// Expectation is a required installation state for a named feature.
type Expectation struct {
	Name      string `yaml:"name" json:"name"`
	Installed bool   `yaml:"installed" json:"installed"`
}

// NotInstalled returns an expectation that name is absent.
func NotInstalled(name string) Expectation {
	return Expectation{Name: name}
}

// Status is the outcome of a single check.
type Status int

const (
	// StatusPassed means the actual state matched the expectation.
	StatusPassed Status = iota
	// StatusFailed means the actual state contradicts the expectation.
	StatusFailed
	// StatusErrored means the state could not be determined.
	StatusErrored
)

func (s Status) String() string {
	switch s {
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusErrored:
		return "errored"
	default:
		return fmt.Sprintf("Status(%d)", s)
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CheckResult is the outcome of checking one [Expectation].
type CheckResult struct {
	Name     string
	Expected bool
	// Actual is the collapsed installed state. False when Status is StatusErrored.
	Actual bool
	State  FeatureState
	Status Status
	Passed bool
	// Err is a *QueryError when Status is StatusErrored.
	Err error
}

// Errored reports whether the feature state could not be determined.
func (r CheckResult) Errored() bool {
	return r.Status == StatusErrored
}

type checkResultJSON struct {
	Name     string       `json:"name"`
	Expected bool         `json:"expected"`
	Actual   bool         `json:"actual"`
	State    FeatureState `json:"state"`
	Status   Status       `json:"status"`
	Passed   bool         `json:"passed"`
	Error    string       `json:"error,omitempty"`
	Reason   string       `json:"reason,omitempty"`
}

// MarshalJSON renders the error as a string and adds remediation text
// for checks that did not pass.
func (r CheckResult) MarshalJSON() ([]byte, error) {
	out := checkResultJSON{
		Name:     r.Name,
		Expected: r.Expected,
		Actual:   r.Actual,
		State:    r.State,
		Status:   r.Status,
		Passed:   r.Passed,
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	if !r.Passed {
		out.Reason = Diagnose(r)
	}
	return json.Marshal(out)
}
