package wfeatures

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// QueryMethod selects the PowerShell cmdlet family used to read feature state.
type QueryMethod int

const (
	// MethodAuto tries DISM first and falls back to ServerManager when
	// Get-WindowsOptionalFeature is not available.
	MethodAuto QueryMethod = iota
	// MethodDISM uses Get-WindowsOptionalFeature (client and server SKUs).
	MethodDISM
	// MethodServerManager uses Get-WindowsFeature (server SKUs only).
	MethodServerManager
)

var methodNames = map[QueryMethod]string{
	MethodAuto:          "auto",
	MethodDISM:          "dism",
	MethodServerManager: "servermanager",
}

func (m QueryMethod) String() string {
	if name, ok := methodNames[m]; ok {
		return name
	}
	return fmt.Sprintf("QueryMethod(%d)", m)
}

// QueryMethodNames returns the names of all query methods.
func QueryMethodNames() []string {
	return []string{MethodAuto.String(), MethodDISM.String(), MethodServerManager.String()}
}

// CommandRunner runs a PowerShell script and returns its standard output.
type CommandRunner func(ctx context.Context, script string) ([]byte, error)

const defaultPowerShell = "powershell.exe"

// powerShellConfig holds the configuration for a PowerShellQuerier.
type powerShellConfig struct {
	method QueryMethod
	path   string
	runner CommandRunner
	logger zerolog.Logger
}

// QueryOption configures a [PowerShellQuerier].
type QueryOption func(*powerShellConfig)

// WithMethod selects the query method. The default is [MethodAuto].
func WithMethod(m QueryMethod) QueryOption {
	return func(c *powerShellConfig) {
		c.method = m
	}
}

// WithPowerShellPath sets the PowerShell executable, e.g. pwsh.exe.
func WithPowerShellPath(path string) QueryOption {
	return func(c *powerShellConfig) {
		c.path = path
	}
}

// WithCommandRunner replaces process execution.
// This is primarily for testing.
func WithCommandRunner(r CommandRunner) QueryOption {
	return func(c *powerShellConfig) {
		c.runner = r
	}
}

// WithQueryLogger sets the logger used for query tracing.
func WithQueryLogger(l zerolog.Logger) QueryOption {
	return func(c *powerShellConfig) {
		c.logger = l
	}
}

// PowerShellQuerier reads feature state by running PowerShell cmdlets on the local host.
type PowerShellQuerier struct {
	cfg powerShellConfig

	// resolved caches the method picked by MethodAuto; the available
	// cmdlets do not change while the process runs.
	mu       sync.Mutex
	resolved QueryMethod
}

// NewPowerShellQuerier returns a querier that shells out to PowerShell.
func NewPowerShellQuerier(opts ...QueryOption) *PowerShellQuerier {
	cfg := powerShellConfig{
		method: MethodAuto,
		path:   defaultPowerShell,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.runner == nil {
		cfg.runner = execRunner(cfg.path)
	}
	return &PowerShellQuerier{cfg: cfg, resolved: cfg.method}
}

// featureReply is the JSON document emitted by the query scripts.
type featureReply struct {
	Available bool   `json:"Available"`
	Found     bool   `json:"Found"`
	Name      string `json:"Name"`
	State     string `json:"State"`
}

// QueryFeature implements [Querier].
func (p *PowerShellQuerier) QueryFeature(ctx context.Context, name string) (FeatureState, error) {
	if err := ValidateFeatureName(name); err != nil {
		return StateUnknown, err
	}

	p.mu.Lock()
	method := p.resolved
	p.mu.Unlock()

	switch method {
	case MethodDISM, MethodServerManager:
		return p.query(ctx, method, name)
	case MethodAuto:
	default:
		return StateUnknown, fmt.Errorf("unsupported query method %s", method)
	}

	st, err := p.query(ctx, MethodDISM, name)
	if !errors.Is(err, ErrQueryUnavailable) {
		if err == nil {
			p.resolve(MethodDISM)
		}
		return st, err
	}

	p.cfg.logger.Debug().Str("feature", name).Msg("Get-WindowsOptionalFeature unavailable, falling back to Get-WindowsFeature")
	st, err = p.query(ctx, MethodServerManager, name)
	if err == nil {
		p.resolve(MethodServerManager)
	}
	return st, err
}

func (p *PowerShellQuerier) resolve(m QueryMethod) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resolved == MethodAuto {
		p.resolved = m
		p.cfg.logger.Debug().Stringer("method", m).Msg("query method resolved")
	}
}

func (p *PowerShellQuerier) query(ctx context.Context, m QueryMethod, name string) (FeatureState, error) {
	out, err := p.cfg.runner(ctx, queryScript(m, name))
	if err != nil {
		return StateUnknown, fmt.Errorf("%s: %w", m, err)
	}
	reply, err := parseFeatureReply(out)
	if err != nil {
		return StateUnknown, fmt.Errorf("%s: %w", m, err)
	}
	if !reply.Available {
		return StateUnknown, fmt.Errorf("%s: %w", m, ErrQueryUnavailable)
	}
	if !reply.Found {
		return StateUnknown, fmt.Errorf("%w: %s", ErrUnknownFeature, name)
	}
	st, err := ParseFeatureState(reply.State)
	if err != nil {
		return StateUnknown, fmt.Errorf("%s: %w", m, err)
	}
	return st, nil
}

// parseFeatureReply decodes the last non-empty line of script output.
// Earlier lines may carry warnings written to the success stream.
func parseFeatureReply(out []byte) (featureReply, error) {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" {
		return featureReply{}, errors.New("empty query output")
	}
	var reply featureReply
	if err := json.Unmarshal([]byte(last), &reply); err != nil {
		return featureReply{}, fmt.Errorf("decode query output: %w", err)
	}
	return reply, nil
}

// Scripts print a single compressed JSON object. Feature names are
// validated before substitution and single quotes are doubled.
const (
	dismScript = `$ErrorActionPreference = 'Stop'
if (-not (Get-Command Get-WindowsOptionalFeature -ErrorAction SilentlyContinue)) {
  '{"Available":false}'; exit 0
}
$f = Get-WindowsOptionalFeature -Online | Where-Object { $_.FeatureName -eq '%s' } | Select-Object -First 1
if ($null -eq $f) { '{"Available":true,"Found":false}'; exit 0 }
[pscustomobject]@{ Available = $true; Found = $true; Name = $f.FeatureName; State = $f.State.ToString() } | ConvertTo-Json -Compress`

	serverManagerScript = `$ErrorActionPreference = 'Stop'
if (-not (Get-Command Get-WindowsFeature -ErrorAction SilentlyContinue)) {
  '{"Available":false}'; exit 0
}
$f = Get-WindowsFeature -Name '%s' | Select-Object -First 1
if ($null -eq $f) { '{"Available":true,"Found":false}'; exit 0 }
[pscustomobject]@{ Available = $true; Found = $true; Name = $f.Name; State = $f.InstallState.ToString() } | ConvertTo-Json -Compress`
)

func queryScript(m QueryMethod, name string) string {
	quoted := strings.ReplaceAll(name, "'", "''")
	if m == MethodServerManager {
		return fmt.Sprintf(serverManagerScript, quoted)
	}
	return fmt.Sprintf(dismScript, quoted)
}

func execRunner(path string) CommandRunner {
	return func(ctx context.Context, script string) ([]byte, error) {
		cmd := exec.CommandContext(ctx, path, "-NoProfile", "-NonInteractive", "-ExecutionPolicy", "Bypass", "-Command", script)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return nil, fmt.Errorf("%s: %w: %s", path, err, msg)
			}
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return stdout.Bytes(), nil
	}
}
