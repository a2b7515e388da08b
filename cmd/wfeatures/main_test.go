package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leodido/wfeatures"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const statesYAML = `Printing-XPSServices-Features: Disabled
SMB1Protocol: Enabled
WorkFolders-Client: Disabled
FaxServicesClientPackage: DisabledWithPayloadRemoved
WindowsMediaPlayer: Disabled
`

func TestRunCheck_Text(t *testing.T) {
	opts := &CheckOptions{States: writeFile(t, "states.yaml", statesYAML)}

	var out bytes.Buffer
	report, err := runCheck(context.Background(), opts, &out)
	if err != nil {
		t.Fatalf("runCheck() error = %v", err)
	}
	if report.ExitCode() != 1 {
		t.Errorf("ExitCode() = %d, want 1", report.ExitCode())
	}
	if !strings.Contains(out.String(), "FAILED SMB1Protocol") {
		t.Errorf("output missing SMB1Protocol failure:\n%s", out.String())
	}
	if strings.Contains(out.String(), "\x1b[") {
		t.Error("non-terminal output must not be colored")
	}
}

func TestRunCheck_JSONAndMetrics(t *testing.T) {
	metrics := filepath.Join(t.TempDir(), "wfeatures.prom")
	opts := &CheckOptions{
		States:      writeFile(t, "states.yaml", statesYAML),
		Format:      formatJSON,
		Concurrency: 3,
		MetricsFile: metrics,
	}

	var out bytes.Buffer
	if _, err := runCheck(context.Background(), opts, &out); err != nil {
		t.Fatalf("runCheck() error = %v", err)
	}

	var got struct {
		Summary wfeatures.Summary `json:"summary"`
	}
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out.String())
	}
	if got.Summary.Failed != 1 || got.Summary.Passed != 4 {
		t.Errorf("summary = %+v", got.Summary)
	}

	if _, err := os.Stat(metrics); err != nil {
		t.Errorf("metrics file not written: %v", err)
	}
}

func TestRunCheck_CustomBaseline(t *testing.T) {
	opts := &CheckOptions{
		Baseline: writeFile(t, "baseline.yaml", "name: custom\nfeatures:\n  - name: SMB1Protocol\n    installed: true\n"),
		States:   writeFile(t, "states.yaml", statesYAML),
	}

	report, err := runCheck(context.Background(), opts, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("runCheck() error = %v", err)
	}
	if !report.OK() {
		t.Errorf("report not OK: %+v", report.Summary)
	}
}

func TestRunCheck_BadBaseline(t *testing.T) {
	opts := &CheckOptions{Baseline: writeFile(t, "baseline.yaml", "name: broken\n")}
	if _, err := runCheck(context.Background(), opts, &bytes.Buffer{}); err == nil {
		t.Error("expected error for baseline without features")
	}
}

func TestRunQuery(t *testing.T) {
	opts := &QueryOptions{States: writeFile(t, "states.yaml", statesYAML)}

	t.Run("text", func(t *testing.T) {
		var out bytes.Buffer
		if err := runQuery(context.Background(), opts, []string{"SMB1Protocol", "WindowsMediaPlayer"}, &out); err != nil {
			t.Fatalf("runQuery() error = %v", err)
		}
		want := "SMB1Protocol: enabled\nWindowsMediaPlayer: disabled\n"
		if out.String() != want {
			t.Errorf("output = %q, want %q", out.String(), want)
		}
	})

	t.Run("unknown feature", func(t *testing.T) {
		var out bytes.Buffer
		err := runQuery(context.Background(), opts, []string{"SMB1Protocol", "TelnetClient"}, &out)
		if err == nil || !strings.Contains(err.Error(), "1 of 2 feature queries failed") {
			t.Errorf("runQuery() error = %v", err)
		}
		if !strings.Contains(out.String(), "TelnetClient: error: unknown feature") {
			t.Errorf("output missing error line:\n%s", out.String())
		}
	})

	t.Run("json", func(t *testing.T) {
		jsonOpts := *opts
		jsonOpts.Format = formatJSON
		var out bytes.Buffer
		if err := runQuery(context.Background(), &jsonOpts, []string{"SMB1Protocol"}, &out); err != nil {
			t.Fatalf("runQuery() error = %v", err)
		}
		var got []featureQuery
		if err := json.Unmarshal(out.Bytes(), &got); err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || !got[0].Installed || got[0].State != wfeatures.StateEnabled {
			t.Errorf("got %+v", got)
		}
	})
}

func TestParseEnum(t *testing.T) {
	f, err := parseEnum(" JSON ", formatIds, "format")
	if err != nil || f != formatJSON {
		t.Errorf("parseEnum(JSON) = %v, %v", f, err)
	}

	m, err := parseEnum("ServerManager", methodIds, "method")
	if err != nil || m != wfeatures.MethodServerManager {
		t.Errorf("parseEnum(ServerManager) = %v, %v", m, err)
	}

	if _, err := parseEnum("yaml", formatIds, "format"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestDecodeHooks(t *testing.T) {
	v, err := (&CheckOptions{}).DecodeMethod("dism")
	if err != nil || v != wfeatures.MethodDISM {
		t.Errorf("DecodeMethod(dism) = %v, %v", v, err)
	}

	// Non-string input passes through untouched.
	v, err = (&QueryOptions{}).DecodeFormat(formatJSON)
	if err != nil || v != formatJSON {
		t.Errorf("DecodeFormat(formatJSON) = %v, %v", v, err)
	}
}

func TestBaselineCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"baseline", "--format", "json"})

	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var b wfeatures.Baseline
	if err := json.Unmarshal(out.Bytes(), &b); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out.String())
	}
	if len(b.Expectations) != 5 || b.Expectations[1].Name != "SMB1Protocol" {
		t.Errorf("expectations = %+v", b.Expectations)
	}
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.HasPrefix(out.String(), "wfeatures (dev)\n") {
		t.Errorf("output = %q", out.String())
	}
}
