package wfeatures

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

// fakeShell answers query scripts from per-method replies and records calls.
type fakeShell struct {
	mu      sync.Mutex
	replies map[QueryMethod]string
	err     error
	calls   []QueryMethod
}

func (f *fakeShell) run(_ context.Context, script string) ([]byte, error) {
	m := MethodDISM
	if strings.Contains(script, "Get-WindowsFeature -Name") {
		m = MethodServerManager
	}
	f.mu.Lock()
	f.calls = append(f.calls, m)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.replies[m]), nil
}

const unavailableReply = `{"Available":false}`

func TestPowerShellQuerier_DISM(t *testing.T) {
	shell := &fakeShell{replies: map[QueryMethod]string{
		MethodDISM: `{"Available":true,"Found":true,"Name":"SMB1Protocol","State":"Enabled"}`,
	}}
	q := NewPowerShellQuerier(WithMethod(MethodDISM), WithCommandRunner(shell.run))

	st, err := q.QueryFeature(context.Background(), "SMB1Protocol")
	if err != nil {
		t.Fatalf("QueryFeature() error = %v", err)
	}
	if st != StateEnabled {
		t.Errorf("QueryFeature() = %v, want enabled", st)
	}
}

func TestPowerShellQuerier_ServerManager(t *testing.T) {
	shell := &fakeShell{replies: map[QueryMethod]string{
		MethodServerManager: `{"Available":true,"Found":true,"Name":"FS-SMB1","State":"Removed"}`,
	}}
	q := NewPowerShellQuerier(WithMethod(MethodServerManager), WithCommandRunner(shell.run))

	st, err := q.QueryFeature(context.Background(), "FS-SMB1")
	if err != nil {
		t.Fatalf("QueryFeature() error = %v", err)
	}
	if st != StateDisabledWithPayloadRemoved {
		t.Errorf("QueryFeature() = %v, want disabled-with-payload-removed", st)
	}
}

func TestPowerShellQuerier_AutoFallback(t *testing.T) {
	shell := &fakeShell{replies: map[QueryMethod]string{
		MethodDISM:          unavailableReply,
		MethodServerManager: `{"Available":true,"Found":true,"Name":"SMB1Protocol","State":"Available"}`,
	}}
	q := NewPowerShellQuerier(WithCommandRunner(shell.run))

	for i := 0; i < 2; i++ {
		st, err := q.QueryFeature(context.Background(), "SMB1Protocol")
		if err != nil {
			t.Fatalf("QueryFeature() error = %v", err)
		}
		if st != StateDisabled {
			t.Errorf("QueryFeature() = %v, want disabled", st)
		}
	}

	// The second query goes straight to the resolved method.
	want := []QueryMethod{MethodDISM, MethodServerManager, MethodServerManager}
	if len(shell.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", shell.calls, want)
	}
	for i := range want {
		if shell.calls[i] != want[i] {
			t.Errorf("calls[%d] = %s, want %s", i, shell.calls[i], want[i])
		}
	}
}

func TestPowerShellQuerier_AutoNoMethod(t *testing.T) {
	shell := &fakeShell{replies: map[QueryMethod]string{
		MethodDISM:          unavailableReply,
		MethodServerManager: unavailableReply,
	}}
	q := NewPowerShellQuerier(WithCommandRunner(shell.run))

	_, err := q.QueryFeature(context.Background(), "SMB1Protocol")
	if !errors.Is(err, ErrQueryUnavailable) {
		t.Errorf("QueryFeature() = %v, want ErrQueryUnavailable", err)
	}
}

func TestPowerShellQuerier_Errors(t *testing.T) {
	errDenied := errors.New("exit status 1: access denied")

	tests := []struct {
		name   string
		shell  *fakeShell
		target error
	}{
		{
			name:   "unknown feature",
			shell:  &fakeShell{replies: map[QueryMethod]string{MethodDISM: `{"Available":true,"Found":false}`}},
			target: ErrUnknownFeature,
		},
		{
			name:   "runner failure",
			shell:  &fakeShell{err: errDenied},
			target: errDenied,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewPowerShellQuerier(WithMethod(MethodDISM), WithCommandRunner(tt.shell.run))
			st, err := q.QueryFeature(context.Background(), "SMB1Protocol")
			if !errors.Is(err, tt.target) {
				t.Errorf("QueryFeature() error = %v, want %v", err, tt.target)
			}
			if st != StateUnknown {
				t.Errorf("QueryFeature() = %v, want unknown", st)
			}
		})
	}

	t.Run("garbage output", func(t *testing.T) {
		shell := &fakeShell{replies: map[QueryMethod]string{MethodDISM: "not json"}}
		q := NewPowerShellQuerier(WithMethod(MethodDISM), WithCommandRunner(shell.run))
		if _, err := q.QueryFeature(context.Background(), "SMB1Protocol"); err == nil {
			t.Error("expected decode error")
		}
	})

	t.Run("invalid name never reaches the shell", func(t *testing.T) {
		shell := &fakeShell{}
		q := NewPowerShellQuerier(WithCommandRunner(shell.run))
		_, err := q.QueryFeature(context.Background(), "x'; Remove-Item C:\\ -Recurse; '")
		if !errors.Is(err, ErrInvalidFeatureName) {
			t.Errorf("QueryFeature() = %v, want ErrInvalidFeatureName", err)
		}
		if len(shell.calls) != 0 {
			t.Errorf("shell called %d times, want 0", len(shell.calls))
		}
	})
}

func TestParseFeatureReply(t *testing.T) {
	t.Run("warnings before reply", func(t *testing.T) {
		out := []byte("WARNING: something\r\n{\"Available\":true,\"Found\":true,\"Name\":\"SMB1Protocol\",\"State\":\"Disabled\"}\r\n")
		reply, err := parseFeatureReply(out)
		if err != nil {
			t.Fatalf("parseFeatureReply() error = %v", err)
		}
		if reply.State != "Disabled" || !reply.Found {
			t.Errorf("reply = %+v", reply)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if _, err := parseFeatureReply([]byte("  \r\n")); err == nil {
			t.Error("expected error for empty output")
		}
	})
}

func TestQueryScript(t *testing.T) {
	dism := queryScript(MethodDISM, "SMB1Protocol")
	if !strings.Contains(dism, "Get-WindowsOptionalFeature -Online") || !strings.Contains(dism, "-eq 'SMB1Protocol'") {
		t.Errorf("DISM script missing query:\n%s", dism)
	}

	sm := queryScript(MethodServerManager, "FS-SMB1")
	if !strings.Contains(sm, "Get-WindowsFeature -Name 'FS-SMB1'") {
		t.Errorf("ServerManager script missing query:\n%s", sm)
	}
}

func TestQueryMethod_String(t *testing.T) {
	if got := strings.Join(QueryMethodNames(), ","); got != "auto,dism,servermanager" {
		t.Errorf("QueryMethodNames() = %q", got)
	}
	if got := QueryMethod(9).String(); got != "QueryMethod(9)" {
		t.Errorf("String() = %q", got)
	}
}
