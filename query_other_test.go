//go:build !windows

package wfeatures

import (
	"context"
	"errors"
	"testing"
)

func TestNewSystemQuerier_Unsupported(t *testing.T) {
	q := NewSystemQuerier(WithMethod(MethodDISM))
	_, err := q.QueryFeature(context.Background(), "SMB1Protocol")
	if !errors.Is(err, ErrUnsupportedPlatform) {
		t.Fatalf("QueryFeature() error = %v, want ErrUnsupportedPlatform", err)
	}
}

func TestRunChecks_UnsupportedPlatformErrorsEveryCheck(t *testing.T) {
	results := RunChecks(context.Background(), DefaultBaseline().Expectations, NewSystemQuerier())
	for _, res := range results {
		if res.Status != StatusErrored {
			t.Errorf("%s: Status = %s, want errored", res.Name, res.Status)
		}
	}
	r := &Report{Summary: Summarize(results)}
	if r.ExitCode() != 2 {
		t.Errorf("ExitCode() = %d, want 2", r.ExitCode())
	}
}
