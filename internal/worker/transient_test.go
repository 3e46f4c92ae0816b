package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "operation stalled" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	var _ net.Error = timeoutError{}
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("connection lost"), true},
		{errors.New("i/o timeout"), true},
		{errors.New("connection pool timeout"), true},
		{fmt.Errorf("dial tcp: %w", errors.New("connection refused")), true},
		{fmt.Errorf("exec: %w", syscall.ECONNRESET), true},
		{fmt.Errorf("read: %w", timeoutError{}), true},
		{context.DeadlineExceeded, true},
		{errors.New("duplicate key value violates unique constraint"), false},
		{errors.New("invalid priority"), false},
	}
	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Fatalf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
