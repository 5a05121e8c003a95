package deployerr

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsConnectionRefused(t *testing.T) {
	t.Parallel()

	refused := &url.Error{
		Op:  "Get",
		URL: "http://localhost:9000",
		Err: &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)},
	}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "wrapped syscall", err: refused, want: true},
		{name: "sentinel", err: fmt.Errorf("dial: %w", ErrTransientNetwork), want: true},
		{name: "reset", err: os.NewSyscallError("read", syscall.ECONNRESET), want: false},
		{name: "plain", err: errors.New("boom"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsConnectionRefused(tt.err))
		})
	}
}
