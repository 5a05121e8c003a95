package runner

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockRunner is a mock implementation of the Runner interface for testing.
type MockRunner struct {
	mock.Mock
}

// Run is the mock implementation of the Run method.
func (m *MockRunner) Run(ctx context.Context, cmd Command) error {
	args := m.Called(ctx, cmd)
	return args.Error(0) //nolint:wrapcheck
}
