package database

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockConnector is a mock implementation of the Connector interface for testing.
type MockConnector struct {
	mock.Mock
}

// Connect is the mock implementation of the Connect method.
func (m *MockConnector) Connect(ctx context.Context, cfg PoolConfig) (Pool, error) {
	args := m.Called(ctx, cfg)
	pool, _ := args.Get(0).(Pool)
	return pool, args.Error(1) //nolint:wrapcheck
}
