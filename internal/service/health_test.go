package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthCheck(t *testing.T) {
	ok := NewHealthService(fakePinger{}, "test", testLogger()).Check(context.Background())
	assert.Equal(t, HealthOK, ok.Status)
	assert.Equal(t, HealthOK, ok.Database)
	assert.Equal(t, "test", ok.Env)
	assert.False(t, ok.CheckedAt.IsZero())

	down := NewHealthService(fakePinger{err: errors.New("connection refused")}, "test", testLogger()).Check(context.Background())
	assert.Equal(t, HealthDegraded, down.Status)
	assert.Equal(t, "unreachable", down.Database)
}
