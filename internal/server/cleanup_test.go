package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/tessro/encore/internal/config"
)

type MockPruner struct {
	mock.Mock
}

func (m *MockPruner) UserIDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockPruner) Prune(ctx context.Context, userID string, keep int) (int64, error) {
	args := m.Called(ctx, userID, keep)
	return args.Get(0).(int64), args.Error(1)
}

func TestCleanup_RunNow(t *testing.T) {
	repo := new(MockPruner)
	repo.On("UserIDs", mock.Anything).Return([]string{"alice", "bob", "carol"}, nil)
	repo.On("Prune", mock.Anything, "alice", 20).Return(int64(3), nil)
	repo.On("Prune", mock.Anything, "bob", 20).Return(int64(0), errors.New("locked"))
	repo.On("Prune", mock.Anything, "carol", 20).Return(int64(2), nil)

	c := NewCleanup(repo, "", 20, zerolog.Nop())
	n, err := c.RunNow(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, int64(5), n)
	repo.AssertExpectations(t)
}

func TestCleanup_RunNowListError(t *testing.T) {
	repo := new(MockPruner)
	repo.On("UserIDs", mock.Anything).Return(nil, errors.New("down"))

	c := NewCleanup(repo, "", 20, zerolog.Nop())
	_, err := c.RunNow(context.Background())

	assert.Error(t, err)
	repo.AssertNotCalled(t, "Prune", mock.Anything, mock.Anything, mock.Anything)
}

func TestCleanup_StartStop(t *testing.T) {
	repo := new(MockPruner)

	c := NewCleanup(repo, "0 3 * * *", 20, zerolog.Nop())
	assert.NoError(t, c.Start())
	c.Stop()

	bad := NewCleanup(repo, "not a schedule", 20, zerolog.Nop())
	assert.Error(t, bad.Start())
}

func TestCleanup_Every(t *testing.T) {
	c := NewCleanup(new(MockPruner), "", 20, zerolog.Nop())

	ran := make(chan struct{}, 1)
	c.Every(time.Second, func() {
		select {
		case ran <- struct{}{}:
		default:
		}
	})
	assert.NoError(t, c.Start())
	defer c.Stop()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("interval job did not run")
	}
}

func TestServerSchedulesLimiterSweep(t *testing.T) {
	s := New(config.ServerConfig{RateLimit: 5, RateBurst: 5}, NewMemoryRepository(), zerolog.Nop())
	assert.NotNil(t, s.limiter)
	assert.Equal(t, 1, s.cleanup.jobs)

	s = New(config.ServerConfig{}, NewMemoryRepository(), zerolog.Nop())
	assert.Nil(t, s.limiter)
	assert.Zero(t, s.cleanup.jobs)
}

func TestCleanup_EmptyScheduleDisabled(t *testing.T) {
	c := NewCleanup(new(MockPruner), "", 20, zerolog.Nop())
	assert.NoError(t, c.Start())
	c.Stop()
}
