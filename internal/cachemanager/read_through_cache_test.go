package cachemanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCacheManager struct {
	mock.Mock
}

func (m *mockCacheManager) Get(ctx context.Context, key answerKey) (string, bool) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1)
}

func (m *mockCacheManager) GetWithRefresh(ctx context.Context, key answerKey, ttl time.Duration) (string, bool) {
	args := m.Called(ctx, key, ttl)
	return args.String(0), args.Bool(1)
}

func (m *mockCacheManager) Set(ctx context.Context, key answerKey, value string, ttl time.Duration) {
	m.Called(ctx, key, value, ttl)
}

func (m *mockCacheManager) Delete(ctx context.Context, keys ...answerKey) {
	m.Called(ctx, keys)
}

func (m *mockCacheManager) Flush(ctx context.Context) {
	m.Called(ctx)
}

func TestReadThroughCache_Hit(t *testing.T) {
	manager := &mockCacheManager{}
	manager.On("Get", mock.Anything, answerKey("q")).Return("cached", true).Once()

	rt := NewReadThroughCache[answerKey, string, string](manager,
		func(context.Context, string) (string, error) {
			t.Fatal("fn must not be called on a hit")
			return "", nil
		}, false)

	got, hit, err := rt.Get(context.Background(), "q", "Q", time.Minute)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, "cached", got)
	manager.AssertExpectations(t)
}

func TestReadThroughCache_MissStores(t *testing.T) {
	manager := &mockCacheManager{}
	manager.On("Get", mock.Anything, answerKey("q")).Return("", false).Once()
	manager.On("Set", mock.Anything, answerKey("q"), "fresh:Q", time.Minute).Once()

	rt := NewReadThroughCache[answerKey, string, string](manager,
		func(_ context.Context, input string) (string, error) {
			return "fresh:" + input, nil
		}, false)

	got, hit, err := rt.Get(context.Background(), "q", "Q", time.Minute)
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, "fresh:Q", got)
	manager.AssertExpectations(t)
}

func TestReadThroughCache_ErrorNotStored(t *testing.T) {
	manager := &mockCacheManager{}
	manager.On("Get", mock.Anything, answerKey("q")).Return("", false).Once()

	boom := errors.New("boom")
	rt := NewReadThroughCache[answerKey, string, string](manager,
		func(context.Context, string) (string, error) { return "", boom }, false)

	_, _, err := rt.Get(context.Background(), "q", "Q", time.Minute)
	require.ErrorIs(t, err, boom)
	manager.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReadThroughCache_Skip(t *testing.T) {
	manager := &mockCacheManager{}
	calls := 0
	rt := NewReadThroughCache[answerKey, string, string](manager,
		func(context.Context, string) (string, error) {
			calls++
			return "fresh", nil
		}, true)

	for range 2 {
		got, hit, err := rt.Get(context.Background(), "q", "Q", time.Minute)
		require.NoError(t, err)
		require.False(t, hit)
		require.Equal(t, "fresh", got)
	}
	require.Equal(t, 2, calls)
	manager.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}
