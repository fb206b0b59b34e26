package roundmgr

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nostrdice/nostrdice/internal/domain"
	"github.com/nostrdice/nostrdice/internal/relay/inmemory"
	"github.com/nostrdice/nostrdice/internal/sqlitestore"
	"github.com/nostrdice/nostrdice/pkg/logger"
)

var (
	logOnce  sync.Once
	testSeq  int
	testSeqM sync.Mutex
)

func newTestStore(t *testing.T) *sqlitestore.Store {
	t.Helper()
	logOnce.Do(func() {
		logger.Init(logger.Config{Level: "error", Format: "console"})
	})

	testSeqM.Lock()
	testSeq++
	n := testSeq
	testSeqM.Unlock()

	s, err := sqlitestore.New(fmt.Sprintf("file:roundmgr_test_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), n))
	require.NoError(t, err)
	return s
}

func TestRecover_CreatesGenesisRoundWhenStoreIsEmpty(t *testing.T) {
	store := newTestStore(t)
	relayClient := inmemory.New()
	mgr := New(store, relayClient, time.Minute, time.Minute)

	round, err := mgr.recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.RoundActive, round.Status)
	assert.NotEmpty(t, round.CommitEventID)

	assert.NotEmpty(t, relayClient.Events(), "genesis round must be announced")
}

func TestRecover_RotatesAlreadyExpiredActiveRound(t *testing.T) {
	store := newTestStore(t)
	relayClient := inmemory.New()
	mgr := New(store, relayClient, time.Minute, time.Minute)

	stale := &domain.Round{
		CommitEventID: "stale-round",
		Status:        domain.RoundActive,
		CreatedAt:     time.Now().Add(-time.Hour),
		ExpireAfter:   time.Minute,
		RevealAfter:   time.Minute,
	}
	require.NoError(t, store.PutRound(context.Background(), stale))

	round, err := mgr.recover(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, "stale-round", round.CommitEventID)
	assert.Equal(t, domain.RoundActive, round.Status)

	got, err := store.GetRound(context.Background(), "stale-round")
	require.NoError(t, err)
	assert.Equal(t, domain.RoundExpired, got.Status)
}

func TestRecover_RevealsExpiredRoundPastRevealDeadline(t *testing.T) {
	store := newTestStore(t)
	relayClient := inmemory.New()
	mgr := New(store, relayClient, time.Minute, time.Minute)

	expired := &domain.Round{
		CommitEventID: "expired-round",
		Status:        domain.RoundActive,
		CreatedAt:     time.Now().Add(-time.Hour),
		ExpireAfter:   time.Minute,
		RevealAfter:   time.Minute,
	}
	require.NoError(t, store.PutRound(context.Background(), expired))

	active := &domain.Round{
		CommitEventID: "active-round",
		Status:        domain.RoundActive,
		CreatedAt:     time.Now(),
		ExpireAfter:   time.Minute,
		RevealAfter:   time.Minute,
	}
	require.NoError(t, store.RotateRound(context.Background(), "expired-round", active))

	_, err := mgr.recover(context.Background())
	require.NoError(t, err)

	got, err := store.GetRound(context.Background(), "expired-round")
	require.NoError(t, err)
	assert.Equal(t, domain.RoundRevealed, got.Status)
	assert.NotEmpty(t, got.RevealEventID)
}

func TestGetActiveRound_ReturnsCurrentActive(t *testing.T) {
	store := newTestStore(t)
	relayClient := inmemory.New()
	mgr := New(store, relayClient, time.Minute, time.Minute)

	_, err := mgr.recover(context.Background())
	require.NoError(t, err)

	round, err := mgr.GetActiveRound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.RoundActive, round.Status)
}
