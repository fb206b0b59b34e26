package payout

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nostrdice/nostrdice/internal/domain"
	"github.com/nostrdice/nostrdice/internal/lightning/memnode"
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

	s, err := sqlitestore.New(fmt.Sprintf("file:payout_test_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), n))
	require.NoError(t, err)
	return s
}

func putWonBet(t *testing.T, store *sqlitestore.Store, hash [32]byte, payoutInvoice string) {
	t.Helper()
	bet := &domain.Bet{
		PaymentHash:        hash,
		NonceCommitEventID: "round-1",
		State:              domain.AwaitingPayment,
		PayoutMsat:         5000,
		PayoutInvoice:      payoutInvoice,
		CreatedAt:          time.Now(),
	}
	_, err := store.NextIndexAndPut(context.Background(), bet, nil)
	require.NoError(t, err)
	require.NoError(t, store.UpdateState(context.Background(), hash, domain.PaidUnrolled, nil))
	require.NoError(t, store.UpdateState(context.Background(), hash, domain.RolledWon, func(b *domain.Bet) {
		b.PayoutInvoice = payoutInvoice
	}))
}

func TestDispatch_IdempotentRepaySkipsSendPayment(t *testing.T) {
	store := newTestStore(t)
	node := memnode.New()
	relayClient := inmemory.New()
	d := New(store, relayClient, nil, node)

	inv, err := node.AddHoldInvoice(context.Background(), 5000, "payout")
	require.NoError(t, err)

	// Simulate a payment already having been made in a prior attempt.
	existing, err := node.SendPaymentSync(context.Background(), inv.PaymentRequest)
	require.NoError(t, err)

	putWonBet(t, store, inv.PaymentHash, inv.PaymentRequest)

	require.NoError(t, d.Dispatch(context.Background(), inv.PaymentHash))

	bet, err := store.GetBet(context.Background(), inv.PaymentHash)
	require.NoError(t, err)
	assert.Equal(t, domain.Paid, bet.State)
	assert.Equal(t, hex.EncodeToString(existing.Preimage[:]), bet.PayoutPreimage)
}

func TestDispatch_SendPaymentFailureTransitionsToPayoutFailed(t *testing.T) {
	store := newTestStore(t)
	node := memnode.New()
	relayClient := inmemory.New()
	d := New(store, relayClient, nil, node)

	var hash [32]byte
	hash[0] = 0xAB
	invoice := "lnbcrt5000mnotregisteredwithmemnode"
	node.PayFailures[invoice] = fmt.Errorf("no route")

	putWonBet(t, store, hash, invoice)

	require.NoError(t, d.Dispatch(context.Background(), hash))

	bet, err := store.GetBet(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutFailed, bet.State)
}

func TestDispatch_SuccessPublishesZapReceipt(t *testing.T) {
	store := newTestStore(t)
	node := memnode.New()
	relayClient := inmemory.New()
	d := New(store, relayClient, nil, node)

	invoice := "lnbcrt5000mnotregisteredeither"
	var hash [32]byte
	hash[0] = 0xCD
	putWonBet(t, store, hash, invoice)

	require.NoError(t, d.Dispatch(context.Background(), hash))

	bet, err := store.GetBet(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, domain.Paid, bet.State)
	assert.NotEmpty(t, bet.PayoutPreimage)

	events := relayClient.Events()
	require.Len(t, events, 1)
	assert.Equal(t, kindZapReceipt, events[0].Kind)
}

func TestRecoverInFlight_ReEnqueuesPayingBets(t *testing.T) {
	store := newTestStore(t)
	node := memnode.New()
	relayClient := inmemory.New()
	d := New(store, relayClient, nil, node)

	var hash [32]byte
	hash[0] = 0xEF
	bet := &domain.Bet{
		PaymentHash:        hash,
		NonceCommitEventID: "round-1",
		State:              domain.AwaitingPayment,
		CreatedAt:          time.Now(),
	}
	_, err := store.NextIndexAndPut(context.Background(), bet, nil)
	require.NoError(t, err)
	require.NoError(t, store.UpdateState(context.Background(), hash, domain.PaidUnrolled, nil))
	require.NoError(t, store.UpdateState(context.Background(), hash, domain.RolledWon, nil))
	require.NoError(t, store.UpdateState(context.Background(), hash, domain.Paying, nil))

	ch := make(chan [32]byte, 4)
	require.NoError(t, d.RecoverInFlight(context.Background(), ch))

	select {
	case got := <-ch:
		assert.Equal(t, hash, got)
	default:
		t.Fatal("expected a re-enqueued payment hash")
	}
}
