package nostrdice_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nostrdice/nostrdice/internal/domain"
	"github.com/nostrdice/nostrdice/internal/lightning/memnode"
	"github.com/nostrdice/nostrdice/internal/lnaddress"
	"github.com/nostrdice/nostrdice/internal/multiplier"
	"github.com/nostrdice/nostrdice/internal/payout"
	"github.com/nostrdice/nostrdice/internal/relay"
	"github.com/nostrdice/nostrdice/internal/relay/inmemory"
	"github.com/nostrdice/nostrdice/internal/rollengine"
	"github.com/nostrdice/nostrdice/internal/roundmgr"
	"github.com/nostrdice/nostrdice/internal/zapingest"
)

const kindZapRequest = 9734

// findWinningMemo brute-forces a memo string so the first bet placed by
// pubkey against nonce wins under mult, keeping the rest of this test
// deterministic without needing to control the real roll formula's inputs
// directly.
func findWinningMemo(nonce, pubkey [32]byte, mult domain.Multiplier) string {
	for i := 0; i < 10000; i++ {
		memo := fmt.Sprintf("probe-%d", i)
		if mult.Won(rollengine.Roll(nonce, pubkey, []byte(memo), 0)) {
			return memo
		}
	}
	panic("no winning memo found in search budget")
}

// lnurlServer fakes a minimal LNURL-pay endpoint so the Payout Dispatcher's
// lightning-address resolution can run end to end without a real wallet.
func lnurlServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/lnurlp/winner", func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		_ = json.NewEncoder(w).Encode(map[string]any{
			"callback":    fmt.Sprintf("https://%s/callback", host),
			"maxSendable": 100_000_000,
			"minSendable": 1000,
			"tag":         "payRequest",
			"status":      "OK",
		})
	})
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"pr":     "lnbcrt1m1payoutinvoicefromwinnerswallet",
			"status": "OK",
		})
	})
	return httptest.NewTLSServer(mux)
}

// TestFullLifecycle_ZapToSettledPayout exercises the happy path across
// every component: ingest a zap request, settle its hold invoice, roll and
// win, then resolve and pay out the winner, ending with a published zap
// receipt.
func TestFullLifecycle_ZapToSettledPayout(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	registry, err := multiplier.Load(strings.NewReader("x2:note-2x\n"))
	require.NoError(t, err)
	mult, _ := registry.Lookup("note-2x")

	var nonce [32]byte
	nonce[0] = 0x11
	round := &domain.Round{
		CommitEventID: "round-1",
		NonceBytes:    nonce,
		Commitment:    sha256.Sum256(nonce[:]),
		Status:        domain.RoundActive,
		CreatedAt:     time.Now(),
		ExpireAfter:   time.Hour,
		RevealAfter:   time.Hour,
	}
	require.NoError(t, store.PutRound(ctx, round))

	relayClient := inmemory.New()
	node := memnode.New()

	roundProvider := roundmgr.New(store, relayClient, time.Hour, time.Hour)
	ingestor := zapingest.New(roundProvider, registry, node, store)

	payoutCh := make(chan [32]byte, 4)
	engine := rollengine.New(store, store, registry, node, payoutCh)

	srv := lnurlServer(t)
	defer srv.Close()
	resolver := lnaddress.New(true)
	dispatcher := payout.New(store, relayClient, resolver, node)

	sk := nostr.GeneratePrivateKey()
	pk, _ := nostr.GetPublicKey(sk)
	var rollerPubkey [32]byte
	pkBytes, err := hex.DecodeString(pk)
	require.NoError(t, err)
	copy(rollerPubkey[:], pkBytes)

	memo := findWinningMemo(nonce, rollerPubkey, mult)

	relayClient.SetProfile(pk, "winner@"+strings.TrimPrefix(srv.URL, "https://"))

	nev := nostr.Event{
		PubKey:    pk,
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      kindZapRequest,
		Content:   memo,
		Tags: nostr.Tags{
			nostr.Tag{"e", "note-2x"},
			nostr.Tag{"amount", "2000000"},
		},
	}
	require.NoError(t, nev.Sign(sk))
	tags := make([][]string, 0, len(nev.Tags))
	for _, tg := range nev.Tags {
		tags = append(tags, []string(tg))
	}
	zapEvent := relay.Event{
		ID: nev.ID, Kind: nev.Kind, PubkeyHex: nev.PubKey,
		CreatedAt: int64(nev.CreatedAt), Content: nev.Content, SigHex: nev.Sig,
		Tags: tags,
	}

	require.NoError(t, ingestor.Ingest(ctx, zapEvent))

	bet, err := store.ListBetsForRound(ctx, "round-1", "")
	require.NoError(t, err)
	require.Len(t, bet, 1)
	placed := bet[0]
	assert.Equal(t, domain.AwaitingPayment, placed.State)
	assert.Equal(t, uint32(0), placed.Index)

	require.NoError(t, node.Settle(placed.PaymentHash))

	require.NoError(t, engine.HandleSettled(ctx, placed.PaymentHash))

	settled, err := store.GetBet(ctx, placed.PaymentHash)
	require.NoError(t, err)
	require.Equal(t, domain.RolledWon, settled.State)
	assert.Equal(t, mult.PayoutMsat(2_000_000), settled.PayoutMsat)

	select {
	case hash := <-payoutCh:
		require.NoError(t, dispatcher.Dispatch(ctx, hash))
	case <-time.After(time.Second):
		t.Fatal("expected a payout to be enqueued for the winning bet")
	}

	final, err := store.GetBet(ctx, placed.PaymentHash)
	require.NoError(t, err)
	assert.Equal(t, domain.Paid, final.State)
	assert.NotEmpty(t, final.PayoutPreimage)
	assert.Equal(t, "lnbcrt1m1payoutinvoicefromwinnerswallet", final.PayoutInvoice)

	receipts := relayClient.Events()
	var sawReceipt bool
	for _, e := range receipts {
		if e.Kind == 9735 {
			sawReceipt = true
		}
	}
	assert.True(t, sawReceipt, "a NIP-57 zap receipt must be published after a successful payout")
}

// TestFullLifecycle_LosingBetNeverReachesPayout confirms a losing roll
// settles to a terminal state without ever enqueuing a payout.
func TestFullLifecycle_LosingBetNeverReachesPayout(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	registry, err := multiplier.Load(strings.NewReader("x2:note-2x\n"))
	require.NoError(t, err)
	mult, _ := registry.Lookup("note-2x")

	var nonce [32]byte
	nonce[0] = 0x22
	round := &domain.Round{
		CommitEventID: "round-1",
		NonceBytes:    nonce,
		Commitment:    sha256.Sum256(nonce[:]),
		Status:        domain.RoundActive,
		CreatedAt:     time.Now(),
		ExpireAfter:   time.Hour,
		RevealAfter:   time.Hour,
	}
	require.NoError(t, store.PutRound(ctx, round))

	relayClient := inmemory.New()
	node := memnode.New()
	roundProvider := roundmgr.New(store, relayClient, time.Hour, time.Hour)
	ingestor := zapingest.New(roundProvider, registry, node, store)

	payoutCh := make(chan [32]byte, 4)
	engine := rollengine.New(store, store, registry, node, payoutCh)

	sk := nostr.GeneratePrivateKey()
	pk, _ := nostr.GetPublicKey(sk)
	var rollerPubkey [32]byte
	pkBytes, err := hex.DecodeString(pk)
	require.NoError(t, err)
	copy(rollerPubkey[:], pkBytes)

	var losingMemo string
	for i := 0; i < 10000; i++ {
		candidate := fmt.Sprintf("lose-%d", i)
		if !mult.Won(rollengine.Roll(nonce, rollerPubkey, []byte(candidate), 0)) {
			losingMemo = candidate
			break
		}
	}
	require.NotEmpty(t, losingMemo, "expected to find a losing memo in search budget")

	nev := nostr.Event{
		PubKey:    pk,
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      kindZapRequest,
		Content:   losingMemo,
		Tags: nostr.Tags{
			nostr.Tag{"e", "note-2x"},
			nostr.Tag{"amount", "2000000"},
		},
	}
	require.NoError(t, nev.Sign(sk))
	tags := make([][]string, 0, len(nev.Tags))
	for _, tg := range nev.Tags {
		tags = append(tags, []string(tg))
	}
	zapEvent := relay.Event{
		ID: nev.ID, Kind: nev.Kind, PubkeyHex: nev.PubKey,
		CreatedAt: int64(nev.CreatedAt), Content: nev.Content, SigHex: nev.Sig,
		Tags: tags,
	}

	require.NoError(t, ingestor.Ingest(ctx, zapEvent))
	bets, err := store.ListBetsForRound(ctx, "round-1", "")
	require.NoError(t, err)
	require.Len(t, bets, 1)

	require.NoError(t, node.Settle(bets[0].PaymentHash))
	require.NoError(t, engine.HandleSettled(ctx, bets[0].PaymentHash))

	settled, err := store.GetBet(ctx, bets[0].PaymentHash)
	require.NoError(t, err)
	assert.Equal(t, domain.RolledLost, settled.State)

	select {
	case <-payoutCh:
		t.Fatal("a losing bet must never be enqueued for payout")
	default:
	}
}
