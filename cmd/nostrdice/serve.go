package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/spf13/cobra"

	"github.com/nostrdice/nostrdice/internal/config"
	"github.com/nostrdice/nostrdice/internal/fraudproof"
	"github.com/nostrdice/nostrdice/internal/lightning/memnode"
	"github.com/nostrdice/nostrdice/internal/lnaddress"
	"github.com/nostrdice/nostrdice/internal/multiplier"
	"github.com/nostrdice/nostrdice/internal/payout"
	"github.com/nostrdice/nostrdice/internal/relay"
	"github.com/nostrdice/nostrdice/internal/relay/nostrclient"
	"github.com/nostrdice/nostrdice/internal/rollengine"
	"github.com/nostrdice/nostrdice/internal/roundmgr"
	"github.com/nostrdice/nostrdice/internal/social"
	"github.com/nostrdice/nostrdice/internal/sqlitestore"
	"github.com/nostrdice/nostrdice/internal/zapingest"
	"github.com/nostrdice/nostrdice/pkg/admin"
	"github.com/nostrdice/nostrdice/pkg/logger"
)

// kindZapRequest mirrors NIP-57's zap-request event kind; kept local to
// main since it only matters for wiring the ingestor's subscription
// filter.
const kindZapRequest = 9734

var serveFlags struct {
	relays          []string
	dataDir         string
	lndHost         string
	lndPort         int
	certFile        string
	macaroonFile    string
	network         string
	multipliersFile string
	expireAfterSecs int
	revealAfterSecs int
	socialInterval  int
	adminAddr       string
	logLevel        string
	logFormat       string
	logFile         string
	allowInsecure   bool
}

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the NostrDice server",
		RunE:  runServe,
	}

	f := serveCmd.Flags()
	f.StringSliceVar(&serveFlags.relays, "relay", nil, "Event-bus relay websocket URL (repeatable)")
	f.StringVar(&serveFlags.dataDir, "data-dir", "./data", "Bet Store location")
	f.StringVar(&serveFlags.lndHost, "lnd-host", "localhost", "Payment node host")
	f.IntVar(&serveFlags.lndPort, "lnd-port", 10009, "Payment node port")
	f.StringVar(&serveFlags.certFile, "cert-file", "", "Payment node TLS cert")
	f.StringVar(&serveFlags.macaroonFile, "macaroon-file", "", "Payment node macaroon")
	f.StringVar(&serveFlags.network, "network", "regtest", "Chain parameter set: regtest|testnet|mainnet")
	f.StringVar(&serveFlags.multipliersFile, "multipliers-file", "", "Multiplier registry source file")
	f.IntVar(&serveFlags.expireAfterSecs, "expire-nonce-after-secs", 30, "Round expiration timer")
	f.IntVar(&serveFlags.revealAfterSecs, "reveal-nonce-after-secs", 60, "Reveal timer, >= expire")
	f.IntVar(&serveFlags.socialInterval, "social-interval", 1800, "Social summary interval in seconds, 0 disables")
	f.StringVar(&serveFlags.adminAddr, "admin-addr", ":8090", "Admin/fraud-proof HTTP listen address")
	f.StringVar(&serveFlags.logLevel, "log-level", "info", "debug|info|warn|error")
	f.StringVar(&serveFlags.logFormat, "log-format", "console", "console|json")
	f.StringVar(&serveFlags.logFile, "log-file", "", "Optional log file path (rotated via lumberjack)")
	f.BoolVar(&serveFlags.allowInsecure, "allow-insecure-tls", false, "Accept self-signed TLS for lightning-address resolution (non-mainnet only)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := &config.Config{
		RelayURLs:        serveFlags.relays,
		DataDir:          serveFlags.dataDir,
		LndHost:          serveFlags.lndHost,
		LndPort:          serveFlags.lndPort,
		CertFile:         serveFlags.certFile,
		MacaroonFile:     serveFlags.macaroonFile,
		Network:          config.Network(serveFlags.network),
		MultipliersFile:  serveFlags.multipliersFile,
		ExpireNonceAfter: time.Duration(serveFlags.expireAfterSecs) * time.Second,
		RevealNonceAfter: time.Duration(serveFlags.revealAfterSecs) * time.Second,
		SocialInterval:   time.Duration(serveFlags.socialInterval) * time.Second,
		AdminAddr:        serveFlags.adminAddr,
		LogLevel:         serveFlags.logLevel,
		LogFormat:        serveFlags.logFormat,
		LogFile:          serveFlags.logFile,
		AllowInsecureTLS: serveFlags.allowInsecure,
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.LogFile != "" {
		logger.InitWithFile(cfg.LogFile, cfg.LogLevel, cfg.LogFormat)
	} else {
		logger.Init(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	store, err := sqlitestore.New(filepath.Join(cfg.DataDir, "nostrdice.db"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	registry, err := multiplier.LoadFile(cfg.MultipliersFile)
	if err != nil {
		return fmt.Errorf("load multiplier registry: %w", err)
	}

	privkey, err := loadOrCreateIdentity(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("load identity key: %w", err)
	}
	relayClient := nostrclient.New(cfg.RelayURLs, privkey)

	node := memnode.New()
	resolver := lnaddress.New(cfg.AllowInsecureTLS)

	rounds := roundmgr.New(store, relayClient, cfg.ExpireNonceAfter, cfg.RevealNonceAfter)

	ingestor := zapingest.New(rounds, registry, node, store)

	payoutCh := make(chan [32]byte, 64)
	engine := rollengine.New(store, store, registry, node, payoutCh)
	dispatcher := payout.New(store, relayClient, resolver, node)
	poster := social.New(store, registry, relayClient, cfg.SocialInterval)
	surface := fraudproof.New(store, store)
	adminServer := admin.New(cfg.AdminAddr, surface)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := dispatcher.RecoverInFlight(ctx, payoutCh); err != nil {
		return fmt.Errorf("recover in-flight payouts: %w", err)
	}

	errCh := make(chan error, 8)

	go func() {
		if err := rounds.Start(ctx); err != nil {
			errCh <- fmt.Errorf("round manager: %w", err)
		}
	}()

	go func() {
		sub, err := relayClient.Subscribe(ctx, relay.Filter{Kinds: []int{kindZapRequest}})
		if err != nil {
			errCh <- fmt.Errorf("subscribe zap requests: %w", err)
			return
		}
		ingestor.Run(ctx, sub)
	}()

	go func() {
		if err := engine.Run(ctx); err != nil {
			errCh <- fmt.Errorf("roll engine: %w", err)
		}
	}()

	go dispatcher.Run(ctx, payoutCh)
	go poster.Run(ctx)
	go func() {
		if err := adminServer.Run(ctx); err != nil {
			errCh <- fmt.Errorf("admin server: %w", err)
		}
	}()

	logger.InfoGlobal().Strs("relays", cfg.RelayURLs).Str("network", string(cfg.Network)).Msg("nostrdice server started")

	select {
	case <-ctx.Done():
		logger.InfoGlobal().Msg("shutting down")
		rounds.Stop()
		return nil
	case err := <-errCh:
		cancel()
		return err
	}
}

// loadOrCreateIdentity loads the server's Nostr signing key from
// <dataDir>/identity.hex, generating and persisting a fresh one on first
// run. This key is the server's own identity on the event bus — distinct
// from any player's roller_pubkey — used to sign round announcements,
// reveals, zap receipts, and social updates.
func loadOrCreateIdentity(dataDir string) (string, error) {
	path := filepath.Join(dataDir, "identity.hex")
	if b, err := os.ReadFile(path); err == nil {
		return strings.TrimSpace(string(b)), nil
	}

	sk := nostr.GeneratePrivateKey()
	if err := os.WriteFile(path, []byte(sk), 0o600); err != nil {
		return "", fmt.Errorf("persist identity key: %w", err)
	}
	return sk, nil
}
