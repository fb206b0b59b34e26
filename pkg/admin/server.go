// Package admin implements the Admin / Fraud-Proof HTTP Surface
// (SPEC_FULL.md §4.11): a minimal gin server exposing a health check,
// pprof profiling, and the public fraud-proof lookup. Grounded on the
// teacher's gin-based monolith wiring (cmd/color_game/monolith/main.go:
// gin.New + gin.Recovery + logger.GinMiddleware + http.Server), swapping
// out the teacher's game/gateway routes for the fraud-proof endpoint.
package admin

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nostrdice/nostrdice/internal/domain"
	"github.com/nostrdice/nostrdice/internal/fraudproof"
	"github.com/nostrdice/nostrdice/pkg/logger"
	"github.com/nostrdice/nostrdice/pkg/netutil"
)

// Server is the optional HTTP mirror of the fraud-proof surface. Spec §4.7
// treats this as non-normative convenience; the CLI dump is primary.
type Server struct {
	httpServer *http.Server
	addr       string
}

// New builds the gin engine and wraps it in an *http.Server listening on
// addr. surface answers fraud-proof lookups; pass nil to disable that
// route entirely (e.g. a minimal healthz-only deployment).
func New(addr string, surface *fraudproof.Surface) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.GinMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/pprof/", gin.WrapF(pprof.Index))
	router.GET("/debug/pprof/cmdline", gin.WrapF(pprof.Cmdline))
	router.GET("/debug/pprof/profile", gin.WrapF(pprof.Profile))
	router.GET("/debug/pprof/symbol", gin.WrapF(pprof.Symbol))
	router.GET("/debug/pprof/trace", gin.WrapF(pprof.Trace))
	router.GET("/debug/pprof/heap", gin.WrapF(pprof.Handler("heap").ServeHTTP))
	router.GET("/debug/pprof/goroutine", gin.WrapF(pprof.Handler("goroutine").ServeHTTP))

	if surface != nil {
		router.GET("/fraud-proof/:payment_hash", fraudProofHandler(surface))
	}

	return &Server{
		addr: addr,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// portOf extracts the port from an address of the form "host:port" or
// ":port". netutil.ListenWithFallback only takes a bare port, since it
// always falls back to listening on every interface.
func portOf(addr string) string {
	if _, port, err := net.SplitHostPort(addr); err == nil {
		return port
	}
	return strings.TrimPrefix(addr, ":")
}

func fraudProofHandler(surface *fraudproof.Surface) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Param("payment_hash")
		b, err := hex.DecodeString(raw)
		if err != nil || len(b) != 32 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "payment_hash must be 64 hex characters"})
			return
		}
		var hash [32]byte
		copy(hash[:], b)

		proof, err := surface.Build(c.Request.Context(), hash)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown payment_hash"})
				return
			}
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, proof)
	}
}

// Run starts serving until ctx is cancelled, then shuts down gracefully.
// The configured port is a preference, not a guarantee: if it's already
// taken (a second instance left over from a crashed run, a stray
// pprof/debug process), the admin surface falls back to an OS-assigned
// port rather than refusing to start, since this surface is operator
// convenience, not a contract any player depends on.
func (s *Server) Run(ctx context.Context) error {
	lis, port, err := netutil.ListenWithFallback(portOf(s.addr))
	if err != nil {
		return fmt.Errorf("admin: listen: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.InfoGlobal().Int("port", port).Msg("admin HTTP surface listening")
		if err := s.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("admin: serve: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
