// Package inmemory is a relay.Client test double: events are appended to
// an in-process log and fanned out to subscribers instead of touching a
// real relay. Used by unit/integration tests and local dev runs.
package inmemory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/nostrdice/nostrdice/internal/relay"
)

// Client is safe for concurrent use.
type Client struct {
	mu       sync.Mutex
	seq      int
	events   []relay.Event
	profiles map[string]relay.Profile
	subs     []chan relay.Event
}

func New() *Client {
	return &Client{profiles: make(map[string]relay.Profile)}
}

// SetProfile lets tests seed a roller's lightning-address without a real
// kind-0 event round trip.
func (c *Client) SetProfile(pubkeyHex, lightningAddr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profiles[pubkeyHex] = relay.Profile{PubkeyHex: pubkeyHex, LightningAddr: lightningAddr}
}

// Events returns a snapshot of everything published so far, for assertions.
func (c *Client) Events() []relay.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]relay.Event, len(c.events))
	copy(out, c.events)
	return out
}

// Sign computes a fake id by hashing a per-client sequence number together
// with the event content, kind and tags, mirroring the real adapter's "id
// is known before publish" property without any actual signature.
func (c *Client) Sign(_ context.Context, ev relay.Event) (relay.Event, error) {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%s:%d:%v", seq, ev.Content, ev.Kind, ev.Tags)))
	ev.ID = hex.EncodeToString(sum[:])
	ev.SigHex = "inmemory"
	return ev, nil
}

func (c *Client) Publish(_ context.Context, ev relay.Event) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ev.ID == "" {
		c.seq++
		sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%s:%d", c.seq, ev.Content, ev.Kind)))
		ev.ID = hex.EncodeToString(sum[:])
	}
	c.events = append(c.events, ev)
	for _, sub := range c.subs {
		select {
		case sub <- ev:
		default:
		}
	}
	return ev.ID, nil
}

func (c *Client) Subscribe(ctx context.Context, filter relay.Filter) (<-chan relay.Event, error) {
	ch := make(chan relay.Event, 32)
	c.mu.Lock()
	c.subs = append(c.subs, ch)
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (c *Client) FetchProfile(_ context.Context, pubkeyHex string) (*relay.Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.profiles[pubkeyHex]
	if !ok {
		return nil, fmt.Errorf("inmemory: no profile for %s", pubkeyHex)
	}
	return &p, nil
}
