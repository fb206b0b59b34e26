// Package nostrclient implements internal/relay.Client against a real
// Nostr relay using github.com/nbd-wtf/go-nostr, grounded on the only
// corpus file that imports a Nostr library
// (other_examples/psam21-ns__nip13.go).
package nostrclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nostrdice/nostrdice/internal/relay"
)

// Client publishes to and subscribes against a fixed set of relay URLs
// using a single keypair for everything the server itself signs (round
// announcements, reveals, zap receipts, social updates).
type Client struct {
	urls    []string
	privkey string // hex
	pubkey  string // hex
}

// New dials nothing eagerly — relay connections are opened per-call, since
// the four logical tasks that use this client (spec §5) each suspend on
// network I/O independently and should not share a single fragile
// connection.
func New(relayURLs []string, privkeyHex string) *Client {
	pubkey, _ := nostr.GetPublicKey(privkeyHex)
	return &Client{
		urls:    relayURLs,
		privkey: privkeyHex,
		pubkey:  pubkey,
	}
}

// PubkeyHex returns the server's own identity: the pubkey carried by every
// event this client signs.
func (c *Client) PubkeyHex() string { return c.pubkey }

func toNostrTags(tags [][]string) nostr.Tags {
	out := make(nostr.Tags, 0, len(tags))
	for _, t := range tags {
		out = append(out, nostr.Tag(t))
	}
	return out
}

func fromNostrEvent(e *nostr.Event) relay.Event {
	tags := make([][]string, 0, len(e.Tags))
	for _, t := range e.Tags {
		tags = append(tags, []string(t))
	}
	return relay.Event{
		ID:        e.ID,
		Kind:      e.Kind,
		PubkeyHex: e.PubKey,
		CreatedAt: int64(e.CreatedAt),
		Content:   e.Content,
		Tags:      tags,
		SigHex:    e.Sig,
	}
}

// Sign computes event's id/signature locally, with no network call —
// Nostr event ids are a deterministic hash of the signed content (NIP-01),
// so the caller can persist the id durably before publishing.
func (c *Client) Sign(_ context.Context, ev relay.Event) (relay.Event, error) {
	nev := nostr.Event{
		PubKey:    c.pubkey,
		CreatedAt: nostr.Timestamp(ev.CreatedAt),
		Kind:      ev.Kind,
		Tags:      toNostrTags(ev.Tags),
		Content:   ev.Content,
	}
	if err := nev.Sign(c.privkey); err != nil {
		return relay.Event{}, fmt.Errorf("nostrclient: sign: %w", err)
	}
	ev.ID = nev.ID
	ev.SigHex = nev.Sig
	ev.PubkeyHex = nev.PubKey
	return ev, nil
}

// Publish signs event with the server's key (if unsigned) and publishes it
// to every configured relay, tolerating individual relay failures as long
// as at least one publish succeeds (spec §4.3: "must tolerate publication
// failures to the event relay by retry with bounded backoff" — the retry
// loop itself lives in the caller, per component; this call is a single
// attempt across the relay set).
func (c *Client) Publish(ctx context.Context, ev relay.Event) (string, error) {
	nev := nostr.Event{
		PubKey:    c.pubkey,
		CreatedAt: nostr.Timestamp(ev.CreatedAt),
		Kind:      ev.Kind,
		Tags:      toNostrTags(ev.Tags),
		Content:   ev.Content,
	}
	if ev.SigHex != "" {
		nev.ID = ev.ID
		nev.Sig = ev.SigHex
	} else {
		if err := nev.Sign(c.privkey); err != nil {
			return "", fmt.Errorf("nostrclient: sign: %w", err)
		}
	}

	var lastErr error
	published := false
	for _, url := range c.urls {
		r, err := nostr.RelayConnect(ctx, url)
		if err != nil {
			lastErr = err
			continue
		}
		err = r.Publish(ctx, nev)
		r.Close()
		if err != nil {
			lastErr = err
			continue
		}
		published = true
	}
	if !published {
		return "", fmt.Errorf("nostrclient: publish failed on all relays: %w", lastErr)
	}
	return nev.ID, nil
}

// Subscribe opens a live subscription against every configured relay and
// fans incoming events into a single channel.
func (c *Client) Subscribe(ctx context.Context, filter relay.Filter) (<-chan relay.Event, error) {
	nf := nostr.Filter{Kinds: filter.Kinds, Authors: filter.Authors}
	if len(filter.Tags) > 0 {
		nf.Tags = nostr.TagMap{}
		for k, v := range filter.Tags {
			nf.Tags[k] = v
		}
	}

	out := make(chan relay.Event)
	connected := 0
	for _, url := range c.urls {
		r, err := nostr.RelayConnect(ctx, url)
		if err != nil {
			continue
		}
		sub, err := r.Subscribe(ctx, nostr.Filters{nf})
		if err != nil {
			r.Close()
			continue
		}
		connected++

		go func(r *nostr.Relay, sub *nostr.Subscription) {
			defer r.Close()
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-sub.Events:
					if !ok {
						return
					}
					select {
					case out <- fromNostrEvent(ev):
					case <-ctx.Done():
						return
					}
				}
			}
		}(r, sub)
	}
	if connected == 0 {
		close(out)
		return out, fmt.Errorf("nostrclient: could not subscribe to any relay")
	}

	go func() {
		<-ctx.Done()
		close(out)
	}()

	return out, nil
}

// kind0Metadata is the JSON shape of a kind-0 event's content field.
type kind0Metadata struct {
	Name    string `json:"name"`
	Lud16   string `json:"lud16"`
	Lud06   string `json:"lud06"`
}

// FetchProfile queries for the most recent kind-0 event from pubkeyHex and
// decodes its lightning-address (spec §4.6 step 2).
func (c *Client) FetchProfile(ctx context.Context, pubkeyHex string) (*relay.Profile, error) {
	var newest *nostr.Event
	for _, url := range c.urls {
		r, err := nostr.RelayConnect(ctx, url)
		if err != nil {
			continue
		}
		evs, err := r.QuerySync(ctx, nostr.Filter{Kinds: []int{0}, Authors: []string{pubkeyHex}, Limit: 1})
		r.Close()
		if err != nil {
			continue
		}
		for _, ev := range evs {
			if newest == nil || ev.CreatedAt > newest.CreatedAt {
				newest = ev
			}
		}
	}
	if newest == nil {
		return nil, fmt.Errorf("nostrclient: no profile metadata found for %s", pubkeyHex)
	}

	var meta kind0Metadata
	if err := json.Unmarshal([]byte(newest.Content), &meta); err != nil {
		return nil, fmt.Errorf("nostrclient: decode profile metadata: %w", err)
	}
	return &relay.Profile{PubkeyHex: pubkeyHex, LightningAddr: meta.Lud16}, nil
}
