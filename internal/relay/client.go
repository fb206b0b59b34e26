// Package relay declares the event-bus collaborator interface (spec §6):
// publish signed events, subscribe to filtered event streams, and fetch
// profile metadata (kind-0) for lightning-address resolution. Concrete
// adapters live in subpackages: nostrclient (real, go-nostr-backed) and
// inmemory (test double).
package relay

import "context"

// Event mirrors the subset of a Nostr event the core cares about. Tags are
// represented as ordered string slices, matching Nostr's own wire shape
// (["sha256", "<hex>"], ["e", "<id>", "", "mention"], etc.) so tag
// structure can be reproduced bit-for-bit per spec §6.
type Event struct {
	ID        string
	Kind      int
	PubkeyHex string
	CreatedAt int64
	Content   string
	Tags      [][]string
	SigHex    string
}

// Tag returns the first tag whose first element equals name, or nil.
func (e Event) Tag(name string) []string {
	for _, t := range e.Tags {
		if len(t) > 0 && t[0] == name {
			return t
		}
	}
	return nil
}

// Filter selects events for Subscribe, mirroring a Nostr REQ filter.
type Filter struct {
	Kinds   []int
	Tags    map[string][]string
	Authors []string
}

// Profile is the decoded kind-0 metadata document, specifically the one
// field the Payout Dispatcher needs: the player's lightning-address.
type Profile struct {
	PubkeyHex      string
	LightningAddr  string // the "lud16" field: "user@host"
}

// Client is the event-bus collaborator spec §6 treats as external.
type Client interface {
	// Sign computes the event's id and signature without publishing it.
	// Nostr event ids are deterministic hashes of the signed content, so
	// callers can learn the id — and durably persist it — before the
	// network call that makes the event externally observable (spec
	// §4.1's "durable before observable" rule).
	Sign(ctx context.Context, event Event) (Event, error)
	// Publish publishes an already-signed event (signing it first if it
	// arrives unsigned), returning its final event id.
	Publish(ctx context.Context, event Event) (string, error)
	// Subscribe returns a channel of events matching filter. The channel is
	// closed when ctx is cancelled.
	Subscribe(ctx context.Context, filter Filter) (<-chan Event, error)
	// FetchProfile retrieves and decodes the most recent kind-0 event for
	// pubkeyHex.
	FetchProfile(ctx context.Context, pubkeyHex string) (*Profile, error)
}
