// Package directory keeps track of the specialist agents known to the
// router: their cards, where they live, and which skills they advertise.
// Cards are refreshed from the agents' well-known endpoints once their TTL
// expires, so skill changes propagate without restarting the router.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	sdka2a "github.com/a2aproject/a2a-go/a2a"
	"github.com/rs/zerolog"

	"supportmesh/internal/a2a"
	"supportmesh/internal/logx"
)

var (
	ErrUnknownAgent        = errors.New("unknown agent")
	ErrNoCapableAgent      = errors.New("no capable agent")
	ErrAmbiguousCapability = errors.New("ambiguous capability")
)

// Entry is one registered specialist.
type Entry struct {
	AgentID   string
	BaseURL   string
	Card      *sdka2a.AgentCard
	FetchedAt time.Time
}

// CardFetcher retrieves a live agent card from a base URL. It exists as a
// type so tests can substitute the network.
type CardFetcher func(ctx context.Context, url string) (*sdka2a.AgentCard, error)

// Directory is a TTL-refreshing registry of specialist agents.
type Directory struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	ttl     time.Duration
	fetch   CardFetcher
	log     zerolog.Logger
}

// Option configures a Directory.
type Option func(*Directory)

// WithTTL overrides the card refresh interval.
func WithTTL(ttl time.Duration) Option {
	return func(d *Directory) { d.ttl = ttl }
}

// WithCardFetcher overrides how cards are fetched.
func WithCardFetcher(fetch CardFetcher) Option {
	return func(d *Directory) { d.fetch = fetch }
}

func New(opts ...Option) *Directory {
	d := &Directory{
		entries: make(map[string]*Entry),
		ttl:     30 * time.Second,
		fetch:   a2a.FetchCard,
		log:     logx.Component("directory"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register stores a specialist under its ID with an already-known card.
func (d *Directory) Register(agentID, baseURL string, card *sdka2a.AgentCard) {
	d.mu.Lock()
	d.entries[agentID] = &Entry{
		AgentID:   agentID,
		BaseURL:   baseURL,
		Card:      card,
		FetchedAt: time.Now().UTC(),
	}
	d.mu.Unlock()
	d.log.Info().Str("agent", agentID).Str("url", baseURL).Msg("agent registered")
}

// Discover fetches a specialist's card from its base URL and registers it.
func (d *Directory) Discover(ctx context.Context, agentID, baseURL string) error {
	card, err := d.fetch(ctx, baseURL)
	if err != nil {
		return fmt.Errorf("discover %s: %w", agentID, err)
	}
	d.Register(agentID, baseURL, card)
	return nil
}

// Resolve returns a snapshot of the entry for agentID, refreshing its card
// when stale. A failed refresh falls back to the cached card rather than
// erroring. The shared entry is only ever touched under the lock; staleness
// is judged from the snapshot so concurrent resolutions never race a refresh.
func (d *Directory) Resolve(ctx context.Context, agentID string) (*Entry, error) {
	d.mu.RLock()
	entry, ok := d.entries[agentID]
	var snapshot Entry
	if ok {
		snapshot = *entry
	}
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}

	if time.Since(snapshot.FetchedAt) > d.ttl {
		if card, err := d.fetch(ctx, snapshot.BaseURL); err == nil {
			d.mu.Lock()
			entry.Card = card
			entry.FetchedAt = time.Now().UTC()
			snapshot = *entry
			d.mu.Unlock()
		} else {
			d.log.Warn().Err(err).Str("agent", agentID).Msg("card refresh failed, using cached card")
		}
	}
	return &snapshot, nil
}

// List returns all entries, for status endpoints.
func (d *Directory) List() []Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Entry, 0, len(d.entries))
	for _, e := range d.entries {
		out = append(out, *e)
	}
	return out
}
