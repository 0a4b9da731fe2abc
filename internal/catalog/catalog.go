// Package catalog manages the registry of document stores. It keeps the
// durable store records, an in-memory cache keyed by name, and the link
// between each record and its remote counterpart in the index backend.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/docpile/docpile/internal/backend"
	"github.com/docpile/docpile/internal/models"
	"github.com/docpile/docpile/internal/storage"
)

// Catalog resolves store names to store records, creating remote stores on
// demand. Safe for concurrent use.
type Catalog struct {
	mu      sync.RWMutex
	cache   map[string]*models.Store
	storage storage.MetadataStore
	backend backend.IndexBackend
	logger  *zap.Logger
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Catalog) { c.logger = logger }
}

// New creates a Catalog over the given metadata store and index backend.
func New(store storage.MetadataStore, idx backend.IndexBackend, opts ...Option) *Catalog {
	c := &Catalog{
		cache:   make(map[string]*models.Store),
		storage: store,
		backend: idx,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoadCache warms the name cache from the durable records. Called once at
// startup; misses afterwards still fall through to storage.
func (c *Catalog) LoadCache(ctx context.Context) error {
	stores, err := c.storage.ListStores(ctx)
	if err != nil {
		return fmt.Errorf("failed to load store cache: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range stores {
		c.cache[s.Name] = s
	}
	c.logger.Debug("store cache loaded", zap.Int("count", len(stores)))
	return nil
}

// EnsureStore returns the store named name, creating it remotely and
// durably if it does not exist yet. Creation failures are returned as-is so
// callers can treat backend.ErrUnavailable as fatal for the whole job.
func (c *Catalog) EnsureStore(ctx context.Context, name, displayName string) (*models.Store, error) {
	if s := c.lookup(name); s != nil {
		return s, nil
	}

	s, err := c.storage.FindStore(ctx, name)
	if err == nil {
		c.put(s)
		return s, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up store %q: %w", name, err)
	}

	if displayName == "" {
		displayName = name
	}
	remoteID, err := c.backend.CreateStore(ctx, displayName)
	if err != nil {
		return nil, fmt.Errorf("failed to create remote store %q: %w", name, err)
	}
	s = &models.Store{
		Name:        name,
		RemoteID:    remoteID,
		DisplayName: displayName,
	}
	if err := c.storage.CreateStore(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to record store %q: %w", name, err)
	}
	c.put(s)
	c.logger.Info("store created",
		zap.String("name", name),
		zap.String("remote_id", remoteID))
	return s, nil
}

// FindStore returns the store named name or storage.ErrNotFound.
func (c *Catalog) FindStore(ctx context.Context, name string) (*models.Store, error) {
	if s := c.lookup(name); s != nil {
		return s, nil
	}
	s, err := c.storage.FindStore(ctx, name)
	if err != nil {
		return nil, err
	}
	c.put(s)
	return s, nil
}

// ListStores returns all durable store records and refreshes the cache.
func (c *Catalog) ListStores(ctx context.Context) ([]*models.Store, error) {
	stores, err := c.storage.ListStores(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	for _, s := range stores {
		c.cache[s.Name] = s
	}
	c.mu.Unlock()
	return stores, nil
}

// ReconcileReport describes the agreement between durable store records and
// the stores the backend actually has.
type ReconcileReport struct {
	Matched    []string `json:"matched"`     // store names with a live remote counterpart
	Missing    []string `json:"missing"`     // store names whose remote store is gone
	Untracked  []string `json:"untracked"`   // remote store IDs with no durable record
	RemoteSeen int      `json:"remote_seen"` // total remote stores listed
}

// Reconcile compares durable records against the backend's store list.
// It never mutates either side; the report is for operators.
func (c *Catalog) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	stores, err := c.storage.ListStores(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list local stores: %w", err)
	}
	remoteIDs, err := c.backend.ListStores(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list remote stores: %w", err)
	}

	remote := make(map[string]bool, len(remoteIDs))
	for _, id := range remoteIDs {
		remote[id] = true
	}

	report := &ReconcileReport{RemoteSeen: len(remoteIDs)}
	tracked := make(map[string]bool, len(stores))
	for _, s := range stores {
		tracked[s.RemoteID] = true
		if remote[s.RemoteID] {
			report.Matched = append(report.Matched, s.Name)
		} else {
			report.Missing = append(report.Missing, s.Name)
		}
	}
	for _, id := range remoteIDs {
		if !tracked[id] {
			report.Untracked = append(report.Untracked, id)
		}
	}
	return report, nil
}

func (c *Catalog) lookup(name string) *models.Store {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache[name]
}

func (c *Catalog) put(s *models.Store) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[s.Name] = s
}
