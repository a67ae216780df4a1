package factory

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/factory-agent/internal/env"
	"github.com/p-blackswan/factory-agent/internal/metrics"
)

// QueryParam is the location query parameter that carries the factory ID.
const QueryParam = "factory-id"

// FetcherFactory builds a Fetcher for the resolved API base address.
type FetcherFactory func(baseURL string) Fetcher

// Cache owns the factory of the current session. It fetches the
// definition at most once and serves the memoized outcome afterwards.
type Cache struct {
	factoryID  string
	env        env.Provider
	newFetcher FetcherFactory
	metrics    *metrics.Metrics
	logger     zerolog.Logger

	mu      sync.Mutex
	fetched bool
	current *Definition
}

// NewCache creates a cache for the factory named by the location's
// factory-id query parameter. Without one the cache is inert.
func NewCache(location string, provider env.Provider, newFetcher FetcherFactory, m *metrics.Metrics, logger zerolog.Logger) *Cache {
	c := &Cache{
		factoryID:  ParseFactoryID(location),
		env:        provider,
		newFetcher: newFetcher,
		metrics:    m,
		logger:     logger.With().Str("component", "factory_cache").Logger(),
	}
	if c.factoryID != "" {
		c.logger = c.logger.With().Str("factory_id", c.factoryID).Logger()
	}
	return c
}

// ParseFactoryID extracts the factory-id query parameter from a location.
// Accepts full URLs as well as bare query strings ("?factory-id=x").
func ParseFactoryID(location string) string {
	if location == "" {
		return ""
	}
	u, err := url.Parse(location)
	if err != nil {
		return ""
	}
	query := u.RawQuery
	if query == "" && !strings.Contains(location, "?") && strings.Contains(location, "=") {
		query = location
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(values.Get(QueryParam))
}

// FactoryID returns the parsed factory ID, or "" when the cache is inert.
func (c *Cache) FactoryID() string {
	return c.factoryID
}

// FetchCurrent returns the session's factory, fetching it on first use.
// A nil result means "not running under a factory": no ID, no API base
// address, or a fetch that failed or returned nothing.
func (c *Cache) FetchCurrent(ctx context.Context) *Definition {
	if c.factoryID == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fetched {
		return c.current
	}
	c.fetched = true
	c.current = c.fetch(ctx)
	return c.current
}

// Current returns the cached definition without fetching.
func (c *Cache) Current() *Definition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Cache) fetch(ctx context.Context) *Definition {
	vars, err := c.env.Variables(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("environment unavailable, skipping factory")
		c.metrics.RecordFetch(metrics.ResultAbsent)
		return nil
	}
	baseURL := env.Value(vars, env.APIExternal)
	if baseURL == "" {
		c.logger.Info().Str("var", env.APIExternal).Msg("factory API address not set, skipping factory")
		c.metrics.RecordFetch(metrics.ResultAbsent)
		return nil
	}

	def, err := c.newFetcher(baseURL).GetByID(ctx, c.factoryID)
	if err != nil {
		c.logger.Warn().Err(err).Str("api", baseURL).Msg("failed to fetch factory")
		c.metrics.RecordFetch(metrics.ResultError)
		return nil
	}
	if def == nil {
		c.logger.Warn().Str("api", baseURL).Msg("factory API returned no data")
		c.metrics.RecordFetch(metrics.ResultAbsent)
		return nil
	}

	c.logger.Info().
		Int("projects", len(ProjectsOf(def))).
		Msg("factory loaded")
	c.metrics.RecordFetch(metrics.ResultOK)
	return def
}
