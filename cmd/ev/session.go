package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alfredjeanlab/eventify/internal/client"
	"github.com/alfredjeanlab/eventify/internal/config"
	"github.com/alfredjeanlab/eventify/internal/listing"
	"github.com/alfredjeanlab/eventify/internal/model"
)

// session wires the configured API client, the optional Redis cache and the
// screen catalog together for one command invocation.
type session struct {
	cfg     *config.Config
	profile config.Profile
	catalog *client.Catalog
	api     *client.HTTPClient
	redis   *redis.Client
	log     *slog.Logger
}

func newSession(c *config.Config, p config.Profile, log *slog.Logger) (*session, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	s := &session{
		cfg:     c,
		profile: p,
		catalog: client.DefaultCatalog(),
		log:     log,
		api: client.NewHTTPClient(c.APIURL, c.Token,
			client.WithTimeout(c.HTTPTimeout),
			client.WithRetries(c.Retries, client.DefaultRetryWait),
			client.WithLogger(log),
		),
	}
	if c.RedisURL != "" {
		opts, err := redis.ParseURL(c.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis URL: %w", err)
		}
		s.redis = redis.NewClient(opts)
	}
	log.Debug("session: ready", "api", s.api.BaseURL(), "cache", s.redis != nil, "bus", c.NATSURL != "")
	return s, nil
}

func (s *session) Close() error {
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}

// screen returns the named catalog screen with the profile's tuning and
// pageSize applied. The page size only changes on endpoints that accept it;
// elsewhere the backend decides and the screen keeps its own.
func (s *session) screen(name string, pageSize int) (client.Screen, time.Duration, error) {
	scr, err := s.catalog.Lookup(name)
	if err != nil {
		return client.Screen{}, 0, err
	}
	debounce := s.cfg.Debounce
	var immediate []string
	if o, ok := s.profile.Override(name); ok {
		if o.Debounce.Duration > 0 {
			debounce = config.ClampDebounce(o.Debounce.Duration)
		}
		if pageSize == 0 {
			pageSize = o.PageSize
		}
		immediate = o.Immediate
	}
	if scr.Endpoint.PageSizeParam == "" {
		if pageSize != 0 && pageSize != scr.PageSize {
			s.log.Warn("screen has a fixed page size", "screen", name, "page_size", scr.PageSize)
		}
		pageSize = 0
	} else if pageSize == 0 {
		pageSize = s.cfg.PageSize
	}
	if pageSize != 0 {
		pageSize = config.ClampPageSize(pageSize)
	}
	return scr.Tune(pageSize, immediate), debounce, nil
}

// source returns the data source for scr, behind the Redis cache when one is
// configured.
func (s *session) source(scr client.Screen) (listing.DataSource[model.Record], error) {
	src, err := client.NewSource[model.Record](s.api, scr.Endpoint)
	if err != nil {
		return nil, err
	}
	if s.redis == nil {
		return src, nil
	}
	return client.NewCachedSource[model.Record](src, s.redis, cachePrefix(scr.Name), s.cfg.CacheTTL, s.log), nil
}

// purge drops every cached page of scr and returns how many were removed.
func (s *session) purge(ctx context.Context, scr client.Screen) (int, error) {
	if s.redis == nil {
		return 0, fmt.Errorf("no cache configured (set %sREDIS_URL)", config.EnvPrefix)
	}
	src, err := client.NewSource[model.Record](s.api, scr.Endpoint)
	if err != nil {
		return 0, err
	}
	return client.NewCachedSource[model.Record](src, s.redis, cachePrefix(scr.Name), s.cfg.CacheTTL, s.log).Purge(ctx)
}

// controller opens a list controller for the named screen.
func (s *session) controller(name string, pageSize int) (*listing.Controller[model.Record], client.Screen, error) {
	scr, debounce, err := s.screen(name, pageSize)
	if err != nil {
		return nil, client.Screen{}, err
	}
	src, err := s.source(scr)
	if err != nil {
		return nil, client.Screen{}, err
	}
	opts := scr.ListingOptions(debounce, s.log)
	opts.OnSettle = s.logSettled(name)
	return listing.New[model.Record](src, opts), scr, nil
}

// slowFetch is how long a page fetch may take before it is logged as slow.
const slowFetch = 2 * time.Second

func (s *session) logSettled(screen string) func(model.FetchRequest) {
	return func(req model.FetchRequest) {
		attrs := []any{"screen", screen, "seq", req.Sequence, "status", req.Status,
			"took", req.Duration(), "query", req.Spec.String()}
		if req.Err != nil && req.Status == model.FetchFailed {
			attrs = append(attrs, "err", req.Err)
		}
		if req.Duration() > slowFetch {
			s.log.Warn("fetch: slow response", attrs...)
			return
		}
		s.log.Debug("fetch: settled", attrs...)
	}
}

func cachePrefix(screen string) string {
	return "eventify:" + screen + ":"
}

// awaitSettled blocks until ctrl has no fetch in flight and has either shown
// a page or failed.
func awaitSettled(ctx context.Context, ctrl *listing.Controller[model.Record]) (listing.State[model.Record], error) {
	ch, cancel := ctrl.Subscribe()
	defer cancel()
	for {
		select {
		case st, ok := <-ch:
			if !ok {
				return listing.State[model.Record]{}, listing.ErrClosed
			}
			if st.Loading {
				continue
			}
			if st.Err != nil {
				return st, st.Err
			}
			if st.Sequence > 0 {
				return st, nil
			}
		case <-ctx.Done():
			return listing.State[model.Record]{}, ctx.Err()
		}
	}
}
