package signal

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/tradequorum/quorum-bot/internal/events"
)

// Fetcher produces a fresh signal from the underlying provider. It is
// the only piece a new provider has to implement.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, symbol string) (RawSignal, error)
}

// Source is one registered signal provider with its protective wrapping:
// cache, rate limiter, single-flight deduplication and circuit breaker.
type Source interface {
	Name() string
	GetSignal(ctx context.Context, symbol string) (RawSignal, error)
	IsAvailable() bool
	Reset()
}

// SourceOptions configure the protective wrapping around a Fetcher.
type SourceOptions struct {
	CacheTTL         time.Duration
	RateLimit        time.Duration // minimum spacing between provider calls
	FailureThreshold int
	Cache            Cache
	Bus              *events.Bus
	Logger           zerolog.Logger
}

type providerSource struct {
	fetcher  Fetcher
	cache    Cache
	cacheTTL time.Duration
	limiter  *rate.Limiter
	breaker  *CircuitBreaker
	flight   singleflight.Group
	log      zerolog.Logger
}

// NewSource wraps a Fetcher with caching, rate limiting, single-flight
// and the consecutive-failure circuit breaker.
func NewSource(fetcher Fetcher, opts SourceOptions) Source {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Minute
	}
	if opts.Cache == nil {
		opts.Cache = NewMemoryCache()
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Every(opts.RateLimit)
	}

	s := &providerSource{
		fetcher:  fetcher,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		limiter:  rate.NewLimiter(limit, 1),
		breaker:  NewCircuitBreaker(opts.FailureThreshold),
		log:      opts.Logger.With().Str("source", fetcher.Name()).Logger(),
	}

	bus := opts.Bus
	s.breaker.SetTripCallback(func(failures int) {
		s.log.Warn().Int("failures", failures).Msg("signal source disabled after consecutive failures")
		if bus != nil {
			bus.Publish(events.TopicSourceTripped, events.SourceTripped{
				Source:    fetcher.Name(),
				Failures:  failures,
				Timestamp: time.Now(),
			})
		}
	})

	return s
}

func (s *providerSource) Name() string { return s.fetcher.Name() }

func (s *providerSource) IsAvailable() bool { return s.breaker.Available() }

// Reset clears the failure count and re-enables the source. Recovery is
// always explicit; elapsed time alone never re-enables a tripped source.
func (s *providerSource) Reset() {
	s.breaker.Reset()
	s.log.Info().Msg("signal source reset")
}

// GetSignal returns a cached signal when one is fresh enough, otherwise
// performs a provider fetch. Concurrent callers for the same symbol
// share a single in-flight fetch.
func (s *providerSource) GetSignal(ctx context.Context, symbol string) (RawSignal, error) {
	if !s.breaker.Available() {
		return RawSignal{}, ErrSourceDisabled
	}

	key := CacheKey(s.fetcher.Name(), symbol)
	if sig, ok := s.cache.Get(ctx, key); ok {
		return sig, nil
	}

	v, err, _ := s.flight.Do(symbol, func() (any, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, &FetchError{Source: s.fetcher.Name(), Symbol: symbol, Err: err}
		}

		sig, err := s.fetcher.Fetch(ctx, symbol)
		if err != nil {
			s.breaker.RecordFailure()
			s.log.Debug().Err(err).Str("symbol", symbol).Int("failures", s.breaker.Failures()).Msg("signal fetch failed")
			return nil, &FetchError{Source: s.fetcher.Name(), Symbol: symbol, Err: err}
		}

		s.breaker.RecordSuccess()
		s.cache.Set(ctx, key, sig, s.cacheTTL)
		return sig, nil
	})
	if err != nil {
		return RawSignal{}, err
	}
	return v.(RawSignal), nil
}
