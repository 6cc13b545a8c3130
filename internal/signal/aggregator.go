package signal

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultTimeout bounds one whole aggregation fan-out.
	DefaultTimeout = 30 * time.Second
	// DefaultMinSources is the minimum number of successful responses
	// required to produce a verdict.
	DefaultMinSources = 2
	// DefaultVoteRatio applies to source counts without a table entry.
	DefaultVoteRatio = 0.70
)

// voteRatios maps the number of responding sources to the fraction of
// BUY votes required for a buy verdict. Counts outside the table use
// the aggregator's default ratio.
var voteRatios = map[int]float64{
	3: 2.0 / 3.0,
	4: 0.75,
	5: 0.80,
	6: 2.0 / 3.0,
}

// AggregatorOptions configure an Aggregator.
type AggregatorOptions struct {
	Timeout          time.Duration
	MinSources       int
	DefaultVoteRatio float64
	Logger           zerolog.Logger
}

// Aggregator fans a symbol out to all registered sources concurrently
// and combines their opinions by majority vote.
type Aggregator struct {
	sources      []Source
	timeout      time.Duration
	minSources   int
	defaultRatio float64
	log          zerolog.Logger
}

// NewAggregator creates an aggregator over the given sources.
func NewAggregator(sources []Source, opts AggregatorOptions) *Aggregator {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MinSources <= 0 {
		opts.MinSources = DefaultMinSources
	}
	if opts.DefaultVoteRatio <= 0 || opts.DefaultVoteRatio > 1 {
		opts.DefaultVoteRatio = DefaultVoteRatio
	}
	return &Aggregator{
		sources:      sources,
		timeout:      opts.Timeout,
		minSources:   opts.MinSources,
		defaultRatio: opts.DefaultVoteRatio,
		log:          opts.Logger,
	}
}

// Sources returns the registered sources.
func (a *Aggregator) Sources() []Source { return a.sources }

// RequiredVotes returns the vote count needed for a verdict among n
// responding sources.
func (a *Aggregator) RequiredVotes(n int) int {
	ratio, ok := voteRatios[n]
	if !ok {
		ratio = a.defaultRatio
	}
	// the epsilon keeps exact fractions from rounding up on float noise
	return int(math.Ceil(float64(n)*ratio - 1e-9))
}

type fanoutResult struct {
	index int
	sig   RawSignal
	err   error
}

// Aggregate collects opinions from every available source for one
// symbol. Sources that fail or miss the deadline are excluded from the
// vote; a straggler's fetch keeps running detached so its result still
// lands in the cache for the next cycle.
func (a *Aggregator) Aggregate(ctx context.Context, symbol string) (*AggregatedSignal, error) {
	deadline := time.NewTimer(a.timeout)
	defer deadline.Stop()

	// Detached from the wait below: cancelling the aggregation must not
	// cancel in-flight provider calls.
	fetchCtx := context.WithoutCancel(ctx)

	results := make(chan fanoutResult, len(a.sources))
	dispatched := 0
	for i, src := range a.sources {
		if !src.IsAvailable() {
			a.log.Debug().Str("source", src.Name()).Msg("skipping disabled source")
			continue
		}
		dispatched++
		go func(index int, src Source) {
			sig, err := src.GetSignal(fetchCtx, symbol)
			results <- fanoutResult{index: index, sig: sig, err: err}
		}(i, src)
	}

	collected := make([]fanoutResult, 0, dispatched)
wait:
	for i := 0; i < dispatched; i++ {
		select {
		case r := <-results:
			if r.err != nil {
				a.log.Debug().Err(r.err).Str("symbol", symbol).Msg("source excluded from aggregation")
				continue
			}
			collected = append(collected, r)
		case <-deadline.C:
			break wait
		case <-ctx.Done():
			break wait
		}
	}

	if len(collected) < a.minSources {
		return nil, &InsufficientSourcesError{Symbol: symbol, Responded: len(collected), Required: a.minSources}
	}

	// keep contributing signals in source registration order
	sort.Slice(collected, func(i, j int) bool { return collected[i].index < collected[j].index })

	agg := &AggregatedSignal{
		Symbol:       symbol,
		TotalSources: len(collected),
		Signals:      make([]RawSignal, 0, len(collected)),
		Timestamp:    time.Now(),
	}
	for _, r := range collected {
		agg.Signals = append(agg.Signals, r.sig)
		switch r.sig.Direction {
		case Buy:
			agg.BuySignals++
		case Sell:
			agg.SellSignals++
		default:
			agg.HoldSignals++
		}
	}

	agg.BuyPercentage = float64(agg.BuySignals) / float64(agg.TotalSources) * 100
	agg.RequiredVotes = a.RequiredVotes(agg.TotalSources)
	agg.ShouldBuy = agg.BuySignals >= agg.RequiredVotes
	agg.ShouldSell = agg.SellSignals >= agg.RequiredVotes

	a.log.Info().
		Str("symbol", symbol).
		Int("sources", agg.TotalSources).
		Int("buy", agg.BuySignals).
		Int("hold", agg.HoldSignals).
		Int("sell", agg.SellSignals).
		Float64("buy_pct", agg.BuyPercentage).
		Bool("should_buy", agg.ShouldBuy).
		Msg("signals aggregated")

	return agg, nil
}

// AggregateMany processes each symbol independently. A failed symbol is
// omitted from the result; it never aborts the batch.
func (a *Aggregator) AggregateMany(ctx context.Context, symbols []string) []*AggregatedSignal {
	out := make([]*AggregatedSignal, 0, len(symbols))
	for _, symbol := range symbols {
		agg, err := a.Aggregate(ctx, symbol)
		if err != nil {
			a.log.Warn().Err(err).Str("symbol", symbol).Msg("symbol skipped in batch aggregation")
			continue
		}
		out = append(out, agg)
	}
	return out
}

// FilterBuyRecommendations keeps only the aggregates with a buy verdict.
func FilterBuyRecommendations(aggs []*AggregatedSignal) []*AggregatedSignal {
	out := make([]*AggregatedSignal, 0, len(aggs))
	for _, agg := range aggs {
		if agg.ShouldBuy {
			out = append(out, agg)
		}
	}
	return out
}

// SelectBestBuyCandidate ranks buy recommendations by buy percentage,
// then absolute buy votes, then source count (more corroboration wins).
// Returns nil when the list holds no buy recommendation.
func SelectBestBuyCandidate(aggs []*AggregatedSignal) *AggregatedSignal {
	var best *AggregatedSignal
	for _, agg := range FilterBuyRecommendations(aggs) {
		if best == nil || betterBuyCandidate(agg, best) {
			best = agg
		}
	}
	return best
}

func betterBuyCandidate(a, b *AggregatedSignal) bool {
	if a.BuyPercentage != b.BuyPercentage {
		return a.BuyPercentage > b.BuyPercentage
	}
	if a.BuySignals != b.BuySignals {
		return a.BuySignals > b.BuySignals
	}
	return a.TotalSources > b.TotalSources
}
