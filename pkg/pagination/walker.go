package pagination

import (
	"context"
	"fmt"
	"iter"

	"github.com/Sternrassler/monscrape/pkg/survey"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for pagination walks.
var (
	pagesYieldedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monscrape_walk_pages_total",
		Help: "Total pages yielded by pagination walks",
	})

	lastPageRefetchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monscrape_walk_last_page_refetches_total",
		Help: "Total forced live fetches of the last page after the total changed",
	})

	walksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monscrape_walks_total",
		Help: "Total pagination walks by result",
	}, []string{"result"}) // "complete", "error", "stopped"
)

// PageFetcher fetches one page, from the cache when useCache is set and the
// page is cached, live otherwise.
type PageFetcher interface {
	Fetch(ctx context.Context, url string, useCache bool) (*survey.Page, error)
}

// Walker walks linked pages.
type Walker struct {
	fetcher PageFetcher
	logger  zerolog.Logger
}

// NewWalker creates a new walker.
func NewWalker(fetcher PageFetcher, logger zerolog.Logger) *Walker {
	return &Walker{
		fetcher: fetcher,
		logger:  logger.With().Str("component", "walker").Logger(),
	}
}

// Walk returns the pages reachable from startURL in link order. Fetching is
// lazy: each page is requested when the consumer asks for it, and nothing is
// fetched after the consumer stops. The first failure is yielded as
// (nil, err) and ends the sequence.
func (w *Walker) Walk(ctx context.Context, startURL string) iter.Seq2[*survey.Page, error] {
	return func(yield func(*survey.Page, error) bool) {
		result := "stopped"
		defer func() { walksTotal.WithLabelValues(result).Inc() }()

		fail := func(err error) {
			result = "error"
			w.logger.Error().Err(err).Str("url", startURL).Msg("Walk failed")
			yield(nil, err)
		}

		cached, err := w.fetcher.Fetch(ctx, startURL, true)
		if err != nil {
			fail(fmt.Errorf("fetch first page: %w", err))
			return
		}
		live, err := w.fetcher.Fetch(ctx, startURL, false)
		if err != nil {
			fail(fmt.Errorf("refresh first page: %w", err))
			return
		}

		refetchLast := cached.Total != live.Total
		if refetchLast {
			w.logger.Info().
				Int("cached_total", cached.Total).
				Int("live_total", live.Total).
				Msg("Total changed, last page will be refetched")
		}

		first := cached
		if refetchLast && cached.Next() == "" {
			// The cached chain ends on the first page, so the first page is
			// the tail and the live copy replaces it.
			first = live
			refetchLast = false
			lastPageRefetchesTotal.Inc()
		}

		pages := 1
		pagesYieldedTotal.Inc()
		if !yield(first, nil) {
			return
		}

		current := first
		next := first.Next()

		for next != "" {
			if err := ctx.Err(); err != nil {
				fail(err)
				return
			}

			useCache := true
			if refetchLast && next == current.Last() {
				useCache = false
				refetchLast = false
				lastPageRefetchesTotal.Inc()
				w.logger.Debug().Str("url", next).Msg("Refetching last page")
			}

			page, err := w.fetcher.Fetch(ctx, next, useCache)
			if err != nil {
				fail(fmt.Errorf("fetch page %d: %w", pages+1, err))
				return
			}

			pages++
			pagesYieldedTotal.Inc()
			if !yield(page, nil) {
				return
			}

			current = page
			next = page.Next()
		}

		result = "complete"
		w.logger.Info().
			Str("url", startURL).
			Int("pages", pages).
			Int("total", live.Total).
			Msg("Walk complete")
	}
}

// Drain consumes a walk and returns the number of pages it yielded.
func Drain(seq iter.Seq2[*survey.Page, error]) (int, error) {
	count := 0
	for _, err := range seq {
		if err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
