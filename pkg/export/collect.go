// Package export turns the cached pages of a partition into flat records and
// writes them out as CSV.
package export

import (
	"context"
	"fmt"
	"sort"

	"github.com/Sternrassler/monscrape/pkg/cache"
	"github.com/Sternrassler/monscrape/pkg/survey"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordsCollectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monscrape_export_records_total",
		Help: "Total flat records collected from the cache",
	})

	entriesCollectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monscrape_export_entries_total",
		Help: "Total cache entries decoded while collecting",
	})
)

// Collect flattens every cached page of partition. No network access is
// made.
//
// The result does not depend on the order the store enumerates entries in:
// entries are folded by name, and the records are then stable-sorted by
// survey and respondent, so the answers of one response stay in document
// order. An entry that does not decode aborts the collection.
func Collect(ctx context.Context, store cache.Store, partition string) ([]survey.Record, error) {
	byEntry := make(map[string][]survey.Record)

	err := store.Scan(ctx, partition, func(name string, data []byte) error {
		if _, seen := byEntry[name]; seen {
			return nil
		}
		page, err := survey.DecodePage(data)
		if err != nil {
			return fmt.Errorf("cache entry %s/%s: %w", partition, name, err)
		}
		byEntry[name] = survey.Flatten(partition, page)
		entriesCollectedTotal.Inc()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect %s: %w", partition, err)
	}

	names := make([]string, 0, len(byEntry))
	for name := range byEntry {
		names = append(names, name)
	}
	sort.Strings(names)

	var records []survey.Record
	for _, name := range names {
		records = append(records, byEntry[name]...)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].SurveyID != records[j].SurveyID {
			return records[i].SurveyID < records[j].SurveyID
		}
		return records[i].RespondentID < records[j].RespondentID
	})

	recordsCollectedTotal.Add(float64(len(records)))
	return records, nil
}
