package pagination

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Sternrassler/monscrape/pkg/survey"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

type fetchCall struct {
	URL      string
	UseCache bool
}

// fakeFetcher serves pages from a cache map and a live map. Live fetches are
// written through to the cache, like the real client.
type fakeFetcher struct {
	cached map[string]*survey.Page
	live   map[string]*survey.Page
	fail   map[string]error
	calls  []fetchCall
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		cached: make(map[string]*survey.Page),
		live:   make(map[string]*survey.Page),
		fail:   make(map[string]error),
	}
}

func (f *fakeFetcher) Fetch(_ context.Context, url string, useCache bool) (*survey.Page, error) {
	f.calls = append(f.calls, fetchCall{URL: url, UseCache: useCache})

	if err, ok := f.fail[url]; ok {
		return nil, err
	}
	if useCache {
		if page, ok := f.cached[url]; ok {
			return page, nil
		}
	}
	page, ok := f.live[url]
	if !ok {
		return nil, fmt.Errorf("no live page for %s", url)
	}
	f.cached[url] = page
	return page, nil
}

func (f *fakeFetcher) liveCalls() []string {
	var urls []string
	for _, c := range f.calls {
		if !c.UseCache {
			urls = append(urls, c.URL)
		}
	}
	return urls
}

const (
	page1 = "/v3/collectors/ABC123/responses/bulk"
	page2 = "/v3/collectors/ABC123/responses/bulk?page=2"
	page3 = "/v3/collectors/ABC123/responses/bulk?page=3"
	page4 = "/v3/collectors/ABC123/responses/bulk?page=4"
)

// chain builds linked pages with the given total. The last URL is the final
// one of urls.
func chain(total int, tag string, urls ...string) map[string]*survey.Page {
	pages := make(map[string]*survey.Page, len(urls))
	last := urls[len(urls)-1]
	for i, u := range urls {
		links := map[string]string{survey.LinkSelf: u, survey.LinkLast: last}
		if i+1 < len(urls) {
			links[survey.LinkNext] = urls[i+1]
		}
		pages[u] = &survey.Page{
			Data:  []survey.Response{{ID: fmt.Sprintf("%s-%d", tag, i+1)}},
			Links: links,
			Total: total,
			Page:  i + 1,
		}
	}
	return pages
}

func collect(t *testing.T, w *Walker, start string) []*survey.Page {
	t.Helper()
	var pages []*survey.Page
	for page, err := range w.Walk(context.Background(), start) {
		if err != nil {
			t.Fatalf("Walk() error = %v", err)
		}
		pages = append(pages, page)
	}
	return pages
}

func firstIDs(pages []*survey.Page) []string {
	ids := make([]string, 0, len(pages))
	for _, p := range pages {
		ids = append(ids, p.Data[0].ID)
	}
	return ids
}

func TestWalk_TotalChangedRefetchesLastPage(t *testing.T) {
	f := newFakeFetcher()
	f.cached = chain(50, "cached", page1, page2, page3)
	f.live = chain(52, "live", page1, page2, page3)

	pages := collect(t, NewWalker(f, zerolog.Nop()), page1)

	wantIDs := []string{"cached-1", "cached-2", "live-3"}
	if diff := cmp.Diff(wantIDs, firstIDs(pages)); diff != "" {
		t.Errorf("yielded pages mismatch (-want +got):\n%s", diff)
	}

	wantCalls := []fetchCall{
		{URL: page1, UseCache: true},
		{URL: page1, UseCache: false},
		{URL: page2, UseCache: true},
		{URL: page3, UseCache: false},
	}
	if diff := cmp.Diff(wantCalls, f.calls); diff != "" {
		t.Errorf("fetch calls mismatch (-want +got):\n%s", diff)
	}

	if f.cached[page3].Data[0].ID != "live-3" {
		t.Error("live last page did not overwrite the cached one")
	}
}

func TestWalk_EqualTotalsServeFromCache(t *testing.T) {
	f := newFakeFetcher()
	f.cached = chain(50, "cached", page1, page2, page3)
	f.live = chain(50, "live", page1, page2, page3)

	pages := collect(t, NewWalker(f, zerolog.Nop()), page1)

	if len(pages) != 3 {
		t.Fatalf("len(pages) = %d, want 3", len(pages))
	}
	if diff := cmp.Diff([]string{page1}, f.liveCalls()); diff != "" {
		t.Errorf("live fetches mismatch (-want +got):\n%s", diff)
	}
}

func TestWalk_GrowthFollowsLiveLastPage(t *testing.T) {
	f := newFakeFetcher()
	f.cached = chain(50, "cached", page1, page2, page3)
	f.live = chain(55, "live", page1, page2, page3, page4)

	pages := collect(t, NewWalker(f, zerolog.Nop()), page1)

	wantIDs := []string{"cached-1", "cached-2", "live-3", "live-4"}
	if diff := cmp.Diff(wantIDs, firstIDs(pages)); diff != "" {
		t.Errorf("yielded pages mismatch (-want +got):\n%s", diff)
	}

	// page 4 was a plain cache miss, so it was requested through the cache.
	wantLive := []string{page1, page3}
	if diff := cmp.Diff(wantLive, f.liveCalls()); diff != "" {
		t.Errorf("live fetches mismatch (-want +got):\n%s", diff)
	}
}

func TestWalk_SinglePageGrowth(t *testing.T) {
	f := newFakeFetcher()
	f.cached = chain(1, "cached", page1)
	f.live = chain(4, "live", page1, page2)

	pages := collect(t, NewWalker(f, zerolog.Nop()), page1)

	wantIDs := []string{"live-1", "live-2"}
	if diff := cmp.Diff(wantIDs, firstIDs(pages)); diff != "" {
		t.Errorf("yielded pages mismatch (-want +got):\n%s", diff)
	}
}

func TestWalk_EmptyCache(t *testing.T) {
	f := newFakeFetcher()
	f.live = chain(6, "live", page1, page2, page3)

	pages := collect(t, NewWalker(f, zerolog.Nop()), page1)

	if diff := cmp.Diff([]string{"live-1", "live-2", "live-3"}, firstIDs(pages)); diff != "" {
		t.Errorf("yielded pages mismatch (-want +got):\n%s", diff)
	}
	// The cached first page misses and goes live, then every later page misses.
	if got := len(f.calls); got != 4 {
		t.Errorf("fetch calls = %d, want 4", got)
	}
}

func TestWalk_NoDuplicates(t *testing.T) {
	f := newFakeFetcher()
	f.cached = chain(10, "cached", page1, page2, page3, page4)
	f.live = chain(12, "live", page1, page2, page3, page4)

	seen := make(map[string]bool)
	for _, p := range collect(t, NewWalker(f, zerolog.Nop()), page1) {
		self := p.Links[survey.LinkSelf]
		if seen[self] {
			t.Errorf("page %s yielded twice", self)
		}
		seen[self] = true
	}
	if len(seen) != 4 {
		t.Errorf("yielded %d distinct pages, want 4", len(seen))
	}
}

func TestWalk_ErrorEndsSequence(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name      string
		failURL   string
		wantPages int
	}{
		{"first page", page1, 0},
		{"middle page", page2, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeFetcher()
			f.cached = chain(3, "cached", page1, page2, page3)
			f.live = chain(3, "live", page1, page2, page3)
			f.fail[tt.failURL] = errBoom

			pages := 0
			errs := 0
			for page, err := range NewWalker(f, zerolog.Nop()).Walk(context.Background(), page1) {
				if err != nil {
					errs++
					if !errors.Is(err, errBoom) {
						t.Errorf("error = %v, want %v", err, errBoom)
					}
					if page != nil {
						t.Error("page must be nil alongside an error")
					}
					continue
				}
				pages++
			}

			if errs != 1 {
				t.Errorf("errors yielded = %d, want 1", errs)
			}
			if pages != tt.wantPages {
				t.Errorf("pages yielded = %d, want %d", pages, tt.wantPages)
			}
		})
	}
}

func TestWalk_EarlyStopFetchesNothingMore(t *testing.T) {
	f := newFakeFetcher()
	f.cached = chain(3, "cached", page1, page2, page3)
	f.live = chain(3, "live", page1, page2, page3)

	for range NewWalker(f, zerolog.Nop()).Walk(context.Background(), page1) {
		break
	}

	if got := len(f.calls); got != 2 {
		t.Errorf("fetch calls = %d, want 2", got)
	}
}

func TestWalk_Lazy(t *testing.T) {
	f := newFakeFetcher()
	f.live = chain(3, "live", page1, page2, page3)

	_ = NewWalker(f, zerolog.Nop()).Walk(context.Background(), page1)

	if len(f.calls) != 0 {
		t.Errorf("fetch calls before iteration = %d, want 0", len(f.calls))
	}
}

func TestDrain(t *testing.T) {
	f := newFakeFetcher()
	f.live = chain(3, "live", page1, page2, page3)

	n, err := Drain(NewWalker(f, zerolog.Nop()).Walk(context.Background(), page1))
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Drain() = %d, want 3", n)
	}

	f.fail[page3] = errors.New("boom")
	n, err = Drain(NewWalker(f, zerolog.Nop()).Walk(context.Background(), page1))
	if err == nil {
		t.Fatal("Drain() expected error")
	}
	if n != 2 {
		t.Errorf("Drain() = %d, want 2 before the error", n)
	}
}
