// Package pagination walks the linked pages of a bulk responses result set,
// serving pages from the cache where possible.
//
// A walk starts by fetching the first page twice: once through the cache and
// once live. The cached copy is what the walk yields; the live copy only tells
// whether the total number of responses changed since the cache was filled.
// When it did, the page the cached chain names as last is fetched live when
// the walk reaches it, so responses appended since the previous run show up.
// When the live last page links further, the new pages are not in the cache
// yet and are fetched live as cache misses.
//
// The first page is normally yielded from the cache even when the live copy
// differs. The exception is a cached chain that ends on the first page: that
// page is then the tail, so the walk yields the live first page in its place
// and follows its next link. Without this, a result set that grew past one
// page would never reach page two.
//
// Example usage:
//
//	walker := pagination.NewWalker(apiClient, logger)
//	for page, err := range walker.Walk(ctx, client.BulkURL("ABC123")) {
//		if err != nil {
//			return err
//		}
//		process(page)
//	}
//
// Only the tail of the chain is refreshed. A response edited or deleted on a
// page before the last one is not detected; invalidate the partition to
// rebuild it.
package pagination
