// Package pagination assembles a complete collection from a cursor-paginated
// endpoint.
//
// Each page names the URL of the next one; the Collector follows those links
// until a page has none and concatenates the items in server order.
//
// Example usage:
//
//	collector := pagination.NewCollector(httpClient, pagination.DefaultConfig())
//	result := collector.FetchAll(ctx, cache.Filters{Archived: false})
//	switch result.Status {
//	case pagination.Complete:
//		// every page was fetched
//	case pagination.Partial:
//		// result.Items holds the pages before result.Err
//	case pagination.Failed:
//		// nothing was fetched
//	}
//
// The collector:
//   - Retries a failing page a bounded number of times with exponential backoff
//   - Stops at the first page that still fails and keeps what it has
//   - Tags the outcome Complete, Partial or Failed so callers can decide
//     whether to trust a partial collection
//   - Detects cursor loops and caps the number of pages
//   - Optionally paces requests with a token bucket
package pagination
