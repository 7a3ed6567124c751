/*
Package governor mediates outbound calls to the trace store.

Every call passes three policies, in this order:

  - Cache: a successful response is kept for the TTL under the key
    (endpoint, serialized request body). Writes never invalidate entries.
  - Throttle: one gate per Governor holds the earliest next dispatch time.
    Each dispatch, retries included, waits for it and pushes it forward by
    the spacing interval.
  - Retry: 429s, transport errors and every other non-2xx response are
    retried with exponential backoff until the policy gives up; the last
    error is returned. A 2xx body that is not JSON fails at once.

Time flows through an injected resilience.Clock, so a test can drive the
whole schedule without sleeping:

	gov := governor.New(governor.Options{
		BaseURL:  "https://api.smith.langchain.com/api/v1",
		CacheTTL: 30 * time.Second,
		Spacing:  200 * time.Millisecond,
		Clock:    clock,
	})
	err := gov.Post(ctx, "/runs/query", body, headers, &page)

The cache map and the gate are safe for concurrent use. Concurrent identical
misses collapse into one upstream call.
*/
package governor
