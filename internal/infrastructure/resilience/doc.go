/*
Package resilience provides the retry policy and clock used for outbound calls.

# Overview

Retries are expressed as a Policy value instead of ambient sleeps, and every
delay goes through a Clock so tests can run backoff schedules without waiting.

# Features

- Exponential backoff (initial * 2^attempt) capped at a maximum
- Retry-After honored for 429 and 503 responses
- Permanent errors stop the loop at once
- Context cancellation aborts a pending backoff sleep

# Usage

	policy := resilience.DefaultPolicy()
	err := policy.Execute(ctx, resilience.SystemClock{}, func(attempt int) (*http.Response, error) {
		return client.Do(req)
	})

# Schedule

With the default policy a call is dispatched at most four times:

	attempt 0 --1s--> attempt 1 --2s--> attempt 2 --4s--> attempt 3 --> ExhaustedError

The sum of the delays (about 7s) is the implicit latency ceiling; there is no
separate wall-clock timeout.
*/
package resilience
