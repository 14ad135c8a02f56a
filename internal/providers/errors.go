package providers

import "fmt"

// TransientError marks a fetch failure worth skipping, not aborting: network
// timeouts, rate limits, 5xx responses, open circuit breakers. The job logs
// it and moves on; nothing is retried beyond the single rate-limit backoff.
type TransientError struct {
	Source      string
	RateLimited bool
	Err         error
}

func (e *TransientError) Error() string {
	if e.RateLimited {
		return fmt.Sprintf("%s: rate limited: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("%s: transient fetch error: %v", e.Source, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// MalformedRecordError marks a single bad row in an otherwise usable
// payload: unparseable timestamp, non-numeric value, unresolvable station.
// The row is dropped with its raw context preserved; the batch continues.
type MalformedRecordError struct {
	Source string
	Reason string
	Raw    string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("%s: malformed record (%s): %q", e.Source, e.Reason, e.Raw)
}
