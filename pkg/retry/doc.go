// Package retry provides backoff strategies and a retry loop for transient
// failures.
//
// Cross-context calls use CommunicationConfig, which waits attempt*base
// between attempts and only retries timeout or unreachable errors. Errors
// raised by a remote handler are returned immediately.
//
//	cfg := retry.CommunicationConfig(3, 500*time.Millisecond)
//	resp, err := retry.DoWithResult(ctx, func(ctx context.Context) (messaging.Response, error) {
//		return ep.Send(ctx, messaging.Background, msg)
//	}, cfg)
//
// HTTP and broker operations use DefaultConfig, which retries network,
// rate-limit and 5xx failures with exponential backoff and jitter.
package retry
