// Package retry provides exponential backoff retry logic for transient failures.
//
// Receivers and publishers use it while binding listeners and connecting to
// brokers or databases during startup:
//
//	err := retry.Do(ctx, retry.Connect(), func(ctx context.Context) error {
//	    return client.Connect(ctx)
//	})
//
// The loop stops early when fn returns an error wrapped with NonRetryable or an
// error classified invalid or fatal by the errors package.
//
// # Presets
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay
//   - Connect(): 5 attempts, 250ms-4s delay (broker and database dials)
//   - Quick(): 10 attempts, 50ms-1s delay (local binds)
package retry
