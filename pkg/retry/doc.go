// Package retry provides exponential backoff for operations that may fail
// transiently, such as connecting the boundary's transport at startup.
//
//	err := retry.Do(ctx, retry.Quick(), func() error {
//	    return client.Connect(ctx)
//	})
//
// Config.Retryable lets the caller stop early on errors that will never
// succeed; the errors package supplies IsTransient for this:
//
//	cfg := retry.DefaultConfig()
//	cfg.Retryable = errors.IsTransient
package retry
