// Package natsclient wraps a nats.go connection for the boundary daemon.
//
// Client adds three things on top of *nats.Conn: a connection state machine
// (disconnected, connecting, connected, reconnecting, circuit open), a
// circuit breaker that stops hammering an unreachable server, and optional
// periodic health checks based on RTT.
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithName("boundaryd"),
//	    natsclient.WithSlog(logger),
//	    natsclient.WithMetrics(registry),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.ConnectWithRetry(ctx, retry.DefaultConfig()); err != nil {
//	    return err
//	}
//	defer client.Close(context.Background())
//
// After the configured number of consecutive failures (default 5) the
// circuit opens and Connect fails fast with ErrCircuitOpen until the backoff
// elapses. The backoff doubles on every reopening, capped by WithMaxBackoff.
// ConnectWithRetry retries transient failures with pkg/retry and half-opens
// the circuit between attempts.
//
// Subscribe, Publish and PublishMsg operate on the live connection and
// return ErrNotConnected while there is none. Subscriptions created through
// the client are released on Close, which drains the connection bounded by
// the drain timeout or the context deadline, whichever is shorter.
//
// TestClient (test_client.go) starts a throwaway NATS server in a container
// with testcontainers-go for integration tests.
package natsclient
