package testutil

import (
	"testing"
	"time"

	"github.com/c360/boundary/transport"
)

// WaitForFrame waits up to timeout for the next frame on sub
func WaitForFrame(t testing.TB, sub transport.Subscription, timeout time.Duration) transport.Frame {
	t.Helper()
	select {
	case f := <-sub.Frames():
		return f
	case <-time.After(timeout):
		t.Fatalf("timeout waiting for frame on %s", sub.Subject())
		return transport.Frame{}
	}
}

// WaitForData skips frames on sub until one carries data
func WaitForData(t testing.TB, sub transport.Subscription, data []byte, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case f := <-sub.Frames():
			if string(f.Data) == string(data) {
				return
			}
		case <-deadline:
			t.Fatalf("%q never arrived on %s", data, sub.Subject())
		}
	}
}

// AssertNoFrames fails if anything arrives on sub within d
func AssertNoFrames(t testing.TB, sub transport.Subscription, d time.Duration) {
	t.Helper()
	select {
	case f := <-sub.Frames():
		t.Fatalf("unexpected frame on %s: %s", sub.Subject(), f.Data)
	case <-time.After(d):
	}
}
