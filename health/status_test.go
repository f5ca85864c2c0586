package health

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_StatePredicates(t *testing.T) {
	assert.True(t, NewHealthy("a", "").IsHealthy())
	assert.True(t, NewDegraded("a", "").IsDegraded())
	assert.True(t, NewUnhealthy("a", "").IsUnhealthy())

	assert.True(t, NewHealthy("a", "").Healthy)
	assert.False(t, NewDegraded("a", "").Healthy)
}

func TestStatus_WithSubStatusDoesNotShare(t *testing.T) {
	base := NewHealthy("root", "")
	base.SubStatuses = make([]Status, 0, 4)

	a := base.WithSubStatus(NewHealthy("a", ""))
	b := base.WithSubStatus(NewUnhealthy("b", ""))

	assert.Len(t, a.SubStatuses, 1)
	assert.Len(t, b.SubStatuses, 1)
	assert.Equal(t, "a", a.SubStatuses[0].Component)
	assert.Equal(t, "b", b.SubStatuses[0].Component)
	assert.Empty(t, base.SubStatuses)
}

func TestStatus_WithMetrics(t *testing.T) {
	s := NewHealthy("a", "").WithMetrics(&Metrics{PendingReplies: 3})
	if assert.NotNil(t, s.Metrics) {
		assert.Equal(t, 3, s.Metrics.PendingReplies)
	}
}

func TestFromError(t *testing.T) {
	ok := FromError("nats", nil)
	assert.True(t, ok.IsHealthy())

	bad := FromError("nats", errors.New("dial nats://10.0.0.1:4222 refused"))
	assert.True(t, bad.IsUnhealthy())
	assert.Equal(t, "dial [URL] refused", bad.Message)
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"unix path", "failed to open /etc/boundary/config.yaml", "failed to open [PATH]"},
		{"http url", "GET https://example.com/health failed", "GET [URL] failed"},
		{"nats url", "cannot connect to nats://localhost:4222", "cannot connect to [URL]"},
		{"ip address", "timeout connecting to 192.168.1.100", "timeout connecting to [IP]"},
		{"port", "failed to bind to :8080", "failed to bind to [PORT]"},
		{"credential", "auth failed token=abc123", "auth failed [REDACTED]"},
		{"plain", "queue full", "queue full"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Sanitize(tt.input))
		})
	}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name     string
		subs     []Status
		expected State
	}{
		{"empty", nil, StateHealthy},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, StateHealthy},
		{"one degraded", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, StateDegraded},
		{"unhealthy wins", []Status{NewDegraded("a", ""), NewUnhealthy("b", ""), NewDegraded("c", "")}, StateUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("system", tt.subs)
			assert.Equal(t, tt.expected, got.State)
			assert.Equal(t, "system", got.Component)
			assert.Len(t, got.SubStatuses, len(tt.subs))
		})
	}
}
