package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lpde-tools/ledger-indicators/internal/collector"
	"github.com/lpde-tools/ledger-indicators/internal/config"
	"github.com/lpde-tools/ledger-indicators/internal/model"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{CheckIntervalSecs: 1}
	checker := NewChecker(NewCollector(&fakeSource{}), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	checker := NewChecker(NewCollector(&fakeSource{}), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

func TestChecker_Check(t *testing.T) {
	src := &fakeSource{statuses: []model.ConnectionStatus{status("acme", false)}}
	cfg := config.MonitoringConfig{FailureRateThreshold: 0.5, StaleAfterHours: 24}
	checker := NewChecker(NewCollector(src), NewAlerter(cfg), cfg)

	alerts := checker.Check(context.Background())
	require.Len(t, alerts, 2)
	assert.Equal(t, AlertTenantFailureRate, alerts[0].Type)
	assert.Equal(t, AlertStaleRun, alerts[1].Type)
}

type stubRunner struct {
	summary *collector.RunSummary
	err     error
}

func (s stubRunner) Run(context.Context) (*collector.RunSummary, error) {
	return s.summary, s.err
}

func TestWithRunAlerts(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL, PersistErrorsThreshold: 1})
	summary := &collector.RunSummary{Tenants: []collector.TenantOutcome{{PersistErrors: 1}}}

	got, err := WithRunAlerts(stubRunner{summary: summary}, a).Run(context.Background())
	require.NoError(t, err)
	assert.Same(t, summary, got)
	assert.Equal(t, int32(1), hits.Load())

	_, err = WithRunAlerts(stubRunner{err: collector.ErrRunInProgress}, a).Run(context.Background())
	assert.ErrorIs(t, err, collector.ErrRunInProgress)
	assert.Equal(t, int32(1), hits.Load())
}
