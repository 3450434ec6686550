package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lpde-tools/ledger-indicators/internal/collector"
	"github.com/lpde-tools/ledger-indicators/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertTenantFailureRate AlertType = "tenant_failure_rate"
	AlertStaleRun          AlertType = "stale_run"
	AlertPersistErrors     AlertType = "persist_errors"
	AlertRunFailed         AlertType = "run_failed"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates health snapshots and run summaries against configured
// thresholds and sends alerts via webhook when they are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	now    func() time.Time
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// Evaluate checks a health snapshot and returns any alerts.
func (a *Alerter) Evaluate(snap *HealthSnapshot) []Alert {
	var alerts []Alert
	now := a.now().UTC()

	// Share of tenants whose last connection attempt failed.
	if a.cfg.FailureRateThreshold > 0 && snap.Tenants > 0 && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertTenantFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Tenant connection failure rate %.1f%% exceeds threshold %.1f%% (%d of %d failing: %s)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100,
				snap.Failed, snap.Tenants, strings.Join(snap.FailingTenants, ", "),
			),
			Details: map[string]any{
				"fail_rate": snap.FailRate,
				"threshold": a.cfg.FailureRateThreshold,
				"failed":    snap.Failed,
				"tenants":   snap.Tenants,
			},
			Timestamp: now,
		})
	}

	// No run recorded within the staleness window.
	if a.cfg.StaleAfterHours > 0 && snap.Tenants > 0 {
		window := time.Duration(a.cfg.StaleAfterHours) * time.Hour
		if !snap.HasRun || snap.CollectedAt.Sub(snap.LastRun) > window {
			msg := fmt.Sprintf("No indicator run recorded in the last %dh", a.cfg.StaleAfterHours)
			details := map[string]any{"stale_after_hours": a.cfg.StaleAfterHours}
			if snap.HasRun {
				details["last_run"] = snap.LastRun
				msg += fmt.Sprintf(" (last run %s)", snap.LastRun.Format(time.RFC3339))
			}
			alerts = append(alerts, Alert{
				Type:      AlertStaleRun,
				Severity:  "medium",
				Message:   msg,
				Details:   details,
				Timestamp: now,
			})
		}
	}

	return alerts
}

// EvaluateRun checks the outcome of a single run and returns any alerts.
func (a *Alerter) EvaluateRun(summary *collector.RunSummary, runErr error) []Alert {
	now := a.now().UTC()
	if runErr != nil {
		return []Alert{{
			Type:      AlertRunFailed,
			Severity:  "high",
			Message:   fmt.Sprintf("Indicator run aborted: %v", runErr),
			Timestamp: now,
		}}
	}
	if summary == nil {
		return nil
	}

	var alerts []Alert
	persistErrs := summary.PersistErrors()
	if a.cfg.PersistErrorsThreshold > 0 && persistErrs >= a.cfg.PersistErrorsThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertPersistErrors,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d indicator record(s) failed to persist in run %s",
				persistErrs, summary.RunTimestamp.Format(time.RFC3339),
			),
			Details: map[string]any{
				"persist_errors": persistErrs,
				"persisted":      summary.Persisted(),
				"threshold":      a.cfg.PersistErrorsThreshold,
			},
			Timestamp: now,
		})
	}
	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
