package collector

import (
	"time"

	"github.com/lpde-tools/ledger-indicators/internal/identity"
	"github.com/lpde-tools/ledger-indicators/internal/indicator"
	"github.com/lpde-tools/ledger-indicators/internal/model"
)

// TenantStatus is the terminal state a tenant reached during a run.
type TenantStatus string

const (
	TenantConnected        TenantStatus = "connected"
	TenantAuthFailed       TenantStatus = "auth_failed"
	TenantUnreachable      TenantStatus = "unreachable"
	TenantCredentialFailed TenantStatus = "credential_failed"
)

// TenantOutcome records what happened to one tenant.
type TenantOutcome struct {
	TenantID       string             `json:"tenant_id"`
	TenantName     string             `json:"tenant_name"`
	Status         TenantStatus       `json:"status"`
	Version        string             `json:"version,omitempty"`
	Collaborator   model.Collaborator `json:"collaborator"`
	IdentityReason identity.Reason    `json:"identity_reason,omitempty"`
	Persisted      int                `json:"persisted"`
	PersistErrors  int                `json:"persist_errors"`
	StatusSaved    bool               `json:"status_saved"`
	Error          string             `json:"error,omitempty"`

	Results []indicator.Result `json:"-"`
	Err     error              `json:"-"`
}

// RunSummary aggregates a run for the trigger surface.
type RunSummary struct {
	RunTimestamp  time.Time       `json:"run_timestamp"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    time.Time       `json:"finished_at"`
	FirmAvailable bool            `json:"firm_available"`
	Tenants       []TenantOutcome `json:"tenants"`
}

// Connected returns the number of tenants that authenticated.
func (s *RunSummary) Connected() int {
	n := 0
	for _, t := range s.Tenants {
		if t.Status == TenantConnected {
			n++
		}
	}
	return n
}

// Failed returns the number of tenants that did not authenticate.
func (s *RunSummary) Failed() int {
	return len(s.Tenants) - s.Connected()
}

// Persisted returns the number of indicator rows written.
func (s *RunSummary) Persisted() int {
	n := 0
	for _, t := range s.Tenants {
		n += t.Persisted
	}
	return n
}

// PersistErrors returns the number of indicator rows that failed to write.
func (s *RunSummary) PersistErrors() int {
	n := 0
	for _, t := range s.Tenants {
		n += t.PersistErrors
	}
	return n
}

// Outcome returns the tenant outcome named name.
func (s *RunSummary) Outcome(name string) (TenantOutcome, bool) {
	for _, t := range s.Tenants {
		if t.TenantName == name {
			return t, true
		}
	}
	return TenantOutcome{}, false
}
