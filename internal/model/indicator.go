package model

import "time"

// Collaborator is a staff member from the firm's partner directory.
type Collaborator struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UnassignedCollaborator is stamped on indicators whose tenant could not be
// matched to a collaborator.
var UnassignedCollaborator = Collaborator{ID: "0", Name: "N/A"}

// IsUnassigned reports whether c is the sentinel pair.
func (c Collaborator) IsUnassigned() bool {
	return c == UnassignedCollaborator
}

// IndicatorRecord is one immutable indicator value extracted during a run.
type IndicatorRecord struct {
	ID                  string       `json:"id"`
	TenantID            string       `json:"tenant_id"`
	TenantName          string       `json:"tenant_name,omitempty"`
	Name                string       `json:"name"`
	Value               string       `json:"value"`
	ExtractionTimestamp time.Time    `json:"extraction_timestamp"`
	Collaborator        Collaborator `json:"collaborator"`
}

// ConnectionStatus is the single mutable health row kept per tenant.
type ConnectionStatus struct {
	TenantID              string    `json:"tenant_id"`
	TenantName            string    `json:"tenant_name,omitempty"`
	LastConnectionAttempt time.Time `json:"last_connection_attempt"`
	ConnectionSuccessful  bool      `json:"connection_successful"`
	LastErrorMessage      *string   `json:"last_error_message,omitempty"`
}

// ErrorSummary returns the error message truncated for list views.
func (s ConnectionStatus) ErrorSummary(max int) string {
	if s.LastErrorMessage == nil || *s.LastErrorMessage == "" {
		return "-"
	}
	msg := *s.LastErrorMessage
	if max > 0 && len(msg) > max {
		return msg[:max] + "..."
	}
	return msg
}
