package model

import (
	"errors"

	"github.com/rotisserie/eris"
)

// ErrNoFirmConfig aborts a run before any tenant is processed.
var ErrNoFirmConfig = eris.New("firm configuration not found")

// ErrorKind classifies a failure by the scope it terminates.
type ErrorKind string

const (
	// KindCredential: the tenant's secret could not be decrypted. Tenant-scoped.
	KindCredential ErrorKind = "credential"
	// KindConnection: handshake, transport or authentication failed. Tenant-scoped.
	KindConnection ErrorKind = "connection"
	// KindExtraction: one indicator's remote call failed. Indicator-scoped.
	KindExtraction ErrorKind = "extraction"
	// KindPersistence: writing one record failed. Record-scoped.
	KindPersistence ErrorKind = "persistence"
)

// PipelineError carries the kind of a failure together with its subject.
type PipelineError struct {
	Kind    ErrorKind
	Subject string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err == nil {
		return string(e.Kind) + ": " + e.Subject
	}
	return e.Err.Error()
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// CredentialError wraps a decryption failure for a tenant.
func CredentialError(tenant string, err error) *PipelineError {
	return &PipelineError{Kind: KindCredential, Subject: tenant, Err: err}
}

// ConnectionError wraps a connection failure for a tenant.
func ConnectionError(tenant string, err error) *PipelineError {
	return &PipelineError{Kind: KindConnection, Subject: tenant, Err: err}
}

// ExtractionError wraps a single indicator failure.
func ExtractionError(indicator string, err error) *PipelineError {
	return &PipelineError{Kind: KindExtraction, Subject: indicator, Err: err}
}

// PersistenceError wraps a failed record write.
func PersistenceError(record string, err error) *PipelineError {
	return &PipelineError{Kind: KindPersistence, Subject: record, Err: err}
}

// KindOf returns the kind of the first PipelineError in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}
