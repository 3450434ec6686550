// Package indicator defines the catalog of financial indicators extracted
// from a tenant's remote system.
package indicator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/lpde-tools/ledger-indicators/pkg/odoo"
)

// Indicator names. Names are stored verbatim and matched case-insensitively
// by the dashboard categories.
const (
	NameServerVersion         = "server version"
	NameAnnualClosingDate     = "annual closing date"
	NameOperationsToQualify   = "operations to qualify"
	NamePurchasesToProcess    = "purchases to process"
	NameOrphanPayments        = "orphan payments"
	NameUnreconciledTransfers = "unreconciled internal transfers"
	NameEncashmentPivot       = "encashment pivot"
	NameLastFiscalLockDate    = "last fiscal lock date"
	NameTransferBalance       = "internal transfer balance"
	NameVATPeriodicity        = "vat periodicity"
	NameCustomModels          = "custom models (indicative)"
	NameAutomatedActions      = "automated actions"
	NameActiveUsers           = "active users"
	NameStaffDomainUsers      = "staff domain users"
	NameActiveApplications    = "active applications"
	NameActivationDate        = "database activation date"
	NameProvisionalResult     = "provisional result ytd"
)

// NormalizeName is the form used to compare indicator names.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Status distinguishes a computed value from legitimately missing data and
// from a failed call.
type Status int

const (
	StatusValue Status = iota
	StatusUnavailable
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusValue:
		return "value"
	case StatusUnavailable:
		return "unavailable"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the outcome of one extractor.
type Result struct {
	Name   string
	Status Status
	Value  string
	Reason string
	Err    error
}

// Value builds a computed result.
func Value(name, v string) Result {
	return Result{Name: name, Status: StatusValue, Value: v}
}

// Unavailable builds a result for data the tenant does not have.
func Unavailable(name, reason string) Result {
	return Result{Name: name, Status: StatusUnavailable, Reason: reason}
}

// Failed builds a result for a call that errored.
func Failed(name string, err error) Result {
	return Result{Name: name, Status: StatusFailed, Err: err}
}

// Persistable reports whether the result carries a value to store.
func (r Result) Persistable() bool {
	return r.Status == StatusValue
}

// Context is the per-tenant input every extractor receives.
type Context struct {
	Session   odoo.Invoker
	CompanyID int64
	// From and To bound period indicators, inclusive.
	From time.Time
	To   time.Time

	StaffEmailDomain  string
	CustomModelPrefix string
}

// Extractor computes one named indicator.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, ec *Context) Result
}

// ExtractFunc computes a value. ok=false with a nil error means the tenant
// has no data for the indicator.
type ExtractFunc func(ctx context.Context, ec *Context) (value string, ok bool, err error)

type funcExtractor struct {
	name string
	fn   ExtractFunc
}

// NewExtractor adapts fn into an Extractor named name.
func NewExtractor(name string, fn ExtractFunc) Extractor {
	return &funcExtractor{name: name, fn: fn}
}

func (e *funcExtractor) Name() string {
	return e.name
}

// Extract runs fn, turning errors and panics from unexpected response shapes
// into a Failed result.
func (e *funcExtractor) Extract(ctx context.Context, ec *Context) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Failed(e.name, eris.Errorf("indicator: %s panicked: %v", e.name, r))
		}
	}()

	v, ok, err := e.fn(ctx, ec)
	if err != nil {
		return Failed(e.name, eris.Wrapf(err, "indicator: %s", e.name))
	}
	if !ok {
		return Unavailable(e.name, "no data")
	}
	return Value(e.name, v)
}

// Registry is an ordered set of uniquely named extractors.
type Registry struct {
	extractors []Extractor
	names      map[string]struct{}
}

// NewRegistry builds a registry, rejecting duplicate names.
func NewRegistry(extractors ...Extractor) (*Registry, error) {
	r := &Registry{names: make(map[string]struct{}, len(extractors))}
	for _, e := range extractors {
		if err := r.Register(e); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends e to the registry.
func (r *Registry) Register(e Extractor) error {
	key := NormalizeName(e.Name())
	if key == "" {
		return eris.New("indicator: extractor has empty name")
	}
	if _, dup := r.names[key]; dup {
		return eris.Errorf("indicator: duplicate extractor %q", e.Name())
	}
	r.names[key] = struct{}{}
	r.extractors = append(r.extractors, e)
	return nil
}

// Names returns extractor names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.extractors))
	for i, e := range r.extractors {
		out[i] = e.Name()
	}
	return out
}

// Len returns the number of extractors.
func (r *Registry) Len() int {
	return len(r.extractors)
}

// Run executes every extractor sequentially in registration order. One
// extractor's failure never prevents the next from running.
func (r *Registry) Run(ctx context.Context, ec *Context) []Result {
	results := make([]Result, 0, len(r.extractors))
	for _, e := range r.extractors {
		results = append(results, e.Extract(ctx, ec))
	}
	return results
}
