// Package collector runs the indicator collection over every tenant.
package collector

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lpde-tools/ledger-indicators/internal/identity"
	"github.com/lpde-tools/ledger-indicators/internal/indicator"
	"github.com/lpde-tools/ledger-indicators/internal/metrics"
	"github.com/lpde-tools/ledger-indicators/internal/model"
	"github.com/lpde-tools/ledger-indicators/internal/store"
	"github.com/lpde-tools/ledger-indicators/pkg/odoo"
)

// MsgCannotDecrypt is the status message stored when a tenant's key cannot
// be decrypted.
const MsgCannotDecrypt = "cannot decrypt API key"

var errEmptySecret = eris.New("collector: empty API key")

// Decrypter recovers plaintext API keys.
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// Option configures a Collector.
type Option func(*Collector)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

// WithMetrics records run metrics on m.
func WithMetrics(m *metrics.Recorder) Option {
	return func(c *Collector) { c.metrics = m }
}

// WithIdentityFields sets the firm partner field names.
func WithIdentityFields(f identity.Fields) Option {
	return func(c *Collector) { c.fields = f }
}

// WithTuning sets extractor parameters.
func WithTuning(staffEmailDomain, customModelPrefix string) Option {
	return func(c *Collector) {
		c.staffEmailDomain = staffEmailDomain
		c.customModelPrefix = customModelPrefix
	}
}

// WithLocation sets the zone used for the year-to-date period.
func WithLocation(loc *time.Location) Option {
	return func(c *Collector) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// Collector orchestrates one run: firm session, then each tenant in turn.
type Collector struct {
	store     store.Store
	cipher    Decrypter
	connector Connector
	catalog   *indicator.Registry
	metrics   *metrics.Recorder
	fields    identity.Fields
	loc       *time.Location
	now       func() time.Time

	staffEmailDomain  string
	customModelPrefix string
}

// New creates a Collector.
func New(st store.Store, cipher Decrypter, connector Connector, catalog *indicator.Registry, opts ...Option) *Collector {
	c := &Collector{
		store:     st,
		cipher:    cipher,
		connector: connector,
		catalog:   catalog,
		fields:    identity.DefaultFields,
		loc:       time.Local,
		now:       time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run processes every configured tenant sequentially. The only error it
// returns is for conditions that prevent the run from starting; tenant
// failures are reported in the summary.
func (c *Collector) Run(ctx context.Context) (*RunSummary, error) {
	started := c.now()
	runTS := started.UTC().Truncate(time.Microsecond)
	log := zap.L().With(zap.Time("run_timestamp", runTS))

	firm, err := c.store.GetFirmConfig(ctx)
	if errors.Is(err, store.ErrNotFound) {
		c.metrics.ObserveRun("aborted", started, c.now())
		return nil, model.ErrNoFirmConfig
	}
	if err != nil {
		c.metrics.ObserveRun("aborted", started, c.now())
		return nil, eris.Wrap(err, "collector: load firm config")
	}

	tenants, err := c.store.ListTenants(ctx)
	if err != nil {
		c.metrics.ObserveRun("aborted", started, c.now())
		return nil, eris.Wrap(err, "collector: list tenants")
	}

	summary := &RunSummary{RunTimestamp: runTS, StartedAt: started}
	if len(tenants) == 0 {
		log.Warn("collector: no tenants configured")
		summary.FinishedAt = c.now()
		c.metrics.ObserveRun("empty", started, summary.FinishedAt)
		return summary, nil
	}

	resolver := c.firmResolver(ctx, firm)
	summary.FirmAvailable = resolver.Available()

	log.Info("collector: starting run", zap.Int("tenants", len(tenants)), zap.Bool("firm_available", summary.FirmAvailable))

	for _, t := range tenants {
		out := c.processTenant(ctx, t, runTS, resolver)
		summary.Tenants = append(summary.Tenants, out)
	}

	summary.FinishedAt = c.now()
	c.metrics.ObserveRun("completed", started, summary.FinishedAt)

	log.Info("collector: run complete",
		zap.Int("connected", summary.Connected()),
		zap.Int("failed", summary.Failed()),
		zap.Int("persisted", summary.Persisted()),
		zap.Int("persist_errors", summary.PersistErrors()),
		zap.Duration("duration", summary.FinishedAt.Sub(started)),
	)
	return summary, nil
}

// firmResolver connects to the firm's system. Any failure leaves identity
// resolution disabled for the run.
func (c *Collector) firmResolver(ctx context.Context, firm *model.FirmConfig) *identity.Resolver {
	log := zap.L().With(zap.String("firm_url", firm.Connection.URL))

	secret, err := c.cipher.Decrypt(firm.Connection.EncryptedAPIKey)
	if err == nil && secret == "" {
		err = errEmptySecret
	}
	if err != nil {
		log.Warn("collector: cannot decrypt firm API key, collaborators will be unassigned", zap.Error(err))
		return identity.NewResolver(nil, c.fields)
	}

	sess, _, err := c.connector.Connect(ctx, firm.Connection, secret)
	if err != nil {
		log.Warn("collector: firm connection failed, collaborators will be unassigned", zap.Error(err))
		return identity.NewResolver(nil, c.fields)
	}
	log.Info("collector: connected to firm system")
	return identity.NewResolver(sess, c.fields)
}

func (c *Collector) processTenant(ctx context.Context, t model.Tenant, runTS time.Time, resolver *identity.Resolver) TenantOutcome {
	log := zap.L().With(zap.String("tenant", t.Name), zap.String("url", t.Connection.URL))
	out := TenantOutcome{
		TenantID:     t.ID,
		TenantName:   t.Name,
		Collaborator: model.UnassignedCollaborator,
	}
	attempt := c.now()

	secret, err := c.cipher.Decrypt(t.Connection.EncryptedAPIKey)
	if err == nil && secret == "" {
		err = errEmptySecret
	}
	if err != nil {
		out.Status = TenantCredentialFailed
		out.Err = model.CredentialError(t.Name, err)
		out.Error = MsgCannotDecrypt
		log.Error("collector: cannot decrypt API key, skipping tenant", zap.Error(err))
		c.metrics.TenantConnection(metrics.OutcomeCredentialFailed)
		msg := MsgCannotDecrypt
		c.saveStatus(ctx, &out, attempt, false, &msg)
		return out
	}

	sess, version, err := c.connector.Connect(ctx, t.Connection, secret)
	out.Version = version
	if err != nil {
		out.Err = model.ConnectionError(t.Name, err)
		out.Error = err.Error()
		msg := err.Error()
		c.saveStatus(ctx, &out, attempt, false, &msg)

		if version == "" || version == odoo.UnknownVersion {
			out.Status = TenantUnreachable
			c.metrics.TenantConnection(metrics.OutcomeUnreachable)
			log.Error("collector: handshake failed", zap.Error(err))
			return out
		}

		out.Status = TenantAuthFailed
		c.metrics.TenantConnection(metrics.OutcomeAuthFailed)
		log.Error("collector: authentication failed, keeping version only", zap.String("version", version), zap.Error(err))
		v := indicator.Value(indicator.NameServerVersion, version)
		out.Results = []indicator.Result{v}
		c.persist(ctx, &out, runTS, []indicator.Result{v})
		return out
	}

	out.Status = TenantConnected
	c.metrics.TenantConnection(metrics.OutcomeConnected)
	log.Info("collector: connected", zap.Int64("uid", sess.UID()), zap.String("version", version))

	res := resolver.Resolve(ctx, t.Connection.URL)
	out.Collaborator = res.Collaborator
	out.IdentityReason = res.Reason

	companyID, err := indicator.ResolveCompanyID(ctx, sess, sess.UID())
	if err != nil {
		log.Debug("collector: using default company", zap.Int64("company_id", companyID), zap.Error(err))
	}

	from, to := indicator.YearToDate(runTS.In(c.loc))
	ec := &indicator.Context{
		Session:           sess,
		CompanyID:         companyID,
		From:              from,
		To:                to,
		StaffEmailDomain:  c.staffEmailDomain,
		CustomModelPrefix: c.customModelPrefix,
	}

	results := make([]indicator.Result, 0, c.catalog.Len()+1)
	results = append(results, indicator.Value(indicator.NameServerVersion, version))
	results = append(results, c.catalog.Run(ctx, ec)...)
	out.Results = results

	for _, r := range results {
		c.metrics.Extractor(r.Name, r.Status.String())
		switch r.Status {
		case indicator.StatusFailed:
			log.Warn("collector: indicator not computed", zap.String("indicator", r.Name),
				zap.Error(model.ExtractionError(r.Name, r.Err)))
		case indicator.StatusUnavailable:
			log.Debug("collector: indicator unavailable", zap.String("indicator", r.Name), zap.String("reason", r.Reason))
		}
	}

	c.saveStatus(ctx, &out, attempt, true, nil)
	c.persist(ctx, &out, runTS, results)
	return out
}

func (c *Collector) saveStatus(ctx context.Context, out *TenantOutcome, attempt time.Time, ok bool, msg *string) {
	err := c.store.UpsertConnectionStatus(ctx, model.ConnectionStatus{
		TenantID:              out.TenantID,
		LastConnectionAttempt: attempt,
		ConnectionSuccessful:  ok,
		LastErrorMessage:      msg,
	})
	if err != nil {
		zap.L().Error("collector: save connection status", zap.String("tenant", out.TenantName), zap.Error(err))
		return
	}
	out.StatusSaved = true
}

// persist writes each value independently; one failed write never blocks
// the others.
func (c *Collector) persist(ctx context.Context, out *TenantOutcome, runTS time.Time, results []indicator.Result) {
	for _, r := range results {
		if !r.Persistable() {
			continue
		}
		rec := &model.IndicatorRecord{
			TenantID:            out.TenantID,
			Name:                r.Name,
			Value:               r.Value,
			ExtractionTimestamp: runTS,
			Collaborator:        out.Collaborator,
		}
		if err := c.store.InsertIndicator(ctx, rec); err != nil {
			out.PersistErrors++
			zap.L().Error("collector: persist indicator",
				zap.String("tenant", out.TenantName),
				zap.Error(model.PersistenceError(r.Name, err)),
			)
			continue
		}
		out.Persisted++
	}
	c.metrics.Persisted(out.Persisted, out.PersistErrors)
}
