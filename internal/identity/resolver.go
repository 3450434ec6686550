// Package identity maps tenants to the firm collaborator assigned to them.
package identity

import (
	"context"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/lpde-tools/ledger-indicators/internal/model"
	"github.com/lpde-tools/ledger-indicators/pkg/odoo"
)

// Reason explains how a Resolution was reached.
type Reason string

const (
	ReasonResolved        Reason = "resolved"
	ReasonFirmUnavailable Reason = "firm_unavailable"
	ReasonPartnerNotFound Reason = "partner_not_found"
	ReasonFieldEmpty      Reason = "field_empty"
	ReasonLookupFailed    Reason = "lookup_failed"
)

// Resolution is the collaborator assigned to a tenant. Every reason other
// than ReasonResolved carries model.UnassignedCollaborator.
type Resolution struct {
	Collaborator model.Collaborator
	Reason       Reason
	Err          error
}

// Fields names the custom partner fields on the firm side.
type Fields struct {
	PartnerLink  string
	Collaborator string
}

// DefaultFields are the field names used by the firm's system.
var DefaultFields = Fields{PartnerLink: "x_odoo_database", Collaborator: "x_collaborateur_1"}

// Resolver looks tenants up in the firm's partner directory. A nil firm
// session is allowed and resolves everything to the sentinel.
type Resolver struct {
	firm   odoo.Invoker
	fields Fields
}

// NewResolver creates a resolver. Empty fields fall back to DefaultFields.
func NewResolver(firm odoo.Invoker, fields Fields) *Resolver {
	if fields.PartnerLink == "" {
		fields.PartnerLink = DefaultFields.PartnerLink
	}
	if fields.Collaborator == "" {
		fields.Collaborator = DefaultFields.Collaborator
	}
	return &Resolver{firm: firm, fields: fields}
}

// Available reports whether a firm session is configured.
func (r *Resolver) Available() bool {
	return r != nil && r.firm != nil
}

// Resolve finds the collaborator linked to the partner whose link field equals
// tenantURL. It never fails; problems are reported through the reason.
func (r *Resolver) Resolve(ctx context.Context, tenantURL string) Resolution {
	if !r.Available() {
		return unassigned(ReasonFirmUnavailable, nil)
	}

	ids, err := odoo.Search(ctx, r.firm, "res.partner",
		odoo.Where(odoo.Cond(r.fields.PartnerLink, "=", tenantURL)),
		map[string]any{"limit": 1})
	if err != nil {
		return unassigned(ReasonLookupFailed, eris.Wrap(err, "identity: search partner"))
	}
	if len(ids) == 0 {
		return unassigned(ReasonPartnerNotFound, nil)
	}

	res, err := odoo.Read(ctx, r.firm, "res.partner", ids[:1], []string{r.fields.Collaborator})
	if err != nil {
		return unassigned(ReasonLookupFailed, eris.Wrap(err, "identity: read partner"))
	}

	c, ok := parseMany2One(res.Get("0." + gjson.Escape(r.fields.Collaborator)))
	if !ok {
		return unassigned(ReasonFieldEmpty, nil)
	}
	return Resolution{Collaborator: c, Reason: ReasonResolved}
}

// ListCollaborators returns the firm's internal partners ordered by name.
func (r *Resolver) ListCollaborators(ctx context.Context) ([]model.Collaborator, error) {
	if !r.Available() {
		return nil, eris.New("identity: firm session not available")
	}
	res, err := odoo.SearchRead(ctx, r.firm, "res.partner",
		odoo.Where(odoo.Cond("partner_share", "=", false)),
		map[string]any{"fields": []string{"name"}, "order": "name", "limit": 200})
	if err != nil {
		return nil, eris.Wrap(err, "identity: list collaborators")
	}
	recs, err := res.Records()
	if err != nil {
		return nil, eris.Wrap(err, "identity: list collaborators")
	}

	out := make([]model.Collaborator, 0, len(recs))
	for _, rec := range recs {
		id := rec.Get("id")
		if id.Type != gjson.Number {
			continue
		}
		out = append(out, model.Collaborator{ID: strconv.FormatInt(id.Int(), 10), Name: rec.Get("name").String()})
	}
	return out, nil
}

// parseMany2One accepts the [id, display_name] pair Odoo returns for
// relation fields.
func parseMany2One(v gjson.Result) (model.Collaborator, bool) {
	if !v.IsArray() {
		return model.Collaborator{}, false
	}
	pair := v.Array()
	if len(pair) != 2 || pair[0].Type != gjson.Number || pair[1].Type != gjson.String {
		return model.Collaborator{}, false
	}
	return model.Collaborator{ID: strconv.FormatInt(pair[0].Int(), 10), Name: pair[1].Str}, true
}

func unassigned(reason Reason, err error) Resolution {
	if err != nil {
		zap.L().Debug("identity: lookup failed", zap.String("reason", string(reason)), zap.Error(err))
	}
	return Resolution{Collaborator: model.UnassignedCollaborator, Reason: reason, Err: err}
}
