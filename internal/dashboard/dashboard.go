// Package dashboard builds the result views served to firm staff.
package dashboard

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lpde-tools/ledger-indicators/internal/config"
	"github.com/lpde-tools/ledger-indicators/internal/indicator"
	"github.com/lpde-tools/ledger-indicators/internal/model"
	"github.com/lpde-tools/ledger-indicators/internal/store"
)

// Filters narrows a view. Empty fields do not filter.
type Filters struct {
	ClosingDate  string `json:"closing_date,omitempty"`
	Collaborator string `json:"collaborator,omitempty"`
	Category     string `json:"category,omitempty"`
}

// TenantRow is one tenant's values in the latest run.
type TenantRow struct {
	TenantID            string             `json:"tenant_id"`
	TenantName          string             `json:"tenant_name"`
	Collaborator        model.Collaborator `json:"collaborator"`
	CollaboratorDisplay string             `json:"collaborator_display"`
	ExtractionTimestamp time.Time          `json:"extraction_timestamp"`
	Values              map[string]string  `json:"values"`
}

// View is a rendered dashboard for one viewer.
type View struct {
	Role                model.Role  `json:"role,omitempty"`
	LatestRun           *time.Time  `json:"latest_run,omitempty"`
	Filters             Filters     `json:"filters"`
	Columns             []string    `json:"columns"`
	ShowCollaborator    bool        `json:"show_collaborator"`
	ShowExtractionDate  bool        `json:"show_extraction_date"`
	Rows                []TenantRow `json:"rows"`
	ClosingDateChoices  []string    `json:"closing_date_choices"`
	CollaboratorChoices []string    `json:"collaborator_choices"`
	CategoryChoices     []string    `json:"category_choices"`
}

type category struct {
	name  string
	names map[string]struct{}
}

// Service answers dashboard queries from the store.
type Service struct {
	store      store.Store
	categories []category
}

// NewService creates a Service. A category with no indicators shows only
// the tenant meta columns.
func NewService(st store.Store, categories []config.CategoryConfig) *Service {
	s := &Service{store: st}
	for _, c := range categories {
		cat := category{name: c.Name, names: make(map[string]struct{}, len(c.Indicators))}
		for _, n := range c.Indicators {
			cat.names[indicator.NormalizeName(n)] = struct{}{}
		}
		s.categories = append(s.categories, cat)
	}
	return s
}

// CategoryNames returns the configured categories in display order.
func (s *Service) CategoryNames() []string {
	out := make([]string, len(s.categories))
	for i, c := range s.categories {
		out[i] = c.name
	}
	return out
}

func (s *Service) category(name string) (category, bool) {
	if name == "" {
		return category{}, false
	}
	for _, c := range s.categories {
		if c.name == name {
			return c, true
		}
	}
	return category{}, false
}

// View builds the dashboard for profile p. A nil profile sees nothing.
func (s *Service) View(ctx context.Context, p *model.Profile, f Filters) (*View, error) {
	vis := model.VisibilityFor(p)
	v := &View{
		Filters:         f,
		Columns:         []string{},
		Rows:            []TenantRow{},
		CategoryChoices: s.CategoryNames(),
	}
	if p != nil {
		v.Role = p.Role
	}

	var err error
	if v.ClosingDateChoices, err = s.closingDateChoices(ctx, vis); err != nil {
		return nil, err
	}
	if v.CollaboratorChoices, err = s.collaboratorChoices(ctx, vis); err != nil {
		return nil, err
	}

	ts, ok, err := s.store.LatestRunTimestamp(ctx, vis)
	if err != nil {
		return nil, eris.Wrap(err, "dashboard: latest run")
	}
	if !ok {
		zap.L().Debug("dashboard: no run visible", zap.String("role", string(v.Role)))
		return v, nil
	}
	v.LatestRun = &ts

	recs, err := s.store.ListIndicatorsByRun(ctx, ts, vis)
	if err != nil {
		return nil, eris.Wrap(err, "dashboard: list indicators")
	}
	recs = filterRecords(recs, f)

	cat, named := s.category(f.Category)
	potential := indicatorNames(recs)
	metaOnly := named && len(cat.names) == 0
	switch {
	case metaOnly:
		v.ShowCollaborator, v.ShowExtractionDate = true, true
	case named:
		for _, n := range potential {
			if _, in := cat.names[n]; in {
				v.Columns = append(v.Columns, n)
			}
		}
	default:
		v.Columns = potential
		v.ShowCollaborator, v.ShowExtractionDate = true, true
	}

	if len(v.Columns) == 0 && !metaOnly {
		return v, nil
	}
	v.Rows = groupByTenant(recs)
	return v, nil
}

func (s *Service) closingDateChoices(ctx context.Context, vis model.Visibility) ([]string, error) {
	vals, err := s.store.DistinctIndicatorValues(ctx, indicator.NameAnnualClosingDate, vis)
	if err != nil {
		return nil, eris.Wrap(err, "dashboard: closing dates")
	}
	if vals == nil {
		vals = []string{}
	}
	return vals, nil
}

func (s *Service) collaboratorChoices(ctx context.Context, vis model.Visibility) ([]string, error) {
	collabs, err := s.store.DistinctCollaborators(ctx, vis)
	if err != nil {
		return nil, eris.Wrap(err, "dashboard: collaborators")
	}
	seen := make(map[string]struct{}, len(collabs))
	out := []string{}
	for _, c := range collabs {
		if c.Name == "" || c.Name == model.UnassignedCollaborator.Name {
			continue
		}
		if _, dup := seen[c.Name]; dup {
			continue
		}
		seen[c.Name] = struct{}{}
		out = append(out, c.Name)
	}
	sort.Strings(out)
	return out, nil
}

// filterRecords applies the collaborator filter, then keeps only tenants
// whose closing date row matches.
func filterRecords(recs []model.IndicatorRecord, f Filters) []model.IndicatorRecord {
	if f.Collaborator != "" {
		kept := recs[:0:0]
		for _, r := range recs {
			if r.Collaborator.Name == f.Collaborator {
				kept = append(kept, r)
			}
		}
		recs = kept
	}
	if f.ClosingDate != "" {
		match := map[string]struct{}{}
		for _, r := range recs {
			if r.Name == indicator.NameAnnualClosingDate && r.Value == f.ClosingDate {
				match[r.TenantID] = struct{}{}
			}
		}
		kept := recs[:0:0]
		for _, r := range recs {
			if _, ok := match[r.TenantID]; ok {
				kept = append(kept, r)
			}
		}
		recs = kept
	}
	return recs
}

func indicatorNames(recs []model.IndicatorRecord) []string {
	set := map[string]struct{}{}
	for _, r := range recs {
		if n := indicator.NormalizeName(r.Name); n != "" {
			set[n] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func groupByTenant(recs []model.IndicatorRecord) []TenantRow {
	byID := map[string]*TenantRow{}
	var order []string
	for _, r := range recs {
		row, ok := byID[r.TenantID]
		if !ok {
			row = &TenantRow{
				TenantID:            r.TenantID,
				TenantName:          r.TenantName,
				Collaborator:        r.Collaborator,
				CollaboratorDisplay: FormatCollaboratorName(r.Collaborator.Name),
				ExtractionTimestamp: r.ExtractionTimestamp,
				Values:              map[string]string{},
			}
			byID[r.TenantID] = row
			order = append(order, r.TenantID)
		}
		row.Values[indicator.NormalizeName(r.Name)] = r.Value
	}

	rows := make([]TenantRow, 0, len(order))
	for _, id := range order {
		rows = append(rows, *byID[id])
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].TenantName < rows[j].TenantName })
	return rows
}

// FormatCollaboratorName drops the company prefix from "Company, First LAST".
// Names without a comma are returned unchanged.
func FormatCollaboratorName(name string) string {
	if _, after, found := strings.Cut(name, ","); found {
		return strings.TrimSpace(after)
	}
	return name
}
