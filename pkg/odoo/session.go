package odoo

import (
	"context"
	"errors"
	"net"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
)

// Invoker executes model methods on behalf of an authenticated user.
type Invoker interface {
	Invoke(ctx context.Context, model, method string, args []any, kwargs map[string]any) (Result, error)
}

// Session is an authenticated connection to one database.
type Session struct {
	client   Client
	database string
	uid      int64
	secret   string
}

// UID returns the authenticated user id.
func (s *Session) UID() int64 {
	return s.uid
}

// URL returns the server URL of the session.
func (s *Session) URL() string {
	return s.client.BaseURL()
}

// Invoke calls object.execute_kw with the session credentials.
func (s *Session) Invoke(ctx context.Context, model, method string, args []any, kwargs map[string]any) (Result, error) {
	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	raw, err := s.client.Call(ctx, "object", "execute_kw", s.database, s.uid, s.secret, model, method, args, kwargs)
	if err != nil {
		return Result{}, eris.Wrapf(describe(s.client.BaseURL(), err), "odoo: %s.%s", model, method)
	}
	return NewResult(raw), nil
}

// Connect performs the version handshake, authenticates, and refines the
// reported version from the base module. The resolved version is returned
// whenever the handshake succeeded, even if authentication then fails.
func Connect(ctx context.Context, c Client, database, username, secret string) (*Session, string, error) {
	raw, err := c.Call(ctx, "common", "version")
	if err != nil {
		return nil, UnknownVersion, describe(c.BaseURL(), err)
	}
	state := ResolveHandshakeVersion(gjson.ParseBytes(raw))

	uidRaw, err := c.Call(ctx, "common", "authenticate", database, username, secret, map[string]any{})
	if err != nil {
		var f *Fault
		if errors.As(err, &f) && f.AccessDenied() {
			return nil, state.Value, authFailed(c.BaseURL(), database, username)
		}
		return nil, state.Value, describe(c.BaseURL(), err)
	}
	uid := gjson.ParseBytes(uidRaw)
	if uid.Type != gjson.Number || uid.Int() <= 0 {
		return nil, state.Value, authFailed(c.BaseURL(), database, username)
	}

	s := &Session{client: c, database: database, uid: uid.Int(), secret: secret}

	// The base module lookup is best effort; the handshake value stands if it fails.
	if latest, err := baseModuleVersion(ctx, s); err == nil {
		state = RefineVersion(state, latest)
	}

	return s, state.Value, nil
}

func baseModuleVersion(ctx context.Context, inv Invoker) (string, error) {
	res, err := SearchRead(ctx, inv, "ir.module.module",
		Where(Cond("name", "=", "base")),
		map[string]any{"fields": []string{"latest_version"}, "limit": 1})
	if err != nil {
		return "", err
	}
	v := res.Get("0.latest_version")
	if v.Type != gjson.String {
		return "", eris.New("odoo: base module has no version")
	}
	return v.String(), nil
}

func authFailed(url, database, username string) error {
	return eris.Errorf("odoo: authentication failed for %s on %s@%s", username, database, url)
}

// describe turns transport and protocol errors into a message naming the failure.
func describe(url string, err error) error {
	var f *Fault
	if errors.As(err, &f) {
		return eris.Wrapf(err, "odoo: remote fault from %s", url)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return eris.Wrapf(err, "odoo: connection refused by %s", url)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return eris.Wrapf(err, "odoo: request to %s timed out", url)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return eris.Wrapf(err, "odoo: request to %s timed out", url)
	}
	return eris.Wrapf(err, "odoo: unexpected error from %s", url)
}

// Search returns ids of records matching domain.
func Search(ctx context.Context, inv Invoker, model string, domain Domain, kwargs map[string]any) ([]int64, error) {
	res, err := inv.Invoke(ctx, model, "search", []any{domain}, kwargs)
	if err != nil {
		return nil, err
	}
	return res.IDs()
}

// SearchCount returns the number of records matching domain.
func SearchCount(ctx context.Context, inv Invoker, model string, domain Domain) (int64, error) {
	res, err := inv.Invoke(ctx, model, "search_count", []any{domain}, nil)
	if err != nil {
		return 0, err
	}
	return res.Int()
}

// Read returns the given fields of records ids.
func Read(ctx context.Context, inv Invoker, model string, ids []int64, fields []string) (Result, error) {
	return inv.Invoke(ctx, model, "read", []any{ids}, map[string]any{"fields": fields})
}

// SearchRead combines search and read in one call.
func SearchRead(ctx context.Context, inv Invoker, model string, domain Domain, kwargs map[string]any) (Result, error) {
	return inv.Invoke(ctx, model, "search_read", []any{domain}, kwargs)
}

// ReadGroup aggregates fields over records matching domain, ungrouped when
// groupBy is empty.
func ReadGroup(ctx context.Context, inv Invoker, model string, domain Domain, fields, groupBy []string) (Result, error) {
	if groupBy == nil {
		groupBy = []string{}
	}
	return inv.Invoke(ctx, model, "read_group", []any{domain, fields, groupBy}, map[string]any{"lazy": false})
}
