package collector

import (
	"context"
	"net/http"
	"time"

	"github.com/lpde-tools/ledger-indicators/internal/model"
	"github.com/lpde-tools/ledger-indicators/pkg/odoo"
)

// Session is an authenticated remote session.
type Session interface {
	odoo.Invoker
	UID() int64
}

// Connector opens sessions against remote systems. On failure the returned
// version is whatever the handshake resolved, odoo.UnknownVersion if it
// did not complete.
type Connector interface {
	Connect(ctx context.Context, conn model.Connection, secret string) (Session, string, error)
}

// OdooConnector dials Odoo over JSON-RPC.
type OdooConnector struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// Connect builds a client for conn and runs the handshake and login.
func (c OdooConnector) Connect(ctx context.Context, conn model.Connection, secret string) (Session, string, error) {
	var opts []odoo.Option
	if c.HTTPClient != nil {
		opts = append(opts, odoo.WithHTTPClient(c.HTTPClient))
	}
	if c.Timeout > 0 {
		opts = append(opts, odoo.WithTimeout(c.Timeout))
	}
	if c.RequestsPerSecond > 0 {
		opts = append(opts, odoo.WithRateLimit(c.RequestsPerSecond))
	}

	client := odoo.NewClient(conn.URL, opts...)
	s, version, err := odoo.Connect(ctx, client, conn.Database, conn.Username, secret)
	if err != nil {
		// Keep the interface nil rather than wrapping a nil *odoo.Session.
		return nil, version, err
	}
	return s, version, nil
}
