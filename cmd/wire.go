package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"

	"github.com/lpde-tools/ledger-indicators/internal/collector"
	"github.com/lpde-tools/ledger-indicators/internal/credential"
	"github.com/lpde-tools/ledger-indicators/internal/identity"
	"github.com/lpde-tools/ledger-indicators/internal/indicator"
	"github.com/lpde-tools/ledger-indicators/internal/metrics"
	"github.com/lpde-tools/ledger-indicators/internal/monitoring"
	"github.com/lpde-tools/ledger-indicators/internal/store"
)

func initCipher() (*credential.Cipher, error) {
	c, err := credential.NewCipher(cfg.Crypto.FernetKey)
	if err != nil {
		return nil, eris.Wrap(err, "init cipher")
	}
	return c, nil
}

func loadLocation() (*time.Location, error) {
	name := cfg.Indicators.Timezone
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, eris.Wrapf(err, "load timezone %q", name)
	}
	return loc, nil
}

func connector() collector.OdooConnector {
	return collector.OdooConnector{
		Timeout:           time.Duration(cfg.Odoo.TimeoutSecs) * time.Second,
		RequestsPerSecond: cfg.Odoo.RequestsPerSecond,
	}
}

func identityFields() identity.Fields {
	return identity.Fields{
		PartnerLink:  cfg.Firm.PartnerLinkField,
		Collaborator: cfg.Firm.CollaboratorField,
	}
}

// initRunner builds the collector with run alerts attached. A nil reg
// registers on the default registry.
func initRunner(st store.Store, reg prometheus.Registerer) (collector.Runner, *metrics.Recorder, error) {
	cipher, err := initCipher()
	if err != nil {
		return nil, nil, err
	}
	loc, err := loadLocation()
	if err != nil {
		return nil, nil, err
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	rec := metrics.New(reg)

	c := collector.New(st, cipher, connector(), indicator.DefaultCatalog(),
		collector.WithMetrics(rec),
		collector.WithIdentityFields(identityFields()),
		collector.WithTuning(cfg.Indicators.StaffEmailDomain, cfg.Indicators.CustomModelPrefix),
		collector.WithLocation(loc),
	)
	alerter := monitoring.NewAlerter(cfg.Monitoring)
	return monitoring.WithRunAlerts(c, alerter), rec, nil
}
