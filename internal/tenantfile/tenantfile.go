// Package tenantfile imports tenant connections in bulk from YAML.
package tenantfile

import (
	"bytes"
	"context"
	"errors"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/lpde-tools/ledger-indicators/internal/model"
	"github.com/lpde-tools/ledger-indicators/internal/store"
)

// File is the top-level import document.
type File struct {
	Firm    *Entry  `yaml:"firm,omitempty"`
	Tenants []Entry `yaml:"tenants"`
}

// Entry is one connection with its plaintext API key.
type Entry struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	APIKey   string `yaml:"api_key"`
}

// Encrypter seals plaintext API keys before they are stored.
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}

// Result reports what an import changed.
type Result struct {
	Created     []string
	Updated     []string
	FirmUpdated bool
}

// Load reads an import file from disk.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "tenantfile: read %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates an import document. Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, eris.Wrap(err, "tenantfile: parse")
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	seen := make(map[string]struct{}, len(f.Tenants))
	for i, e := range f.Tenants {
		if e.Name == "" {
			return eris.Errorf("tenantfile: tenant %d: name is required", i+1)
		}
		if err := e.validateConnection(); err != nil {
			return eris.Wrapf(err, "tenantfile: tenant %q", e.Name)
		}
		if _, dup := seen[e.Name]; dup {
			return eris.Errorf("tenantfile: duplicate tenant %q", e.Name)
		}
		seen[e.Name] = struct{}{}
	}
	if f.Firm != nil {
		if err := f.Firm.validateConnection(); err != nil {
			return eris.Wrap(err, "tenantfile: firm")
		}
	}
	return nil
}

func (e Entry) validateConnection() error {
	switch {
	case e.URL == "":
		return eris.New("url is required")
	case e.Database == "":
		return eris.New("database is required")
	case e.Username == "":
		return eris.New("username is required")
	}
	return nil
}

// connection builds the stored connection. An empty api_key keeps the
// previously stored key.
func (e Entry) connection(enc Encrypter, existing string) (model.Connection, error) {
	conn := model.Connection{URL: e.URL, Database: e.Database, Username: e.Username, EncryptedAPIKey: existing}
	if e.APIKey == "" {
		return conn, nil
	}
	sealed, err := enc.Encrypt(e.APIKey)
	if err != nil {
		return model.Connection{}, err
	}
	conn.EncryptedAPIKey = sealed
	return conn, nil
}

// Import creates or updates every tenant in f, matched by name, and sets the
// firm connection when present.
func Import(ctx context.Context, st store.Store, enc Encrypter, f *File) (*Result, error) {
	res := &Result{}
	log := zap.L().With(zap.String("component", "tenantfile"))

	for _, e := range f.Tenants {
		existing, err := st.GetTenantByName(ctx, e.Name)
		switch {
		case errors.Is(err, store.ErrNotFound):
			conn, err := e.connection(enc, "")
			if err != nil {
				return res, eris.Wrapf(err, "tenantfile: encrypt key for %q", e.Name)
			}
			t := &model.Tenant{Name: e.Name, Connection: conn}
			if err := st.CreateTenant(ctx, t); err != nil {
				return res, eris.Wrapf(err, "tenantfile: create %q", e.Name)
			}
			res.Created = append(res.Created, e.Name)
			log.Info("tenant created", zap.String("tenant", e.Name))
		case err != nil:
			return res, eris.Wrapf(err, "tenantfile: look up %q", e.Name)
		default:
			conn, err := e.connection(enc, existing.Connection.EncryptedAPIKey)
			if err != nil {
				return res, eris.Wrapf(err, "tenantfile: encrypt key for %q", e.Name)
			}
			existing.Connection = conn
			if err := st.UpdateTenant(ctx, existing); err != nil {
				return res, eris.Wrapf(err, "tenantfile: update %q", e.Name)
			}
			res.Updated = append(res.Updated, e.Name)
			log.Info("tenant updated", zap.String("tenant", e.Name))
		}
	}

	if f.Firm != nil {
		var prev string
		cur, err := st.GetFirmConfig(ctx)
		switch {
		case err == nil:
			prev = cur.Connection.EncryptedAPIKey
		case !errors.Is(err, store.ErrNotFound):
			return res, eris.Wrap(err, "tenantfile: read firm config")
		}
		conn, err := f.Firm.connection(enc, prev)
		if err != nil {
			return res, eris.Wrap(err, "tenantfile: encrypt firm key")
		}
		if _, err := st.SetFirmConfig(ctx, conn); err != nil {
			return res, eris.Wrap(err, "tenantfile: set firm config")
		}
		res.FirmUpdated = true
		log.Info("firm connection updated", zap.String("url", conn.URL))
	}

	return res, nil
}
