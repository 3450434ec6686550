package model

import "time"

// Connection describes how to reach one remote Odoo system.
type Connection struct {
	URL             string `json:"url" yaml:"url"`
	Database        string `json:"database" yaml:"database"`
	Username        string `json:"username" yaml:"username"`
	EncryptedAPIKey string `json:"-" yaml:"-"`
}

// Tenant is one client's remote accounting system.
type Tenant struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Connection Connection `json:"connection"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// FirmConfig is the singleton connection to the firm's own system, used only
// to resolve collaborator identities.
type FirmConfig struct {
	ID         string     `json:"id"`
	Connection Connection `json:"connection"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// HasAPIKey reports whether an encrypted key has been stored.
func (c Connection) HasAPIKey() bool {
	return c.EncryptedAPIKey != ""
}
