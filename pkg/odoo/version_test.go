package odoo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
)

func TestResolveHandshakeVersion(t *testing.T) {
	tests := []struct {
		name string
		info string
		want VersionState
	}{
		{"saas", `{"server_version":"17.0+e-saas~17.3+e"}`, VersionState{Value: "17.3", SaaS: true}},
		{"saas_no_plus", `{"server_version":"saas~16.4"}`, VersionState{Value: "16.4", SaaS: true}},
		{"saas_unparsable", `{"server_version":"17.0-saas~abc+e"}`, VersionState{Value: "17.0-saas~abc+e"}},
		{"plain", `{"server_version":"16.0","server_serie":"16.0"}`, VersionState{Value: "16.0"}},
		{"serie_only", `{"server_serie":"15.0"}`, VersionState{Value: "15.0"}},
		{"empty", `{}`, VersionState{Value: UnknownVersion}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveHandshakeVersion(gjson.Parse(tt.info)))
		})
	}
}

func TestRefineVersion(t *testing.T) {
	tests := []struct {
		name   string
		state  VersionState
		latest string
		want   string
	}{
		{"saas_same_major_kept", VersionState{Value: "17.3", SaaS: true}, "17.0.1.3", "17.3"},
		{"saas_module_marker", VersionState{Value: "17.0"}, "saas~17.2.1.0", "17.2"},
		{"saas_marker_short", VersionState{Value: "17.0"}, "saas~17", "saas~17"},
		{"patch_kept", VersionState{Value: "16.0"}, "16.0.1.3", "16.0.1"},
		{"zero_patch_dropped", VersionState{Value: "16.0"}, "16.0.0.1", "16.0"},
		{"two_parts", VersionState{Value: "unknown"}, "14.0", "14.0"},
		{"single_part_raw", VersionState{Value: "15.0"}, "15", "15"},
		{"empty_latest", VersionState{Value: "15.0"}, "", "15.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RefineVersion(tt.state, tt.latest).Value)
		})
	}
}
