package odoo

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// UnknownVersion is reported when no strategy yields a version.
const UnknownVersion = "unknown"

const saasMarker = "saas~"

// VersionState is the version resolved so far and whether it came from a
// SaaS build marker.
type VersionState struct {
	Value string
	SaaS  bool
}

type versionStrategy func(state VersionState, info gjson.Result) VersionState

// Applied in order; later strategies see what earlier ones produced.
var handshakeStrategies = []versionStrategy{
	fromServerVersion,
	fromSaaSMarker,
	fromServerSerie,
}

// ResolveHandshakeVersion derives a version from the common.version payload.
func ResolveHandshakeVersion(info gjson.Result) VersionState {
	state := VersionState{Value: UnknownVersion}
	for _, s := range handshakeStrategies {
		state = s(state, info)
	}
	return state
}

func fromServerVersion(state VersionState, info gjson.Result) VersionState {
	if sv := info.Get("server_version").String(); sv != "" {
		state.Value = sv
	}
	return state
}

func fromSaaSMarker(state VersionState, info gjson.Result) VersionState {
	sv := info.Get("server_version").String()
	idx := strings.Index(sv, saasMarker)
	if idx < 0 {
		return state
	}
	build := sv[idx+len(saasMarker):]
	if plus := strings.Index(build, "+"); plus >= 0 {
		build = build[:plus]
	}
	if hasMajorMinor(build) {
		return VersionState{Value: build, SaaS: true}
	}
	return state
}

func fromServerSerie(state VersionState, info gjson.Result) VersionState {
	if state.Value != UnknownVersion {
		return state
	}
	if serie := info.Get("server_serie").String(); serie != "" {
		state.Value = serie
	}
	return state
}

// RefineVersion reconciles a handshake version with the base module's
// latest_version. A SaaS value whose major matches is kept as is.
func RefineVersion(state VersionState, latest string) VersionState {
	if latest == "" {
		return state
	}
	if state.SaaS && major(state.Value) == major(latest) {
		return state
	}

	if idx := strings.Index(latest, saasMarker); idx >= 0 {
		parts := strings.Split(latest[idx+len(saasMarker):], ".")
		if len(parts) >= 2 {
			return VersionState{Value: parts[0] + "." + parts[1], SaaS: true}
		}
		return VersionState{Value: latest}
	}

	parts := strings.Split(latest, ".")
	if len(parts) < 2 {
		return VersionState{Value: latest}
	}
	v := parts[0] + "." + parts[1]
	if len(parts) > 2 && parts[2] != "0" {
		v += "." + parts[2]
	}
	return VersionState{Value: v}
}

func hasMajorMinor(v string) bool {
	parts := strings.Split(v, ".")
	if len(parts) < 2 {
		return false
	}
	for _, p := range parts[:2] {
		if _, err := strconv.Atoi(p); err != nil {
			return false
		}
	}
	return true
}

func major(v string) string {
	if i := strings.Index(v, "."); i >= 0 {
		return v[:i]
	}
	return v
}
