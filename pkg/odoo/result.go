package odoo

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
)

// Result is the raw JSON payload returned by a call.
type Result struct {
	raw json.RawMessage
}

// NewResult wraps a raw JSON payload.
func NewResult(raw json.RawMessage) Result {
	return Result{raw: raw}
}

// Raw returns the underlying payload.
func (r Result) Raw() json.RawMessage {
	return r.raw
}

// Get evaluates a gjson path against the payload, e.g. "0.company_id.0".
func (r Result) Get(path string) gjson.Result {
	return gjson.GetBytes(r.raw, path)
}

// Value returns the parsed payload.
func (r Result) Value() gjson.Result {
	return gjson.ParseBytes(r.raw)
}

// Int decodes a numeric payload such as a search_count result.
func (r Result) Int() (int64, error) {
	v := r.Value()
	if v.Type != gjson.Number {
		return 0, eris.Errorf("odoo: expected number, got %s", r.describe())
	}
	return v.Int(), nil
}

// IDs decodes a list of record ids such as a search result.
func (r Result) IDs() ([]int64, error) {
	v := r.Value()
	if !v.IsArray() {
		return nil, eris.Errorf("odoo: expected id list, got %s", r.describe())
	}
	items := v.Array()
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if item.Type != gjson.Number {
			return nil, eris.Errorf("odoo: non-numeric id %s", item.Raw)
		}
		ids = append(ids, item.Int())
	}
	return ids, nil
}

// Records returns the elements of a list payload such as a read result.
func (r Result) Records() ([]gjson.Result, error) {
	v := r.Value()
	if !v.IsArray() {
		return nil, eris.Errorf("odoo: expected record list, got %s", r.describe())
	}
	return v.Array(), nil
}

func (r Result) describe() string {
	return truncate(string(r.raw), 80)
}
