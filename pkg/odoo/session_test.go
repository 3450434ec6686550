package odoo

import (
	"context"
	"encoding/json"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect(t *testing.T) {
	tests := []struct {
		name        string
		replies     map[string]string
		wantVersion string
		wantUID     int64
		wantErr     string
	}{
		{
			name: "saas_marker",
			replies: map[string]string{
				"common.version":           `{"server_version":"17.0+e-saas~17.3+e","server_serie":"17.0"}`,
				"common.authenticate":      `7`,
				"ir.module.module.search_read": `[{"id":1,"latest_version":"saas~17.3.1.3"}]`,
			},
			wantVersion: "17.3",
			wantUID:     7,
		},
		{
			name: "plain_refined_by_module",
			replies: map[string]string{
				"common.version":           `{"server_version":"16.0","server_serie":"16.0"}`,
				"common.authenticate":      `2`,
				"ir.module.module.search_read": `[{"id":1,"latest_version":"16.0.1.3"}]`,
			},
			wantVersion: "16.0.1",
			wantUID:     2,
		},
		{
			name: "module_lookup_fails",
			replies: map[string]string{
				"common.version":      `{"server_version":"16.0"}`,
				"common.authenticate": `2`,
			},
			wantVersion: "16.0",
			wantUID:     2,
		},
		{
			name: "auth_false_keeps_version",
			replies: map[string]string{
				"common.version":      `{"server_version":"15.0"}`,
				"common.authenticate": `false`,
			},
			wantVersion: "15.0",
			wantErr:     "authentication failed for bot@example.com on db1",
		},
		{
			name: "auth_access_denied_keeps_version",
			replies: map[string]string{
				"common.version":      `{"server_version":"15.0"}`,
				"common.authenticate": `!{"code":200,"message":"Odoo Server Error","data":{"name":"odoo.exceptions.AccessDenied","message":"Access Denied"}}`,
			},
			wantVersion: "15.0",
			wantErr:     "authentication failed",
		},
		{
			name: "handshake_fault",
			replies: map[string]string{
				"common.version": `!{"code":500,"message":"boom"}`,
			},
			wantVersion: UnknownVersion,
			wantErr:     "remote fault",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, srv := newRPCServer(t, tt.replies)

			s, version, err := Connect(context.Background(), NewClient(srv.URL), "db1", "bot@example.com", "secret")
			assert.Equal(t, tt.wantVersion, version)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, s)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantUID, s.UID())
			assert.Equal(t, srv.URL, s.URL())
		})
	}
}

func TestConnect_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	s, version, err := Connect(context.Background(), NewClient("http://"+addr), "db", "u", "p")
	require.Error(t, err)
	assert.Nil(t, s)
	assert.Equal(t, UnknownVersion, version)
	assert.Contains(t, err.Error(), "connection refused by http://"+addr)
}

func TestSession_Invoke(t *testing.T) {
	rs, srv := newRPCServer(t, map[string]string{
		"common.version":               `{"server_version":"16.0"}`,
		"common.authenticate":          `5`,
		"ir.module.module.search_read": `[]`,
		"account.move.line.search_count": `12`,
		"account.journal.search":         `[3,4]`,
		"res.users.read":                 `[{"id":5,"company_id":[2,"Acme"]}]`,
	})

	ctx := context.Background()
	s, _, err := Connect(ctx, NewClient(srv.URL), "db1", "bot", "key")
	require.NoError(t, err)

	n, err := SearchCount(ctx, s, "account.move.line", Where(Cond("move_id.state", "=", "posted")))
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	ids, err := Search(ctx, s, "account.journal", Where(Cond("type", "=", "bank")), nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4}, ids)

	res, err := Read(ctx, s, "res.users", []int64{5}, []string{"company_id"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Get("0.company_id.0").Int())

	_, err = ReadGroup(ctx, s, "account.move.line", All(), []string{"balance"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account.move.line.read_group")

	last := rs.calls[len(rs.calls)-2]
	assert.Equal(t, "object", last.Params.Service)
	assert.Equal(t, "execute_kw", last.Params.Method)
	args := last.Params.Args
	require.Len(t, args, 7)
	assert.Equal(t, "db1", args[0])
	assert.Equal(t, float64(5), args[1])
	assert.Equal(t, "key", args[2])
	assert.Equal(t, "res.users", args[3])
	assert.Equal(t, "read", args[4])
	raw, _ := json.Marshal(args[5])
	assert.JSONEq(t, `[[5]]`, string(raw))
	raw, _ = json.Marshal(args[6])
	assert.JSONEq(t, `{"fields":["company_id"]}`, string(raw))
}

func TestResult_Decoding(t *testing.T) {
	_, err := NewResult(json.RawMessage(`"x"`)).Int()
	assert.ErrorContains(t, err, "expected number")

	_, err = NewResult(json.RawMessage(`{}`)).IDs()
	assert.ErrorContains(t, err, "expected id list")

	_, err = NewResult(json.RawMessage(`[1,"a"]`)).IDs()
	assert.ErrorContains(t, err, "non-numeric id")

	recs, err := NewResult(json.RawMessage(`[{"a":1},{"a":2}]`)).Records()
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	_, err = NewResult(json.RawMessage(`false`)).Records()
	assert.Error(t, err)
}

func TestDomain(t *testing.T) {
	d := And(
		Where(Cond("move_id.state", "=", "posted")),
		AnyOf(Cond("code", "=like", "70%"), Cond("code", "=like", "71%"), Cond("code", "=like", "72%")),
	)
	raw, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `[["move_id.state","=","posted"],"|","|",["code","=like","70%"],["code","=like","71%"],["code","=like","72%"]]`, string(raw))

	raw, err = json.Marshal(All())
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(raw))

	assert.Nil(t, AnyOf())
	raw, _ = json.Marshal(And())
	assert.Equal(t, `[]`, string(raw))
}
