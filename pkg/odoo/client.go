// Package odoo is a minimal JSON-RPC client for remote Odoo systems.
package odoo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultTimeout = 60 * time.Second

// Client performs JSON-RPC calls against one Odoo server.
type Client interface {
	// Call invokes method on service ("common" or "object") with positional args.
	Call(ctx context.Context, service, method string, args ...any) (json.RawMessage, error)
	// BaseURL returns the server URL the client targets.
	BaseURL() string
}

// Fault is an error reported by the remote server in the JSON-RPC error member.
type Fault struct {
	Code        int    `json:"code"`
	Message     string `json:"message"`
	DataName    string `json:"-"`
	DataMessage string `json:"-"`
}

func (f *Fault) Error() string {
	if f.DataMessage != "" {
		return fmt.Sprintf("%d - %s: %s", f.Code, f.Message, f.DataMessage)
	}
	return fmt.Sprintf("%d - %s", f.Code, f.Message)
}

// AccessDenied reports whether the fault is an authentication rejection.
func (f *Fault) AccessDenied() bool {
	return strings.HasSuffix(f.DataName, "AccessDenied")
}

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
	ID      int64     `json:"id"`
}

type rpcParams struct {
	Service string `json:"service"`
	Method  string `json:"method"`
	Args    []any  `json:"args"`
}

type rpcResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"data"`
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit paces outgoing calls to rps requests per second.
// A non-positive rps disables pacing.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	nextID  atomic.Int64
}

// NewClient creates a JSON-RPC client for the server at baseURL.
func NewClient(baseURL string, opts ...Option) Client {
	c := &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) BaseURL() string {
	return c.baseURL
}

func (c *httpClient) Call(ctx context.Context, service, method string, args ...any) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "odoo: rate limit wait")
		}
	}
	if args == nil {
		args = []any{}
	}

	id := c.nextID.Add(1)
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params:  rpcParams{Service: service, Method: method, Args: args},
		ID:      id,
	})
	if err != nil {
		return nil, eris.Wrap(err, "odoo: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/jsonrpc", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "odoo: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "odoo: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "odoo: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("odoo: unexpected status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, eris.Wrap(err, "odoo: unmarshal response")
	}
	if rpcResp.Error != nil {
		return nil, &Fault{
			Code:        rpcResp.Error.Code,
			Message:     rpcResp.Error.Message,
			DataName:    rpcResp.Error.Data.Name,
			DataMessage: rpcResp.Error.Data.Message,
		}
	}
	if rpcResp.Result == nil {
		return json.RawMessage("null"), nil
	}

	return rpcResp.Result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
