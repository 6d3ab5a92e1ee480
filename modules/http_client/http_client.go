// Package http_client provides the shared REST client used by the HTTP-backed
// modules, together with the helpers that turn upstream responses and node
// settings into the engine's typed faults.
package http_client

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vk/flowgrid/internal/faults"
	"github.com/vk/flowgrid/internal/node"
	"resty.dev/v3"
)

// DefaultTimeout bounds a single request when Options.Timeout is zero.
const DefaultTimeout = 60 * time.Second

// MaxRedirects is the number of hops a request may follow.
const MaxRedirects = 10

// Options configures a client.
type Options struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
	// HTTPClient replaces the underlying client, e.g. with an
	// httptest server's client. Timeout and TLS options are ignored then.
	HTTPClient *http.Client
}

// New creates a REST client. Redirects are followed only to https URLs, so
// credentials set on a request never leave over plain http.
func New(opts Options) *resty.Client {
	var hc *http.Client
	if opts.HTTPClient != nil {
		// Copy so the redirect policy does not leak into the caller's client.
		cp := *opts.HTTPClient
		hc = &cp
	} else {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if opts.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		hc = &http.Client{Timeout: timeout, Transport: transport}
	}
	c := resty.NewWithClient(hc)
	c.SetHeader("User-Agent", "flowgrid")
	c.SetRedirectPolicy(resty.FlexibleRedirectPolicy(MaxRedirects), HTTPSOnlyRedirectPolicy())
	return c
}

// HTTPSOnlyRedirectPolicy refuses any redirect hop whose target is not https.
func HTTPSOnlyRedirectPolicy() resty.RedirectPolicy {
	return resty.RedirectPolicyFunc(func(req *http.Request, _ []*http.Request) error {
		if req.URL.Scheme != "https" {
			return fmt.Errorf("refusing redirect to non-https url %s", req.URL.Redacted())
		}
		return nil
	})
}

// Check returns nil for 2xx responses and a *faults.ProviderError carrying
// the upstream status and message otherwise.
func Check(provider string, resp *resty.Response) error {
	code := resp.StatusCode()
	if code >= 200 && code < 300 {
		return nil
	}
	return &faults.ProviderError{Provider: provider, Status: code, Message: ErrorMessage(resp.String())}
}

// ErrorMessage extracts a readable message from an error response body. It
// understands {"error": {"message": ...}}, {"error": "..."} and
// {"message": "..."}; anything else is returned trimmed.
func ErrorMessage(body string) string {
	var raw map[string]any
	if err := json.Unmarshal([]byte(body), &raw); err == nil {
		switch e := raw["error"].(type) {
		case map[string]any:
			if msg, ok := e["message"].(string); ok && msg != "" {
				return msg
			}
		case string:
			if e != "" {
				return e
			}
		}
		if msg, ok := raw["message"].(string); ok && msg != "" {
			return msg
		}
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return "empty response"
	}
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return body
}

// Setting resolves a string setting: the node's own attribute wins, then
// defaults (the integration section of the app config).
func Setting(n node.Node, field string, defaults map[string]string) string {
	if v := strings.TrimSpace(n.String(field)); v != "" {
		return v
	}
	return strings.TrimSpace(defaults[field])
}

// Require resolves a setting like Setting and returns a ConfigError when it
// is empty.
func Require(n node.Node, field string, defaults map[string]string) (string, error) {
	v := Setting(n, field, defaults)
	if v == "" {
		return "", faults.Config(string(n.Kind), field)
	}
	return v, nil
}
