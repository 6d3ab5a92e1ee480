// Package relational dispatches relational nodes to a PostgREST-style table
// API. Requests are built by the pure BuildRequest and sent by the module.
package relational

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/node"
	"github.com/vk/flowgrid/internal/payload"
	"github.com/vk/flowgrid/internal/registry"
	"github.com/vk/flowgrid/modules/http_client"
	"github.com/zclconf/go-cty/cty"
	"resty.dev/v3"
)

// Module implements the registry.Module interface for this package.
type Module struct {
	// Defaults holds the relational section of the app config
	// (base_url, api_key).
	Defaults map[string]string
	HTTP     http_client.Options
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	rc := http_client.New(m.HTTP)
	r.RegisterHandler(node.KindRelational, func(ctx context.Context, req registry.Request) (registry.Response, error) {
		n := req.Node
		built, err := BuildRequest(Params{
			BaseURL:  http_client.Setting(n, "base_url", m.Defaults),
			APIKey:   http_client.Setting(n, "api_key", m.Defaults),
			Table:    n.String("table"),
			Op:       n.String("op"),
			Match:    n.String("match"),
			Columns:  n.String("columns"),
			Payload:  req.Payload,
			Previous: req.Previous,
		})
		if err != nil {
			return registry.Response{}, err
		}

		out, err := Send(ctx, rc, built)
		if err != nil {
			return registry.Response{}, err
		}
		return registry.Response{Payload: out, Fields: map[string]cty.Value{node.FieldValue: out}}, nil
	})
}

// Send executes a built request and decodes the JSON response.
func Send(ctx context.Context, rc *resty.Client, req Request) (cty.Value, error) {
	ctxlog.FromContext(ctx).Debug("Sending table request.", "module", "relational", "method", req.Method, "url", req.URL)

	r := rc.R().
		SetContext(ctx).
		SetHeaders(req.Headers).
		SetQueryParams(req.Query)
	if req.Body != nil {
		r.SetHeader("Content-Type", "application/json").SetBody(req.Body)
	}
	resp, err := r.Execute(req.Method, req.URL)
	if err != nil {
		return cty.NilVal, fmt.Errorf("table request failed: %w", err)
	}
	if err := http_client.Check("relational", resp); err != nil {
		return cty.NilVal, err
	}

	body := strings.TrimSpace(resp.String())
	if body == "" {
		return payload.Empty, nil
	}
	return payload.FromJSON([]byte(body))
}
