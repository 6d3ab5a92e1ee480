// Package key_value dispatches key_value nodes to a REST key-value store
// that accepts commands as JSON arrays.
package key_value

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/faults"
	"github.com/vk/flowgrid/internal/node"
	"github.com/vk/flowgrid/internal/payload"
	"github.com/vk/flowgrid/internal/registry"
	"github.com/vk/flowgrid/modules/http_client"
	"github.com/zclconf/go-cty/cty"
	"resty.dev/v3"
)

// Actions.
const (
	ActionGet = "GET"
	ActionSet = "SET"
	ActionDel = "DEL"
)

// Client executes commands against one store.
type Client struct {
	rc    *resty.Client
	host  string
	token string
}

// NewClient creates a client for host authenticated with token.
func NewClient(rc *resty.Client, host, token string) *Client {
	return &Client{rc: rc, host: strings.TrimRight(host, "/"), token: token}
}

// Execute runs one action and returns the decoded "result" field.
func (c *Client) Execute(ctx context.Context, action, key string, value any) (any, error) {
	command := []any{action, key}
	if action == ActionSet {
		command = append(command, value)
	}

	resp, err := c.rc.R().
		SetContext(ctx).
		SetAuthToken(c.token).
		SetHeader("Content-Type", "application/json").
		SetBody(command).
		Post(c.host)
	if err != nil {
		return nil, fmt.Errorf("key-value request failed: %w", err)
	}
	if err := http_client.Check("key_value", resp); err != nil {
		return nil, err
	}

	var out struct {
		Result any    `json:"result"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal([]byte(resp.String()), &out); err != nil {
		return nil, fmt.Errorf("failed to decode key-value response: %w", err)
	}
	if out.Error != "" {
		return nil, &faults.ProviderError{Provider: "key_value", Status: resp.StatusCode(), Message: out.Error}
	}
	return out.Result, nil
}

// Module implements the registry.Module interface for this package.
type Module struct {
	// Defaults holds the key_value section of the app config (host, token).
	Defaults map[string]string
	HTTP     http_client.Options
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	rc := http_client.New(m.HTTP)
	r.RegisterHandler(node.KindKeyValue, func(ctx context.Context, req registry.Request) (registry.Response, error) {
		n := req.Node
		host, err := http_client.Require(n, "host", m.Defaults)
		if err != nil {
			return registry.Response{}, err
		}
		token, err := http_client.Require(n, "token", m.Defaults)
		if err != nil {
			return registry.Response{}, err
		}
		key, err := http_client.Require(n, "key", nil)
		if err != nil {
			return registry.Response{}, err
		}

		action := strings.ToUpper(n.String("action"))
		if action == "" {
			action = ActionGet
		}
		if action != ActionGet && action != ActionSet && action != ActionDel {
			return registry.Response{}, &faults.ConfigError{Kind: string(n.Kind), Field: "action", Message: fmt.Sprintf("unsupported action %q", action)}
		}

		var value any
		if action == ActionSet {
			value = payload.Text(req.Payload)
			if v := n.String("value"); v != "" {
				value = v
			}
		}

		ctxlog.FromContext(ctx).Debug("Executing key-value command.", "module", "key_value", "action", action, "key", key)
		result, err := NewClient(rc, host, token).Execute(ctx, action, key, value)
		if err != nil {
			return registry.Response{}, err
		}
		out, err := payload.FromGo(result)
		if err != nil {
			return registry.Response{}, err
		}
		return registry.Response{Payload: out, Fields: map[string]cty.Value{node.FieldValue: out}}, nil
	})
}
