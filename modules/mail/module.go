// Package mail dispatches mail nodes: the payload text is sent through an
// HTTP mail API and forwarded unchanged.
package mail

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

// DefaultBaseURL is used when neither the node nor the app config names one.
const DefaultBaseURL = "https://api.resend.com"

// FieldMessageID holds the id the mail API assigned to the last message.
const FieldMessageID = "message_id"

// Message is one outgoing mail.
type Message struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
}

// Send posts msg and returns the provider's message id.
func Send(ctx context.Context, rc *resty.Client, baseURL, apiKey string, msg Message) (string, error) {
	resp, err := rc.R().
		SetContext(ctx).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(msg).
		Post(strings.TrimRight(baseURL, "/") + "/emails")
	if err != nil {
		return "", fmt.Errorf("mail request failed: %w", err)
	}
	if err := http_client.Check("mail", resp); err != nil {
		return "", err
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(resp.String()), &out); err != nil {
		return "", fmt.Errorf("failed to decode mail response: %w", err)
	}
	return out.ID, nil
}

// recipients splits a comma separated list.
func recipients(s string) []string {
	var out []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// Module implements the registry.Module interface for this package.
type Module struct {
	// Defaults holds the mail section of the app config
	// (base_url, api_key, from).
	Defaults map[string]string
	HTTP     http_client.Options
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	rc := http_client.New(m.HTTP)
	r.RegisterHandler(node.KindMail, func(ctx context.Context, req registry.Request) (registry.Response, error) {
		n := req.Node
		apiKey, err := http_client.Require(n, "api_key", m.Defaults)
		if err != nil {
			return registry.Response{}, err
		}
		from, err := http_client.Require(n, "from", m.Defaults)
		if err != nil {
			return registry.Response{}, err
		}
		to := recipients(n.String("to"))
		if len(to) == 0 {
			return registry.Response{}, faults.Config(string(n.Kind), "to")
		}
		baseURL := http_client.Setting(n, "base_url", m.Defaults)
		if baseURL == "" {
			baseURL = DefaultBaseURL
		}
		subject := n.String("subject")
		if subject == "" {
			subject = "Pipeline result"
		}

		ctxlog.FromContext(ctx).Debug("Sending mail.", "module", "mail", "recipients", len(to))
		id, err := Send(ctx, rc, baseURL, apiKey, Message{From: from, To: to, Subject: subject, Text: payload.Text(req.Payload)})
		if err != nil {
			return registry.Response{}, err
		}
		return registry.Response{Payload: req.Payload, Fields: map[string]cty.Value{FieldMessageID: cty.StringVal(id)}}, nil
	})
}
