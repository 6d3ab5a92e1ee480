// Package text_generator dispatches text_generator nodes to an
// OpenAI-compatible chat completions endpoint.
package text_generator

import (
	"context"
	"encoding/json"
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

// DefaultBaseURL is used when neither the node nor the app config names one.
const DefaultBaseURL = "https://api.openai.com/v1"

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt, model string, opts Options) (string, error)
}

// Options tune a single generation.
type Options struct {
	System      string
	Temperature *float64
	MaxTokens   int
}

// Client talks to a chat completions API.
type Client struct {
	rc      *resty.Client
	baseURL string
	apiKey  string
}

// NewClient creates a client for baseURL authenticated with apiKey.
func NewClient(rc *resty.Client, baseURL, apiKey string) *Client {
	return &Client{rc: rc, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) Generate(ctx context.Context, prompt, model string, opts Options) (string, error) {
	body := chatRequest{Model: model, Temperature: opts.Temperature, MaxTokens: opts.MaxTokens}
	if opts.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: opts.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: prompt})

	resp, err := c.rc.R().
		SetContext(ctx).
		SetAuthToken(c.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(c.baseURL + "/chat/completions")
	if err != nil {
		return "", fmt.Errorf("chat completions request failed: %w", err)
	}
	if err := http_client.Check("text_generator", resp); err != nil {
		return "", err
	}

	var out chatResponse
	if err := json.Unmarshal([]byte(resp.String()), &out); err != nil {
		return "", fmt.Errorf("failed to decode chat completions response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("chat completions response has no choices")
	}
	return out.Choices[0].Message.Content, nil
}

// Module implements the registry.Module interface for this package.
type Module struct {
	// Defaults holds the text_generator section of the app config
	// (api_key, base_url, model).
	Defaults map[string]string
	HTTP     http_client.Options
	// NewGenerator replaces the HTTP client. Used by tests.
	NewGenerator func(baseURL, apiKey string) Generator
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	newGen := m.NewGenerator
	if newGen == nil {
		rc := http_client.New(m.HTTP)
		newGen = func(baseURL, apiKey string) Generator { return NewClient(rc, baseURL, apiKey) }
	}
	r.RegisterHandler(node.KindTextGenerator, func(ctx context.Context, req registry.Request) (registry.Response, error) {
		return m.handle(ctx, req, newGen)
	})
}

func (m *Module) handle(ctx context.Context, req registry.Request, newGen func(string, string) Generator) (registry.Response, error) {
	n := req.Node
	apiKey, err := http_client.Require(n, "api_key", m.Defaults)
	if err != nil {
		return registry.Response{}, err
	}
	model, err := http_client.Require(n, "model", m.Defaults)
	if err != nil {
		return registry.Response{}, err
	}
	baseURL := http_client.Setting(n, "base_url", m.Defaults)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	opts := Options{
		System:    n.String("system"),
		MaxTokens: n.Int("max_tokens", 0),
	}
	if t := n.Float("temperature", -1); t >= 0 {
		opts.Temperature = &t
	}

	logger := ctxlog.FromContext(ctx).With("module", "text_generator", "model", model)
	logger.Debug("Generating text.")
	text, err := newGen(baseURL, apiKey).Generate(ctx, payload.Text(req.Payload), model, opts)
	if err != nil {
		return registry.Response{}, err
	}
	logger.Debug("Text generated.", "chars", len(text))

	out := cty.StringVal(text)
	return registry.Response{Payload: out, Fields: map[string]cty.Value{node.FieldValue: out}}, nil
}
