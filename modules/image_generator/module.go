// Package image_generator dispatches image_generator nodes to a
// generateContent-style image API and forwards the image as a data URI.
package image_generator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
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
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Options tune a single generation.
type Options struct {
	AspectRatio string
	Resolution  string
}

// Generator produces an image for a prompt and returns it as a URI.
type Generator interface {
	Generate(ctx context.Context, prompt, model string, opts Options) (string, error)
}

// Client talks to a generateContent endpoint.
type Client struct {
	rc      *resty.Client
	baseURL string
	apiKey  string
}

// NewClient creates a client for baseURL authenticated with apiKey.
func NewClient(rc *resty.Client, baseURL, apiKey string) *Client {
	return &Client{rc: rc, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (c *Client) Generate(ctx context.Context, prompt, model string, opts Options) (string, error) {
	imageConfig := map[string]string{}
	if opts.AspectRatio != "" {
		imageConfig["aspectRatio"] = opts.AspectRatio
	}
	if opts.Resolution != "" {
		imageConfig["imageSize"] = opts.Resolution
	}
	body := map[string]any{
		"contents": []map[string]any{
			{"role": "user", "parts": []part{{Text: prompt}}},
		},
		"generationConfig": map[string]any{
			"responseModalities": []string{"IMAGE"},
			"imageConfig":        imageConfig,
		},
	}

	resp, err := c.rc.R().
		SetContext(ctx).
		SetHeader("x-goog-api-key", c.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(model)))
	if err != nil {
		return "", fmt.Errorf("generateContent request failed: %w", err)
	}
	if err := http_client.Check("image_generator", resp); err != nil {
		return "", err
	}

	var out generateResponse
	if err := json.Unmarshal([]byte(resp.String()), &out); err != nil {
		return "", fmt.Errorf("failed to decode generateContent response: %w", err)
	}
	for _, cand := range out.Candidates {
		for _, p := range cand.Content.Parts {
			if p.InlineData != nil && p.InlineData.Data != "" {
				return fmt.Sprintf("data:%s;base64,%s", p.InlineData.MimeType, p.InlineData.Data), nil
			}
		}
	}
	return "", fmt.Errorf("generateContent response contains no image")
}

// Module implements the registry.Module interface for this package.
type Module struct {
	// Defaults holds the image_generator section of the app config
	// (api_key, base_url, model).
	Defaults map[string]string
	HTTP     http_client.Options
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	rc := http_client.New(m.HTTP)
	r.RegisterHandler(node.KindImageGenerator, func(ctx context.Context, req registry.Request) (registry.Response, error) {
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

		ctxlog.FromContext(ctx).Debug("Generating image.", "module", "image_generator", "model", model)
		uri, err := NewClient(rc, baseURL, apiKey).Generate(ctx, payload.Text(req.Payload), model, Options{
			AspectRatio: n.String("aspect_ratio"),
			Resolution:  n.String("resolution"),
		})
		if err != nil {
			return registry.Response{}, err
		}
		out := cty.StringVal(uri)
		return registry.Response{Payload: out, Fields: map[string]cty.Value{node.FieldValue: out}}, nil
	})
}
