// Package http_request dispatches http_request nodes: a generic HTTPS call
// whose response is forwarded as {ok, status, headers, text, json?, xml?}.
package http_request

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/faults"
	"github.com/vk/flowgrid/internal/node"
	"github.com/vk/flowgrid/internal/payload"
	"github.com/vk/flowgrid/internal/registry"
	"github.com/vk/flowgrid/modules/http_client"
	"github.com/zclconf/go-cty/cty"
	"resty.dev/v3"
)

// Input is a decoded http_request node.
type Input struct {
	Method  string
	URL     string
	Headers map[string]string
	Params  map[string]string
	Body    any
	Timeout time.Duration
}

// Output is the normalized response.
type Output struct {
	OK      bool
	Status  int
	Headers map[string]string
	Text    string
	// JSON is set when the body parses as JSON.
	JSON cty.Value
	// XML is set when the response is XML.
	XML cty.Value
}

// Value returns the output as the forwarded payload.
func (o Output) Value() cty.Value {
	headers := make(map[string]cty.Value, len(o.Headers))
	for k, v := range o.Headers {
		headers[k] = cty.StringVal(v)
	}
	attrs := map[string]cty.Value{
		"ok":      cty.BoolVal(o.OK),
		"status":  cty.NumberIntVal(int64(o.Status)),
		"headers": cty.MapValEmpty(cty.String),
		"text":    cty.StringVal(o.Text),
	}
	if len(headers) > 0 {
		attrs["headers"] = cty.MapVal(headers)
	}
	if o.JSON != cty.NilVal {
		attrs["json"] = o.JSON
	}
	if o.XML != cty.NilVal {
		attrs["xml"] = o.XML
	}
	return cty.ObjectVal(attrs)
}

// Decode reads an Input from the node and the incoming payload.
func Decode(n node.Node, in cty.Value) (Input, error) {
	kind := string(n.Kind)
	raw := strings.TrimSpace(n.String("url"))
	if raw == "" {
		return Input{}, faults.Config(kind, "url")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return Input{}, &faults.ConfigError{Kind: kind, Field: "url", Message: fmt.Sprintf("invalid url %q", raw)}
	}
	if u.Scheme != "https" {
		return Input{}, &faults.ConfigError{Kind: kind, Field: "url", Message: "only https urls are allowed"}
	}

	input := Input{
		Method:  strings.ToUpper(n.String("method")),
		URL:     raw,
		Headers: stringMap(n.Field("headers")),
		Params:  stringMap(n.Field("params")),
	}
	if input.Method == "" {
		input.Method = http.MethodGet
	}
	if ms := n.Int("timeout_ms", 0); ms > 0 {
		input.Timeout = time.Duration(ms) * time.Millisecond
	}

	if input.Method != http.MethodGet && input.Method != http.MethodHead {
		body := n.Field("body")
		if body == cty.NilVal || body.IsNull() {
			body = in
		}
		if !payload.IsEmpty(body) {
			if body.Type().Equals(cty.String) {
				input.Body = body.AsString()
			} else if input.Body, err = payload.ToGo(body); err != nil {
				return Input{}, err
			}
		}
	}
	return input, nil
}

// Do performs the request.
func Do(ctx context.Context, rc *resty.Client, in Input) (Output, error) {
	if in.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.Timeout)
		defer cancel()
	}

	r := rc.R().
		SetContext(ctx).
		SetHeaders(in.Headers).
		SetQueryParams(in.Params)
	if in.Body != nil {
		r.SetBody(in.Body)
	}
	resp, err := r.Execute(in.Method, in.URL)
	if err != nil {
		return Output{}, fmt.Errorf("http request failed: %w", err)
	}

	out := Output{
		Status:  resp.StatusCode(),
		OK:      resp.StatusCode() >= 200 && resp.StatusCode() < 300,
		Headers: make(map[string]string),
		Text:    resp.String(),
	}
	for k := range resp.Header() {
		out.Headers[strings.ToLower(k)] = resp.Header().Get(k)
	}

	ctype := strings.ToLower(out.Headers["content-type"])
	if strings.Contains(ctype, "xml") {
		if v, err := parseXML(out.Text); err == nil {
			out.XML = v
		}
	} else if v, err := payload.FromJSON([]byte(out.Text)); err == nil && strings.TrimSpace(out.Text) != "" {
		out.JSON = v
	}
	return out, nil
}

func stringMap(v cty.Value) map[string]string {
	out := make(map[string]string)
	if v == cty.NilVal || v.IsNull() || !v.IsKnown() {
		return out
	}
	ty := v.Type()
	if !ty.IsObjectType() && !ty.IsMapType() {
		return out
	}
	for it := v.ElementIterator(); it.Next(); {
		k, val := it.Element()
		out[k.AsString()] = payload.Text(val)
	}
	return out
}

// Module implements the registry.Module interface for this package.
type Module struct {
	HTTP http_client.Options
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	rc := http_client.New(m.HTTP)
	r.RegisterHandler(node.KindHTTPRequest, func(ctx context.Context, req registry.Request) (registry.Response, error) {
		in, err := Decode(req.Node, req.Payload)
		if err != nil {
			return registry.Response{}, err
		}

		logger := ctxlog.FromContext(ctx).With("module", "http_request", "method", in.Method, "url", in.URL)
		logger.Debug("Making HTTP request.")
		out, err := Do(ctx, rc, in)
		if err != nil {
			return registry.Response{}, err
		}
		logger.Debug("Received HTTP response.", "status", out.Status)

		v := out.Value()
		return registry.Response{Payload: v, Fields: map[string]cty.Value{node.FieldValue: v}}, nil
	})
}
