package relational

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/vk/flowgrid/internal/faults"
	"github.com/vk/flowgrid/internal/node"
	"github.com/vk/flowgrid/internal/payload"
	"github.com/zclconf/go-cty/cty"
)

// Operations.
const (
	OpSelect = "select"
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Params is everything needed to build one table request.
type Params struct {
	BaseURL string
	APIKey  string
	Table   string
	Op      string
	// Match is the row id update and delete filter on. When empty it is
	// taken from the "id" attribute of Previous, then of Payload.
	Match string
	// Columns is the select list; "*" when empty.
	Columns  string
	Payload  cty.Value
	Previous cty.Value
}

// Request is a fully built HTTP request for a PostgREST-style API.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Query   map[string]string
	Body    any
}

// BuildRequest validates p and translates it into a Request. It performs no
// I/O.
func BuildRequest(p Params) (Request, error) {
	kind := string(node.KindRelational)
	switch {
	case strings.TrimSpace(p.BaseURL) == "":
		return Request{}, faults.Config(kind, "base_url")
	case strings.TrimSpace(p.APIKey) == "":
		return Request{}, faults.Config(kind, "api_key")
	case strings.TrimSpace(p.Table) == "":
		return Request{}, faults.Config(kind, "table")
	}

	op := strings.ToLower(strings.TrimSpace(p.Op))
	if op == "" {
		op = OpSelect
	}

	req := Request{
		URL: fmt.Sprintf("%s/rest/v1/%s", strings.TrimRight(p.BaseURL, "/"), url.PathEscape(p.Table)),
		Headers: map[string]string{
			"apikey":        p.APIKey,
			"Authorization": "Bearer " + p.APIKey,
		},
		Query: map[string]string{},
	}

	switch op {
	case OpSelect:
		req.Method = http.MethodGet
		req.Query["select"] = "*"
		if p.Columns != "" {
			req.Query["select"] = p.Columns
		}
		if p.Match != "" {
			req.Query["id"] = "eq." + p.Match
		}
	case OpInsert:
		body, err := rowBody(p.Payload)
		if err != nil {
			return Request{}, err
		}
		req.Method = http.MethodPost
		req.Headers["Prefer"] = "return=representation"
		req.Body = body
	case OpUpdate, OpDelete:
		id := p.Match
		if id == "" {
			id = idOf(p.Previous)
		}
		if id == "" {
			id = idOf(p.Payload)
		}
		if id == "" {
			return Request{}, &faults.ConfigError{Kind: kind, Field: "match", Message: "no row id in match, previous payload or payload"}
		}
		req.Query["id"] = "eq." + id
		req.Headers["Prefer"] = "return=representation"
		if op == OpDelete {
			req.Method = http.MethodDelete
			break
		}
		body, err := rowBody(p.Payload)
		if err != nil {
			return Request{}, err
		}
		req.Method = http.MethodPatch
		req.Body = body
	default:
		return Request{}, &faults.ConfigError{Kind: kind, Field: "op", Message: fmt.Sprintf("unsupported operation %q", p.Op)}
	}
	return req, nil
}

// rowBody turns the payload into a row: objects are sent as-is, JSON text is
// decoded, anything else becomes {"content": text}.
func rowBody(v cty.Value) (any, error) {
	if v == cty.NilVal || v.IsNull() {
		return map[string]any{}, nil
	}
	if ty := v.Type(); ty.IsObjectType() || ty.IsMapType() {
		return payload.ToGo(v)
	}
	text := payload.Text(v)
	if decoded, err := payload.FromJSON([]byte(text)); err == nil {
		if ty := decoded.Type(); ty.IsObjectType() {
			return payload.ToGo(decoded)
		}
	}
	return map[string]any{"content": text}, nil
}

// idOf returns the "id" attribute of an object or map payload.
func idOf(v cty.Value) string {
	if v == cty.NilVal || v.IsNull() || !v.IsKnown() {
		return ""
	}
	ty := v.Type()
	if !(ty.IsObjectType() && ty.HasAttribute("id")) && !ty.IsMapType() {
		return ""
	}
	if ty.IsMapType() && !v.HasIndex(cty.StringVal("id")).True() {
		return ""
	}
	var raw cty.Value
	if ty.IsObjectType() {
		raw = v.GetAttr("id")
	} else {
		raw = v.Index(cty.StringVal("id"))
	}
	if raw.IsNull() {
		return ""
	}
	return payload.Text(raw)
}
