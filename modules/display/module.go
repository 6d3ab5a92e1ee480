// Package display handles the terminal display nodes. message_output and
// image_output record the payload on the node and, when the module has a
// writer, print it.
package display

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/node"
	"github.com/vk/flowgrid/internal/payload"
	"github.com/vk/flowgrid/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// FieldMime holds the media type of the last image shown by an image_output
// node.
const FieldMime = "mime"

// Module implements the registry.Module interface for this package.
type Module struct {
	// Out receives printed payloads. Nil disables printing.
	Out io.Writer

	mu sync.Mutex
}

// Register registers the handlers with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler(node.KindMessageOutput, m.onMessage)
	r.RegisterHandler(node.KindImageOutput, m.onImage)
}

func (m *Module) onMessage(ctx context.Context, req registry.Request) (registry.Response, error) {
	ctxlog.FromContext(ctx).Debug("Displaying message.", "node", req.Node.ID)
	text := payload.Text(req.Payload)
	m.printf("%s:\n", req.Node.ID)
	for _, line := range strings.Split(text, "\n") {
		m.printf("      %s\n", line)
	}
	return registry.Response{Payload: req.Payload, Fields: map[string]cty.Value{node.FieldValue: req.Payload}}, nil
}

func (m *Module) onImage(ctx context.Context, req registry.Request) (registry.Response, error) {
	uri := strings.TrimSpace(payload.Text(req.Payload))
	mime, err := imageMime(uri)
	if err != nil {
		return registry.Response{}, fmt.Errorf("image_output '%s': %w", req.Node.ID, err)
	}
	ctxlog.FromContext(ctx).Debug("Displaying image.", "node", req.Node.ID, "mime", mime)

	shown := uri
	if strings.HasPrefix(uri, "data:") {
		shown = fmt.Sprintf("<%s, %d bytes encoded>", mime, len(uri))
	}
	m.printf("%s:\n      %s\n", req.Node.ID, shown)

	return registry.Response{Payload: req.Payload, Fields: map[string]cty.Value{
		node.FieldValue: cty.StringVal(uri),
		FieldMime:       cty.StringVal(mime),
	}}, nil
}

// imageMime returns the media type of a data URI, or "" for http(s) URLs.
func imageMime(uri string) (string, error) {
	switch {
	case strings.HasPrefix(uri, "data:"):
		meta, _, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
		if !ok {
			return "", fmt.Errorf("malformed data uri")
		}
		mime := strings.TrimSuffix(meta, ";base64")
		if !strings.HasPrefix(mime, "image/") {
			return "", fmt.Errorf("data uri is %q, not an image", mime)
		}
		return mime, nil
	case strings.HasPrefix(uri, "https://"), strings.HasPrefix(uri, "http://"):
		return "", nil
	default:
		return "", fmt.Errorf("payload is not an image uri")
	}
}

func (m *Module) printf(format string, args ...any) {
	if m.Out == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	fmt.Fprintf(m.Out, format, args...)
}
