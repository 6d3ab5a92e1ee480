// Package socketio dispatches messaging nodes: the payload is emitted on a
// socket.io event and, when reply_event is set, the first reply is forwarded
// downstream.
package socketio

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/faults"
	"github.com/vk/flowgrid/internal/node"
	"github.com/vk/flowgrid/internal/payload"
	"github.com/vk/flowgrid/internal/registry"
	"github.com/vk/flowgrid/modules/http_client"
	"github.com/zclconf/go-cty/cty"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// DefaultTimeout bounds connect plus reply when the node sets no timeout_ms.
const DefaultTimeout = 10 * time.Second

// Input is a decoded messaging node.
type Input struct {
	URL                string
	Namespace          string
	Event              string
	ReplyEvent         string
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// Module implements the registry.Module interface for this package.
type Module struct {
	// Defaults holds the messaging section of the app config
	// (url, namespace).
	Defaults map[string]string
}

// Decode reads an Input from the node.
func (m *Module) Decode(n node.Node) (Input, error) {
	raw, err := http_client.Require(n, "url", m.Defaults)
	if err != nil {
		return Input{}, err
	}
	event, err := http_client.Require(n, "event", nil)
	if err != nil {
		return Input{}, err
	}
	in := Input{
		URL:                raw,
		Namespace:          http_client.Setting(n, "namespace", m.Defaults),
		Event:              event,
		ReplyEvent:         strings.TrimSpace(n.String("reply_event")),
		Timeout:            DefaultTimeout,
		InsecureSkipVerify: n.Bool("insecure_skip_verify", false),
	}
	if in.Namespace == "" {
		in.Namespace = "/"
	}
	if ms := n.Int("timeout_ms", 0); ms > 0 {
		in.Timeout = time.Duration(ms) * time.Millisecond
	}
	return in, nil
}

// opResult is a private struct to safely pass results through the done channel.
type opResult struct {
	value any
	err   error
}

// Emit connects, emits data on in.Event and, when in.ReplyEvent is set,
// waits for the first reply.
func Emit(ctx context.Context, in Input, data any) (any, error) {
	logger := ctxlog.FromContext(ctx).With("module", "socketio", "url", in.URL, "event", in.Event, "reply_event", in.ReplyEvent)
	logger.Debug("Handler started.")
	defer logger.Debug("Handler finished.")

	parsedURL, err := url.Parse(in.URL)
	if err != nil || parsedURL.Host == "" {
		return nil, &faults.ConfigError{Kind: string(node.KindMessaging), Field: "url", Message: fmt.Sprintf("invalid url %q", in.URL)}
	}

	var isConnected atomic.Bool
	done := make(chan opResult, 1)
	finish := func(r opResult) {
		select {
		case done <- r:
		default:
		}
	}
	opCtx, cancel := context.WithTimeout(ctx, in.Timeout)
	defer cancel()

	opts := socket.DefaultOptions()
	if parsedURL.Path != "" && parsedURL.Path != "/" {
		opts.SetPath(parsedURL.Path)
	}
	if in.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification.")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(in.Namespace, opts)
	defer func() {
		logger.Debug("Disconnecting socket client.")
		io.Disconnect()
	}()

	if in.ReplyEvent != "" {
		io.On(types.EventName(in.ReplyEvent), func(args ...any) {
			var reply any
			if len(args) > 0 {
				reply = args[0]
			}
			finish(opResult{value: reply})
		})
	}

	io.On(types.EventName("connect"), func(...any) {
		isConnected.Store(true)
		logger.Debug("Connected.", "namespace", in.Namespace, "sid", io.Id())
		io.Emit(in.Event, data)
		if in.ReplyEvent == "" {
			finish(opResult{value: data})
		}
	})

	io.On(types.EventName("connect_error"), func(errs ...any) {
		err := fmt.Errorf("socket.io connection failed")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = fmt.Errorf("socket.io connection failed: %w", e)
			}
		}
		finish(opResult{err: err})
	})

	io.Connect()

	select {
	case <-opCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if isConnected.Load() {
			return nil, fmt.Errorf("timed out after connecting while waiting for event '%s'", in.ReplyEvent)
		}
		return nil, fmt.Errorf("timed out while waiting for initial connection")
	case res := <-done:
		return res.value, res.err
	}
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler(node.KindMessaging, func(ctx context.Context, req registry.Request) (registry.Response, error) {
		in, err := m.Decode(req.Node)
		if err != nil {
			return registry.Response{}, err
		}
		data, err := payload.ToGo(req.Payload)
		if err != nil {
			return registry.Response{}, err
		}

		reply, err := Emit(ctx, in, data)
		if err != nil {
			return registry.Response{}, err
		}
		if in.ReplyEvent == "" {
			return registry.Response{Payload: req.Payload}, nil
		}
		out, err := payload.FromGo(reply)
		if err != nil {
			return registry.Response{}, err
		}
		return registry.Response{Payload: out, Fields: map[string]cty.Value{node.FieldValue: out}}, nil
	})
}
