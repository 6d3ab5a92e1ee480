package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/engine"
	"github.com/vk/flowgrid/internal/history"
	"github.com/vk/flowgrid/internal/node"
	"github.com/vk/flowgrid/internal/nodestore"
	"github.com/vk/flowgrid/internal/payload"
	"github.com/zclconf/go-cty/cty"
)

// DefaultPort is used by Serve when no port is configured.
const DefaultPort = 8080

// maxWebhookBody bounds the size of a webhook delivery.
const maxWebhookBody = 10 << 20

type nodeView struct {
	ID     string         `json:"id"`
	Kind   string         `json:"kind"`
	Status string         `json:"status"`
	Fields map[string]any `json:"fields,omitempty"`
}

type reportView struct {
	RunID      string `json:"run_id"`
	Signal     string `json:"signal"`
	Dispatched int    `json:"dispatched"`
	Error      string `json:"error,omitempty"`
}

// Handler returns the HTTP control surface of the app.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("GET /nodes", a.handleNodes)
	mux.HandleFunc("GET /runs", a.handleRuns)
	mux.HandleFunc("GET /runs/{id}", a.handleRun)
	mux.HandleFunc("POST /runs", a.handleStartRun)
	mux.HandleFunc("POST /runs/cancel", a.handleCancel)
	mux.HandleFunc("POST /webhooks/{id}", a.handleWebhook)
	return mux
}

// Serve runs the HTTP server until ctx is done, then shuts it down
// gracefully and cancels any active run.
func (a *App) Serve(ctx context.Context) error {
	logger := ctxlog.FromContext(a.ctx)
	port := a.config.Port
	if port == 0 {
		port = DefaultPort
	}
	addr := fmt.Sprintf(":%d", port)
	a.httpServer = &http.Server{
		Addr:              addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("🩺 Server starting", "address", fmt.Sprintf("http://localhost%s/health", addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			logger.Error("Server failed unexpectedly", "error", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	a.engine.Cancel()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	logger.Info("🩺 Shutting down server...")
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", "error", err)
		return err
	}
	logger.Debug("Server shut down gracefully.")
	return nil
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctxlog.FromContext(a.ctx).Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (a *App) handleNodes(w http.ResponseWriter, r *http.Request) {
	nodes := a.graph.Nodes(r.Context())
	out := make([]nodeView, 0, len(nodes))
	for _, n := range nodes {
		v := nodeView{ID: n.ID, Kind: string(n.Kind), Status: n.Status.String()}
		if len(n.Fields) > 0 {
			v.Fields = make(map[string]any, len(n.Fields))
			for name, val := range n.Fields {
				if g, err := payload.ToGo(val); err == nil {
					v.Fields[name] = g
				} else {
					v.Fields[name] = payload.Text(val)
				}
			}
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *App) handleRuns(w http.ResponseWriter, r *http.Request) {
	if a.history == nil {
		writeError(w, http.StatusNotFound, "run history is disabled")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := a.history.Runs(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (a *App) handleRun(w http.ResponseWriter, r *http.Request) {
	if a.history == nil {
		writeError(w, http.StatusNotFound, "run history is disabled")
		return
	}
	id := r.PathValue("id")
	run, err := a.history.Run(r.Context(), id)
	if errors.Is(err, history.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	transitions, err := a.history.Transitions(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Run         history.Run          `json:"run"`
		Transitions []history.Transition `json:"transitions"`
	}{run, transitions})
}

func (a *App) handleStartRun(w http.ResponseWriter, r *http.Request) {
	report, err := a.Run(r.Context())
	if errors.Is(err, engine.ErrRunInProgress) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newReportView(report, err))
}

func (a *App) handleCancel(w http.ResponseWriter, r *http.Request) {
	if !a.engine.Cancel() {
		writeError(w, http.StatusConflict, "no run is active")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleWebhook stores the request body on a webhook node and starts a run
// in the background.
func (a *App) handleWebhook(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	n, ok := a.graph.Node(r.Context(), id)
	if !ok || n.Kind != node.KindWebhook {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no webhook node '%s'", id))
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The gate is held from before the value is stored until the run ends,
	// so a concurrent webhook cannot overwrite the payload of this run.
	claim, err := a.engine.Claim()
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	value := webhookValue(r.Header.Get("Content-Type"), body)
	if _, err := a.graph.Update(r.Context(), id, nodestore.Patch{}.With(node.FieldValue, value)); err != nil {
		claim.Release()
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ctxlog.FromContext(a.ctx).Info("Webhook received.", "node", id, "bytes", len(body), "payload_digest", payload.Digest(value))

	a.background.Add(1)
	go func() {
		defer a.background.Done()
		if _, err := a.runClaimed(a.ctx, claim); err != nil {
			ctxlog.FromContext(a.ctx).Warn("Webhook run did not finish ok.", "node", id, "error", err)
		}
	}()
	w.WriteHeader(http.StatusAccepted)
}

// webhookValue decodes JSON bodies into structured payloads. Other bodies
// are kept as text.
func webhookValue(contentType string, body []byte) cty.Value {
	if strings.HasPrefix(contentType, "application/json") {
		if v, err := payload.FromJSON(body); err == nil {
			return v
		}
	}
	return payload.String(string(body))
}

func newReportView(r engine.Report, err error) reportView {
	v := reportView{RunID: r.RunID, Signal: r.Signal.String(), Dispatched: r.Dispatched}
	if err != nil {
		v.Signal = engine.SignalOf(err).String()
		v.Error = err.Error()
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
