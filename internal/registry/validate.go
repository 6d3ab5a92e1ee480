package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/node"
)

// Validate checks that every node dispatched through the registry has a
// handler. Entry and control-flow kinds are skipped.
func (r *Registry) Validate(ctx context.Context, nodes []node.Node) error {
	logger := ctxlog.FromContext(ctx)
	var errs []string
	for _, n := range nodes {
		if n.Kind.IsEntry() || n.Kind.IsControlFlow() {
			continue
		}
		if _, ok := r.handlers[n.Kind]; !ok {
			errs = append(errs, fmt.Sprintf("node '%s': no handler registered for kind '%s'", n.ID, n.Kind))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	logger.Debug("Registry validation passed.", "nodes", len(nodes))
	return nil
}
