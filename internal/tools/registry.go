// Package tools exposes the article fetchers as named, JSON-in/JSON-out tools
// shared by the HTTP and stdio surfaces.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/article-picker/internal/article"
	"github.com/JakeFAU/article-picker/internal/metrics"
)

var (
	// ErrUnknownTool is returned when no tool is registered under the requested name.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInvalidArguments is returned when the argument object is missing required
	// fields or carries values of the wrong type.
	ErrInvalidArguments = errors.New("invalid arguments")
)

// Call statuses recorded in metrics.
const (
	statusOK          = "ok"
	statusInvalidArgs = "invalid_arguments"
	statusNoArticles  = "no_articles"
	statusError       = "error"
)

// Definition describes one tool and its argument schema.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// Handler executes a tool and returns a JSON-serialisable result.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

type entry struct {
	def     Definition
	handler Handler
}

// Registry dispatches tool calls by name.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	ids     article.IDGenerator
	logger  *zap.Logger
}

// NewRegistry builds an empty Registry.
func NewRegistry(ids article.IDGenerator, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		entries: make(map[string]entry),
		ids:     ids,
		logger:  logger,
	}
}

// Register adds or replaces a tool.
func (r *Registry) Register(def Definition, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[def.Name] = entry{def: def, handler: handler}
}

// List returns every definition sorted by name.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.entries))
	for _, e := range r.entries {
		defs = append(defs, e.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Call runs the named tool and returns its result as indented JSON text.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (string, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		metrics.ObserveToolCall(name, statusError, 0)
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	logger := r.logger.With(zap.String("tool", name))
	if r.ids != nil {
		if id, err := r.ids.NewID(); err == nil {
			logger = logger.With(zap.String("call_id", id))
		}
	}

	start := time.Now()
	logger.Info("tool call started")
	result, err := e.handler(ctx, normalizeArgs(args))
	if err == nil {
		var payload string
		payload, err = encode(result)
		if err == nil {
			metrics.ObserveToolCall(name, statusOK, time.Since(start))
			logger.Info("tool call finished", zap.Duration("duration", time.Since(start)))
			return payload, nil
		}
	}

	status := statusError
	switch {
	case errors.Is(err, ErrInvalidArguments):
		status = statusInvalidArgs
	case errors.Is(err, article.ErrNoArticles):
		status = statusNoArticles
	}
	metrics.ObserveToolCall(name, status, time.Since(start))
	logger.Error("tool call failed", zap.String("status", status), zap.Error(err))
	return "", err
}

func normalizeArgs(args json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("{}")
	}
	return trimmed
}

func encode(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encode tool result: %w", err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

func decodeArgs(args json.RawMessage, out any) error {
	if err := json.Unmarshal(args, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}
