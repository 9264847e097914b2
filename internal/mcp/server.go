// Package mcp serves the tool registry over newline-delimited JSON-RPC 2.0 on
// stdio, implementing the tool subset of the Model Context Protocol.
package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/article-picker/internal/tools"
)

// Server identity reported during initialize.
const (
	ServerName    = "sns-post-plugin"
	ServerVersion = "0.1.0"
)

const (
	defaultProtocolVersion = "2024-11-05"
	maxMessageBytes        = 16 << 20
	defaultMaxInFlight     = 8
)

var supportedProtocolVersions = []string{"2025-06-18", "2025-03-26", "2024-11-05"}

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// ToolCaller lists and runs tools.
type ToolCaller interface {
	List() []tools.Definition
	Call(ctx context.Context, name string, args json.RawMessage) (string, error)
}

// Option customises a Server.
type Option func(*Server)

// WithMaxInFlight bounds how many tool calls run concurrently. Calls beyond
// the bound wait for a slot; the read loop keeps serving other messages.
func WithMaxInFlight(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxInFlight = n
		}
	}
}

// Server answers JSON-RPC requests read from one stream on another.
type Server struct {
	tools       ToolCaller
	logger      *zap.Logger
	maxInFlight int
	slots       *semaphore.Weighted

	writeMu sync.Mutex
	out     io.Writer

	cancelMu sync.Mutex
	inFlight map[string]context.CancelFunc
}

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func (r request) isNotification() bool {
	return len(r.ID) == 0
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type callResult struct {
	Content []content `json:"content"`
	IsError bool      `json:"isError"`
}

// NewServer builds a Server over toolCaller.
func NewServer(toolCaller ToolCaller, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		tools:       toolCaller,
		logger:      logger,
		maxInFlight: defaultMaxInFlight,
		inFlight:    make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve reads messages from in until EOF or ctx is done and writes responses
// to out. In-flight requests are waited for before returning.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.out = out
	s.slots = semaphore.NewWeighted(int64(s.maxInFlight))
	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxMessageBytes)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			msg := append([]byte(nil), line...)
			select {
			case lines <- msg:
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	g, gctx := errgroup.WithContext(ctx)
	s.logger.Info("stdio server started", zap.String("server", ServerName), zap.String("version", ServerVersion))

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			s.dispatch(gctx, g, line)
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}
	select {
	case err := <-readErr:
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
	default:
	}
	s.logger.Info("stdio server stopped")
	return nil
}

func (s *Server) dispatch(ctx context.Context, g *errgroup.Group, line []byte) {
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		s.logger.Warn("unparseable message", zap.Error(err))
		s.writeError(json.RawMessage("null"), codeParseError, "parse error")
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		if !req.isNotification() {
			s.writeError(req.ID, codeInvalidRequest, "invalid request")
		}
		return
	}

	switch req.Method {
	case "notifications/initialized":
		s.logger.Info("client initialized")
		return
	case "notifications/cancelled":
		s.cancel(req.Params)
		return
	}
	if req.isNotification() {
		s.logger.Debug("ignoring notification", zap.String("method", req.Method))
		return
	}

	if req.Method != "tools/call" {
		s.handle(ctx, req)
		return
	}

	reqCtx, cancel := context.WithCancel(ctx)
	key := string(req.ID)
	s.cancelMu.Lock()
	s.inFlight[key] = cancel
	s.cancelMu.Unlock()
	g.Go(func() error {
		defer func() {
			s.cancelMu.Lock()
			delete(s.inFlight, key)
			s.cancelMu.Unlock()
			cancel()
		}()
		if err := s.slots.Acquire(reqCtx, 1); err != nil {
			s.logger.Info("tool call dropped while queued", zap.ByteString("request_id", req.ID), zap.Error(err))
			s.writeResult(req.ID, callResult{Content: []content{{Type: "text", Text: err.Error()}}, IsError: true})
			return nil
		}
		defer s.slots.Release(1)
		s.handle(reqCtx, req)
		return nil
	})
}

func (s *Server) handle(ctx context.Context, req request) {
	switch req.Method {
	case "initialize":
		s.writeResult(req.ID, s.initialize(req.Params))
	case "ping":
		s.writeResult(req.ID, struct{}{})
	case "tools/list":
		s.writeResult(req.ID, map[string]any{"tools": s.tools.List()})
	case "tools/call":
		s.callTool(ctx, req)
	default:
		s.writeError(req.ID, codeMethodNotFound, "method not found: "+req.Method)
	}
}

func (s *Server) initialize(params json.RawMessage) map[string]any {
	var p struct {
		ProtocolVersion string `json:"protocolVersion"`
		ClientInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"clientInfo"`
	}
	_ = json.Unmarshal(params, &p)
	version := defaultProtocolVersion
	if slices.Contains(supportedProtocolVersions, p.ProtocolVersion) {
		version = p.ProtocolVersion
	}
	s.logger.Info("initialize",
		zap.String("client", p.ClientInfo.Name),
		zap.String("client_version", p.ClientInfo.Version),
		zap.String("protocol_version", version),
	)
	return map[string]any{
		"protocolVersion": version,
		"capabilities": map[string]any{
			"tools": map[string]any{"listChanged": false},
		},
		"serverInfo": map[string]string{"name": ServerName, "version": ServerVersion},
	}
}

func (s *Server) callTool(ctx context.Context, req request) {
	var p struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil || p.Name == "" {
		s.writeError(req.ID, codeInvalidParams, "tools/call requires a tool name")
		return
	}

	payload, err := s.tools.Call(ctx, p.Name, p.Arguments)
	switch {
	case err == nil:
		s.writeResult(req.ID, callResult{Content: []content{{Type: "text", Text: payload}}})
	case errors.Is(err, tools.ErrInvalidArguments), errors.Is(err, tools.ErrUnknownTool):
		s.writeError(req.ID, codeInvalidParams, err.Error())
	default:
		s.writeResult(req.ID, callResult{Content: []content{{Type: "text", Text: err.Error()}}, IsError: true})
	}
}

func (s *Server) cancel(params json.RawMessage) {
	var p struct {
		RequestID json.RawMessage `json:"requestId"`
		Reason    string          `json:"reason"`
	}
	if err := json.Unmarshal(params, &p); err != nil || len(p.RequestID) == 0 {
		return
	}
	s.cancelMu.Lock()
	cancel, ok := s.inFlight[string(p.RequestID)]
	s.cancelMu.Unlock()
	if ok {
		s.logger.Info("request cancelled", zap.ByteString("request_id", p.RequestID), zap.String("reason", p.Reason))
		cancel()
	}
}

func (s *Server) writeResult(id json.RawMessage, result any) {
	s.write(response{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) writeError(id json.RawMessage, code int, msg string) {
	s.write(response{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: msg}})
}

func (s *Server) write(resp response) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(resp); err != nil {
		s.logger.Error("encode response failed", zap.Error(err))
		buf.Reset()
		_ = enc.Encode(response{
			JSONRPC: "2.0",
			ID:      resp.ID,
			Error:   &rpcError{Code: codeInternalError, Message: "internal error"},
		})
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.out.Write(buf.Bytes()); err != nil {
		s.logger.Error("write response failed", zap.Error(err))
	}
}
