package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"voxmcp/log"
	"voxmcp/session"
)

const maxLineBytes = 1 << 20

type Server struct {
	svc      Service
	defaults session.Config
	name     string
	version  string
}

// NewServer serves svc. defaults seeds every listen call before its
// arguments are applied.
func NewServer(svc Service, defaults session.Config, version string) *Server {
	return &Server{svc: svc, defaults: defaults, name: "voxmcp", version: version}
}

// Serve reads newline-delimited requests from r until EOF or ctx is done.
// Each request runs on its own goroutine so a listen in progress does not
// hold up pings or a second listen, which fails fast with SessionBusy.
// Serve returns after every in-flight request has written its response.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	out := &lineWriter{w: w}
	lines := make(chan []byte)
	readErr := make(chan error, 1)

	go func() {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), maxLineBytes)
		for sc.Scan() {
			line := append([]byte(nil), sc.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("reading requests: %w", err)
			}
			return nil
		case line := <-lines:
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				if resp := s.Handle(ctx, line); resp != nil {
					if err := out.write(resp); err != nil {
						log.Errorf("mcp: writing response: %v", err)
					}
				}
			}()
		}
	}
}

// Handle processes one raw message. It returns nil for notifications.
func (s *Server) Handle(ctx context.Context, raw []byte) *Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		log.RPC("", nil, 0, err)
		return newError(nil, CodeParseError, "parse error: "+err.Error())
	}
	if req.JSONRPC != jsonrpcVersion || req.Method == "" {
		if req.IsNotification() {
			return nil
		}
		return newError(req.ID, CodeInvalidRequest, "invalid request")
	}

	start := time.Now()
	result, rpcErr := s.dispatch(ctx, &req)

	var logErr error
	if rpcErr != nil {
		logErr = rpcErr
	} else if tr, ok := result.(ToolResult); ok && tr.IsError {
		logErr = errors.New(tr.StructuredContent.Error)
	}
	log.RPC(req.Method, string(req.ID), time.Since(start), logErr)

	if req.IsNotification() {
		return nil
	}
	if rpcErr != nil {
		return newError(req.ID, rpcErr.Code, rpcErr.Message)
	}
	return newResult(req.ID, result)
}

func (s *Server) dispatch(ctx context.Context, req *Request) (any, *RPCError) {
	switch req.Method {
	case "initialize":
		return map[string]any{
			"protocolVersion": ProtocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": s.name, "version": s.version},
		}, nil
	case "ping", "notifications/initialized", "notifications/cancelled":
		return map[string]any{}, nil
	case "tools/list":
		return map[string]any{"tools": tools(s.defaults)}, nil
	case "tools/call":
		var p callParams
		if err := json.Unmarshal(req.Params, &p); err != nil || p.Name == "" {
			return nil, &RPCError{Code: CodeInvalidParams, Message: "tools/call needs a tool name"}
		}
		res, rpcErr := s.callTool(ctx, p)
		if rpcErr != nil {
			return nil, rpcErr
		}
		return res, nil
	default:
		return nil, &RPCError{Code: CodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)}
	}
}

// lineWriter serializes responses so concurrent handlers never interleave.
type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lineWriter) write(resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	lw.mu.Lock()
	defer lw.mu.Unlock()
	_, err = lw.w.Write(data)
	return err
}
