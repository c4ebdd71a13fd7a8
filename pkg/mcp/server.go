// Package mcp serves forge's runtime state and predictions to MCP clients
// over stdio using JSON-RPC 2.0.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"k8s.io/klog/v2"

	"github.com/pario-ai/forge/pkg/benchstore"
	"github.com/pario-ai/forge/pkg/inference"
)

const protocolVersion = "2024-11-05"

// Server is a line-delimited JSON-RPC server. History may be nil.
type Server struct {
	svc     *inference.Service
	history benchstore.Store
	version string
}

// New creates a Server.
func New(svc *inference.Service, history benchstore.Store, version string) *Server {
	return &Server{svc: svc, history: history, version: version}
}

// Run serves requests read line by line from r until r is exhausted or ctx
// is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.write(w, errorResponse(nil, CodeParseError, "parse error"))
			continue
		}

		if resp := s.handle(ctx, &req); resp != nil {
			s.write(w, resp)
		}
	}
	return scanner.Err()
}

// handle returns nil for notifications.
func (s *Server) handle(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return resultResponse(req.ID, InitializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      ServerInfo{Name: "forge", Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		})
	case "notifications/initialized":
		return nil
	case "tools/list":
		return resultResponse(req.ID, map[string]any{"tools": tools})
	case "tools/call":
		var params CallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, "invalid params")
		}
		h, ok := handlers[params.Name]
		if !ok {
			return resultResponse(req.ID, errorResult("unknown tool: "+params.Name))
		}
		klog.V(2).InfoS("MCP tool call", "tool", params.Name)
		return resultResponse(req.ID, h(ctx, s, params.Arguments))
	default:
		return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *Server) write(w io.Writer, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		klog.ErrorS(err, "Failed to marshal MCP response")
		return
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		klog.ErrorS(err, "Failed to write MCP response")
	}
}
