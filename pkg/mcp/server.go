package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/logger"
)

// maxLineBytes bounds a single JSON-RPC line. Large activity batches fit
// comfortably; anything bigger is a protocol violation.
const maxLineBytes = 4 << 20

// Server accepts MCP connections and runs one handling goroutine per
// connection. Requests within a connection are processed sequentially so
// responses keep arrival order.
type Server struct {
	addr    string
	handler *Handler

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a server listening on addr once Serve is called.
func NewServer(addr string, handler *Handler) *Server {
	return &Server{addr: addr, handler: handler}
}

// Serve listens and accepts until ctx is cancelled. It returns after every
// connection goroutine has finished.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	logger.Infow("MCP server listening", "addr", listener.Addr().String())

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := listener.Accept()
		if err != nil {
			wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accepting connection: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

// Addr returns the bound listen address, or empty before Serve.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	remote := conn.RemoteAddr().String()
	logger.Debugw("MCP connection opened", "remote", remote)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	writer := bufio.NewWriter(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		resp := func() *Response {
			if err := json.Unmarshal(line, &req); err != nil {
				return NewError(nil, CodeParseError, "Parse error")
			}
			return s.handler.Handle(connCtx, &req)
		}()

		if err := writeResponse(writer, resp); err != nil {
			logger.Warnw("Failed to write MCP response", "remote", remote, "error", err)
			return
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		logger.Debugw("MCP connection read error", "remote", remote, "error", err)
	}
	logger.Debugw("MCP connection closed", "remote", remote)
}

func writeResponse(w *bufio.Writer, resp *Response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		// Result failed to serialize; degrade to an internal error.
		payload, _ = json.Marshal(NewError(resp.ID, CodeInternalError, "Internal error"))
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}
