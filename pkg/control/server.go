package control

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/devopin/agent/pkg/servicectl"
)

// Server is the control-plane socket server. It accepts connections on a Unix
// domain socket, decodes one JSON command per connection, dispatches it, and
// returns a JSON response. A logs_stream command upgrades the connection into
// a long-lived push stream.
//
// Lifecycle: stopped → listening → stopped. Stop is idempotent and reaps
// every active stream session.
type Server struct {
	socketPath string
	socketMode fs.FileMode
	manager    *servicectl.Manager
	streams    *streamRegistry
	logger     *slog.Logger

	mu        sync.Mutex
	listener  net.Listener
	listening bool
}

// NewServer creates a control-plane server. The socket is not bound until
// Start.
func NewServer(socketPath string, socketMode fs.FileMode, manager *servicectl.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		socketPath: socketPath,
		socketMode: socketMode,
		manager:    manager,
		streams:    newStreamRegistry(logger),
		logger:     logger,
	}
}

// Start binds the socket, removing any stale file at that path first, and
// blocks accepting connections until the context is cancelled or Stop is
// called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.listening {
		s.mu.Unlock()
		return fmt.Errorf("server already listening on %s", s.socketPath)
	}

	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.mu.Unlock()
		return fmt.Errorf("remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen %s: %w", s.socketPath, err)
	}
	// Restrictive-but-shared bits so the management plane's web process
	// can reach the socket.
	if err := os.Chmod(s.socketPath, s.socketMode); err != nil {
		ln.Close()
		s.mu.Unlock()
		return fmt.Errorf("chmod socket: %w", err)
	}

	s.listener = ln
	s.listening = true
	s.mu.Unlock()

	s.logger.Info("control server listening", "socket", s.socketPath)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || !s.isListening() {
				return nil
			}
			s.logger.Error("accept error", "err", err)
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

// Stop transitions out of listening, terminates every active stream session,
// closes the listening socket, and removes the socket file. Safe to call more
// than once.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.listening {
		s.mu.Unlock()
		return
	}
	s.listening = false
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()

	s.streams.stopAll()
	if ln != nil {
		ln.Close()
	}
	os.Remove(s.socketPath)
	s.logger.Info("control server stopped")
}

func (s *Server) isListening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

// handleConn reads one command, dispatches it, and writes the response. For
// logs_stream the relay goroutine takes ownership of the connection and this
// function must not close it.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	line, err := readCommand(conn)
	if err != nil || len(line) == 0 {
		conn.Close()
		return
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		writeResponse(conn, Fail("Invalid JSON format"))
		conn.Close()
		return
	}

	resp, keepOpen := s.dispatch(ctx, conn, req)
	if keepOpen {
		return
	}
	writeResponse(conn, resp)
	conn.Close()
}

// dispatch executes one decoded command. Handler panics are converted to
// failure responses; nothing a handler does may crash the server.
func (s *Server) dispatch(ctx context.Context, conn net.Conn, req Request) (resp Response, keepOpen bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("command handler panic", "command", req.Command, "panic", r)
			resp = Fail(fmt.Sprintf("Command execution failed: %v", r))
			keepOpen = false
		}
	}()

	if req.Command == "" {
		return Fail("No command specified"), false
	}

	switch req.Kind() {
	case KindStart, KindStop, KindRestart, KindEnable, KindDisable:
		return s.handleServiceAction(ctx, req), false

	case KindStatus:
		return s.handleStatus(ctx, req), false

	case KindLogsStream:
		resp, keepOpen := s.streams.start(ctx, conn, req)
		return resp, keepOpen

	case KindLogsStop:
		return s.handleLogsStop(req), false

	default:
		return Fail(fmt.Sprintf("Unknown command: %s", req.Command)), false
	}
}

func (s *Server) handleServiceAction(ctx context.Context, req Request) Response {
	if req.Service == "" {
		return Fail("Service name required")
	}
	out := s.manager.Action(ctx, req.Command, req.Service)
	return Response{Success: out.Success, Message: out.Message, Output: out.Output}
}

func (s *Server) handleStatus(ctx context.Context, req Request) Response {
	if req.Service == "" {
		return OK("Devopin agent is running and responsive")
	}
	detail, err := s.manager.Detail(ctx, req.Service)
	if err != nil {
		return Fail(fmt.Sprintf("Error checking service status: %v", err))
	}
	return Response{
		Success: true,
		Message: fmt.Sprintf("Service %s status retrieved", req.Service),
		Data:    detail,
	}
}

func (s *Server) handleLogsStop(req Request) Response {
	if req.StreamID != "" {
		if !s.streams.stop(req.StreamID) {
			return Fail(fmt.Sprintf("Stream not found: %s", req.StreamID))
		}
		return OK(fmt.Sprintf("Log stream %s stopped", req.StreamID))
	}
	n := s.streams.stopAll()
	return OK(fmt.Sprintf("Stopped %d log stream(s)", n))
}

// readCommand reads the single command line from a connection. A missing
// trailing newline before EOF still yields the payload.
func readCommand(conn net.Conn) ([]byte, error) {
	r := bufio.NewReaderSize(conn, 64*1024)
	line, err := r.ReadBytes('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		return line, err
	}
	return line, nil
}

func writeResponse(conn net.Conn, resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = conn.Write(data)
	return err
}
