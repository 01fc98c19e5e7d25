package control

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/nxadm/tail"
)

// termGrace is how long a stream source's subprocess gets to exit after
// SIGTERM before it is killed.
const termGrace = 3 * time.Second

// streamSource produces log lines for one session. Lines is closed when the
// underlying source ends; Stop terminates the source and is called exactly
// once, by the relay's cleanup path.
type streamSource interface {
	Lines() <-chan string
	Stop()
}

// session is one live log stream bound to a client connection. The session
// exclusively owns its source; the relay goroutine owns the connection once
// the acknowledgment frame is written.
type session struct {
	id        string
	target    string
	conn      net.Conn
	source    streamSource
	cancel    context.CancelFunc
	startedAt time.Time
	done      chan struct{}
}

// streamRegistry is the only state shared between the accept loop, relay
// goroutines, and the server's stop path. The lock guards map access only,
// never I/O.
type streamRegistry struct {
	mu       sync.Mutex
	sessions map[string]*session
	logger   *slog.Logger
}

func newStreamRegistry(logger *slog.Logger) *streamRegistry {
	return &streamRegistry{
		sessions: make(map[string]*session),
		logger:   logger,
	}
}

// start opens a streaming session for a logs_stream request. On success the
// acknowledgment frame has been written, a relay goroutine owns the
// connection, and keepOpen is true. On failure the returned response is sent
// by the caller over the still-owned connection.
func (r *streamRegistry) start(ctx context.Context, conn net.Conn, req Request) (Response, bool) {
	if req.Service == "" && req.Path == "" {
		return Fail("Service name required"), false
	}

	var (
		source streamSource
		target string
		err    error
	)
	if req.Path != "" {
		target = filepath.Base(req.Path)
		source, err = newFileSource(req.Path)
	} else {
		target = req.Service
		source, err = newJournalSource(req.Service)
	}
	if err != nil {
		return Fail(fmt.Sprintf("Cannot stream logs: %v", err)), false
	}

	sctx, cancel := context.WithCancel(ctx)
	sess := &session{
		id:        fmt.Sprintf("%s-%d", target, time.Now().UnixMilli()),
		target:    target,
		conn:      conn,
		source:    source,
		cancel:    cancel,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	r.sessions[sess.id] = sess
	r.mu.Unlock()

	ack := Response{
		Success:   true,
		Message:   fmt.Sprintf("Streaming logs for %s", target),
		Streaming: true,
		StreamID:  sess.id,
	}
	if err := writeResponse(conn, ack); err != nil {
		r.remove(sess.id)
		cancel()
		source.Stop()
		conn.Close()
		close(sess.done)
		return Response{}, true
	}

	r.logger.Info("log stream started", "stream", sess.id)
	go r.relay(sctx, sess)
	return Response{}, true
}

// relay forwards source lines to the client as logs_data frames, in emission
// order, until the source ends, the session is cancelled, or the client goes
// away. Cleanup runs exactly once: deregister, terminate the source, send the
// best-effort end frame, close the connection.
func (r *streamRegistry) relay(ctx context.Context, sess *session) {
	defer func() {
		r.remove(sess.id)
		sess.source.Stop()
		writeResponse(sess.conn, Response{
			Success:   true,
			Command:   FrameStreamEnded,
			StreamID:  sess.id,
			Timestamp: time.Now().Format(time.RFC3339),
		})
		sess.conn.Close()
		close(sess.done)
		r.logger.Info("log stream ended", "stream", sess.id)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-sess.source.Lines():
			if !ok {
				return
			}
			frame := Response{
				Success:   true,
				Command:   FrameLogsData,
				StreamID:  sess.id,
				Data:      line,
				Timestamp: time.Now().Format(time.RFC3339),
			}
			if err := writeResponse(sess.conn, frame); err != nil {
				// Client disconnected.
				return
			}
		}
	}
}

// stop cancels one session. False means the id is unknown; the call has no
// side effects in that case.
func (r *streamRegistry) stop(id string) bool {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	sess.cancel()
	return true
}

// stopAll cancels every session and waits for each relay to finish its
// cleanup, bounding the wait so shutdown cannot hang on a stuck subprocess.
func (r *streamRegistry) stopAll() int {
	r.mu.Lock()
	sessions := make([]*session, 0, len(r.sessions))
	for id, sess := range r.sessions {
		sessions = append(sessions, sess)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, sess := range sessions {
		sess.cancel()
	}
	for _, sess := range sessions {
		select {
		case <-sess.done:
		case <-time.After(termGrace + 2*time.Second):
			r.logger.Error("stream did not stop in time", "stream", sess.id)
		}
	}
	return len(sessions)
}

func (r *streamRegistry) remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// count reports the number of active sessions.
func (r *streamRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// journalSource follows the system journal for one service unit via a
// journalctl subprocess in line-per-event output mode.
type journalSource struct {
	cmd    *exec.Cmd
	lines  chan string
	exited chan struct{}
}

func newJournalSource(service string) (*journalSource, error) {
	// Capability probe: fail closed before spawning anything.
	if _, err := exec.LookPath("journalctl"); err != nil {
		return nil, fmt.Errorf("journalctl not available on this host")
	}

	cmd := exec.Command("journalctl", "-f", "-u", service, "-o", "cat")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("journalctl pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("journalctl start: %w", err)
	}

	j := &journalSource{
		cmd:    cmd,
		lines:  make(chan string, 100),
		exited: make(chan struct{}),
	}
	go j.read(stdout)
	return j, nil
}

func (j *journalSource) read(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case j.lines <- scanner.Text():
		default:
			// Slow consumer; drop rather than stall the reader.
		}
	}
	j.cmd.Wait()
	close(j.exited)
	close(j.lines)
}

func (j *journalSource) Lines() <-chan string { return j.lines }

// Stop terminates the subprocess group, escalating to SIGKILL after the
// grace window.
func (j *journalSource) Stop() {
	if j.cmd.Process == nil {
		return
	}
	pid := j.cmd.Process.Pid
	syscall.Kill(-pid, syscall.SIGTERM)

	select {
	case <-j.exited:
	case <-time.After(termGrace):
		syscall.Kill(-pid, syscall.SIGKILL)
		<-j.exited
	}
}

// fileSource follows a log file, surviving rotation.
type fileSource struct {
	t     *tail.Tail
	lines chan string
}

func newFileSource(path string) (*fileSource, error) {
	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Poll:      true,
		Location:  &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("tail %s: %w", path, err)
	}

	f := &fileSource{t: t, lines: make(chan string, 100)}
	go func() {
		for line := range t.Lines {
			if line.Err != nil {
				continue
			}
			select {
			case f.lines <- line.Text:
			default:
			}
		}
		close(f.lines)
	}()
	return f, nil
}

func (f *fileSource) Lines() <-chan string { return f.lines }

func (f *fileSource) Stop() {
	f.t.Stop()
	f.t.Cleanup()
}
