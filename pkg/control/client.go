package control

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client talks to the agent's control socket. The protocol is one command per
// connection, so each call dials a fresh connection.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a client for the given socket path.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath, timeout: 5 * time.Second}
}

// Do sends one command and returns its single response.
func (c *Client) Do(req Request) (Response, error) {
	conn, err := c.dial()
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	if err := writeRequest(conn, req); err != nil {
		return Response{}, err
	}
	return readResponse(bufio.NewReader(conn))
}

// Stream sends a logs_stream command and, on a streaming acknowledgment,
// returns the ack plus a channel of pushed frames. The channel closes when
// the server ends the stream or the connection drops; calling the returned
// closer tears the stream down client-side.
func (c *Client) Stream(req Request) (Response, <-chan Response, func(), error) {
	conn, err := c.dial()
	if err != nil {
		return Response{}, nil, nil, err
	}

	if err := writeRequest(conn, req); err != nil {
		conn.Close()
		return Response{}, nil, nil, err
	}

	r := bufio.NewReader(conn)
	ack, err := readResponse(r)
	if err != nil {
		conn.Close()
		return Response{}, nil, nil, err
	}
	if !ack.Streaming {
		conn.Close()
		if ack.Message != "" {
			return ack, nil, nil, fmt.Errorf("server refused stream: %s", ack.Message)
		}
		return ack, nil, nil, fmt.Errorf("server refused stream")
	}

	frames := make(chan Response, 100)
	go func() {
		defer close(frames)
		for {
			frame, err := readResponse(r)
			if err != nil {
				return
			}
			frames <- frame
			if frame.Command == FrameStreamEnded {
				return
			}
		}
	}()

	return ack, frames, func() { conn.Close() }, nil
}

func (c *Client) dial() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.socketPath, err)
	}
	return conn, nil
}

func writeRequest(conn net.Conn, req Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	return nil
}

func readResponse(r *bufio.Reader) (Response, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return Response{}, err
	}
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}
