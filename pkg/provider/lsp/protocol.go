package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const jsonrpcVersion = "2.0"

var (
	// ErrClosed is returned for calls on a connection that has shut down.
	ErrClosed = errors.New("lsp connection closed")

	// ErrMissingLength is returned for a frame without a usable
	// Content-Length header.
	ErrMissingLength = errors.New("missing Content-Length header")
)

// ResponseError is an error object returned by the server.
type ResponseError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("lsp error %d: %s", e.Code, e.Message)
}

// message is any JSON-RPC message read from the wire. Requests carry a
// method and an id, notifications only a method, responses only an id.
type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// readFrame reads one Content-Length framed body.
func readFrame(r *bufio.Reader) ([]byte, error) {
	length := -1
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid Content-Length %q", value)
		}
		length = n
	}
	if length <= 0 {
		return nil, ErrMissingLength
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// writeFrame writes body with its Content-Length header in one write.
func writeFrame(w io.Writer, body []byte) error {
	frame := make([]byte, 0, len(body)+32)
	frame = append(frame, "Content-Length: "...)
	frame = strconv.AppendInt(frame, int64(len(body)), 10)
	frame = append(frame, "\r\n\r\n"...)
	frame = append(frame, body...)
	_, err := w.Write(frame)
	return err
}

// conn is a JSON-RPC 2.0 connection. Calls may be issued concurrently;
// responses are matched to callers by id on a single read goroutine.
type conn struct {
	rwc    io.ReadWriteCloser
	reader *bufio.Reader
	logger zerolog.Logger

	writeMu sync.Mutex
	nextID  atomic.Int64

	mu      sync.Mutex
	pending map[int64]chan *message
	closed  bool
	err     error
	done    chan struct{}
}

func newConn(rwc io.ReadWriteCloser, logger zerolog.Logger) *conn {
	c := &conn{
		rwc:     rwc,
		reader:  bufio.NewReader(rwc),
		logger:  logger,
		pending: make(map[int64]chan *message),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// call sends a request and decodes the result into out, which may be nil.
func (c *conn) call(ctx context.Context, method string, params, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	id := c.nextID.Add(1)
	ch := make(chan *message, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(request{JSONRPC: jsonrpcVersion, ID: id, Method: method, Params: params}); err != nil {
		return fmt.Errorf("write %s: %w", method, err)
	}

	select {
	case msg := <-ch:
		if msg.Error != nil {
			return msg.Error
		}
		if out == nil || len(msg.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(msg.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	case <-ctx.Done():
		go func() { _ = c.notify("$/cancelRequest", map[string]int64{"id": id}) }()
		return ctx.Err()
	case <-c.done:
		return c.closeErr()
	}
}

// notify sends a notification.
func (c *conn) notify(method string, params any) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return c.write(notification{JSONRPC: jsonrpcVersion, Method: method, Params: params})
}

func (c *conn) write(v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return writeFrame(c.rwc, body)
}

func (c *conn) readLoop() {
	for {
		body, err := readFrame(c.reader)
		if err != nil {
			c.shutdown(err)
			return
		}

		var msg message
		if err := json.Unmarshal(body, &msg); err != nil {
			c.logger.Debug().Err(err).Msg("dropping malformed lsp message")
			continue
		}
		c.dispatch(&msg)
	}
}

func (c *conn) dispatch(msg *message) {
	hasID := len(msg.ID) > 0 && string(msg.ID) != "null"

	switch {
	case msg.Method != "" && hasID:
		// Server requests (configuration, progress tokens, registrations)
		// get an empty answer. The reply is written off the read loop so a
		// server that is itself blocked writing cannot deadlock us.
		c.logger.Debug().Str("method", msg.Method).Msg("answering server request")
		go func(id json.RawMessage, method string) {
			if err := c.write(response{JSONRPC: jsonrpcVersion, ID: id, Result: json.RawMessage("null")}); err != nil {
				c.logger.Debug().Err(err).Str("method", method).Msg("failed to answer server request")
			}
		}(msg.ID, msg.Method)

	case msg.Method != "":
		c.logger.Trace().Str("method", msg.Method).Msg("server notification")

	case hasID:
		id, err := strconv.ParseInt(string(msg.ID), 10, 64)
		if err != nil {
			c.logger.Debug().Str("id", string(msg.ID)).Msg("response with foreign id")
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[id]
		c.mu.Unlock()
		if ok {
			select {
			case ch <- msg:
			default:
			}
		}
	}
}

// shutdown marks the connection closed and releases every waiting call.
func (c *conn) shutdown(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		err = ErrClosed
	}
	c.err = err
	close(c.done)
}

func (c *conn) closeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil || errors.Is(c.err, ErrClosed) {
		return ErrClosed
	}
	return fmt.Errorf("%w: %v", ErrClosed, c.err)
}

// close closes the transport. The read loop exits on its own.
func (c *conn) close() error {
	return c.rwc.Close()
}
