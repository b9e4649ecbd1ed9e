package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// maxRestartsPerMinute bounds how often a crashing oracle is relaunched.
// Past the budget, calls answer not-found until the window clears.
const maxRestartsPerMinute = 3

// Client is the subprocess oracle. One long-lived process per Client,
// started lazily on first use and restarted on crash; never one per
// request. Requests and responses are newline-delimited JSON-RPC 2.0 on
// the child's stdin/stdout.
type Client struct {
	command string
	timeout time.Duration

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	enc    *json.Encoder
	dec    *json.Decoder
	nextID uint64
	starts []time.Time
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      string `json:"id"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *respError      `json:"error,omitempty"`
	ID      string          `json:"id"`
}

type respError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type positionParams struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Char int    `json:"char"`
}

// NewClient creates a subprocess oracle client. The process starts on the
// first call, not here.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		command: cfg.Command,
		timeout: timeout,
	}
}

// Hover returns the type string at a position.
func (c *Client) Hover(ctx context.Context, file string, line, char int) (string, bool) {
	raw, ok := c.call(ctx, "hover", positionParams{File: file, Line: line, Char: char})
	if !ok || len(raw) == 0 {
		return "", false
	}
	var res struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &res); err != nil || res.Type == "" {
		return "", false
	}
	return res.Type, true
}

// Definition returns the definition site of the symbol at a position.
func (c *Client) Definition(ctx context.Context, file string, line, char int) (Location, bool) {
	raw, ok := c.call(ctx, "definition", positionParams{File: file, Line: line, Char: char})
	if !ok || len(raw) == 0 {
		return Location{}, false
	}
	var loc Location
	if err := json.Unmarshal(raw, &loc); err != nil || loc.File == "" {
		return Location{}, false
	}
	return loc, true
}

// Close terminates the subprocess if one is running.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stop()
}

// call sends one request and waits for its response within the timeout.
// Calls are serialized; a timeout kills the process because the stream
// framing cannot be trusted afterwards.
func (c *Client) call(ctx context.Context, method string, params positionParams) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ensureStarted() {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.nextID++
	req := request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      fmt.Sprintf("req-%d", c.nextID),
	}
	if err := c.enc.Encode(req); err != nil {
		slog.Warn("oracle request failed, stopping process", slog.String("error", err.Error()))
		c.stop()
		return nil, false
	}

	type answer struct {
		resp response
		err  error
	}
	ch := make(chan answer, 1)
	dec := c.dec
	go func() {
		var resp response
		err := dec.Decode(&resp)
		ch <- answer{resp: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		slog.Warn("oracle call timed out, stopping process",
			slog.String("method", method),
			slog.Duration("timeout", c.timeout))
		c.stop()
		return nil, false
	case a := <-ch:
		if a.err != nil {
			slog.Warn("oracle response failed, stopping process", slog.String("error", a.err.Error()))
			c.stop()
			return nil, false
		}
		if a.resp.ID != req.ID {
			slog.Warn("oracle response out of sequence, stopping process",
				slog.String("want", req.ID),
				slog.String("got", a.resp.ID))
			c.stop()
			return nil, false
		}
		if a.resp.Error != nil {
			// The process is healthy; this position just has no answer.
			return nil, false
		}
		return a.resp.Result, true
	}
}

// ensureStarted launches the subprocess if needed, respecting the restart
// budget. Callers hold the mutex.
func (c *Client) ensureStarted() bool {
	if c.cmd != nil {
		return true
	}

	now := time.Now()
	recent := c.starts[:0]
	for _, t := range c.starts {
		if now.Sub(t) < time.Minute {
			recent = append(recent, t)
		}
	}
	c.starts = recent
	if len(c.starts) >= maxRestartsPerMinute {
		return false
	}

	argv := strings.Fields(c.command)
	if len(argv) == 0 {
		return false
	}
	cmd := exec.Command(argv[0], argv[1:]...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		slog.Warn("oracle stdin pipe failed", slog.String("error", err.Error()))
		return false
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		slog.Warn("oracle stdout pipe failed", slog.String("error", err.Error()))
		return false
	}

	c.starts = append(c.starts, now)
	if err := cmd.Start(); err != nil {
		slog.Warn("oracle failed to start",
			slog.String("command", argv[0]),
			slog.String("error", err.Error()))
		return false
	}

	c.cmd = cmd
	c.stdin = stdin
	c.enc = json.NewEncoder(stdin)
	c.dec = json.NewDecoder(stdout)
	slog.Info("oracle started", slog.String("command", argv[0]))
	return true
}

// stop kills and reaps the subprocess. Callers hold the mutex.
func (c *Client) stop() {
	if c.cmd == nil {
		return
	}
	_ = c.stdin.Close()
	if c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	_ = c.cmd.Wait()
	c.cmd = nil
	c.stdin = nil
	c.enc = nil
	c.dec = nil
}
