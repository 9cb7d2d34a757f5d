package knowledge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"ariadne/internal/logging"

	"go.uber.org/zap"
)

// ErrDisabled is returned by every operation when no graph server is
// configured. Callers treat it like any other unavailable collaborator.
var ErrDisabled = errors.New("knowledge: graph disabled")

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Client speaks JSON-RPC over stdio to a memory server subprocess. The
// subprocess starts lazily on the first call and is reused until Close.
type Client struct {
	mu sync.Mutex

	command string
	args    []string
	logger  *zap.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	connected bool
	pending   map[int]chan *rpcResponse
	nextID    int

	wg sync.WaitGroup
}

// NewClient creates a client for the given server command line. An
// empty command produces a disabled client whose operations fail fast
// with ErrDisabled.
func NewClient(command string, logger *zap.Logger) *Client {
	parts := strings.Fields(command)
	var cmd string
	var args []string
	if len(parts) > 0 {
		cmd = parts[0]
		args = parts[1:]
	}
	return &Client{
		command: cmd,
		args:    args,
		logger:  logging.OrNop(logger),
		pending: make(map[int]chan *rpcResponse),
		nextID:  1,
	}
}

// Enabled reports whether a server command is configured.
func (c *Client) Enabled() bool {
	return c.command != ""
}

// CreateEntities writes entities and their relations to the graph.
func (c *Client) CreateEntities(ctx context.Context, entities []Entity, relations []Relation) error {
	if len(entities) == 0 && len(relations) == 0 {
		return nil
	}
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}

	if len(entities) > 0 {
		if _, err := c.callTool(ctx, "create_entities", map[string]interface{}{
			"entities": entities,
		}); err != nil {
			return fmt.Errorf("failed to create entities: %w", err)
		}
	}
	if len(relations) > 0 {
		if _, err := c.callTool(ctx, "create_relations", map[string]interface{}{
			"relations": relations,
		}); err != nil {
			return fmt.Errorf("failed to create relations: %w", err)
		}
	}
	return nil
}

// SearchNodes queries the graph. The query is typically a naming
// prefix such as CheckpointPrefix.
func (c *Client) SearchNodes(ctx context.Context, query string) (*SearchResult, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}

	text, err := c.callTool(ctx, "search_nodes", map[string]interface{}{
		"query": query,
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	result, err := parseSearchResult(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search result: %w", err)
	}
	return result, nil
}

// Close kills the subprocess and waits briefly for the reader
// goroutines to drain.
func (c *Client) Close() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	c.connected = false

	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	if c.stdin != nil {
		_ = c.stdin.Close()
	}

	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		c.logger.Warn("timeout waiting for graph client readers to exit")
	}
	return nil
}

// ensureConnected starts the subprocess and performs the initialize
// handshake on first use.
func (c *Client) ensureConnected(ctx context.Context) error {
	if !c.Enabled() {
		return ErrDisabled
	}

	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}

	cmd := exec.Command(c.command, c.args...)

	var err error
	if c.stdin, err = cmd.StdinPipe(); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	if c.stdout, err = cmd.StdoutPipe(); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	if c.stderr, err = cmd.StderrPipe(); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to start graph server %s: %w", c.command, err)
	}
	c.cmd = cmd
	c.connected = true

	c.wg.Add(1)
	go c.readStderr()
	c.wg.Add(1)
	go c.readStdout()
	c.mu.Unlock()

	if err := c.initialize(ctx); err != nil {
		c.Close()
		return fmt.Errorf("graph server handshake failed: %w", err)
	}
	c.logger.Debug("knowledge graph server connected", zap.String("command", c.command))
	return nil
}

// initialize performs the MCP handshake: one initialize call, then the
// initialized notification, which carries no ID and gets no response.
func (c *Client) initialize(ctx context.Context) error {
	_, err := c.call(ctx, "initialize", map[string]interface{}{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]string{
			"name":    "ariadne",
			"version": "1.0.0",
		},
	})
	if err != nil {
		return err
	}

	notification := map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "notifications/initialized",
	}
	data, _ := json.Marshal(notification)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stdin != nil {
		_, _ = c.stdin.Write(append(data, '\n'))
	}
	return nil
}

// callTool invokes one server tool and returns its text payload.
func (c *Client) callTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	resp, err := c.call(ctx, "tools/call", map[string]interface{}{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return "", err
	}
	return parseToolText(resp.Result)
}

// call sends one request and waits for its response or ctx expiry.
func (c *Client) call(ctx context.Context, method string, params interface{}) (*rpcResponse, error) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil, errors.New("not connected to graph server")
	}

	id := c.nextID
	c.nextID++

	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	ch := make(chan *rpcResponse, 1)
	c.pending[id] = ch

	data, err := json.Marshal(req)
	if err != nil {
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	if _, err := c.stdin.Write(append(data, '\n')); err != nil {
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("failed to write to graph server: %w", err)
	}
	c.mu.Unlock()

	select {
	case resp := <-ch:
		if resp == nil {
			return nil, errors.New("graph server connection closed")
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("graph server error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// readStdout dispatches JSON-RPC responses to their waiting callers.
func (c *Client) readStdout() {
	defer c.wg.Done()
	scanner := bufio.NewScanner(c.stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			c.logger.Warn("unparseable line from graph server", zap.Error(err))
			continue
		}
		if resp.ID == 0 {
			// Server notification; nothing waits on these.
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
			ch <- &resp
		}
		c.mu.Unlock()
	}

	if err := scanner.Err(); err != nil {
		c.mu.Lock()
		connected := c.connected
		c.mu.Unlock()
		if connected {
			c.logger.Warn("graph server stdout closed", zap.Error(err))
		}
	}
}

// readStderr drains server diagnostics into the debug log.
func (c *Client) readStderr() {
	defer c.wg.Done()
	scanner := bufio.NewScanner(c.stderr)
	for scanner.Scan() {
		c.logger.Debug("graph server stderr", zap.String("line", scanner.Text()))
	}
}

// parseToolText unwraps the text content of a tools/call result.
func parseToolText(result json.RawMessage) (string, error) {
	var payload struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return "", fmt.Errorf("malformed tool result: %w", err)
	}

	var text string
	for _, item := range payload.Content {
		if item.Type == "text" {
			text = item.Text
			break
		}
	}
	if payload.IsError {
		return "", fmt.Errorf("tool reported error: %s", text)
	}
	return text, nil
}

// parseSearchResult decodes the graph JSON embedded in a search_nodes
// text payload.
func parseSearchResult(text string) (*SearchResult, error) {
	var result SearchResult
	if text == "" {
		return &result, nil
	}
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, err
	}
	return &result, nil
}
