package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// StdioTransport serves the protocol over newline-delimited JSON on a
// reader/writer pair, the direct transport selected by --stdio.
type StdioTransport struct {
	handler *Handler
	in      io.Reader
	out     io.Writer
	mu      sync.Mutex
	logger  *zap.Logger
}

func NewStdioTransport(handler *Handler, in io.Reader, out io.Writer, logger *zap.Logger) *StdioTransport {
	return &StdioTransport{handler: handler, in: in, out: out, logger: logger}
}

// Run reads requests until EOF or context cancellation. Parse failures
// produce JSON-RPC error responses and the loop continues.
func (t *StdioTransport) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(t.in)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		req, rpcErr := ParseRequest(line)
		if rpcErr != nil {
			if err := t.write(NewError(nil, rpcErr.Code, rpcErr.Message)); err != nil {
				return err
			}
			continue
		}

		resp := t.handler.Dispatch(ctx, req)
		if resp == nil {
			continue
		}
		if err := t.write(resp); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stdio transport: %w", err)
	}
	t.logger.Info("Stdio transport closed")
	return nil
}

func (t *StdioTransport) write(resp *Response) error {
	body, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}
	body = append(body, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.out.Write(body); err != nil {
		return fmt.Errorf("writing stdio transport: %w", err)
	}
	return nil
}
