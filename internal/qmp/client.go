// Package qmp drives a QEMU guest through the QEMU Machine Protocol: it reads
// the guest display with screendump, injects keys with input-send-event and
// reports the machine's run state.
package qmp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Executor runs a single QMP command. out may be nil when the reply is ignored.
type Executor interface {
	Execute(ctx context.Context, command string, args any, out any) error
}

// CommandError is an error reply from the QMP server.
type CommandError struct {
	Class       string `json:"class"`
	Description string `json:"desc"`
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("qmp: %s: %s", e.Class, e.Description)
}

type request struct {
	Execute   string `json:"execute"`
	Arguments any    `json:"arguments,omitempty"`
	ID        uint64 `json:"id"`
}

type response struct {
	QMP    jsoniter.RawMessage `json:"QMP"`
	Return jsoniter.RawMessage `json:"return"`
	Error  *CommandError       `json:"error"`
	Event  string              `json:"event"`
	ID     *uint64             `json:"id"`
}

// Client is a QMP connection. Commands are serialized; asynchronous events
// received while waiting for a reply are logged and dropped.
type Client struct {
	conn   net.Conn
	dec    *jsoniter.Decoder
	enc    *jsoniter.Encoder
	mu     sync.Mutex
	nextID uint64
	logger *zap.Logger
}

// Dial connects to a QMP server on network ("unix" or "tcp") and negotiates capabilities.
func Dial(ctx context.Context, network, address string, logger *zap.Logger) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("qmp: failed to connect to %s %s: %w", network, address, err)
	}
	c, err := NewClient(ctx, conn, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// DialRetry is Dial for a target that may still be booting. Connection
// failures are retried with exponential backoff until maxWait has elapsed;
// a failed handshake is not retried. A non-positive maxWait makes one attempt.
func DialRetry(ctx context.Context, network, address string, maxWait time.Duration, logger *zap.Logger) (*Client, error) {
	if maxWait <= 0 {
		return Dial(ctx, network, address, logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = maxWait

	var (
		client   *Client
		attempts int
	)
	operation := func() error {
		attempts++
		var d net.Dialer
		conn, err := d.DialContext(ctx, network, address)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			logger.Debug("QMP endpoint not ready, retrying.", zap.String("address", address), zap.Int("attempt", attempts), zap.Error(err))
			return fmt.Errorf("qmp: failed to connect to %s %s: %w", network, address, err)
		}
		c, err := NewClient(ctx, conn, logger)
		if err != nil {
			conn.Close()
			return backoff.Permanent(err)
		}
		client = c
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	if attempts > 1 {
		logger.Info("Connected to QMP endpoint.", zap.String("address", address), zap.Int("attempts", attempts))
	}
	return client, nil
}

// NewClient performs the QMP handshake over an established connection.
func NewClient(ctx context.Context, conn net.Conn, logger *zap.Logger) (*Client, error) {
	if conn == nil {
		return nil, errors.New("connection cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		conn:   conn,
		dec:    json.NewDecoder(conn),
		enc:    json.NewEncoder(conn),
		logger: logger.Named("qmp"),
	}

	var greeting response
	err := c.withDeadline(ctx, func() error { return c.dec.Decode(&greeting) })
	if err != nil {
		return nil, fmt.Errorf("qmp: failed to read greeting: %w", err)
	}
	if len(greeting.QMP) == 0 {
		return nil, errors.New("qmp: server did not send a greeting")
	}
	c.logger.Debug("Received greeting", zap.ByteString("qmp", greeting.QMP))

	if err := c.Execute(ctx, "qmp_capabilities", nil, nil); err != nil {
		return nil, fmt.Errorf("qmp: capability negotiation failed: %w", err)
	}
	return c, nil
}

// Execute sends command and decodes the "return" member of the reply into out.
func (c *Client) Execute(ctx context.Context, command string, args any, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID

	return c.withDeadline(ctx, func() error {
		if err := c.enc.Encode(request{Execute: command, Arguments: args, ID: id}); err != nil {
			return fmt.Errorf("qmp: failed to send %s: %w", command, err)
		}
		for {
			var resp response
			if err := c.dec.Decode(&resp); err != nil {
				return fmt.Errorf("qmp: failed to read reply to %s: %w", command, err)
			}
			if resp.Event != "" {
				c.logger.Debug("Dropping asynchronous event", zap.String("event", resp.Event))
				continue
			}
			if resp.ID != nil && *resp.ID != id {
				c.logger.Debug("Dropping reply with unexpected id", zap.Uint64("id", *resp.ID))
				continue
			}
			if resp.Error != nil {
				return resp.Error
			}
			if out != nil && len(resp.Return) > 0 {
				if err := json.Unmarshal(resp.Return, out); err != nil {
					return fmt.Errorf("qmp: failed to decode reply to %s: %w", command, err)
				}
			}
			return nil
		}
	})
}

// withDeadline runs fn and interrupts its I/O once ctx is done.
func (c *Client) withDeadline(ctx context.Context, fn func() error) error {
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetDeadline(time.Unix(1, 0)) })
	defer func() {
		stop()
		_ = c.conn.SetDeadline(time.Time{})
	}()

	err := fn()
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
