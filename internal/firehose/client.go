package firehose

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pingInterval = 30 * time.Second
	readTimeout  = 60 * time.Second
)

// Frame is one fully-decoded firehose message: the header plus whichever
// body type its t field selected. Exactly one of the body fields is set.
type Frame struct {
	Header    Header
	Commit    *Commit
	Tombstone *Tombstone
	Handle    *Handle
	Migrate   *Migrate
	Info      *Info
}

// Handler is called once per decoded frame, in arrival order.
type Handler func(ctx context.Context, f Frame) error

// Client maintains a resumable websocket subscription to a relay's repo
// event stream.
type Client struct {
	log  *slog.Logger
	dial websocket.Dialer
}

// New constructs a Client with the teacher's standard dial timeout.
func New(log *slog.Logger) *Client {
	return &Client{
		log:  log,
		dial: websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Run connects to host's subscribeRepos endpoint, resuming from the cursor
// when getCursor reports one, and calls handle for every decoded frame until
// ctx is cancelled or five connections in a row end in an error (a failed
// dial, a read error, a protocol violation, or an error from handle).
//
// On a dropped connection it reconnects with exponential backoff, reading
// the current cursor fresh from getCursor each time so a restart always
// resumes where the last committed frame left off.
func (c *Client) Run(ctx context.Context, host string, getCursor func() (int64, bool), handle Handler) error {
	const (
		maxConsecutiveErrs = 5
		initialBackoff     = 1 * time.Second
	)

	errCount := 0
	backoff := initialBackoff

	for {
		if ctx.Err() != nil {
			return nil
		}

		err := c.runOnce(ctx, host, getCursor, handle)
		if errors.Is(err, context.Canceled) {
			return nil
		}

		if err == nil {
			errCount = 0
			backoff = initialBackoff
			c.log.Info("firehose connection closed normally, reconnecting")
			continue
		}

		errCount++
		c.log.Error("firehose connection failed", "err", err, "consecutive_errors", errCount)

		if errCount >= maxConsecutiveErrs {
			return fmt.Errorf("firehose connection failed %d consecutive times: %w", errCount, err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff = min(backoff*2, 10*time.Second)
	}
}

func subscribeURL(host string, cursor int64, haveCursor bool) string {
	u := host + "/xrpc/com.atproto.sync.subscribeRepos"
	if haveCursor {
		q := url.Values{}
		q.Set("cursor", fmt.Sprintf("%d", cursor))
		u += "?" + q.Encode()
	}
	return u
}

func (c *Client) runOnce(ctx context.Context, host string, getCursor func() (int64, bool), handle Handler) error {
	cursor, haveCursor := getCursor()
	dialURL := subscribeURL(host, cursor, haveCursor)

	conn, _, err := c.dial.DialContext(ctx, dialURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to firehose at %q: %w", dialURL, err)
	}
	defer conn.Close() //nolint:errcheck

	c.log.Info("connected to firehose", "url", dialURL)

	pingDone := make(chan struct{})
	go c.pingLoop(ctx, conn, pingDone)
	defer close(pingDone)

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return fmt.Errorf("failed to set websocket read deadline: %w", err)
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				c.log.Warn("firehose read timed out, continuing")
				continue
			}

			return fmt.Errorf("failed to read firehose message: %w", err)
		}

		f, err := decodeFrame(data)
		if err != nil {
			// decodeFrame only ever returns ErrFirehoseError, ErrUnknownOp,
			// or ErrMalformed: all three are protocol violations, so the
			// stream tears down rather than silently skipping a frame we
			// can't trust.
			return fmt.Errorf("firehose protocol violation: %w", err)
		}

		if err := handle(ctx, f); err != nil {
			return fmt.Errorf("failed to handle firehose frame: %w", err)
		}
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				c.log.Warn("failed to send firehose ping", "err", err)
			}
		}
	}
}

func decodeFrame(data []byte) (Frame, error) {
	br := bufio.NewReader(bytes.NewReader(data))

	header, err := ReadHeader(br)
	if err != nil {
		return Frame{}, err
	}

	if header.Op == -1 {
		body, err := ReadErrorBody(br)
		if err != nil {
			return Frame{}, fmt.Errorf("%w: decoding error body: %w", ErrFirehoseError, err)
		}
		return Frame{}, fmt.Errorf("%w: %s: %s", ErrFirehoseError, body.Error, body.Message)
	}
	if header.Op != 1 {
		return Frame{}, fmt.Errorf("%w: %d", ErrUnknownOp, header.Op)
	}

	f := Frame{Header: header}

	switch header.Type {
	case "#commit":
		c, err := ReadCommit(br)
		if err != nil {
			return Frame{}, err
		}
		f.Commit = &c
	case "#tombstone":
		t, err := ReadTombstone(br)
		if err != nil {
			return Frame{}, err
		}
		f.Tombstone = &t
	case "#handle":
		h, err := ReadHandle(br)
		if err != nil {
			return Frame{}, err
		}
		f.Handle = &h
	case "#migrate":
		m, err := ReadMigrate(br)
		if err != nil {
			return Frame{}, err
		}
		f.Migrate = &m
	case "#info":
		i, err := ReadInfo(br)
		if err != nil {
			return Frame{}, err
		}
		f.Info = &i
	default:
		return Frame{}, fmt.Errorf("%w: unknown frame type %q", ErrMalformed, header.Type)
	}

	return f, nil
}
