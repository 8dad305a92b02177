package qumulo

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"lockwatch/internal/worm"
)

// streamScanBuffer bounds a single notification record batch.
const streamScanBuffer = 1 << 20

// RawNotification is one change-notification record as delivered by the
// cluster. Path is relative to the watched root. The id and timestamp
// fields are optional on some cluster versions.
type RawNotification struct {
	Type      string `json:"type"`
	Path      string `json:"path"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
}

// Stream is a live change-notification subscription. Records arrive in
// newline-delimited JSON batches; Next blocks until a batch arrives, the
// stream fails, or the context passed to Notifications is canceled.
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

// Notifications subscribes to change notifications for the watched root.
// kinds restricts the server-side type filter; recursive extends the watch
// to the whole subtree.
func (c *Client) Notifications(ctx context.Context, ref FileRef, recursive bool, kinds []string) (*Stream, error) {
	if c.bearerToken() == "" {
		if err := c.Login(ctx); err != nil {
			return nil, err
		}
	}

	query := url.Values{}
	if recursive {
		query.Set("recursive", "true")
	}
	if len(kinds) > 0 {
		query.Set("filter", strings.Join(kinds, ","))
	}

	endpoint := fmt.Sprintf("%s/v1/files/%s/notify", c.cfg.BaseURL, ref.segment())
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build notify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.bearerToken())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.streaming.Do(req)
	if err != nil {
		return nil, classifyTransport("notify subscribe", err)
	}
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		resp.Body.Close()
		return nil, classifyStatus("notify subscribe", resp.StatusCode, string(snippet))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), streamScanBuffer)
	return &Stream{body: resp.Body, scanner: scanner}, nil
}

// Next returns the next batch of notification records. It returns io.EOF
// when the cluster closes the stream cleanly and a connection-tagged error
// on transport failure. Empty keepalive lines are skipped.
func (s *Stream) Next() ([]RawNotification, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}

		var batch []RawNotification
		if err := json.Unmarshal([]byte(line), &batch); err != nil {
			// A single record object is tolerated as a one-element batch.
			var single RawNotification
			if err2 := json.Unmarshal([]byte(line), &single); err2 != nil {
				return nil, fmt.Errorf("%w: notify stream: decode record: %w", worm.ErrClassification, err)
			}
			batch = []RawNotification{single}
		}
		return batch, nil
	}

	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: notify stream: %w", worm.ErrConnection, err)
	}
	return nil, io.EOF
}

// Close terminates the subscription.
func (s *Stream) Close() error {
	if s == nil || s.body == nil {
		return nil
	}
	return s.body.Close()
}
