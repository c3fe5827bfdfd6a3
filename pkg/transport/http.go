// Copyright 2025 PulseGrid Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transport

import (
	"context"
	"crypto/tls"
	jsonstd "encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pulsegrid/pulsegrid-go/pkg/backoff"
	"github.com/pulsegrid/pulsegrid-go/pkg/models"
)

const (
	// longPollTimeout bounds subscribe-loop calls; the server holds them
	// open close to this long before replying with an empty delivery.
	longPollTimeout = 310 * time.Second
	// shortCallTimeout bounds heartbeat and leave calls.
	shortCallTimeout = 30 * time.Second
)

// HTTPTransport executes engine requests against the origin over HTTP
// long-poll. One instance serves both engines; it keeps no per-request
// state beyond the latency windows.
type HTTPTransport struct {
	origin       string
	subscribeKey string
	userID       string
	client       *http.Client
	windows      *latencyWindows
	logger       *zap.SugaredLogger
}

var _ Transport = (*HTTPTransport)(nil)

// HTTPConfig carries what the transport needs from the client config.
type HTTPConfig struct {
	Origin          string
	SubscribeKey    string
	UserID          string
	InsecureTLS     bool
	PresenceTimeout int
}

// NewHTTPTransport builds a transport with its own HTTP client. HTTP/2 is
// disabled: long-poll over h2 multiplexing buys nothing here and some
// middleboxes mishandle it.
func NewHTTPTransport(cfg HTTPConfig, logger *zap.SugaredLogger) *HTTPTransport {
	httpTransport := &http.Transport{
		ForceAttemptHTTP2: false,
		TLSNextProto:      make(map[string]func(authority string, c *tls.Conn) http.RoundTripper),
	}
	if cfg.InsecureTLS {
		httpTransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &HTTPTransport{
		origin:       strings.TrimRight(cfg.Origin, "/"),
		subscribeKey: cfg.SubscribeKey,
		userID:       cfg.UserID,
		client: &http.Client{
			Transport: httpTransport,
			// Per-call deadlines come from the request context; a client
			// timeout would cut long-polls short.
		},
		windows: newLatencyWindows(),
		logger:  logger,
	}
}

// HTTPClient exposes the underlying client, for test interception.
func (t *HTTPTransport) HTTPClient() *http.Client {
	return t.client
}

// FirstByteLatency summarizes the recent time-to-first-byte window.
func (t *HTTPTransport) FirstByteLatency() Latency { return summarize(t.windows.firstByte) }

// DNSLatency summarizes the recent DNS resolution window.
func (t *HTTPTransport) DNSLatency() Latency { return summarize(t.windows.dns) }

// TLSLatency summarizes the recent TLS handshake window.
func (t *HTTPTransport) TLSLatency() Latency { return summarize(t.windows.tls) }

// ConnLatency summarizes the recent TCP connect window.
func (t *HTTPTransport) ConnLatency() Latency { return summarize(t.windows.conn) }

// Execute implements Transport.
func (t *HTTPTransport) Execute(ctx context.Context, req Request) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok {
		timeout := shortCallTimeout
		if req.Kind == KindHandshake || req.Kind == KindReceive {
			timeout = longPollTimeout
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	reqURL, err := t.buildURL(req)
	if err != nil {
		return nil, backoff.NewPermanentError(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, backoff.NewPermanentError(err)
	}
	httpReq.Header.Set("Connection", "keep-alive")
	httpReq.Header.Set("Keep-Alive", "timeout=30, max=1000")

	var requestStart time.Time
	var timings requestTimings
	trace := setupClientTrace(&requestStart, &timings)

	requestStart = time.Now()
	response, err := t.client.Do(httpReq.WithContext(httptrace.WithClientTrace(httpReq.Context(), trace)))
	if err != nil {
		if ctx.Err() == context.Canceled {
			return nil, backoff.NewCancelledError(err)
		}
		return nil, backoff.NewTransientError(enhanceConnectionError(err))
	}
	defer func() {
		if closeErr := response.Body.Close(); closeErr != nil {
			t.logger.Errorf("Error closing response body: %v", closeErr)
		}
	}()

	t.windows.record(timings)

	bodyBytes, err := io.ReadAll(response.Body)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return nil, backoff.NewCancelledError(err)
		}
		return nil, backoff.NewTransientError(err)
	}

	if response.StatusCode < 200 || response.StatusCode > 399 {
		return nil, t.categorizeStatus(response.StatusCode, req.Kind, bodyBytes)
	}

	out := &Response{StatusCode: response.StatusCode}
	if req.Kind == KindHandshake || req.Kind == KindReceive {
		if err := decodeSubscribeBody(bodyBytes, out); err != nil {
			return nil, backoff.NewTransientError(err)
		}
	}
	return out, nil
}

func (t *HTTPTransport) buildURL(req Request) (string, error) {
	channels := ","
	if len(req.Channels) > 0 {
		escaped := make([]string, len(req.Channels))
		for i, c := range req.Channels {
			escaped[i] = url.PathEscape(c)
		}
		channels = strings.Join(escaped, ",")
	}

	query := url.Values{}
	query.Set("uuid", t.userID)
	if len(req.Groups) > 0 {
		query.Set("channel-group", strings.Join(req.Groups, ","))
	}

	switch req.Kind {
	case KindHandshake, KindReceive:
		cursor := req.Cursor
		if cursor.Timetoken == "" {
			cursor = models.ZeroCursor
		}
		query.Set("tt", cursor.Timetoken)
		if cursor.Region > 0 {
			query.Set("tr", strconv.Itoa(cursor.Region))
		}
		if req.PresenceTimeout > 0 {
			query.Set("heartbeat", strconv.Itoa(req.PresenceTimeout))
		}
		return fmt.Sprintf("%s/v2/subscribe/%s/%s/0?%s",
			t.origin, url.PathEscape(t.subscribeKey), channels, query.Encode()), nil
	case KindHeartbeat:
		if req.PresenceTimeout > 0 {
			query.Set("heartbeat", strconv.Itoa(req.PresenceTimeout))
		}
		return fmt.Sprintf("%s/v2/presence/sub-key/%s/channel/%s/heartbeat?%s",
			t.origin, url.PathEscape(t.subscribeKey), channels, query.Encode()), nil
	case KindLeave:
		return fmt.Sprintf("%s/v2/presence/sub-key/%s/channel/%s/leave?%s",
			t.origin, url.PathEscape(t.subscribeKey), channels, query.Encode()), nil
	default:
		return "", fmt.Errorf("unknown request kind %q", req.Kind)
	}
}

func (t *HTTPTransport) categorizeStatus(statusCode int, kind Kind, body []byte) error {
	err := fmt.Errorf("%s request failed with status %d: %s", kind, statusCode, truncateBody(body))
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return backoff.NewPermanentError(err)
	case statusCode >= 500 || statusCode == http.StatusTooManyRequests:
		return backoff.NewTransientError(err)
	case statusCode >= 400:
		return backoff.NewPermanentError(err)
	default:
		return backoff.NewTransientError(err)
	}
}

func truncateBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		return string(body[:maxLen]) + "..."
	}
	return string(body)
}

// subscribe-loop wire format:
//
//	{"t":{"t":"17000000000000000","r":4},"m":[{"c":"room1","b":"group1","i":"user-1","p":{"t":"...","r":4},"d":{...}}]}
type subscribeEnvelope struct {
	Cursor   wireCursor    `json:"t"`
	Messages []wireMessage `json:"m"`
}

type wireCursor struct {
	Timetoken string `json:"t"`
	Region    int    `json:"r"`
}

type wireMessage struct {
	Channel           string             `json:"c"`
	SubscriptionMatch string             `json:"b"`
	Publisher         string             `json:"i"`
	Position          wireCursor         `json:"p"`
	Payload           jsonstd.RawMessage `json:"d"`
}

func decodeSubscribeBody(body []byte, out *Response) error {
	var envelope subscribeEnvelope
	if err := safeUnmarshal(body, &envelope); err != nil {
		return fmt.Errorf("failed to decode subscribe response: %w", err)
	}
	if envelope.Cursor.Timetoken == "" {
		return errors.New("subscribe response carries no cursor")
	}
	out.Cursor = models.Cursor{Timetoken: envelope.Cursor.Timetoken, Region: envelope.Cursor.Region}
	out.Messages = make([]models.Message, 0, len(envelope.Messages))
	for _, m := range envelope.Messages {
		out.Messages = append(out.Messages, models.Message{
			Channel:           m.Channel,
			SubscriptionMatch: m.SubscriptionMatch,
			Publisher:         m.Publisher,
			Timetoken:         models.Cursor{Timetoken: m.Position.Timetoken, Region: m.Position.Region},
			Payload:           []byte(m.Payload),
		})
	}
	return nil
}

// requestTimings holds per-phase request latencies.
type requestTimings struct {
	firstByte time.Duration
	dns       time.Duration
	tls       time.Duration
	conn      time.Duration
}

// setupClientTrace creates an http trace with timing measurements.
func setupClientTrace(requestStart *time.Time, timings *requestTimings) *httptrace.ClientTrace {
	var dnsStart, tlsStart, connStart time.Time

	return &httptrace.ClientTrace{
		DNSStart: func(_ httptrace.DNSStartInfo) {
			dnsStart = time.Now()
		},
		DNSDone: func(_ httptrace.DNSDoneInfo) {
			timings.dns = time.Since(dnsStart)
		},
		TLSHandshakeStart: func() {
			tlsStart = time.Now()
		},
		TLSHandshakeDone: func(_ tls.ConnectionState, _ error) {
			timings.tls = time.Since(tlsStart)
		},
		ConnectStart: func(_, _ string) {
			connStart = time.Now()
		},
		ConnectDone: func(_, _ string, _ error) {
			timings.conn = time.Since(connStart)
		},
		GotFirstResponseByte: func() {
			timings.firstByte = time.Since(*requestStart)
		},
	}
}

// enhanceConnectionError adds detailed context to common connection errors.
func enhanceConnectionError(err error) error {
	switch {
	case strings.Contains(err.Error(), "EOF"):
		return fmt.Errorf("connection closed unexpectedly before receiving response: %w", err)
	case strings.Contains(err.Error(), "timeout") || strings.Contains(err.Error(), "deadline exceeded"):
		return fmt.Errorf("request timed out: %w", err)
	case strings.Contains(err.Error(), "connection refused"):
		return fmt.Errorf("connection refused: %w", err)
	default:
		return fmt.Errorf("connection error: %w", err)
	}
}
