package npd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is the production NPD ("Мой налог") API.
const DefaultBaseURL = "https://lknpd.nalog.ru/api/v1"

const (
	checkTimeout  = 15 * time.Second
	submitTimeout = 40 * time.Second
)

// TransportError wraps connection/timeout failures where no HTTP response
// was obtained. Non-2xx statuses are returned as a normal Response so the
// pipeline can classify them.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "npd transport: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is a transport-level failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Response is the classified outcome of a submission attempt.
type Response struct {
	StatusCode int
	Body       string
}

// Taxpayer is the identity behind a token, from the /taxpayer endpoint.
type Taxpayer struct {
	DisplayName string `json:"displayName"`
	INN         string `json:"inn"`
}

// Client talks to the NPD API on behalf of one taxpayer token.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// NewClient builds a client for the given token. A bare token gets the
// Bearer prefix; tokens pasted with it are used as-is.
func NewClient(token string) *Client {
	return NewClientWithBase(token, DefaultBaseURL)
}

// NewClientWithBase overrides the API base URL; tests point it at a local server.
func NewClientWithBase(token, base string) *Client {
	token = strings.TrimSpace(token)
	if !strings.HasPrefix(token, "Bearer") {
		token = "Bearer " + token
	}
	return &Client{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http:  &http.Client{},
	}
}

// CheckToken validates the token and returns the taxpayer identity.
// Fails fast: credential validation should not hang a run start.
func (c *Client) CheckToken(ctx context.Context) (Taxpayer, error) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/taxpayer", nil)
	if err != nil {
		return Taxpayer{}, err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return Taxpayer{}, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Taxpayer{}, &TransportError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return Taxpayer{}, fmt.Errorf("taxpayer check failed: status %d: %s", resp.StatusCode, excerpt(string(body), 200))
	}
	var tp Taxpayer
	if err := json.Unmarshal(body, &tp); err != nil {
		return Taxpayer{}, fmt.Errorf("taxpayer check: decode: %w", err)
	}
	return tp, nil
}

// SubmitIncome registers one income event. Any HTTP status is returned as a
// Response; only transport failures produce an error.
func (c *Client) SubmitIncome(ctx context.Context, p Payload) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	body, err := json.Marshal(p)
	if err != nil {
		return Response{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/income", bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, &TransportError{Err: err}
	}
	return Response{StatusCode: resp.StatusCode, Body: string(text)}, nil
}

// The lknpd web app rejects requests without its own Origin/Referer.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Authorization", c.token)
	req.Header.Set("Origin", "https://lknpd.nalog.ru")
	req.Header.Set("Referer", "https://lknpd.nalog.ru/sales/create")
	req.Header.Set("User-Agent", "Mozilla/5.0")
}

func excerpt(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
