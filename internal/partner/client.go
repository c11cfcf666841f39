package partner

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single partner fetch when no client is supplied.
const DefaultTimeout = 60 * time.Second

// Response is a fully read partner reply.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

// ContentType returns the declared content type header.
func (r Response) ContentType() string {
	if r.Header == nil {
		return ""
	}
	return r.Header.Get("Content-Type")
}

// OK reports a 2xx status.
func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// TransportError wraps failures that prevented a response from being read.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Fetcher retrieves a partner report.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Response, error)
}

// Client fetches partner endpoints over HTTP.
type Client struct {
	http      *http.Client
	userAgent string
}

// NewClient wraps httpClient; nil uses a client with DefaultTimeout.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{http: httpClient, userAgent: "pagelake/1.0"}
}

// Fetch issues a GET and reads the whole body. Non-2xx replies are returned as
// responses, not errors; only transport failures produce a *TransportError.
func (c *Client) Fetch(ctx context.Context, url string) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Response{}, &TransportError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, &TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, &TransportError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}

	return Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}
