package httpclient

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultTimeout bounds one model server call. Large vision models on CPU
	// routinely need more than a minute per image.
	DefaultTimeout = 120 * time.Second
	// MaxResponseBytes caps a response body. Captions are short; anything past
	// this is a misbehaving server.
	MaxResponseBytes = 8 << 20

	// Idle connections are kept for every caption worker to reuse.
	maxIdlePerHost = 32
	idleTimeout    = 90 * time.Second
)

// ErrBodyTooLarge is returned when a response exceeds MaxResponseBytes.
var ErrBodyTooLarge = errors.New("response body too large")

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Status     string
	Body       []byte
}

// OK reports a 2xx status.
func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode <= 299
}

// NewClient returns a client for parallel calls to one model server.
// A non-positive timeout selects DefaultTimeout.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        2 * maxIdlePerHost,
			MaxIdleConnsPerHost: maxIdlePerHost,
			IdleConnTimeout:     idleTimeout,
		},
	}
}

// Do sends req and reads the body, at most MaxResponseBytes of it.
func Do(client *http.Client, req *http.Request) (Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	out := Response{StatusCode: resp.StatusCode, Status: resp.Status}
	if resp.ContentLength > MaxResponseBytes {
		return out, fmt.Errorf("%w (limit %d bytes)", ErrBodyTooLarge, MaxResponseBytes)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if err != nil {
		return out, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(body) > MaxResponseBytes {
		return out, fmt.Errorf("%w (limit %d bytes)", ErrBodyTooLarge, MaxResponseBytes)
	}
	out.Body = body
	return out, nil
}
