package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/oukeidos/ocap/internal/apperrors"
	"github.com/oukeidos/ocap/internal/httpclient"
	"github.com/oukeidos/ocap/internal/logger"
	"github.com/oukeidos/ocap/internal/version"
)

// DefaultBaseURL is the API root of a locally running Ollama server.
const DefaultBaseURL = "http://localhost:11434/api"

// Hardware is the placement hint forwarded to the model server.
type Hardware string

const (
	HardwareCPU Hardware = "CPU"
	HardwareGPU Hardware = "GPU"
)

// ParseHardware accepts "cpu"/"gpu" in any case.
func ParseHardware(s string) (Hardware, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(HardwareCPU):
		return HardwareCPU, nil
	case string(HardwareGPU):
		return HardwareGPU, nil
	default:
		return "", fmt.Errorf("unsupported hardware %q (use CPU or GPU)", s)
	}
}

// GenerateRequest is one non-streaming generation. Images are raw file bytes;
// the client base64-encodes them.
type GenerateRequest struct {
	Model    string
	Prompt   string
	Images   [][]byte
	Hardware Hardware
}

// Generation is the text produced by the model and the wall time it took.
type Generation struct {
	Text    string
	Elapsed time.Duration
}

// Generator is the part of the client the pipeline depends on.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (Generation, error)
}

type generateBody struct {
	Model    string   `json:"model"`
	Prompt   string   `json:"prompt"`
	Images   []string `json:"images,omitempty"`
	Stream   bool     `json:"stream"`
	Hardware Hardware `json:"hardware"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

type errorBody struct {
	Error string `json:"error"`
}

type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-call timeout on a fresh tuned client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http = httpclient.NewClient(d) }
}

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

func NewClient(baseURL string, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpclient.NewClient(httpclient.DefaultTimeout),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Generate issues POST /generate. Every failure is returned as an
// *apperrors.Error; a response-wait timeout has KindReadTimeout.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (Generation, error) {
	hw := req.Hardware
	if hw == "" {
		hw = HardwareCPU
	}
	body := generateBody{
		Model:    req.Model,
		Prompt:   req.Prompt,
		Stream:   false,
		Hardware: hw,
	}
	for _, img := range req.Images {
		body.Images = append(body.Images, base64.StdEncoding.EncodeToString(img))
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Generation{}, apperrors.New(apperrors.KindBadRequest, "Failed to encode generate request.", err)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/generate", payload)
	if err != nil {
		return Generation{}, err
	}

	start := time.Now()
	resp, err := httpclient.Do(c.http, httpReq)
	elapsed := time.Since(start)
	if err != nil {
		return Generation{Elapsed: elapsed}, classifyTransportError(ctx, err)
	}
	if !resp.OK() {
		return Generation{Elapsed: elapsed}, classifyStatus(resp.StatusCode, req.Model, resp.Body)
	}

	var out generateResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return Generation{Elapsed: elapsed}, apperrors.New(
			apperrors.KindValidation,
			"Model server response format was invalid.",
			fmt.Errorf("failed to decode generate response: %w", err),
		)
	}

	logger.Debug("Generate finished", "model", req.Model, "images", len(req.Images), "status", resp.Status, "elapsed", elapsed.Round(time.Millisecond))
	return Generation{Text: strings.TrimSpace(out.Response), Elapsed: elapsed}, nil
}

// ListModels issues GET /tags. It never fails: any error is logged and an
// empty list is returned.
func (c *Client) ListModels(ctx context.Context) []string {
	models := []string{}
	httpReq, err := c.newRequest(ctx, http.MethodGet, "/tags", nil)
	if err != nil {
		logger.Warn("Failed to fetch model list", "error", err)
		return models
	}
	resp, err := httpclient.Do(c.http, httpReq)
	if err != nil {
		logger.Warn("Failed to fetch model list", "url", c.baseURL, "error", err)
		return models
	}
	if resp.StatusCode != http.StatusOK {
		logger.Warn("Failed to fetch model list", "url", c.baseURL, "status", resp.Status)
		return models
	}
	var tags tagsResponse
	if err := json.Unmarshal(resp.Body, &tags); err != nil {
		logger.Warn("Failed to decode model list", "error", err)
		return models
	}
	for _, m := range tags.Models {
		if m.Name != "" {
			models = append(models, m.Name)
		}
	}
	return models
}

func (c *Client) newRequest(ctx context.Context, method, path string, payload []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.New(apperrors.KindBadRequest, "Invalid model server URL.", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func classifyTransportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return apperrors.Canceled(fmt.Errorf("generate aborted: %w", err))
	}
	wrapped := fmt.Errorf("generate request failed: %w", err)

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return apperrors.New(apperrors.KindTransient, "Timed out connecting to the model server.", wrapped)
		}
		return apperrors.New(apperrors.KindReadTimeout, "Read timed out waiting for the model server.", wrapped)
	}
	return apperrors.New(apperrors.KindTransient, "Model server is unreachable. Check that it is running.", wrapped)
}

func classifyStatus(status int, model string, body []byte) error {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	detail := strings.TrimSpace(eb.Error)
	cause := fmt.Errorf("ollama status=%d error=%s", status, detail)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperrors.New(apperrors.KindAuth, fmt.Sprintf("Model server rejected the credentials (%d).", status), cause)
	case status == http.StatusNotFound:
		return apperrors.New(apperrors.KindBadRequest, fmt.Sprintf("Model %q not found on the server (404).", model), cause)
	case status >= 500:
		return apperrors.New(apperrors.KindTransient, fmt.Sprintf("Model server error (%d).", status), cause)
	default:
		return apperrors.New(apperrors.KindBadRequest, fmt.Sprintf("Request rejected by the model server (%d).", status), cause)
	}
}
