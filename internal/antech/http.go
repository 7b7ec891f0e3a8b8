package antech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/antech-v6-engine/internal/domain"
)

// Exchange is a completed request/response pair handed to observers. The
// response body is kept raw so observers can decode only what they need.
type Exchange struct {
	Method      string
	Path        string
	StatusCode  int
	RequestBody interface{}
	Response    json.RawMessage
}

// Observer receives every completed Lab API exchange. Observers must not
// block; failures inside an observer never fail the request.
type Observer interface {
	Observe(ctx context.Context, ex Exchange)
}

// HTTPConfig tunes the shared Lab HTTP transport.
type HTTPConfig struct {
	Timeout        time.Duration
	RequestsPerSec float64
	Burst          int
}

// HTTPClient is the low-level Lab API transport. It applies rate limiting,
// converts non-2xx responses into domain.ApiError, and notifies observers of
// every exchange.
type HTTPClient struct {
	client    *http.Client
	limiter   *rate.Limiter
	log       *logrus.Entry
	observers []Observer
}

// NewHTTPClient creates a Lab API transport.
func NewHTTPClient(cfg HTTPConfig, log *logrus.Entry, observers ...Observer) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}
	return &HTTPClient{
		client:    &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		log:       log,
		observers: observers,
	}
}

// RequestOptions describe one Lab API call. Path is the endpoint relative to
// BaseURL; PathSuffix is appended raw after Path (used for path parameters).
type RequestOptions struct {
	BaseURL    string
	Path       string
	PathSuffix string
	Query      url.Values
	Headers    map[string]string
	Body       interface{}
}

// Get performs a GET request and decodes the JSON response into out. A nil
// out discards the body.
func (c *HTTPClient) Get(ctx context.Context, opts RequestOptions, out interface{}) error {
	raw, _, err := c.do(ctx, http.MethodGet, opts)
	if err != nil {
		return err
	}
	return c.decode(opts.Path, raw, out)
}

// Post performs a POST request with a JSON body and decodes the JSON
// response into out. A nil out discards the body.
func (c *HTTPClient) Post(ctx context.Context, opts RequestOptions, out interface{}) error {
	raw, _, err := c.do(ctx, http.MethodPost, opts)
	if err != nil {
		return err
	}
	return c.decode(opts.Path, raw, out)
}

// GetBinary performs a GET request for a non-JSON payload and returns the
// raw bytes together with the response content type.
func (c *HTTPClient) GetBinary(ctx context.Context, opts RequestOptions) ([]byte, string, error) {
	return c.do(ctx, http.MethodGet, opts)
}

func (c *HTTPClient) do(ctx context.Context, method string, opts RequestOptions) ([]byte, string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", domain.NewApiError(fmt.Sprintf("rate limit wait aborted for %s", opts.Path), domain.StatusTransportError, err, nil)
	}

	fullURL := opts.BaseURL + opts.Path + opts.PathSuffix
	if len(opts.Query) > 0 {
		fullURL += "?" + opts.Query.Encode()
	}

	var bodyReader io.Reader
	if opts.Body != nil {
		encoded, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, "", domain.NewApiError(fmt.Sprintf("failed to encode %s request body", opts.Path), domain.StatusTransportError, err, nil)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, "", domain.NewApiError(fmt.Sprintf("failed to create %s request", opts.Path), domain.StatusTransportError, err, nil)
	}
	req.Header.Set("Accept", "application/json")
	if opts.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", domain.NewApiError(fmt.Sprintf("%s request to %s failed", method, opts.Path), domain.StatusTransportError, err, nil)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", domain.NewApiError(fmt.Sprintf("failed to read %s response", opts.Path), domain.StatusTransportError, err, nil)
	}

	c.log.WithFields(logrus.Fields{
		"method":   method,
		"path":     opts.Path,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("Lab API exchange")

	// Observers see failed exchanges too, with the raw error body.
	c.notify(ctx, Exchange{
		Method:      method,
		Path:        opts.Path,
		StatusCode:  resp.StatusCode,
		RequestBody: opts.Body,
		Response:    raw,
	})

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody map[string]interface{}
		_ = json.Unmarshal(raw, &errBody)
		return nil, "", domain.NewApiError(
			fmt.Sprintf("%s request to %s failed with status %d", method, opts.Path, resp.StatusCode),
			resp.StatusCode, nil, errBody,
		)
	}

	return raw, resp.Header.Get("Content-Type"), nil
}

func (c *HTTPClient) decode(path string, raw []byte, out interface{}) error {
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return domain.NewApiError(fmt.Sprintf("failed to decode %s response", path), domain.StatusTransportError, err, nil)
	}
	return nil
}

func (c *HTTPClient) notify(ctx context.Context, ex Exchange) {
	for _, o := range c.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.log.WithField("path", ex.Path).WithField("panic", r).Warn("request observer panicked")
				}
			}()
			o.Observe(ctx, ex)
		}()
	}
}
