package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ClientOption allows for customization of the client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client, used by tests.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

// Client talks to Instagram's private API. All failures it returns are
// classified (*APIError); callers branch on the FailureKind, never on
// message text.
type Client struct {
	config     *Config
	httpClient *http.Client
	pacer      *rate.Limiter
	logger     *logrus.Logger
}

// NewClient creates a new Instagram API client.
func NewClient(config *Config, opts ...ClientOption) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := config.Logger
	if logger == nil {
		logger = logrus.New()
	}

	client := &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.RequestTimeout},
		pacer:      rate.NewLimiter(rate.Every(config.MinRequestInterval), 1),
		logger:     logger,
	}

	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// apiResponse is the common envelope of private API responses.
type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (c *Client) makeRequest(ctx context.Context, method, endpoint string, form url.Values) ([]byte, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.RequestTimeout)
		defer cancel()
	}

	var bodyReader io.Reader
	if form != nil {
		bodyReader = strings.NewReader(form.Encode())
	}

	fullURL := c.config.BaseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.config.CSRFToken != "" {
		req.Header.Set("X-CSRFToken", c.config.CSRFToken)
	}
	req.AddCookie(&http.Cookie{Name: "sessionid", Value: c.config.SessionID})

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transientNetworkError(fmt.Errorf("request to %s failed: %w", endpoint, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transientNetworkError(fmt.Errorf("failed to read response: %w", err))
	}

	c.logger.WithFields(logrus.Fields{
		"method":   method,
		"endpoint": endpoint,
		"status":   resp.StatusCode,
		"elapsed":  time.Since(start).String(),
	}).Debug("Instagram API request")

	if err := c.handleResponse(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// handleResponse checks for API errors in the response and classifies them.
func (c *Client) handleResponse(status int, body []byte) error {
	var envelope apiResponse
	// The envelope is best-effort; some endpoints return bare JSON.
	_ = json.Unmarshal(body, &envelope)

	if status >= 200 && status < 300 && envelope.Status != "fail" {
		return nil
	}

	message := envelope.Message
	if message == "" {
		message = string(body)
	}

	apiErr := classifyStatus(status, message)
	c.logger.WithFields(logrus.Fields{
		"status_code": status,
		"kind":        apiErr.Kind,
		"message":     envelope.Message,
	}).Error("Instagram API error")
	return apiErr
}
