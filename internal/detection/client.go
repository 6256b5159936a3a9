package detection

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Account types select the API host
const (
	AccountDev  = "dev"
	AccountProd = "prod"
)

// DefaultTimeout bounds a single call to the detection service
const DefaultTimeout = 9 * time.Second

var ErrService = errors.New("detection service error")

// ServiceError is a transport, auth or quota failure from the detection service
type ServiceError struct {
	StatusCode int // 0 when the request never got a response
	Message    string
}

func (e *ServiceError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("sighthound: %s", e.Message)
	}
	return fmt.Sprintf("sighthound: status %d: %s", e.StatusCode, e.Message)
}

// Is lets callers match any ServiceError with errors.Is(err, ErrService)
func (e *ServiceError) Is(target error) bool {
	return target == ErrService
}

// Service is the remote detection service. Both calls return the raw
// response body on success.
type Service interface {
	Detect(ctx context.Context, image []byte) ([]byte, error)
	Recognize(ctx context.Context, image []byte, kinds string) ([]byte, error)
}

// ClientConfig holds configuration for the Sighthound cloud client
type ClientConfig struct {
	APIKey            string
	AccountType       string
	BaseURL           string // overrides the URL derived from AccountType
	Timeout           time.Duration
	RequestsPerMinute int // 0 disables rate limiting
}

// Client talks to the Sighthound cloud API
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new detection service client
func NewClient(config ClientConfig) *Client {
	baseURL := config.BaseURL
	if baseURL == "" {
		mode := config.AccountType
		if mode == "" {
			mode = AccountDev
		}
		baseURL = fmt.Sprintf("https://%s.sighthoundapi.com/v1", mode)
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var limiter *rate.Limiter
	if config.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 1)
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  config.APIKey,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
	}
}

// Detect finds faces and people in an image
func (c *Client) Detect(ctx context.Context, image []byte) ([]byte, error) {
	params := url.Values{}
	params.Set("type", "face,person")
	params.Set("faceOption", "gender,age")
	return c.post(ctx, "/detections", params, image)
}

// Recognize runs recognition for the given comma-separated object kinds,
// e.g. "vehicle,licenseplate"
func (c *Client) Recognize(ctx context.Context, image []byte, kinds string) ([]byte, error) {
	params := url.Values{}
	params.Set("objectType", kinds)
	return c.post(ctx, "/recognition", params, image)
}

// post sends a base64 encoded image to a service endpoint
func (c *Client) post(ctx context.Context, path string, params url.Values, image []byte) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &ServiceError{Message: fmt.Sprintf("rate limit wait: %v", err)}
		}
	}

	payload, err := json.Marshal(map[string]string{
		"image": base64.StdEncoding.EncodeToString(image),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Access-Token", c.apiKey)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &ServiceError{Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read response body: %v", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}

	log.Debugf("[Sighthound] %s answered in %s (%d bytes)", path, time.Since(start).Round(time.Millisecond), len(body))
	return body, nil
}

// errorMessage pulls the human readable reason out of an error body
func errorMessage(body []byte) string {
	var apiErr struct {
		Error   string `json:"error"`
		Reason  string `json:"reason"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil {
		switch {
		case apiErr.Reason != "" && apiErr.Error != "":
			return apiErr.Error + ": " + apiErr.Reason
		case apiErr.Reason != "":
			return apiErr.Reason
		case apiErr.Message != "":
			return apiErr.Message
		case apiErr.Error != "":
			return apiErr.Error
		}
	}
	if len(body) == 0 {
		return "empty response"
	}
	return string(body)
}

// Ensure Client implements Service
var _ Service = (*Client)(nil)
