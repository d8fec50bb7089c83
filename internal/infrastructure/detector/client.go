package detector

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/avolkov/fakelens/internal/core/domain"
	"github.com/avolkov/fakelens/internal/infrastructure/resilience"
)

const defaultRequestTimeout = 60 * time.Second

// Client talks to the remote classification backend. Retries, per-endpoint
// failure state and error normalization live here; callers only ever see
// domain error kinds carrying a normalized report.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	requestTimeout time.Duration
	executor       *resilience.Executor
}

type Options struct {
	// RequestTimeout is the per-attempt wall clock limit. Defaults to 60s to
	// accommodate large uploads; it is not cumulative across retries.
	RequestTimeout time.Duration
	Resilience     resilience.Config
	HTTPClient     *http.Client
}

func New(baseURL string, opts Options) *Client {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     httpClient,
		requestTimeout: timeout,
		executor:       resilience.NewExecutor(opts.Resilience),
	}
}

func (c *Client) CheckHealth(ctx context.Context) (domain.HealthStatus, error) {
	var out domain.HealthStatus
	if err := c.getJSON(ctx, "/health", &out, "health"); err != nil {
		return domain.HealthStatus{}, err
	}
	return out, nil
}

func (c *Client) Info(ctx context.Context) (domain.ServiceInfo, error) {
	var out domain.ServiceInfo
	if err := c.getJSON(ctx, "/", &out, "info"); err != nil {
		return domain.ServiceInfo{}, err
	}
	return out, nil
}

func (c *Client) SupportedFormats(ctx context.Context) (domain.SupportedFormats, error) {
	var out domain.SupportedFormats
	if err := c.getJSON(ctx, "/supported-formats", &out, "supported-formats"); err != nil {
		return domain.SupportedFormats{}, err
	}
	return out.Normalized(), nil
}
