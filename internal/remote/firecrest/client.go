// Package firecrest implements remote.Client on top of the FirecREST v1 REST
// API. Compute calls are asynchronous on the facade side; the client polls
// the resulting task until it settles so callers see a blocking call.
package firecrest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"hpcgateway/internal/remote"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// AuthMode selects how the gateway authenticates against FirecREST.
type AuthMode string

const (
	// AuthToken uses a long-lived bearer token issued out of band.
	AuthToken AuthMode = "token"
	// AuthClientCredentials obtains tokens with the OAuth2 client-credentials grant.
	AuthClientCredentials AuthMode = "client_credentials"
)

// Config holds the connection settings for a FirecREST deployment.
type Config struct {
	BaseURL string
	Auth    AuthMode

	// AuthToken
	Token string

	// AuthClientCredentials
	ClientID     string
	ClientSecret string
	TokenURL     string

	// Timeout bounds every call, including task polling.
	Timeout time.Duration
	// TaskPollInterval is the delay between task status checks.
	TaskPollInterval time.Duration
}

// Client talks to FirecREST over HTTP.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	timeout      time.Duration
	pollInterval time.Duration

	tracer   trace.Tracer
	calls    metric.Int64Counter
	duration metric.Float64Histogram
}

var _ remote.Client = (*Client)(nil)

// New builds a client whose credentials are chosen by cfg.Auth.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("firecrest: base URL is required")
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.TaskPollInterval <= 0 {
		cfg.TaskPollInterval = time.Second
	}

	var source oauth2.TokenSource
	switch cfg.Auth {
	case AuthToken:
		if cfg.Token == "" {
			return nil, fmt.Errorf("firecrest: token auth requires a token")
		}
		source = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"})
	case AuthClientCredentials:
		if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.TokenURL == "" {
			return nil, fmt.Errorf("firecrest: client_credentials auth requires client id, secret and token URL")
		}
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		// oauth2.Transport fetches tokens without the request context, so the
		// token endpoint gets its own bounded client.
		tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: cfg.Timeout})
		source = cc.TokenSource(tokenCtx)
	default:
		return nil, fmt.Errorf("firecrest: unknown auth mode %q", cfg.Auth)
	}

	meter := otel.Meter("hpcgateway/remote/firecrest")
	calls, err := meter.Int64Counter("hpcgateway.remote.calls",
		metric.WithDescription("Number of calls made to the HPC facade"))
	if err != nil {
		return nil, fmt.Errorf("firecrest: create calls counter: %w", err)
	}
	duration, err := meter.Float64Histogram("hpcgateway.remote.duration",
		metric.WithDescription("Duration of HPC facade calls"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("firecrest: create duration histogram: %w", err)
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Transport: &oauth2.Transport{Source: source, Base: http.DefaultTransport},
		},
		timeout:      cfg.Timeout,
		pollInterval: cfg.TaskPollInterval,
		tracer:       otel.Tracer("hpcgateway/remote/firecrest"),
		calls:        calls,
		duration:     duration,
	}, nil
}

// begin bounds ctx by the call timeout and opens a span for op. The returned
// finish func records the outcome and folds any error into *remote.OperationError.
func (c *Client) begin(ctx context.Context, op, machine string) (context.Context, func(error) error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	ctx, span := c.tracer.Start(ctx, "firecrest."+op,
		trace.WithAttributes(attribute.String("hpc.machine", machine)))
	started := time.Now()

	return ctx, func(err error) error {
		defer cancel()
		defer span.End()

		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		attrs := metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("outcome", outcome),
		)
		c.calls.Add(ctx, 1, attrs)
		c.duration.Record(ctx, time.Since(started).Seconds(), attrs)

		if err == nil {
			return nil
		}
		if opErr, ok := err.(*remote.OperationError); ok {
			return opErr
		}
		return &remote.OperationError{Op: op, Message: "call failed", Err: err}
	}
}

func opError(op, message string, err error) *remote.OperationError {
	return &remote.OperationError{Op: op, Message: message, Err: err}
}

type request struct {
	op          string
	method      string
	endpoint    string
	machine     string
	query       url.Values
	body        io.Reader
	contentType string
	want        []int
}

// do performs one HTTP exchange and returns the body of an expected response.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	u := c.baseURL + r.endpoint
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, r.body)
	if err != nil {
		return nil, opError(r.op, "failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.machine != "" {
		req.Header.Set("X-Machine-Name", r.machine)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, opError(r.op, "timed out", ctx.Err())
		}
		return nil, opError(r.op, "request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, opError(r.op, "failed to read response", err)
	}

	for _, code := range r.want {
		if resp.StatusCode == code {
			return data, nil
		}
	}
	return nil, opError(r.op, facadeMessage(resp, data), nil)
}

// facadeMessage extracts the most specific error text FirecREST provides:
// a diagnostic X-* header, the JSON description, or the raw body.
func facadeMessage(resp *http.Response, body []byte) string {
	for _, h := range []string{
		"X-Invalid-Path", "X-Not-Found", "X-Permission-Denied", "X-Exists",
		"X-Not-A-Directory", "X-Timeout", "X-Machine-Does-Not-Exist",
		"X-Machine-Not-Available", "X-Error", "X-Sbatch-Error",
	} {
		if v := resp.Header.Get(h); v != "" {
			return fmt.Sprintf("status %d: %s", resp.StatusCode, v)
		}
	}

	var payload struct {
		Description string `json:"description"`
		Error       string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Description != "" && payload.Error != "":
			return fmt.Sprintf("status %d: %s: %s", resp.StatusCode, payload.Description, payload.Error)
		case payload.Description != "":
			return fmt.Sprintf("status %d: %s", resp.StatusCode, payload.Description)
		case payload.Error != "":
			return fmt.Sprintf("status %d: %s", resp.StatusCode, payload.Error)
		}
	}

	text := strings.TrimSpace(string(body))
	if len(text) > 256 {
		text = text[:256]
	}
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", resp.StatusCode, text)
}

// idString renders a scheduler job id that FirecREST may encode as a JSON
// number or a string.
func idString(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		return id, id != ""
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	case json.Number:
		return id.String(), true
	}
	return "", false
}
