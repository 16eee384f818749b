package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hpcgateway/pkg/api"
)

// GatewayClient handles API calls to the HPC gateway.
type GatewayClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewGatewayClient creates a new client with the given base URL and token.
func NewGatewayClient(baseURL, token string) *GatewayClient {
	return &GatewayClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			// Launch waits for the facade task, so leave room past the gateway's own timeout.
			Timeout: 2 * time.Minute,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error (%d %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

func newAPIError(status int, body []byte) *APIError {
	var payload api.ErrorResponse
	if err := json.Unmarshal(body, &payload); err == nil && (payload.Message != "" || payload.Error != "") {
		return &APIError{StatusCode: status, Code: payload.Error, Message: payload.Message}
	}
	return &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
}

// send performs one request and returns the raw body of a 2xx response.
func (c *GatewayClient) send(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, http.Header, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.Token))
	httpReq.Header.Add("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Add("Content-Type", contentType)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, newAPIError(resp.StatusCode, respBody)
	}
	return respBody, resp.Header, nil
}

// call sends an optional JSON body and decodes the JSON response into out.
func (c *GatewayClient) call(ctx context.Context, method, path string, in, out any) error {
	var (
		body        io.Reader
		contentType string
	)
	if in != nil {
		bodyBytes, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(bodyBytes)
		contentType = "application/json"
	}

	respBody, _, err := c.send(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// RegisterUser sends POST /api/v1/user/create.
func (c *GatewayClient) RegisterUser(ctx context.Context) (*api.CreateUserResponse, error) {
	var result api.CreateUserResponse
	if err := c.call(ctx, http.MethodPost, "/api/v1/user/create", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetUser sends GET /api/v1/user/.
func (c *GatewayClient) GetUser(ctx context.Context) (*api.UserResponse, error) {
	var result api.UserResponse
	if err := c.call(ctx, http.MethodGet, "/api/v1/user/", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Heartbeat sends GET /api/v1/heartbeat.
func (c *GatewayClient) Heartbeat(ctx context.Context) (*api.HeartbeatResponse, error) {
	var result api.HeartbeatResponse
	if err := c.call(ctx, http.MethodGet, "/api/v1/heartbeat", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListJobs sends GET /api/v1/job/.
func (c *GatewayClient) ListJobs(ctx context.Context) (map[string]string, error) {
	var result api.ListJobsResponse
	if err := c.call(ctx, http.MethodGet, "/api/v1/job/", nil, &result); err != nil {
		return nil, err
	}
	return result.Jobs, nil
}

// GetJobState sends GET /api/v1/job/state/{id}.
func (c *GatewayClient) GetJobState(ctx context.Context, jobID string) (*api.JobStateResponse, error) {
	var result api.JobStateResponse
	if err := c.call(ctx, http.MethodGet, "/api/v1/job/state/"+url.PathEscape(jobID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateJob sends POST /api/v1/job/create.
func (c *GatewayClient) CreateJob(ctx context.Context) (string, error) {
	var result api.JobResponse
	if err := c.call(ctx, http.MethodPost, "/api/v1/job/create", nil, &result); err != nil {
		return "", err
	}
	return result.JobID, nil
}

// WriteJobScript sends POST /api/v1/job/script/{id}.
func (c *GatewayClient) WriteJobScript(ctx context.Context, jobID string, req api.JobScriptRequest) (*api.JobScriptResponse, error) {
	var result api.JobScriptResponse
	if err := c.call(ctx, http.MethodPost, "/api/v1/job/script/"+url.PathEscape(jobID), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// LaunchJob sends POST /api/v1/job/launch/{id}.
func (c *GatewayClient) LaunchJob(ctx context.Context, jobID string) (string, error) {
	var result api.JobResponse
	if err := c.call(ctx, http.MethodPost, "/api/v1/job/launch/"+url.PathEscape(jobID), nil, &result); err != nil {
		return "", err
	}
	return result.JobID, nil
}

// CancelJob sends DELETE /api/v1/job/cancel/{id}.
func (c *GatewayClient) CancelJob(ctx context.Context, jobID string) (string, error) {
	var result api.MessageResponse
	if err := c.call(ctx, http.MethodDelete, "/api/v1/job/cancel/"+url.PathEscape(jobID), nil, &result); err != nil {
		return "", err
	}
	return result.Message, nil
}

// DeleteJob sends DELETE /api/v1/job/delete/{id}.
func (c *GatewayClient) DeleteJob(ctx context.Context, jobID string) (string, error) {
	var result api.MessageResponse
	if err := c.call(ctx, http.MethodDelete, "/api/v1/job/delete/"+url.PathEscape(jobID), nil, &result); err != nil {
		return "", err
	}
	return result.Message, nil
}

// ListFiles sends GET /api/v1/file/list/{id}.
func (c *GatewayClient) ListFiles(ctx context.Context, jobID string) ([]api.FileInfo, error) {
	var result api.ListFilesResponse
	if err := c.call(ctx, http.MethodGet, "/api/v1/file/list/"+url.PathEscape(jobID), nil, &result); err != nil {
		return nil, err
	}
	return result.Files, nil
}

// UploadFile sends the local file at path as multipart field "file" to
// POST /api/v1/file/upload/{id}.
func (c *GatewayClient) UploadFile(ctx context.Context, jobID, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to build upload: %w", err)
	}

	respBody, _, err := c.send(ctx, http.MethodPost, "/api/v1/file/upload/"+url.PathEscape(jobID), &buf, mw.FormDataContentType())
	if err != nil {
		return "", err
	}
	var result api.MessageResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	return result.Message, nil
}

// DownloadFile sends GET /api/v1/file/download/{id}/{name} and returns the raw bytes.
func (c *GatewayClient) DownloadFile(ctx context.Context, jobID, name string) ([]byte, error) {
	path := fmt.Sprintf("/api/v1/file/download/%s/%s", url.PathEscape(jobID), url.PathEscape(name))
	data, _, err := c.send(ctx, http.MethodGet, path, nil, "")
	return data, err
}

// DeleteFile sends DELETE /api/v1/file/delete/{id}/{name}.
func (c *GatewayClient) DeleteFile(ctx context.Context, jobID, name string) (string, error) {
	var result api.MessageResponse
	path := fmt.Sprintf("/api/v1/file/delete/%s/%s", url.PathEscape(jobID), url.PathEscape(name))
	if err := c.call(ctx, http.MethodDelete, path, nil, &result); err != nil {
		return "", err
	}
	return result.Message, nil
}
