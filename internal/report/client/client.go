// Package client talks to the remote report job API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/dipak0000812/credtrack/internal/report/model"
	"github.com/dipak0000812/credtrack/internal/report/state"
)

const (
	reportsPrefix    = "/api/v1/reports/"
	statusPath       = reportsPrefix + "get-csv-report-data"
	downloadPath     = reportsPrefix + "get-csv-report"
	markDownloadPath = reportsPrefix + "set-csv-report-downloaded"

	// maxErrorBody bounds how much of a failed response is kept in APIError.
	maxErrorBody = 4 << 10
)

// ErrEmptyStatus is returned when the status endpoint answers without rows.
var ErrEmptyStatus = errors.New("job status response has no data")

// APIError represents a non-2xx response from the report API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("report API error (%d): %s", e.StatusCode, e.Message)
}

// JobStatus is one row of the job status endpoint.
type JobStatus struct {
	Status      state.Status
	FileContent string
	Error       string
}

type generateResponse struct {
	UUID string `json:"uuid"`
}

type statusResponse struct {
	Data []struct {
		Status      string `json:"status"`
		FileContent string `json:"file_content"`
		Error       string `json:"error"`
	} `json:"data"`
}

// Config configures a Client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client handles calls to the report job API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New creates a client for the API at cfg.BaseURL.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("report API base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, errors.Wrap(err, "invalid report API base URL")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Generate starts report generation and returns the job id.
// Filters are validated first; an incomplete form never reaches the network.
func (c *Client) Generate(ctx context.Context, kind model.Kind, filters model.Filters) (string, error) {
	if err := filters.Validate(kind.Requires); err != nil {
		return "", err
	}

	body, err := c.get(ctx, reportsPrefix+kind.Path, filters.Values())
	if err != nil {
		return "", errors.Wrapf(err, "start %s report", kind.Name)
	}
	defer body.Close()

	var resp generateResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return "", errors.Wrap(err, "decode generate response")
	}
	if resp.UUID == "" {
		return "", errors.New("generate response has no job id")
	}

	c.log.Debug("report generation started",
		zap.String("kind", kind.Name),
		zap.String("job_id", resp.UUID))
	return resp.UUID, nil
}

// Status fetches the current status of a job.
func (c *Client) Status(ctx context.Context, jobID string) (*JobStatus, error) {
	body, err := c.get(ctx, statusPath, url.Values{"id": {jobID}})
	if err != nil {
		return nil, errors.Wrap(err, "fetch job status")
	}
	defer body.Close()

	var resp statusResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, errors.Wrap(err, "decode job status")
	}
	if len(resp.Data) == 0 {
		return nil, ErrEmptyStatus
	}

	row := resp.Data[0]
	st, err := state.ParseStatus(row.Status)
	if err != nil {
		return nil, err
	}
	return &JobStatus{
		Status:      st,
		FileContent: row.FileContent,
		Error:       row.Error,
	}, nil
}

// Download opens the compressed artifact of a completed job.
// The caller must close the returned reader.
func (c *Client) Download(ctx context.Context, jobID string) (io.ReadCloser, error) {
	body, err := c.get(ctx, downloadPath, url.Values{"id": {jobID}})
	if err != nil {
		return nil, errors.Wrap(err, "download report")
	}
	return body, nil
}

// MarkDownloaded flags the job as downloaded on the server.
func (c *Client) MarkDownloaded(ctx context.Context, jobID string) error {
	body, err := c.get(ctx, markDownloadPath, url.Values{"id": {jobID}})
	if err != nil {
		return errors.Wrap(err, "mark report downloaded")
	}
	_, _ = io.Copy(io.Discard, body)
	return body.Close()
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (io.ReadCloser, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	return resp.Body, nil
}
