// Package analyst is the HTTP client for the remote CSV analysis backend.
package analyst

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
)

// Backend endpoints
const (
	UploadPath  = "/files/upload"
	ListPath    = "/api/files/list"
	AnalyzePath = "/api/analyze/"
	PingPath    = "/api/analyze/test"
)

// Default timeouts
const (
	DefaultUploadTimeout  = 30 * time.Second
	DefaultRequestTimeout = 60 * time.Second
)

// ErrUnexpectedStatus is wrapped when the backend answers a 2xx other than
// the ones an endpoint documents
var ErrUnexpectedStatus = errors.New("unexpected success status")

// ErrInvalidArgument is returned before any request is made
var ErrInvalidArgument = errors.New("invalid argument")

// Client talks to the analysis backend. It is safe for concurrent use.
type Client struct {
	baseURL        string
	httpClient     *resty.Client
	uploadTimeout  time.Duration
	requestTimeout time.Duration
	logger         log.Logger
}

// Option configures a Client
type Option func(*Client)

// WithUploadTimeout sets the deadline for UploadDataset
func WithUploadTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.uploadTimeout = d
		}
	}
}

// WithRequestTimeout sets the deadline for every other call
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// WithHeader adds a default header sent with every request
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.httpClient.SetHeader(key, value)
	}
}

// WithLogger replaces the default logger
func WithLogger(logger log.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a new analysis backend client
func NewClient(baseURL string, opts ...Option) *Client {
	httpClient := resty.New()
	httpClient.SetHeader("Accept", "application/json")

	c := &Client{
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		httpClient:     httpClient,
		uploadTimeout:  DefaultUploadTimeout,
		requestTimeout: DefaultRequestTimeout,
		logger:         log.DefaultLogger,
	}

	for _, opt := range opts {
		opt(c)
	}

	// Per-call contexts carry the real deadlines; this is only an upper bound.
	c.httpClient.SetTimeout(maxDuration(c.uploadTimeout, c.requestTimeout))
	c.httpClient.SetBaseURL(c.baseURL)
	c.httpClient.SetLogger(restyLogger{c.logger})

	return c
}

// BaseURL returns the backend base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// UploadDataset sends a CSV file as multipart field "file"
func (c *Client) UploadDataset(ctx context.Context, filename string, content io.Reader) (*UploadResponse, error) {
	const op = "upload dataset"

	if filename == "" || content == nil {
		return nil, &Error{Op: op, Kind: KindUnknown, Err: ErrInvalidArgument}
	}

	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	start := time.Now()
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetFileReader("file", filename, content).
		Post(UploadPath)

	if err != nil {
		c.logger.Warn("Upload failed", "filename", filename, "error", err)
		return nil, newTransportError(op, err)
	}

	c.logger.Debug("Upload response", "filename", filename, "status", resp.StatusCode(), "took", time.Since(start))

	if !resp.IsSuccess() {
		return nil, newServerError(op, resp.StatusCode(), resp.Body())
	}

	if resp.StatusCode() != 200 && resp.StatusCode() != 201 {
		return nil, &Error{Op: op, Kind: KindUnknown, Status: resp.StatusCode(), Err: ErrUnexpectedStatus}
	}

	var out UploadResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, &Error{Op: op, Kind: KindDecode, Status: resp.StatusCode(), Err: fmt.Errorf("failed to parse upload response: %w", err)}
	}

	return &out, nil
}

// ListDatasets fetches the previously uploaded datasets
func (c *Client) ListDatasets(ctx context.Context) ([]DatasetRef, error) {
	const op = "list datasets"

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	resp, err := c.httpClient.R().
		SetContext(ctx).
		Get(ListPath)

	if err != nil {
		c.logger.Warn("Dataset list failed", "error", err)
		return nil, newTransportError(op, err)
	}

	if !resp.IsSuccess() {
		return nil, newServerError(op, resp.StatusCode(), resp.Body())
	}

	var out datasetList
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, &Error{Op: op, Kind: KindDecode, Status: resp.StatusCode(), Err: fmt.Errorf("failed to parse dataset list: %w", err)}
	}

	if out.Datasets == nil {
		out.Datasets = []DatasetRef{}
	}

	return out.Datasets, nil
}

// Analyze asks a natural-language question about a dataset
func (c *Client) Analyze(ctx context.Context, datasetID, question string) (*Result, error) {
	const op = "analyze"

	question = strings.TrimSpace(question)
	if datasetID == "" || question == "" {
		return nil, &Error{Op: op, Kind: KindUnknown, Err: ErrInvalidArgument}
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	start := time.Now()
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetQueryParams(map[string]string{
			"dataset_id": datasetID,
			"question":   question,
		}).
		Post(AnalyzePath)

	if err != nil {
		c.logger.Warn("Analysis failed", "dataset_id", datasetID, "error", err)
		return nil, newTransportError(op, err)
	}

	c.logger.Info("Analysis response", "dataset_id", datasetID, "status", resp.StatusCode(), "took", time.Since(start))

	if !resp.IsSuccess() {
		return nil, newServerError(op, resp.StatusCode(), resp.Body())
	}

	var out Result
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, &Error{Op: op, Kind: KindDecode, Status: resp.StatusCode(), Err: fmt.Errorf("failed to parse analysis result: %w", err)}
	}

	if out.Debug != "" {
		c.logger.Debug("Analysis debug", "dataset_id", datasetID, "debug", out.Debug)
	}

	return &out, nil
}

// Ping checks backend connectivity
func (c *Client) Ping(ctx context.Context) error {
	const op = "ping"

	resp, err := c.httpClient.R().
		SetContext(ctx).
		Get(PingPath)

	if err != nil {
		return newTransportError(op, err)
	}

	if resp.StatusCode() != 200 {
		return newServerError(op, resp.StatusCode(), resp.Body())
	}

	return nil
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// restyLogger routes resty's own diagnostics into the structured logger
type restyLogger struct {
	logger log.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, v...))
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}
