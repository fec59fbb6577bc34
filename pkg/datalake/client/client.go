// Package client is the REST transport to the data lake: URL-encoded form posts and
// multipart uploads against the base URL of the selected environment.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tigerroll/datalake-export/pkg/datalake/support/util/exception"
)

// MultipartBoundary is the boundary the data lake expects on DataPoint uploads.
const MultipartBoundary = "-x-x-x-x-x-"

// maxBodyBytes bounds how much of a response body is kept.
const maxBodyBytes = 1 << 20

// Part is one field of a multipart upload.
type Part struct {
	Name  string
	Value string
}

// Client posts to the data lake. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for baseURL. Every request is bounded by timeout.
// A nil httpClient selects a client with an OpenTelemetry-instrumented transport.
func NewClient(baseURL string, timeout time.Duration, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url '%s'", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		}
	}
	return &Client{baseURL: strings.TrimRight(u.String(), "/"), httpClient: httpClient}, nil
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// PostForm posts URL-encoded fields to path and returns the response body.
// A non-2xx response yields *exception.StatusError; a failure without response is returned as is.
func (c *Client) PostForm(ctx context.Context, path string, form url.Values) (string, error) {
	return c.post(ctx, path, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
}

// PostMultipart posts parts as multipart/form-data, in order, using MultipartBoundary.
func (c *Client) PostMultipart(ctx context.Context, path string, parts []Part) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.SetBoundary(MultipartBoundary); err != nil {
		return "", err
	}
	for _, p := range parts {
		if err := w.WriteField(p.Name, p.Value); err != nil {
			return "", fmt.Errorf("failed to write multipart field %s: %w", p.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return c.post(ctx, path, w.FormDataContentType(), &buf)
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response of POST %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return string(respBody), &exception.StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	return string(respBody), nil
}

// API is the subset of Client used by the pipeline components.
type API interface {
	PostForm(ctx context.Context, path string, form url.Values) (string, error)
	PostMultipart(ctx context.Context, path string, parts []Part) (string, error)
}

var _ API = (*Client)(nil)
