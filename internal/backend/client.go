// Package backend holds typed clients for the order, user, allocation and
// agency domain services.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dealer-service/internal/util"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrNotFound is matched by StatusError for 404 responses
var ErrNotFound = errors.New("not found")

// StatusError is returned for any non-2xx response
type StatusError struct {
	Service    string
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s service: %s %s returned %d: %s", e.Service, e.Method, e.Path, e.StatusCode, e.Body)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Config addresses one backend service
type Config struct {
	BaseURL string
	Token   string
}

// Client is a traced JSON/multipart HTTP client bound to one service. It
// sets no client timeout: the request context is the only deadline.
type Client struct {
	name       string
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a client for the named service
func NewClient(name string, cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
			},
		}
	}
	return &Client{
		name:       name,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: httpClient,
		logger:     util.ComponentLogger("backend." + name),
	}
}

// Form is a multipart form body; values are written in key order of Fields.
type Form struct {
	Fields [][2]string
}

// Add appends a field
func (f *Form) Add(key, value string) *Form {
	f.Fields = append(f.Fields, [2]string{key, value})
	return f
}

// AddInt appends an integer field
func (f *Form) AddInt(key string, value int64) *Form {
	return f.Add(key, strconv.FormatInt(value, 10))
}

func (f *Form) encode() (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, kv := range f.Fields {
		if err := w.WriteField(kv[0], kv[1]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// GetJSON issues a GET and decodes the response into out
func (c *Client) GetJSON(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, "", out)
}

// SendJSON issues method with a JSON body and decodes the response into out (may be nil)
func (c *Client) SendJSON(ctx context.Context, method, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", path, err)
	}
	return c.do(ctx, method, path, bytes.NewReader(payload), "application/json", out)
}

// SendForm issues method with a multipart body and decodes the response into out (may be nil)
func (c *Client) SendForm(ctx context.Context, method, path string, form *Form, out interface{}) error {
	body, contentType, err := form.encode()
	if err != nil {
		return fmt.Errorf("encode %s form: %w", path, err)
	}
	return c.do(ctx, method, path, body, contentType, out)
}

// Delete issues a DELETE
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, "", nil)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	ctx, span := util.StartSpan(ctx, fmt.Sprintf("%s %s", c.name, method), trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	url := c.baseURL + path
	span.SetAttributes(
		attribute.String("http.url", url),
		attribute.String("http.method", method),
		attribute.String("backend.service", c.name),
	)

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return util.RecordError(span, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		util.BackendRequestDuration.WithLabelValues(c.name, method, "error").Observe(time.Since(start).Seconds())
		c.logger.Error("Backend request failed",
			zap.String("service", c.name),
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return util.RecordError(span, fmt.Errorf("%s service: %s %s: %w", c.name, method, path, err))
	}
	defer resp.Body.Close()

	util.BackendRequestDuration.WithLabelValues(c.name, method, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		statusErr := &StatusError{
			Service:    c.name,
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(msg)),
		}
		c.logger.Warn("Backend returned error status",
			zap.String("service", c.name),
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return util.RecordError(span, statusErr)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return util.RecordError(span, fmt.Errorf("read %s response: %w", path, err))
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := decodeEnvelope(raw, out); err != nil {
		return util.RecordError(span, fmt.Errorf("decode %s response: %w", path, err))
	}
	return nil
}

// decodeEnvelope accepts both bare payloads and the {"data": ...} envelope
// some of the services wrap their results in.
func decodeEnvelope(raw []byte, out interface{}) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &env); err == nil && len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
			return json.Unmarshal(env.Data, out)
		}
	}
	return json.Unmarshal(trimmed, out)
}
