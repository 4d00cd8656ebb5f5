package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/LeventeLantos/royal-studio/internal/model"
)

const (
	chatPath     = "/api/chat"
	bulkSMSPath  = "/api/sms/bulk"
	sendSMSPath  = "/api/sms/send"
	generatePath = "/api/generate-image"
)

var tracer = otel.Tracer("studio-gateway")

// Gateway is the HTTP boundary to the remote chat, SMS and image services.
type Gateway struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

type Option func(*Gateway)

func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.client = c }
}

// WithRateLimit throttles outbound calls. perSec <= 0 disables throttling.
func WithRateLimit(perSec float64, burst int) Option {
	return func(g *Gateway) {
		if perSec <= 0 {
			g.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	}
}

func NewGateway(baseURL string, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// StatusError is returned when the remote side answered but signalled a
// failure, either with a non-2xx status or with an "error" field.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d body=%q", e.StatusCode, e.Message)
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

type bulkRequest struct {
	To      []string `json:"to"`
	Message string   `json:"message"`
}

// BulkResult is the per-address outcome returned by the bulk SMS endpoint.
type BulkResult struct {
	To     string `json:"to"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type bulkResponse struct {
	Results []BulkResult `json:"results"`
	Error   string       `json:"error"`
}

type smsRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// ImageRequest is the body of an image generation call.
type ImageRequest struct {
	Prompt string `json:"prompt"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Seed   int    `json:"seed"`
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

func (g *Gateway) Chat(ctx context.Context, message string) (string, error) {
	ctx, span := tracer.Start(ctx, "gateway_chat", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	status, body, _, err := g.post(ctx, chatPath, chatRequest{Message: message})
	if err != nil {
		return "", endSpan(span, err)
	}
	if !isSuccess(status) {
		return "", endSpan(span, &StatusError{StatusCode: status, Message: errorMessage(body)})
	}

	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", endSpan(span, fmt.Errorf("failed to decode json: %w body=%q", err, string(body)))
	}
	if cr.Error != "" {
		return "", endSpan(span, &StatusError{StatusCode: status, Message: cr.Error})
	}
	return cr.Response, nil
}

// SendBulk sends one message to every address in a single call and returns
// the per-address results exactly as reported by the remote side.
func (g *Gateway) SendBulk(ctx context.Context, to []string, message string) ([]BulkResult, error) {
	ctx, span := tracer.Start(ctx, "gateway_sms_bulk", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.Int("sms.recipients", len(to)))

	status, body, _, err := g.post(ctx, bulkSMSPath, bulkRequest{To: to, Message: message})
	if err != nil {
		return nil, endSpan(span, err)
	}
	if !isSuccess(status) {
		return nil, endSpan(span, &StatusError{StatusCode: status, Message: errorMessage(body)})
	}

	var br bulkResponse
	if err := json.Unmarshal(body, &br); err != nil {
		return nil, endSpan(span, &StatusError{StatusCode: status, Message: ""})
	}
	if br.Error != "" {
		return nil, endSpan(span, &StatusError{StatusCode: status, Message: br.Error})
	}
	span.SetAttributes(attribute.Int("sms.results", len(br.Results)))
	return br.Results, nil
}

func (g *Gateway) SendSMS(ctx context.Context, to, message string) error {
	ctx, span := tracer.Start(ctx, "gateway_sms_send", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	status, body, _, err := g.post(ctx, sendSMSPath, smsRequest{To: to, Message: message})
	if err != nil {
		return endSpan(span, err)
	}
	if !isSuccess(status) {
		return endSpan(span, &StatusError{StatusCode: status, Message: errorMessage(body)})
	}
	if hasErrorField(body) {
		return endSpan(span, &StatusError{StatusCode: status, Message: errorMessage(body)})
	}
	return nil
}

func (g *Gateway) GenerateImage(ctx context.Context, req ImageRequest) (*model.Image, error) {
	ctx, span := tracer.Start(ctx, "gateway_generate_image", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.Int("image.width", req.Width),
		attribute.Int("image.height", req.Height),
		attribute.Int("image.seed", req.Seed),
	)

	status, body, contentType, err := g.post(ctx, generatePath, req)
	if err != nil {
		return nil, endSpan(span, err)
	}
	if !isSuccess(status) {
		return nil, endSpan(span, &StatusError{StatusCode: status, Message: errorMessage(body)})
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, endSpan(span, &StatusError{StatusCode: status, Message: "invalid image received from server"})
	}

	span.SetAttributes(attribute.Int("image.size", len(body)))
	return &model.Image{
		ContentType: contentType,
		Data:        body,
		Seed:        req.Seed,
		Width:       req.Width,
		Height:      req.Height,
	}, nil
}

func (g *Gateway) post(ctx context.Context, path string, payload any) (int, []byte, string, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, "", err
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return 0, nil, "", fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return 0, nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, nil, "", fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, "", fmt.Errorf("gateway read body: %w", err)
	}

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("http.path", path),
		attribute.Int("http.status_code", resp.StatusCode),
	)
	return resp.StatusCode, body, resp.Header.Get("Content-Type"), nil
}

func endSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// errorMessage extracts the "error" field of a JSON error body, falling back
// to "details" and then to the raw body text.
func errorMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if eb.Error != "" {
			return eb.Error
		}
		if eb.Details != "" {
			return eb.Details
		}
		return ""
	}
	return strings.TrimSpace(string(body))
}

func hasErrorField(body []byte) bool {
	var eb errorBody
	return json.Unmarshal(body, &eb) == nil && eb.Error != ""
}
