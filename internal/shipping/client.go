// Package shipping forwards serviceability, shipment and pickup calls to the courier REST API.
package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 4 << 20
	requestIDHeader  = "X-Request-Id"

	serviceabilityPath = "/courier/serviceability/"
	shipmentPath       = "/orders/create/adhoc"
	pickupPath         = "/courier/generate/pickup"
)

var (
	// ErrNotConfigured is returned when no courier token is set.
	ErrNotConfigured = errors.New("shipping: courier token not configured")
	// ErrCourierUnavailable wraps transport failures talking to the courier.
	ErrCourierUnavailable = errors.New("shipping: courier unavailable")
	// ErrInvalidBody is returned when a forwarded body is empty or not JSON.
	ErrInvalidBody = errors.New("shipping: request body must be a JSON document")
)

var tracer = otel.Tracer("github.com/matica-life/storefront/internal/shipping")

// Response is a successful courier reply, kept as raw bytes.
type Response struct {
	Status      int
	Body        []byte
	ContentType string
}

// CourierError is a non-2xx courier reply. Body is the courier payload as received.
type CourierError struct {
	Status      int
	Body        []byte
	ContentType string
}

func (e *CourierError) Error() string {
	return fmt.Sprintf("shipping: courier responded %d", e.Status)
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	Token       string
	Timeout     time.Duration
	HTTPClient  *http.Client
	IDGenerator func() string
}

// Client is a thin pass-through to the courier API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	newID   func() string
}

// NewClient validates the base URL. A missing token is allowed; calls then fail with
// ErrNotConfigured so the routes can still be mounted.
func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("shipping: base url is required")
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("shipping: invalid base url %q", opts.BaseURL)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	newID := opts.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	return &Client{
		baseURL: base,
		token:   strings.TrimSpace(opts.Token),
		http:    httpClient,
		newID:   newID,
	}, nil
}

// Configured reports whether a token is present.
func (c *Client) Configured() bool {
	return c != nil && c.token != ""
}

// CheckServiceability asks whether a pickup/delivery pincode pair is covered. rawQuery is an
// already-encoded query string and is forwarded byte for byte, key order included.
func (c *Client) CheckServiceability(ctx context.Context, rawQuery string) (Response, error) {
	return c.do(ctx, http.MethodGet, serviceabilityPath, strings.TrimPrefix(rawQuery, "?"), nil)
}

// CreateShipment creates an ad-hoc order with the courier. body is forwarded byte for byte.
func (c *Client) CreateShipment(ctx context.Context, body json.RawMessage) (Response, error) {
	if err := validateBody(body); err != nil {
		return Response{}, err
	}
	return c.do(ctx, http.MethodPost, shipmentPath, "", body)
}

// RequestPickup schedules a courier pickup. body is forwarded byte for byte.
func (c *Client) RequestPickup(ctx context.Context, body json.RawMessage) (Response, error) {
	if err := validateBody(body); err != nil {
		return Response{}, err
	}
	return c.do(ctx, http.MethodPost, pickupPath, "", body)
}

func (c *Client) do(ctx context.Context, method, path, rawQuery string, body []byte) (Response, error) {
	if !c.Configured() {
		return Response{}, ErrNotConfigured
	}

	ctx, span := tracer.Start(ctx, "shipping."+strings.ToLower(method)+" "+path)
	defer span.End()

	endpoint := c.baseURL + path
	if rawQuery != "" {
		endpoint += "?" + rawQuery
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return Response{}, fmt.Errorf("shipping: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, c.newID())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return Response{}, fmt.Errorf("%w: %v", ErrCourierUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		span.RecordError(err)
		return Response{}, fmt.Errorf("%w: read response: %v", ErrCourierUnavailable, err)
	}
	if len(payload) > maxResponseBytes {
		span.SetStatus(codes.Error, "response too large")
		return Response{}, fmt.Errorf("%w: response exceeds %d bytes", ErrCourierUnavailable, maxResponseBytes)
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		return Response{}, &CourierError{Status: resp.StatusCode, Body: payload, ContentType: contentType}
	}
	return Response{Status: resp.StatusCode, Body: payload, ContentType: contentType}, nil
}

func validateBody(body json.RawMessage) error {
	if len(bytes.TrimSpace(body)) == 0 || !json.Valid(body) {
		return ErrInvalidBody
	}
	return nil
}
