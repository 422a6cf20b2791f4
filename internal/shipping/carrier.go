package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/vitrine-field/api/internal/domain"
)

const (
	instrumentationName  = "github.com/vitrine-field/api/internal/shipping"
	maxCarrierBodyBytes  = 64 * 1024
	carrierUserAgent     = "vitrine-shipping/1.0"
	carrierErrorBodySize = 256
)

var (
	// ErrCarrierStatus is returned when a carrier answers with a non-2xx status.
	ErrCarrierStatus = errors.New("shipping: carrier returned non-success status")
	// ErrCarrierResponse is returned when a carrier body cannot be decoded.
	ErrCarrierResponse = errors.New("shipping: invalid carrier response")
)

// RateRequest is the JSON body posted to carrier endpoints.
type RateRequest struct {
	PostalCode string  `json:"postalCode"`
	Weight     float64 `json:"weight"`
	Length     float64 `json:"length"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
}

// RateResponse is the subset of a carrier answer the storefront understands.
type RateResponse struct {
	Price         decimal.Decimal `json:"price"`
	DeliveryDays  *int            `json:"delivery_days,omitempty"`
	DeliveryLabel string          `json:"delivery_label,omitempty"`
}

// CarrierClient quotes a single api shipping method.
type CarrierClient interface {
	Quote(ctx context.Context, method domain.ShippingMethod, req RateRequest) (RateResponse, error)
}

// HTTPCarrierClient posts rate requests to the method's api_url.
type HTTPCarrierClient struct {
	client     *http.Client
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	latency    metric.Float64Histogram
	failures   metric.Int64Counter
}

// HTTPCarrierOption customises HTTPCarrierClient.
type HTTPCarrierOption func(*HTTPCarrierClient)

// WithHTTPClient overrides the HTTP client. Per-call deadlines come from the request context.
func WithHTTPClient(client *http.Client) HTTPCarrierOption {
	return func(c *HTTPCarrierClient) {
		if client != nil {
			c.client = client
		}
	}
}

// WithMeterProvider swaps the meter provider used for carrier metrics.
func WithMeterProvider(provider metric.MeterProvider) HTTPCarrierOption {
	return func(c *HTTPCarrierClient) {
		if provider != nil {
			c.registerMetrics(provider.Meter(instrumentationName))
		}
	}
}

// NewHTTPCarrierClient builds a carrier client instrumented with the global otel providers.
func NewHTTPCarrierClient(opts ...HTTPCarrierOption) *HTTPCarrierClient {
	c := &HTTPCarrierClient{
		client:     &http.Client{},
		tracer:     otel.Tracer(instrumentationName),
		propagator: otel.GetTextMapPropagator(),
	}
	c.registerMetrics(otel.GetMeterProvider().Meter(instrumentationName))
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *HTTPCarrierClient) registerMetrics(meter metric.Meter) {
	if latency, err := meter.Float64Histogram(
		"shipping.carrier.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds for carrier rate requests"),
	); err == nil {
		c.latency = latency
	}
	if failures, err := meter.Int64Counter(
		"shipping.carrier.failures",
		metric.WithDescription("Count of carrier rate requests that did not yield a quote"),
	); err == nil {
		c.failures = failures
	}
}

// Quote sends the rate request with the method's headers and decodes the carrier answer.
func (c *HTTPCarrierClient) Quote(ctx context.Context, method domain.ShippingMethod, req RateRequest) (resp RateResponse, err error) {
	ctx, span := c.tracer.Start(ctx, "shipping.carrier.quote", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("shipping.method_id", method.ID),
			attribute.String("shipping.tenant_id", method.TenantID),
		))
	start := time.Now()
	defer func() {
		attrs := metric.WithAttributes(attribute.String("method_id", method.ID), attribute.Bool("success", err == nil))
		if c.latency != nil {
			c.latency.Record(ctx, float64(time.Since(start))/float64(time.Millisecond), attrs)
		}
		if err != nil {
			if c.failures != nil {
				c.failures.Add(ctx, 1, attrs)
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	body, err := json.Marshal(req)
	if err != nil {
		return RateResponse{}, fmt.Errorf("shipping: encode rate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSpace(method.APIURL), bytes.NewReader(body))
	if err != nil {
		return RateResponse{}, fmt.Errorf("shipping: build carrier request: %w", err)
	}
	for key, value := range method.APIHeaders {
		httpReq.Header.Set(key, value)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", carrierUserAgent)
	}
	c.propagator.Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	res, err := c.client.Do(httpReq)
	if err != nil {
		return RateResponse{}, fmt.Errorf("shipping: carrier request failed: %w", err)
	}
	defer res.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", res.StatusCode))
	payload, err := io.ReadAll(io.LimitReader(res.Body, maxCarrierBodyBytes))
	if err != nil {
		return RateResponse{}, fmt.Errorf("shipping: read carrier response: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		snippet := errorSnippet(payload)
		if snippet == "" {
			return RateResponse{}, fmt.Errorf("%w: %d", ErrCarrierStatus, res.StatusCode)
		}
		return RateResponse{}, fmt.Errorf("%w: %d: %s", ErrCarrierStatus, res.StatusCode, snippet)
	}

	if err := json.Unmarshal(payload, &resp); err != nil {
		return RateResponse{}, fmt.Errorf("%w: %v", ErrCarrierResponse, err)
	}
	if resp.Price.IsNegative() {
		return RateResponse{}, fmt.Errorf("%w: negative price", ErrCarrierResponse)
	}
	return resp, nil
}

// errorSnippet returns at most carrierErrorBodySize bytes of body, cut on a rune boundary.
func errorSnippet(body []byte) string {
	snippet := strings.TrimSpace(strings.ToValidUTF8(string(body), "\uFFFD"))
	if len(snippet) <= carrierErrorBodySize {
		return snippet
	}
	cut := carrierErrorBodySize
	for cut > 0 && !utf8.RuneStart(snippet[cut]) {
		cut--
	}
	return strings.TrimSpace(snippet[:cut])
}
