// Package translate talks to the machine-translation endpoint.
//
// The endpoint answers a GET with a nested JSON array whose first element lists
// translated segments; the gateway joins the first field of every segment.
package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/inchinet/nativespeaker/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ErrMalformedResponse is returned when the response body is not the expected
// segment array.
var ErrMalformedResponse = errors.New("malformed translation response")

// Gateway issues translation requests. It is safe for concurrent use.
type Gateway struct {
	endpoint    string
	sourceLang  string
	failureText string
	client      *http.Client
	logger      *slog.Logger
	tracer      trace.Tracer
	requests    metric.Int64Counter
}

func NewGateway(cfg config.TranslationConfig, logger *slog.Logger) *Gateway {
	client := &http.Client{}
	if cfg.TimeoutMS > 0 {
		client.Timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}
	sourceLang := cfg.SourceLang
	if sourceLang == "" {
		sourceLang = "auto"
	}
	g := &Gateway{
		endpoint:    cfg.Endpoint,
		sourceLang:  sourceLang,
		failureText: cfg.FailureText,
		client:      client,
		logger:      logger.With(slog.String("component", "translate")),
		tracer:      otel.Tracer("github.com/inchinet/nativespeaker/translate"),
	}
	counter, err := otel.Meter("github.com/inchinet/nativespeaker/translate").Int64Counter(
		"nativespeaker.translation.requests",
		metric.WithDescription("Translation requests by outcome"),
	)
	if err != nil {
		g.logger.Warn("failed to create translation counter", slog.String("error", err.Error()))
	} else {
		g.requests = counter
	}
	return g
}

// FailureText is the placeholder TranslateText returns when a request fails.
func (g *Gateway) FailureText() string {
	return g.failureText
}

// TranslateText never fails: any error is logged and replaced with the
// configured failure text. Empty input yields an empty result without a request.
func (g *Gateway) TranslateText(ctx context.Context, text, targetLang string) string {
	if text == "" {
		return ""
	}
	translated, err := g.Translate(ctx, text, targetLang)
	if err != nil {
		g.logger.Error("translation error", slog.String("target", targetLang), slog.String("error", err.Error()))
		return g.failureText
	}
	return translated
}

// Translate performs a single request and reports failures to the caller.
func (g *Gateway) Translate(ctx context.Context, text, targetLang string) (result string, err error) {
	if text == "" {
		return "", nil
	}
	ctx, span := g.tracer.Start(ctx, "translate.Translate", trace.WithAttributes(
		attribute.String("translate.target", targetLang),
		attribute.Int("translate.chars", len(text)),
	))
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "failed"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		if g.requests != nil {
			g.requests.Add(ctx, 1, metric.WithAttributes(
				attribute.String("target", targetLang),
				attribute.String("outcome", outcome),
			))
		}
		span.End()
	}()

	reqURL, err := g.requestURL(text, targetLang)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("translation request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read translation response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translation service error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return joinSegments(body)
}

func (g *Gateway) requestURL(text, targetLang string) (string, error) {
	u, err := url.Parse(g.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse translation endpoint: %w", err)
	}
	q := u.Query()
	q.Set("client", "gtx")
	q.Set("sl", g.sourceLang)
	q.Set("tl", targetLang)
	q.Set("dt", "t")
	q.Set("q", text)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// joinSegments concatenates data[0][i][0] for every segment i. Segments whose
// first field is null contribute nothing.
func joinSegments(body []byte) (string, error) {
	var data []json.RawMessage
	if err := json.Unmarshal(body, &data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(data) == 0 {
		return "", ErrMalformedResponse
	}
	var segments []json.RawMessage
	if err := json.Unmarshal(data[0], &segments); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if segments == nil {
		return "", ErrMalformedResponse
	}

	var b strings.Builder
	for _, raw := range segments {
		var fields []json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil || len(fields) == 0 {
			return "", ErrMalformedResponse
		}
		var fragment *string
		if err := json.Unmarshal(fields[0], &fragment); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		if fragment != nil {
			b.WriteString(*fragment)
		}
	}
	return b.String(), nil
}
