// Package ai adapts the Gemini generateContent API to the batch classifier
// used by the categorization engine.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pnv/catalog-sync/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

var (
	// ErrUnavailable marks transport failures, 429 and 5xx responses; they are retried.
	ErrUnavailable = errors.New("gemini: service unavailable")
	// ErrRequestFailed marks 4xx responses other than 429; they are not retried.
	ErrRequestFailed = errors.New("gemini: request rejected")
	// ErrEmptyResponse marks a response without candidate text.
	ErrEmptyResponse = errors.New("gemini: empty response")
)

// generator is the subset of genai.Models the classifier calls.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClassifier sends categorization batches to Gemini with a JSON
// response schema.
type GeminiClassifier struct {
	config        GeminiConfig
	gen           generator
	retryInterval time.Duration
	metrics       *telemetry.PipelineMetrics
	logger        *zap.Logger
}

// NewGeminiClassifier validates cfg and connects a Gemini API client.
func NewGeminiClassifier(ctx context.Context, cfg GeminiConfig, logger *zap.Logger) (*GeminiClassifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}
	return newGeminiClassifier(cfg, client.Models, logger), nil
}

func newGeminiClassifier(cfg GeminiConfig, gen generator, logger *zap.Logger) *GeminiClassifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	retryInterval := cfg.RetryInitialInterval
	if retryInterval == 0 {
		retryInterval = time.Second
	}
	return &GeminiClassifier{
		config:        cfg,
		gen:           gen,
		retryInterval: retryInterval,
		logger:        logger.With(zap.String("component", "gemini"), zap.String("model", cfg.Model)),
	}
}

// WithMetrics records call latency and token usage on m.
func (c *GeminiClassifier) WithMetrics(m *telemetry.PipelineMetrics) *GeminiClassifier {
	c.metrics = m
	return c
}

// Model returns the configured model name.
func (c *GeminiClassifier) Model() string {
	return c.config.Model
}

// CategorizeBatch sends one batch and returns the raw JSON text with usage.
// Transient failures are retried with exponential backoff.
func (c *GeminiClassifier) CategorizeBatch(ctx context.Context, req BatchRequest) (*Completion, error) {
	ctx, span := telemetry.StartSpan(ctx, "gemini.generate_content",
		telemetry.WithSpanKind(trace.SpanKindClient),
		telemetry.WithAttribute(telemetry.SpanAttrModel, c.config.Model),
		telemetry.WithAttribute(telemetry.SpanAttrExportID, req.ExportID),
	)
	defer span.End()

	genConfig := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemInstruction, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    CategorizationSchema(),
	}
	contents := genai.Text(req.Prompt)

	var out *Completion
	start := time.Now()
	op := func() error {
		attemptCtx := ctx
		if c.config.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, c.config.Timeout)
			defer cancel()
		}

		resp, err := c.gen.GenerateContent(attemptCtx, c.config.Model, contents, genConfig)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return classify(err)
		}

		text := strings.TrimSpace(resp.Text())
		if text == "" {
			return backoff.Permanent(ErrEmptyResponse)
		}
		out = &Completion{Text: text, Model: c.config.Model, Usage: usageFrom(resp.UsageMetadata)}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.config.MaxRetries)), ctx)

	err := backoff.RetryNotify(op, retry, func(err error, wait time.Duration) {
		telemetry.AddEvent(span, "retry", "wait_ms", wait.Milliseconds())
		c.logger.Warn("Gemini request failed, retrying", zap.Duration("wait", wait), zap.Error(err))
	})
	c.metrics.RecordUpstream(ctx, "generate_content", time.Since(start), err)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	c.metrics.RecordTokens(ctx, req.ExportID, out.Model, out.Usage.InputTokens, out.Usage.OutputTokens)
	telemetry.SetAttributes(span,
		"input_tokens", out.Usage.InputTokens,
		"output_tokens", out.Usage.OutputTokens,
	)
	return out, nil
}

// classify maps an SDK error to a retryable or permanent sentinel.
func classify(err error) error {
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	}

	switch {
	case code == 0, code == http.StatusTooManyRequests, code >= 500:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		return backoff.Permanent(fmt.Errorf("%w: HTTP %d: %v", ErrRequestFailed, code, err))
	}
}
