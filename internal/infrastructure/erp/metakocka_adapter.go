// Package erp adapts the Metakocka ERP REST API to the stock and price
// resolvers of the catalog sync.
package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pnv/catalog-sync/internal/domain/product"
	"github.com/pnv/catalog-sync/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxResponseSize bounds a single response body (32MB)
const maxResponseSize = 32 * 1024 * 1024

var (
	// ErrUnavailable marks transport failures, 429 and 5xx responses; they are retried.
	ErrUnavailable = errors.New("metakocka: service unavailable")
	// ErrRequestFailed marks 4xx responses other than 429; they are not retried.
	ErrRequestFailed = errors.New("metakocka: request rejected")
	// ErrAPI marks a well-formed response carrying a non-zero opr_code.
	ErrAPI = errors.New("metakocka: api error")
)

type statusCarrier interface {
	status() apiStatus
}

func (s apiStatus) status() apiStatus { return s }

// MetakockaClient implements product.StockResolver and product.PriceResolver
type MetakockaClient struct {
	config        MetakockaConfig
	httpClient    *http.Client
	limiter       *rate.Limiter
	retryInterval time.Duration
	active        map[string]struct{}
	metrics       *telemetry.PipelineMetrics
	logger        *zap.Logger
}

// NewMetakockaClient validates the configuration and builds a client
func NewMetakockaClient(cfg MetakockaConfig, logger *zap.Logger) (*MetakockaClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	retryInterval := cfg.RetryInitialInterval
	if retryInterval == 0 {
		retryInterval = 500 * time.Millisecond
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	active := make(map[string]struct{}, len(cfg.ActivePricelists))
	for _, title := range cfg.ActivePricelists {
		active[title] = struct{}{}
	}
	if len(active) == 0 {
		logger.Warn("No active pricelists configured; products will carry empty pricelists")
	}

	return &MetakockaClient{
		config:        cfg,
		httpClient:    &http.Client{Timeout: timeout},
		limiter:       rate.NewLimiter(limit, 1),
		retryInterval: retryInterval,
		active:        active,
		logger:        logger.With(zap.String("component", "metakocka")),
	}, nil
}

// WithMetrics records upstream latency of every request on m.
func (c *MetakockaClient) WithMetrics(m *telemetry.PipelineMetrics) *MetakockaClient {
	c.metrics = m
	return c
}

// FetchAll reads every stock page of the warehouse until an empty page is returned.
// An empty warehouseID selects the configured warehouse.
func (c *MetakockaClient) FetchAll(ctx context.Context, warehouseID string) (*product.StockSnapshot, error) {
	if warehouseID == "" {
		warehouseID = c.config.WarehouseID
	}

	items := make([]product.StockItem, 0, StockPageSize)
	for offset := 0; ; offset += StockPageSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var resp stockResponse
		err := c.post(ctx, "warehouse_stock", stockRequest{
			SecretKey: c.config.SecretKey,
			CompanyID: c.config.CompanyID,
			WhIDList:  warehouseID,
			Limit:     strconv.Itoa(StockPageSize),
			Offset:    strconv.Itoa(offset),
		}, &resp)
		if err != nil {
			return nil, fmt.Errorf("fetch stock page at offset %d: %w", offset, err)
		}
		if len(resp.StockList) == 0 {
			break
		}

		for _, line := range resp.StockList {
			items = append(items, product.StockItem{
				Code:       line.Code,
				Amount:     ParseAmount(string(line.Amount)),
				CountCode:  line.CountCode,
				ExternalID: string(line.MkID),
			})
		}
	}

	snapshot := product.NewStockSnapshot(items)
	c.logger.Info("Fetched warehouse stock",
		zap.String("warehouse_id", warehouseID),
		zap.Int("lines", len(items)),
		zap.Int("codes", snapshot.Len()),
	)
	return snapshot, nil
}

// FetchPricelist returns the active pricelists of one product in ERP order.
// An unknown product yields an empty list.
func (c *MetakockaClient) FetchPricelist(ctx context.Context, code string) ([]product.PriceEntry, error) {
	var resp productListResponse
	err := c.post(ctx, "product_list", productListRequest{
		SecretKey:       c.config.SecretKey,
		CompanyID:       c.config.CompanyID,
		Code:            code,
		ReturnPricelist: "true",
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("fetch pricelist for %s: %w", code, err)
	}

	entries := make([]product.PriceEntry, 0)
	if len(resp.ProductList) == 0 {
		return entries, nil
	}
	for _, pl := range resp.ProductList[0].Pricelist {
		if _, ok := c.active[pl.Title]; !ok {
			continue
		}
		entry := product.PriceEntry{Name: pl.Title, ValidFrom: ParseValidFrom(pl.ValidFrom)}
		if pl.PriceDef != nil {
			entry.Price = ParsePrice(string(pl.PriceDef.Price))
			entry.VAT = ParseVAT(string(pl.PriceDef.TaxDesc))
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (c *MetakockaClient) endpoint(name string) string {
	return strings.TrimRight(c.config.BaseURL, "/") + "/" + name
}

// post sends one JSON request with rate limiting and bounded retry.
func (c *MetakockaClient) post(ctx context.Context, name string, payload any, out statusCarrier) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("metakocka: failed to encode %s request: %w", name, err)
	}
	target := c.endpoint(name)

	ctx, span := telemetry.StartSpan(ctx, "metakocka."+name, telemetry.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	start := time.Now()

	op := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("metakocka: failed to create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return fmt.Errorf("%w: failed to read response: %v", ErrUnavailable, err)
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode)
		case resp.StatusCode >= 400:
			return backoff.Permanent(fmt.Errorf("%w: HTTP %d", ErrRequestFailed, resp.StatusCode))
		}

		if err := json.Unmarshal(data, out); err != nil {
			return backoff.Permanent(fmt.Errorf("metakocka: failed to decode %s response: %w", name, err))
		}
		if st := out.status(); st.failed() {
			return backoff.Permanent(fmt.Errorf("%w: %s %s", ErrAPI, st.OprCode, st.OprDescApp))
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.config.MaxRetries)), ctx)

	err = backoff.RetryNotify(op, retry, func(err error, wait time.Duration) {
		telemetry.AddEvent(span, "retry", "wait_ms", wait.Milliseconds())
		c.logger.Warn("Metakocka request failed, retrying",
			zap.String("endpoint", name),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
	c.metrics.RecordUpstream(ctx, name, time.Since(start), err)
	telemetry.RecordError(span, err)
	return err
}

var (
	_ product.StockResolver = (*MetakockaClient)(nil)
	_ product.PriceResolver = (*MetakockaClient)(nil)
)
