// Package production reads per-product production progress for preorders.
package production

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/mydasteran/portal/internal/datasvc"
)

// ErrUnavailable is returned when the status service cannot be reached or
// the circuit breaker is open.
var ErrUnavailable = errors.New("production status unavailable")

// StageQuantity is the quantity of one product sitting in one stage.
type StageQuantity struct {
	ProductName string `json:"product_name"`
	Status      string `json:"status"`
	TotalQty    int    `json:"total_qty"`
}

// Client looks up production stages by order reference (invoice number,
// falling back to order number).
type Client interface {
	Status(ctx context.Context, ref string) ([]StageQuantity, error)
}

// HTTPClient calls the remote production-status function.
type HTTPClient struct {
	url     string
	key     string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPClient builds a client for url authenticated with key. A nil hc
// uses a client with a 10 second timeout.
func NewHTTPClient(url, key string, hc *http.Client, log *zap.Logger) *HTTPClient {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}

	settings := gobreaker.Settings{
		Name:        "production-status",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &HTTPClient{
		url:     url,
		key:     key,
		http:    hc,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

type statusRequest struct {
	RefOrderID string `json:"ref_order_id"`
}

type statusResponse struct {
	Data []StageQuantity `json:"data"`
}

func (c *HTTPClient) Status(ctx context.Context, ref string) ([]StageQuantity, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, ref)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	return out.([]StageQuantity), nil
}

func (c *HTTPClient) fetch(ctx context.Context, ref string) ([]StageQuantity, error) {
	body, err := json.Marshal(statusRequest{RefOrderID: ref})
	if err != nil {
		return nil, fmt.Errorf("encode production status request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build production status request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.key != "" {
		req.Header.Set("Authorization", "Bearer "+c.key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var decoded statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode production status response: %w", err)
	}
	if decoded.Data == nil {
		decoded.Data = []StageQuantity{}
	}
	return decoded.Data, nil
}

// StoreClient serves production status from the production_status table.
// It stands in for the remote service during development.
type StoreClient struct {
	data datasvc.Service
}

func NewStoreClient(data datasvc.Service) *StoreClient {
	return &StoreClient{data: data}
}

func (c *StoreClient) Status(ctx context.Context, ref string) ([]StageQuantity, error) {
	recs, err := c.data.Select(ctx, datasvc.TableProductionStatus, datasvc.Query{
		Filters: []datasvc.Condition{datasvc.Eq("ref_order_id", ref)},
		Order:   []datasvc.Order{datasvc.Asc("created_at")},
	})
	if err != nil {
		return nil, fmt.Errorf("select production status: %w", err)
	}

	out := make([]StageQuantity, 0, len(recs))
	for _, r := range recs {
		out = append(out, StageQuantity{
			ProductName: r.String("product_name"),
			Status:      r.String("status"),
			TotalQty:    r.Int("total_qty"),
		})
	}
	return out, nil
}

// Stage names reported by the production floor.
const (
	StageCutting = "cutting"
	StageSewing  = "sewing"
	StageDone    = "done"
)

// ProductProgress is the production progress of one product.
type ProductProgress struct {
	ProductName string
	Cutting     int
	Sewing      int
	Done        int
	Total       int
	DonePercent int
}

// Summarize groups stages by product in first-seen order. For each stage
// only the first matching row counts, matched case-insensitively.
func Summarize(stages []StageQuantity) []ProductProgress {
	type group struct {
		progress ProductProgress
		seen     map[string]bool
	}

	order := make([]string, 0)
	groups := make(map[string]*group)
	for _, s := range stages {
		g, ok := groups[s.ProductName]
		if !ok {
			g = &group{progress: ProductProgress{ProductName: s.ProductName}, seen: make(map[string]bool)}
			groups[s.ProductName] = g
			order = append(order, s.ProductName)
		}

		stage := strings.ToLower(strings.TrimSpace(s.Status))
		if g.seen[stage] {
			continue
		}
		switch stage {
		case StageCutting:
			g.progress.Cutting = s.TotalQty
		case StageSewing:
			g.progress.Sewing = s.TotalQty
		case StageDone:
			g.progress.Done = s.TotalQty
		default:
			continue
		}
		g.seen[stage] = true
	}

	out := make([]ProductProgress, 0, len(order))
	for _, name := range order {
		p := groups[name].progress
		p.Total = p.Cutting + p.Sewing + p.Done
		if p.Total > 0 {
			p.DonePercent = int(math.Round(float64(p.Done) / float64(p.Total) * 100))
		}
		out = append(out, p)
	}
	return out
}
