package pricing

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// ErrUnknownCategory is returned when a category key is not present in the rate book.
var ErrUnknownCategory = errors.New("unknown product category")

// AccessoryLevel selects the added accessory cost per piece.
type AccessoryLevel string

const (
	AccessoryStandard AccessoryLevel = "standard"
	AccessoryComplex  AccessoryLevel = "complex"
)

// ParseAccessoryLevel accepts both naming schemes used by the calculators
// (standard/complex and basic/premium). Anything else is standard.
func ParseAccessoryLevel(raw string) AccessoryLevel {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "complex", "premium":
		return AccessoryComplex
	default:
		return AccessoryStandard
	}
}

// Sleeve is the sleeve type used by the measurement strategy.
type Sleeve string

const (
	SleeveNone  Sleeve = "none"
	SleeveShort Sleeve = "short"
	SleeveLong  Sleeve = "long"
)

// ParseSleeve maps a form value to a Sleeve, defaulting to SleeveNone.
func ParseSleeve(raw string) Sleeve {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "short":
		return SleeveShort
	case "long":
		return SleeveLong
	default:
		return SleeveNone
	}
}

// Input describes one production run passed to a Strategy.
type Input struct {
	Quantity       int
	Category       string
	HasAccessories bool
	Accessory      AccessoryLevel

	// Measurement strategy only.
	ChestWidthCm float64
	LengthCm     float64
	Sleeve       Sleeve
}

// Breakdown contains the per-piece values of an estimate.
type Breakdown struct {
	FabricYards      float64 `json:"fabric_yards"`
	FabricCost       float64 `json:"fabric_cost"`
	SewingCost       float64 `json:"sewing_cost"`
	AccessoryCost    float64 `json:"accessory_cost"`
	Margin           float64 `json:"margin"`
	BaseCostPerPiece float64 `json:"base_cost_per_piece"`
	BulkApplied      bool    `json:"bulk_applied"`
	DiscountPerPiece float64 `json:"discount_per_piece"`
	CostPerPiece     float64 `json:"cost_per_piece"`
	SuggestedPrice   float64 `json:"suggested_price"`
}

// Totals contains roll-up values over the whole production run.
type Totals struct {
	Quantity      int     `json:"quantity"`
	TotalCost     float64 `json:"total_cost"`
	TotalDiscount float64 `json:"total_discount"`
	TotalRevenue  float64 `json:"total_revenue"`
	TotalProfit   float64 `json:"total_profit"`
}

// Result groups the full estimate output.
type Result struct {
	Strategy  string    `json:"strategy"`
	Breakdown Breakdown `json:"breakdown"`
	Totals    Totals    `json:"totals"`
}

// Rounded returns a copy with every currency value rounded to whole units.
// Only meant for display; callers doing arithmetic should use the raw Result.
func (r Result) Rounded() Result {
	b := r.Breakdown
	b.FabricCost = math.Round(b.FabricCost)
	b.SewingCost = math.Round(b.SewingCost)
	b.AccessoryCost = math.Round(b.AccessoryCost)
	b.Margin = math.Round(b.Margin)
	b.BaseCostPerPiece = math.Round(b.BaseCostPerPiece)
	b.DiscountPerPiece = math.Round(b.DiscountPerPiece)
	b.CostPerPiece = math.Round(b.CostPerPiece)
	b.SuggestedPrice = math.Round(b.SuggestedPrice)

	t := r.Totals
	t.TotalCost = math.Round(t.TotalCost)
	t.TotalDiscount = math.Round(t.TotalDiscount)
	t.TotalRevenue = math.Round(t.TotalRevenue)
	t.TotalProfit = math.Round(t.TotalProfit)

	return Result{Strategy: r.Strategy, Breakdown: b, Totals: t}
}

// Strategy computes an estimate for one calculator variant.
type Strategy interface {
	Name() string
	MinQuantity() int
	Estimate(in Input) (Result, error)
}

// Estimate clamps the quantity to the strategy floor and runs the strategy.
func Estimate(s Strategy, in Input) (Result, error) {
	in.Quantity = ClampQuantity(in.Quantity, s.MinQuantity())
	res, err := s.Estimate(in)
	if err != nil {
		return Result{}, fmt.Errorf("estimate with %s strategy: %w", s.Name(), err)
	}
	return res, nil
}

// ClampQuantity returns quantity, or floor when quantity is below it.
func ClampQuantity(quantity, floor int) int {
	if floor < 1 {
		floor = 1
	}
	if quantity < floor {
		return floor
	}
	return quantity
}

// ParseQuantity reads a quantity form value. Non-numeric input falls back to floor.
func ParseQuantity(raw string, floor int) int {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return ClampQuantity(0, floor)
	}
	if value > math.MaxInt32 {
		value = math.MaxInt32
	}
	return ClampQuantity(int(math.Trunc(value)), floor)
}

// FormatRupiah renders an amount rounded to whole rupiah with id-ID grouping.
func FormatRupiah(v float64) string {
	return "Rp " + humanize.FormatInteger("#.###,", int(math.Round(v)))
}

// perPiece is the strategy-specific part of an estimate.
type perPiece struct {
	fabricYards      float64
	fabricCost       float64
	sewingCost       float64
	accessoryCost    float64
	margin           float64
	bulk             bool
	discountPerPiece float64
}

// finish applies the shared totals arithmetic to a per-piece breakdown.
func finish(strategy string, quantity int, markup float64, p perPiece) Result {
	base := p.fabricCost + p.sewingCost + p.accessoryCost + p.margin
	costPerPiece := base - p.discountPerPiece

	qty := float64(quantity)
	totalCost := costPerPiece * qty
	suggested := costPerPiece * markup
	revenue := suggested * qty

	return Result{
		Strategy: strategy,
		Breakdown: Breakdown{
			FabricYards:      p.fabricYards,
			FabricCost:       p.fabricCost,
			SewingCost:       p.sewingCost,
			AccessoryCost:    p.accessoryCost,
			Margin:           p.margin,
			BaseCostPerPiece: base,
			BulkApplied:      p.bulk,
			DiscountPerPiece: p.discountPerPiece,
			CostPerPiece:     costPerPiece,
			SuggestedPrice:   suggested,
		},
		Totals: Totals{
			Quantity:      quantity,
			TotalCost:     totalCost,
			TotalDiscount: p.discountPerPiece * qty,
			TotalRevenue:  revenue,
			TotalProfit:   revenue - totalCost,
		},
	}
}

func accessoryCost(in Input, standardCost, complexCost float64) float64 {
	if !in.HasAccessories {
		return 0
	}
	if in.Accessory == AccessoryComplex {
		return complexCost
	}
	return standardCost
}
