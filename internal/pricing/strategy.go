package pricing

import (
	"fmt"
	"math"
)

const cmPerYard = 91.44

// CategoryStrategy prices a garment from the average yardage and sewing cost
// of a fixed product category, with a per-piece bulk discount.
type CategoryStrategy struct {
	rates CategoryRates
}

// NewCategoryStrategy returns a category-table strategy over rates.
func NewCategoryStrategy(rates CategoryRates) *CategoryStrategy {
	return &CategoryStrategy{rates: rates}
}

func (s *CategoryStrategy) Name() string { return StrategyCategory }

func (s *CategoryStrategy) MinQuantity() int { return s.rates.MinQuantity }

// Categories lists the categories in rate book order.
func (s *CategoryStrategy) Categories() []Category {
	out := make([]Category, len(s.rates.Categories))
	copy(out, s.rates.Categories)
	return out
}

// Estimate prices in. Quantity is used as given; use the package-level Estimate to clamp it.
func (s *CategoryStrategy) Estimate(in Input) (Result, error) {
	category, ok := s.rates.category(in.Category)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownCategory, in.Category)
	}

	bulk := s.rates.BulkThreshold > 0 && in.Quantity >= s.rates.BulkThreshold
	discount := 0.0
	if bulk {
		discount = s.rates.BulkDiscountPerPiece
	}

	return finish(s.Name(), in.Quantity, s.rates.MarkupMultiplier, perPiece{
		fabricYards:      category.FabricAvg,
		fabricCost:       category.FabricAvg * s.rates.FabricPricePerYard,
		sewingCost:       category.SewingAvg,
		accessoryCost:    accessoryCost(in, s.rates.AccessoryStandard, s.rates.AccessoryComplex),
		margin:           s.rates.MarginPerPiece,
		bulk:             bulk,
		discountPerPiece: discount,
	}), nil
}

// MeasurementStrategy derives fabric length from chest width, garment length
// and sleeve type. It has no bulk tier.
type MeasurementStrategy struct {
	rates MeasurementRates
}

// NewMeasurementStrategy returns a measurement-based strategy over rates.
func NewMeasurementStrategy(rates MeasurementRates) *MeasurementStrategy {
	return &MeasurementStrategy{rates: rates}
}

func (s *MeasurementStrategy) Name() string { return StrategyMeasurement }

func (s *MeasurementStrategy) MinQuantity() int { return s.rates.MinQuantity }

// FabricYards returns the fabric needed for one piece. Measurements that are
// not finite positive numbers use the defaults.
func (s *MeasurementStrategy) FabricYards(in Input) float64 {
	chest := measurementOr(in.ChestWidthCm, s.rates.DefaultChestCm)
	length := measurementOr(in.LengthCm, s.rates.DefaultLengthCm)

	lengthWithAllowance := length + s.rates.SeamAllowanceCm
	sleeve := s.rates.sleeveAllowance(in.Sleeve)

	var totalCm float64
	if chest > s.rates.DoubleWidthChestCm {
		totalCm = 4*lengthWithAllowance + 2*sleeve
	} else {
		totalCm = 2*lengthWithAllowance + 2*sleeve
	}

	return totalCm / cmPerYard
}

func measurementOr(v, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return def
	}
	return v
}

// Estimate prices in. Quantity is used as given; use the package-level Estimate to clamp it.
func (s *MeasurementStrategy) Estimate(in Input) (Result, error) {
	yards := s.FabricYards(in)

	return finish(s.Name(), in.Quantity, s.rates.MarkupMultiplier, perPiece{
		fabricYards:   yards,
		fabricCost:    yards * s.rates.FabricPricePerYard,
		sewingCost:    s.rates.SewingCost,
		accessoryCost: accessoryCost(in, s.rates.AccessoryStandard, s.rates.AccessoryComplex),
		margin:        s.rates.MarginPerPiece,
	}), nil
}
