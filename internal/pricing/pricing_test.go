package pricing

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func nearlyEqual(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-6 {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}

func categoryStrategy() Strategy {
	return NewCategoryStrategy(DefaultRateBook().Category)
}

func measurementStrategy() *MeasurementStrategy {
	return NewMeasurementStrategy(DefaultRateBook().Measurement)
}

func TestEstimate_ShortDressBelowBulkThreshold(t *testing.T) {
	result, err := Estimate(categoryStrategy(), Input{Quantity: 50, Category: "daster_pendek"})
	if err != nil {
		t.Fatalf("Estimate returned error: %v", err)
	}

	nearlyEqual(t, "fabricCost", result.Breakdown.FabricCost, 32550)
	nearlyEqual(t, "sewingCost", result.Breakdown.SewingCost, 4250)
	nearlyEqual(t, "baseCostPerPiece", result.Breakdown.BaseCostPerPiece, 40800)
	nearlyEqual(t, "costPerPiece", result.Breakdown.CostPerPiece, 40800)
	nearlyEqual(t, "totalCost", result.Totals.TotalCost, 2040000)
	nearlyEqual(t, "suggestedPrice", result.Breakdown.SuggestedPrice, 61200)
	nearlyEqual(t, "totalRevenue", result.Totals.TotalRevenue, 3060000)
	nearlyEqual(t, "totalProfit", result.Totals.TotalProfit, 1020000)
	nearlyEqual(t, "totalDiscount", result.Totals.TotalDiscount, 0)
	if result.Breakdown.BulkApplied {
		t.Fatalf("expected no bulk discount below threshold")
	}
}

func TestEstimate_ShortDressAtBulkQuantity(t *testing.T) {
	result, err := Estimate(categoryStrategy(), Input{Quantity: 150, Category: "daster_pendek"})
	if err != nil {
		t.Fatalf("Estimate returned error: %v", err)
	}

	if !result.Breakdown.BulkApplied {
		t.Fatalf("expected bulk discount at quantity 150")
	}
	nearlyEqual(t, "costPerPiece", result.Breakdown.CostPerPiece, 39800)
	nearlyEqual(t, "totalDiscount", result.Totals.TotalDiscount, 150000)
	nearlyEqual(t, "totalCost", result.Totals.TotalCost, 39800*150)
}

func TestEstimate_BulkDiscountIsAStep(t *testing.T) {
	rates := DefaultRateBook().Category
	for _, qty := range []int{50, 99, 100, 101, 500} {
		result, err := Estimate(categoryStrategy(), Input{Quantity: qty, Category: "gamis"})
		if err != nil {
			t.Fatalf("Estimate(qty=%d) returned error: %v", qty, err)
		}
		b := result.Breakdown
		if qty >= rates.BulkThreshold {
			if b.CostPerPiece != b.BaseCostPerPiece-rates.BulkDiscountPerPiece {
				t.Fatalf("qty=%d: costPerPiece=%v, want base-discount=%v", qty, b.CostPerPiece, b.BaseCostPerPiece-rates.BulkDiscountPerPiece)
			}
			continue
		}
		if b.CostPerPiece != b.BaseCostPerPiece {
			t.Fatalf("qty=%d: costPerPiece=%v, want base=%v", qty, b.CostPerPiece, b.BaseCostPerPiece)
		}
	}
}

func TestEstimate_QuantityBelowFloorUsesFloor(t *testing.T) {
	floorResult, err := Estimate(categoryStrategy(), Input{Quantity: 50, Category: "dress_panjang"})
	if err != nil {
		t.Fatalf("Estimate returned error: %v", err)
	}

	for _, qty := range []int{-5, 0, 1, 49} {
		got, err := Estimate(categoryStrategy(), Input{Quantity: qty, Category: "dress_panjang"})
		if err != nil {
			t.Fatalf("Estimate(qty=%d) returned error: %v", qty, err)
		}
		if got != floorResult {
			t.Fatalf("Estimate(qty=%d) = %+v, want floor result %+v", qty, got, floorResult)
		}
	}
}

func TestEstimate_AlgebraicIdentities(t *testing.T) {
	strategies := []Strategy{categoryStrategy(), measurementStrategy()}
	for _, s := range strategies {
		for _, qty := range []int{1, 7, 50, 100, 1234} {
			for _, acc := range []bool{false, true} {
				in := Input{Quantity: qty, Category: "gamis", HasAccessories: acc, Accessory: AccessoryComplex, Sleeve: SleeveLong}
				r, err := Estimate(s, in)
				if err != nil {
					t.Fatalf("%s qty=%d: %v", s.Name(), qty, err)
				}
				q := float64(r.Totals.Quantity)
				if r.Totals.TotalCost != r.Breakdown.CostPerPiece*q {
					t.Fatalf("%s qty=%d: totalCost identity broken: %+v", s.Name(), qty, r)
				}
				if r.Totals.TotalProfit != r.Totals.TotalRevenue-r.Totals.TotalCost {
					t.Fatalf("%s qty=%d: profit identity broken: %+v", s.Name(), qty, r)
				}
			}
		}
	}
}

func TestEstimate_AccessoryLevels(t *testing.T) {
	none, _ := Estimate(categoryStrategy(), Input{Quantity: 50, Category: "daster_pendek", Accessory: AccessoryComplex})
	standard, _ := Estimate(categoryStrategy(), Input{Quantity: 50, Category: "daster_pendek", HasAccessories: true, Accessory: AccessoryStandard})
	complexResult, _ := Estimate(categoryStrategy(), Input{Quantity: 50, Category: "daster_pendek", HasAccessories: true, Accessory: AccessoryComplex})

	nearlyEqual(t, "none accessoryCost", none.Breakdown.AccessoryCost, 0)
	nearlyEqual(t, "standard accessoryCost", standard.Breakdown.AccessoryCost, 0)
	nearlyEqual(t, "complex accessoryCost", complexResult.Breakdown.AccessoryCost, 2000)
	nearlyEqual(t, "complex costPerPiece", complexResult.Breakdown.CostPerPiece, 42800)
}

func TestEstimate_UnknownCategory(t *testing.T) {
	_, err := Estimate(categoryStrategy(), Input{Quantity: 50, Category: "kebaya"})
	if !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
}

func TestMeasurementStrategy_FabricYards(t *testing.T) {
	s := measurementStrategy()

	nearlyEqual(t, "default measurements", s.FabricYards(Input{}), 220/91.44)
	nearlyEqual(t, "normal width", s.FabricYards(Input{ChestWidthCm: 110, LengthCm: 90}), 220/91.44)
	nearlyEqual(t, "at threshold", s.FabricYards(Input{ChestWidthCm: 150, LengthCm: 90}), 220/91.44)
	nearlyEqual(t, "double width", s.FabricYards(Input{ChestWidthCm: 151, LengthCm: 90}), 440/91.44)
	nearlyEqual(t, "short sleeve", s.FabricYards(Input{ChestWidthCm: 110, LengthCm: 90, Sleeve: SleeveShort}), 270/91.44)
	nearlyEqual(t, "long sleeve double", s.FabricYards(Input{ChestWidthCm: 160, LengthCm: 100, Sleeve: SleeveLong}), 600/91.44)
}

func TestMeasurementStrategy_NonFiniteMeasurementsUseDefaults(t *testing.T) {
	s := measurementStrategy()
	want := 220 / 91.44

	cases := map[string]Input{
		"NaN length":   {Quantity: 1, LengthCm: math.NaN()},
		"NaN chest":    {Quantity: 1, ChestWidthCm: math.NaN()},
		"Inf both":     {Quantity: 1, ChestWidthCm: math.Inf(1), LengthCm: math.Inf(1)},
		"negative Inf": {Quantity: 1, ChestWidthCm: math.Inf(-1), LengthCm: math.Inf(-1)},
	}
	for name, in := range cases {
		nearlyEqual(t, name+" fabricYards", s.FabricYards(in), want)

		result, err := Estimate(s, in)
		if err != nil {
			t.Fatalf("%s: Estimate returned error: %v", name, err)
		}
		if math.IsNaN(result.Totals.TotalCost) || math.IsInf(result.Totals.TotalCost, 0) {
			t.Fatalf("%s: totalCost=%v, want finite", name, result.Totals.TotalCost)
		}
		nearlyEqual(t, name+" costPerPiece", result.Breakdown.CostPerPiece, want*18000+5000)
	}
}

func TestMeasurementStrategy_EstimateHasNoBulkTier(t *testing.T) {
	result, err := Estimate(measurementStrategy(), Input{Quantity: 500, ChestWidthCm: 110, LengthCm: 90, HasAccessories: true, Accessory: ParseAccessoryLevel("premium")})
	if err != nil {
		t.Fatalf("Estimate returned error: %v", err)
	}

	fabric := 220 / 91.44 * 18000
	nearlyEqual(t, "fabricCost", result.Breakdown.FabricCost, fabric)
	nearlyEqual(t, "costPerPiece", result.Breakdown.CostPerPiece, fabric+5000+10000)
	nearlyEqual(t, "suggestedPrice", result.Breakdown.SuggestedPrice, (fabric+15000)*1.5)
	if result.Breakdown.BulkApplied || result.Totals.TotalDiscount != 0 {
		t.Fatalf("measurement strategy must not apply bulk discount: %+v", result)
	}
}

func TestMeasurementStrategy_FloorIsOne(t *testing.T) {
	result, err := Estimate(measurementStrategy(), Input{Quantity: -3})
	if err != nil {
		t.Fatalf("Estimate returned error: %v", err)
	}
	if result.Totals.Quantity != 1 {
		t.Fatalf("quantity=%d, want 1", result.Totals.Quantity)
	}
}

func TestParseQuantity(t *testing.T) {
	cases := map[string]int{
		"":      50,
		"abc":   50,
		"NaN":   50,
		"-5":    50,
		"0":     50,
		"75":    75,
		" 120 ": 120,
		"99.9":  99,
	}
	for raw, want := range cases {
		if got := ParseQuantity(raw, 50); got != want {
			t.Fatalf("ParseQuantity(%q) = %d, want %d", raw, got, want)
		}
	}
}

func TestResultRounded(t *testing.T) {
	result, err := Estimate(measurementStrategy(), Input{Quantity: 3})
	if err != nil {
		t.Fatalf("Estimate returned error: %v", err)
	}
	rounded := result.Rounded()

	if rounded.Breakdown.CostPerPiece != math.Round(result.Breakdown.CostPerPiece) {
		t.Fatalf("rounded costPerPiece = %v", rounded.Breakdown.CostPerPiece)
	}
	if rounded.Breakdown.FabricYards != result.Breakdown.FabricYards {
		t.Fatalf("yardage must not be rounded")
	}
	if result.Breakdown.CostPerPiece == math.Round(result.Breakdown.CostPerPiece) {
		t.Fatalf("expected unrounded internal value, got %v", result.Breakdown.CostPerPiece)
	}
}

func TestFormatRupiah(t *testing.T) {
	if got := FormatRupiah(2040000); got != "Rp 2.040.000" {
		t.Fatalf("FormatRupiah = %q", got)
	}
	if got := FormatRupiah(61199.6); got != "Rp 61.200" {
		t.Fatalf("FormatRupiah = %q", got)
	}
}

func TestLoadRateBook_OverridesDefaults(t *testing.T) {
	book, err := LoadRateBook(strings.NewReader(`
category:
  fabric_price_per_yard: 25000
  bulk_threshold: 200
measurement:
  sewing_cost: 6000
`))
	if err != nil {
		t.Fatalf("LoadRateBook returned error: %v", err)
	}

	nearlyEqual(t, "category price", book.Category.FabricPricePerYard, 25000)
	nearlyEqual(t, "category margin kept", book.Category.MarginPerPiece, 4000)
	if book.Category.BulkThreshold != 200 {
		t.Fatalf("bulk threshold = %d", book.Category.BulkThreshold)
	}
	if len(book.Category.Categories) != 3 {
		t.Fatalf("expected default categories, got %d", len(book.Category.Categories))
	}
	nearlyEqual(t, "measurement sewing", book.Measurement.SewingCost, 6000)
}

func TestLoadRateBook_RejectsUnknownFieldsAndDuplicates(t *testing.T) {
	if _, err := LoadRateBook(strings.NewReader("category:\n  fabric_price: 1\n")); err == nil {
		t.Fatalf("expected error for unknown field")
	}

	dup := `
category:
  categories:
    - key: gamis
      fabric_avg: 2
    - key: gamis
      fabric_avg: 3
`
	if _, err := LoadRateBook(strings.NewReader(dup)); err == nil {
		t.Fatalf("expected error for duplicate category")
	}
}

func TestRateBookStrategy(t *testing.T) {
	book := DefaultRateBook()
	for _, name := range []string{StrategyCategory, StrategyMeasurement} {
		s, err := book.Strategy(name)
		if err != nil {
			t.Fatalf("Strategy(%q): %v", name, err)
		}
		if s.Name() != name {
			t.Fatalf("Strategy(%q).Name() = %q", name, s.Name())
		}
	}
	if _, err := book.Strategy("vibes"); err == nil {
		t.Fatalf("expected error for unknown strategy")
	}
}
