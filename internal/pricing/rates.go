package pricing

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	StrategyCategory    = "category"
	StrategyMeasurement = "measurement"
)

// Category is a static product category of the category-table calculator.
type Category struct {
	Key         string  `yaml:"key" json:"key"`
	Name        string  `yaml:"name" json:"name"`
	FabricMin   float64 `yaml:"fabric_min" json:"fabric_min"`
	FabricMax   float64 `yaml:"fabric_max" json:"fabric_max"`
	FabricAvg   float64 `yaml:"fabric_avg" json:"fabric_avg"`
	SewingMin   float64 `yaml:"sewing_min" json:"sewing_min"`
	SewingMax   float64 `yaml:"sewing_max" json:"sewing_max"`
	SewingAvg   float64 `yaml:"sewing_avg" json:"sewing_avg"`
	Description string  `yaml:"description" json:"description"`
}

// CategoryRates holds the constants of the category-table calculator.
type CategoryRates struct {
	FabricPricePerYard   float64    `yaml:"fabric_price_per_yard"`
	MarginPerPiece       float64    `yaml:"margin_per_piece"`
	AccessoryStandard    float64    `yaml:"accessory_standard"`
	AccessoryComplex     float64    `yaml:"accessory_complex"`
	BulkThreshold        int        `yaml:"bulk_threshold"`
	BulkDiscountPerPiece float64    `yaml:"bulk_discount_per_piece"`
	MinQuantity          int        `yaml:"min_quantity"`
	MarkupMultiplier     float64    `yaml:"markup_multiplier"`
	Categories           []Category `yaml:"categories"`
}

func (r CategoryRates) category(key string) (Category, bool) {
	for _, c := range r.Categories {
		if c.Key == key {
			return c, true
		}
	}
	return Category{}, false
}

// SleeveRate is a sleeve base length plus its seam allowance, in cm.
type SleeveRate struct {
	BaseCm      float64 `yaml:"base_cm"`
	AllowanceCm float64 `yaml:"allowance_cm"`
}

// MeasurementRates holds the constants of the measurement-based calculator.
type MeasurementRates struct {
	FabricPricePerYard float64    `yaml:"fabric_price_per_yard"`
	SewingCost         float64    `yaml:"sewing_cost"`
	MarginPerPiece     float64    `yaml:"margin_per_piece"`
	AccessoryStandard  float64    `yaml:"accessory_standard"`
	AccessoryComplex   float64    `yaml:"accessory_complex"`
	SeamAllowanceCm    float64    `yaml:"seam_allowance_cm"`
	DoubleWidthChestCm float64    `yaml:"double_width_chest_cm"`
	DefaultChestCm     float64    `yaml:"default_chest_cm"`
	DefaultLengthCm    float64    `yaml:"default_length_cm"`
	MinQuantity        int        `yaml:"min_quantity"`
	MarkupMultiplier   float64    `yaml:"markup_multiplier"`
	ShortSleeve        SleeveRate `yaml:"short_sleeve"`
	LongSleeve         SleeveRate `yaml:"long_sleeve"`
}

func (r MeasurementRates) sleeveAllowance(s Sleeve) float64 {
	switch s {
	case SleeveShort:
		return r.ShortSleeve.BaseCm + r.ShortSleeve.AllowanceCm
	case SleeveLong:
		return r.LongSleeve.BaseCm + r.LongSleeve.AllowanceCm
	default:
		return 0
	}
}

// RateBook carries the constants of both calculator variants.
type RateBook struct {
	Category    CategoryRates    `yaml:"category"`
	Measurement MeasurementRates `yaml:"measurement"`
}

// DefaultRateBook returns the production rates currently quoted to customers.
func DefaultRateBook() RateBook {
	return RateBook{
		Category: CategoryRates{
			FabricPricePerYard:   21000,
			MarginPerPiece:       4000,
			AccessoryStandard:    0,
			AccessoryComplex:     2000,
			BulkThreshold:        100,
			BulkDiscountPerPiece: 1000,
			MinQuantity:          50,
			MarkupMultiplier:     1.5,
			Categories: []Category{
				{
					Key: "daster_pendek", Name: "Daster Pendek",
					FabricMin: 1.5, FabricMax: 1.6, FabricAvg: 1.55,
					SewingMin: 3500, SewingMax: 5000, SewingAvg: 4250,
					Description: "Daster pendek standar, bawah lutut",
				},
				{
					Key: "dress_panjang", Name: "Dress Panjang",
					FabricMin: 1.6, FabricMax: 2.0, FabricAvg: 1.8,
					SewingMin: 5000, SewingMax: 8000, SewingAvg: 6500,
					Description: "Dress panjang sampai mata kaki",
				},
				{
					Key: "gamis", Name: "Gamis",
					FabricMin: 2.6, FabricMax: 3.0, FabricAvg: 2.8,
					SewingMin: 7500, SewingMax: 10000, SewingAvg: 8750,
					Description: "Gamis full length dengan lengan panjang",
				},
			},
		},
		Measurement: MeasurementRates{
			FabricPricePerYard: 18000,
			SewingCost:         5000,
			MarginPerPiece:     0,
			AccessoryStandard:  7000,
			AccessoryComplex:   10000,
			SeamAllowanceCm:    20,
			DoubleWidthChestCm: 150,
			DefaultChestCm:     110,
			DefaultLengthCm:    90,
			MinQuantity:        1,
			MarkupMultiplier:   1.5,
			ShortSleeve:        SleeveRate{BaseCm: 20, AllowanceCm: 5},
			LongSleeve:         SleeveRate{BaseCm: 55, AllowanceCm: 5},
		},
	}
}

// LoadRateBook decodes a YAML rate book on top of DefaultRateBook, so a file
// only needs the values it overrides.
func LoadRateBook(r io.Reader) (RateBook, error) {
	book := DefaultRateBook()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&book); err != nil && !errors.Is(err, io.EOF) {
		return RateBook{}, fmt.Errorf("decode rate book: %w", err)
	}
	if err := book.validate(); err != nil {
		return RateBook{}, err
	}
	return book, nil
}

// LoadRateBookFile reads a YAML rate book from path. An empty path yields the defaults.
func LoadRateBookFile(path string) (RateBook, error) {
	if path == "" {
		return DefaultRateBook(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return RateBook{}, fmt.Errorf("open rate book: %w", err)
	}
	defer f.Close()
	return LoadRateBook(f)
}

func (b RateBook) validate() error {
	if len(b.Category.Categories) == 0 {
		return fmt.Errorf("rate book: at least one category is required")
	}
	seen := make(map[string]bool, len(b.Category.Categories))
	for _, c := range b.Category.Categories {
		if c.Key == "" {
			return fmt.Errorf("rate book: category key is required")
		}
		if seen[c.Key] {
			return fmt.Errorf("rate book: duplicate category %q", c.Key)
		}
		seen[c.Key] = true
	}
	if b.Category.MarkupMultiplier <= 0 || b.Measurement.MarkupMultiplier <= 0 {
		return fmt.Errorf("rate book: markup_multiplier must be greater than 0")
	}
	return nil
}

// Strategy returns the named strategy built from the rate book.
func (b RateBook) Strategy(name string) (Strategy, error) {
	switch name {
	case StrategyCategory, "":
		return NewCategoryStrategy(b.Category), nil
	case StrategyMeasurement:
		return NewMeasurementStrategy(b.Measurement), nil
	default:
		return nil, fmt.Errorf("unknown calculator strategy %q", name)
	}
}
