package main

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mydasteran/portal/internal/pricing"
	"github.com/mydasteran/portal/internal/whatsapp"
)

type homeViewData struct {
	baseViewData
	Categories  []pricing.Category
	MinQuantity int
	InquiryLink string
}

type calculatorViewData struct {
	baseViewData
	Form        estimateForm
	Categories  []pricing.Category
	MinQuantity int
	Result      *pricing.Result
	ConsultLink string
}

// estimateForm is the calculator query string. Every field is optional:
// missing or malformed values fall back to the strategy defaults.
type estimateForm struct {
	Strategy    string `schema:"strategy" validate:"omitempty,oneof=category measurement"`
	Quantity    string `schema:"quantity"`
	Category    string `schema:"category"`
	Accessories string `schema:"accessories"`
	Level       string `schema:"level"`
	Chest       string `schema:"chest"`
	Length      string `schema:"length"`
	Sleeve      string `schema:"sleeve"`
}

type inquiryForm struct {
	Name    string `schema:"name" validate:"required,max=100"`
	Message string `schema:"message" validate:"required,max=1000"`
}

var errBadEstimateForm = errors.New("invalid calculator input")

func (s *server) handleHome(w http.ResponseWriter, r *http.Request) {
	s.renderHome(w, r, http.StatusOK, "")
}

func (s *server) renderHome(w http.ResponseWriter, r *http.Request, status int, errMsg string) {
	category := pricing.NewCategoryStrategy(s.rates.Category)
	data := homeViewData{
		baseViewData: s.base(r),
		Categories:   category.Categories(),
		MinQuantity:  category.MinQuantity(),
		InquiryLink:  whatsapp.Link(s.cfg.WhatsAppNumber, whatsapp.GeneralInquiryText()),
	}
	data.ErrorMessage = errMsg
	s.renderTemplate(w, r, status, "home.html", data)
}

func (s *server) handleBusinessInquiry(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	var form inquiryForm
	if err := s.forms.Decode(&form, r.PostForm); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	form.Name = strings.TrimSpace(form.Name)
	form.Message = strings.TrimSpace(form.Message)
	if err := s.validate.Struct(form); err != nil {
		s.renderHome(w, r, http.StatusBadRequest, "Nama dan pesan wajib diisi.")
		return
	}

	http.Redirect(w, r, whatsapp.Link(s.cfg.WhatsAppNumber, whatsapp.BusinessInquiryText(form.Name, form.Message)), http.StatusSeeOther)
}

func (s *server) handleCalculator(w http.ResponseWriter, r *http.Request) {
	form, strategy, in, err := s.parseEstimate(r)
	data := calculatorViewData{
		baseViewData: s.base(r),
		Form:         form,
		Categories:   s.rates.Category.Categories,
		ConsultLink:  whatsapp.Link(s.cfg.WhatsAppNumber, whatsapp.ConsultationText()),
	}
	if err != nil {
		data.ErrorMessage = "Input kalkulator tidak valid."
		s.renderTemplate(w, r, http.StatusBadRequest, "kalkulator.html", data)
		return
	}
	data.MinQuantity = strategy.MinQuantity()
	data.Form.Quantity = strconv.Itoa(in.Quantity)

	res, err := pricing.Estimate(strategy, in)
	if err != nil {
		data.ErrorMessage = "Kategori produk tidak dikenal."
		s.renderTemplate(w, r, http.StatusBadRequest, "kalkulator.html", data)
		return
	}
	s.metrics.RecordEstimate(res.Strategy)
	rounded := res.Rounded()
	data.Result = &rounded
	s.renderTemplate(w, r, http.StatusOK, "kalkulator.html", data)
}

func (s *server) handleEstimateAPI(w http.ResponseWriter, r *http.Request) {
	_, strategy, in, err := s.parseEstimate(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := pricing.Estimate(strategy, in)
	if errors.Is(err, pricing.ErrUnknownCategory) {
		writeJSONError(w, http.StatusBadRequest, "unknown category")
		return
	}
	if err != nil {
		s.log.Error("estimate", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "estimate failed")
		return
	}
	s.metrics.RecordEstimate(res.Strategy)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		s.log.Warn("encode estimate", zap.Error(err))
	}
}

// parseEstimate decodes the calculator query. An empty strategy uses the
// configured one and an empty category the first category of the rate book.
func (s *server) parseEstimate(r *http.Request) (estimateForm, pricing.Strategy, pricing.Input, error) {
	var form estimateForm
	if err := s.forms.Decode(&form, r.URL.Query()); err != nil {
		return form, nil, pricing.Input{}, errBadEstimateForm
	}
	form.Strategy = strings.ToLower(strings.TrimSpace(form.Strategy))
	if form.Strategy == "" {
		form.Strategy = s.cfg.CalculatorStrategy
	}
	if err := s.validate.Struct(form); err != nil {
		return form, nil, pricing.Input{}, errBadEstimateForm
	}

	strategy, err := s.rates.Strategy(form.Strategy)
	if err != nil {
		return form, nil, pricing.Input{}, errBadEstimateForm
	}
	form.Strategy = strategy.Name()

	if form.Category == "" && len(s.rates.Category.Categories) > 0 {
		form.Category = s.rates.Category.Categories[0].Key
	}
	form.Level = string(pricing.ParseAccessoryLevel(form.Level))
	form.Sleeve = string(pricing.ParseSleeve(form.Sleeve))

	return form, strategy, form.input(strategy.MinQuantity()), nil
}

func (f estimateForm) input(floor int) pricing.Input {
	return pricing.Input{
		Quantity:       pricing.ParseQuantity(f.Quantity, floor),
		Category:       f.Category,
		HasAccessories: f.HasAccessories(),
		Accessory:      pricing.ParseAccessoryLevel(f.Level),
		ChestWidthCm:   parseMeasurement(f.Chest),
		LengthCm:       parseMeasurement(f.Length),
		Sleeve:         pricing.ParseSleeve(f.Sleeve),
	}
}

// HasAccessories reads the checkbox leniently: "on", "true", "1" and "yes"
// are set, anything else is unset.
func (f estimateForm) HasAccessories() bool {
	switch strings.ToLower(strings.TrimSpace(f.Accessories)) {
	case "on", "true", "1", "yes":
		return true
	default:
		return false
	}
}

// parseMeasurement returns 0 for anything that is not a positive number,
// which makes the strategy use its default body measurement.
func parseMeasurement(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0
	}
	return v
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
