package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mydasteran/portal/internal/member"
	"github.com/mydasteran/portal/internal/whatsapp"
)

type dashboardViewData struct {
	baseViewData
	Dashboard   member.Dashboard
	SupportLink string
}

type monthOption struct {
	Number   int
	Name     string
	Selected bool
}

type historyViewData struct {
	baseViewData
	Year   int
	Month  time.Month
	Months []monthOption
	Orders []member.Order
	Points []member.Activity
}

type orderViewData struct {
	baseViewData
	Order member.Order
}

type preordersViewData struct {
	baseViewData
	Preorders []member.Preorder
}

type preorderViewData struct {
	baseViewData
	Detail member.PreorderDetail
}

type profileViewData struct {
	baseViewData
	Customer    member.Customer
	Addresses   []member.Address
	Form        member.AddressInput
	FieldErrors []string
	SupportLink string
}

type historyQuery struct {
	Year  int `schema:"year" validate:"omitempty,min=2000,max=2100"`
	Month int `schema:"month" validate:"omitempty,min=1,max=12"`
}

var addressFieldLabels = map[string]string{
	"Label":         "Label",
	"RecipientName": "Nama penerima",
	"Phone":         "Nomor HP",
	"Line1":         "Alamat",
	"Kecamatan":     "Kecamatan",
	"City":          "Kota",
	"Province":      "Provinsi",
	"PostalCode":    "Kode pos",
}

var profileNotices = map[string]string{
	"saved":   "Alamat berhasil disimpan.",
	"deleted": "Alamat berhasil dihapus.",
	"default": "Alamat utama berhasil diubah.",
}

func (s *server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	customer, _ := currentCustomer(r)

	dash, err := s.members.Dashboard(r.Context(), customer)
	if err != nil {
		s.serverError(w, r, "load dashboard", err)
		return
	}

	s.renderTemplate(w, r, http.StatusOK, "dashboard.html", dashboardViewData{
		baseViewData: s.base(r),
		Dashboard:    dash,
		SupportLink:  s.supportLink(),
	})
}

func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	customer, _ := currentCustomer(r)
	now := s.members.Now()
	data := historyViewData{baseViewData: s.base(r), Year: now.Year(), Month: now.Month()}

	var q historyQuery
	if err := s.forms.Decode(&q, r.URL.Query()); err != nil || s.validate.Struct(q) != nil {
		data.ErrorMessage = "Periode tidak valid, menampilkan bulan ini."
	} else {
		if q.Year != 0 {
			data.Year = q.Year
		}
		if q.Month != 0 {
			data.Month = time.Month(q.Month)
		}
	}
	data.Months = monthOptions(data.Month)

	orders, err := s.members.OrderHistory(r.Context(), customer.ID, data.Year, data.Month)
	if err != nil {
		s.serverError(w, r, "load order history", err)
		return
	}
	points, err := s.members.PointsHistory(r.Context(), customer.ID, data.Year, data.Month)
	if err != nil {
		s.serverError(w, r, "load points history", err)
		return
	}
	data.Orders = orders
	data.Points = points

	s.renderTemplate(w, r, http.StatusOK, "history.html", data)
}

func (s *server) handleOrderDetail(w http.ResponseWriter, r *http.Request) {
	customer, _ := currentCustomer(r)

	order, err := s.members.Order(r.Context(), customer.ID, chi.URLParam(r, "orderID"))
	if member.IsNotFound(err) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.serverError(w, r, "load order", err)
		return
	}

	s.renderTemplate(w, r, http.StatusOK, "order_detail.html", orderViewData{baseViewData: s.base(r), Order: order})
}

func (s *server) handlePreorders(w http.ResponseWriter, r *http.Request) {
	customer, _ := currentCustomer(r)

	preorders, err := s.members.Preorders(r.Context(), customer.ID)
	if err != nil {
		s.serverError(w, r, "load preorders", err)
		return
	}

	s.renderTemplate(w, r, http.StatusOK, "preorders.html", preordersViewData{baseViewData: s.base(r), Preorders: preorders})
}

func (s *server) handlePreorderDetail(w http.ResponseWriter, r *http.Request) {
	customer, _ := currentCustomer(r)

	detail, err := s.members.Preorder(r.Context(), customer.ID, chi.URLParam(r, "orderID"))
	if member.IsNotFound(err) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.serverError(w, r, "load preorder", err)
		return
	}

	s.renderTemplate(w, r, http.StatusOK, "preorder_detail.html", preorderViewData{baseViewData: s.base(r), Detail: detail})
}

func (s *server) handleProfile(w http.ResponseWriter, r *http.Request) {
	data := profileViewData{baseViewData: s.base(r)}
	data.SuccessMessage = profileNotices[r.URL.Query().Get("status")]
	s.renderProfile(w, r, http.StatusOK, data)
}

func (s *server) renderProfile(w http.ResponseWriter, r *http.Request, status int, data profileViewData) {
	customer, _ := currentCustomer(r)

	addresses, err := s.members.Addresses(r.Context(), customer.ID)
	if err != nil {
		s.serverError(w, r, "load addresses", err)
		return
	}
	data.Customer = customer
	data.Addresses = addresses
	data.SupportLink = s.supportLink()

	s.renderTemplate(w, r, status, "profile.html", data)
}

func (s *server) handleAddressCreate(w http.ResponseWriter, r *http.Request) {
	customer, _ := currentCustomer(r)

	in, ok := s.decodeAddress(w, r)
	if !ok {
		return
	}
	if _, err := s.members.AddAddress(r.Context(), customer.ID, in); err != nil {
		s.addressError(w, r, in, err)
		return
	}
	http.Redirect(w, r, "/member/profile?status=saved", http.StatusSeeOther)
}

func (s *server) handleAddressUpdate(w http.ResponseWriter, r *http.Request) {
	customer, _ := currentCustomer(r)

	in, ok := s.decodeAddress(w, r)
	if !ok {
		return
	}
	if _, err := s.members.UpdateAddress(r.Context(), customer.ID, chi.URLParam(r, "id"), in); err != nil {
		s.addressError(w, r, in, err)
		return
	}
	http.Redirect(w, r, "/member/profile?status=saved", http.StatusSeeOther)
}

func (s *server) handleAddressDefault(w http.ResponseWriter, r *http.Request) {
	customer, _ := currentCustomer(r)

	err := s.members.SetDefaultAddress(r.Context(), customer.ID, chi.URLParam(r, "id"))
	if member.IsNotFound(err) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.serverError(w, r, "set default address", err)
		return
	}
	http.Redirect(w, r, "/member/profile?status=default", http.StatusSeeOther)
}

func (s *server) handleAddressDelete(w http.ResponseWriter, r *http.Request) {
	customer, _ := currentCustomer(r)

	err := s.members.DeleteAddress(r.Context(), customer.ID, chi.URLParam(r, "id"))
	if member.IsNotFound(err) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.serverError(w, r, "delete address", err)
		return
	}
	http.Redirect(w, r, "/member/profile?status=deleted", http.StatusSeeOther)
}

func (s *server) decodeAddress(w http.ResponseWriter, r *http.Request) (member.AddressInput, bool) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return member.AddressInput{}, false
	}
	var in member.AddressInput
	if err := s.forms.Decode(&in, r.PostForm); err != nil {
		data := profileViewData{baseViewData: s.base(r), Form: in}
		data.ErrorMessage = "Form alamat tidak valid."
		s.renderProfile(w, r, http.StatusBadRequest, data)
		return member.AddressInput{}, false
	}
	return in, true
}

func (s *server) addressError(w http.ResponseWriter, r *http.Request, in member.AddressInput, err error) {
	if member.IsNotFound(err) {
		http.NotFound(w, r)
		return
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		data := profileViewData{baseViewData: s.base(r), Form: in, FieldErrors: addressFieldErrors(verrs)}
		data.ErrorMessage = "Periksa kembali data alamat."
		s.renderProfile(w, r, http.StatusBadRequest, data)
		return
	}

	s.serverError(w, r, "save address", err)
}

func addressFieldErrors(verrs validator.ValidationErrors) []string {
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		label := addressFieldLabels[fe.Field()]
		if label == "" {
			label = fe.Field()
		}
		switch fe.Tag() {
		case "required":
			out = append(out, label+" wajib diisi.")
		case "numeric":
			out = append(out, label+" harus berupa angka.")
		case "max":
			out = append(out, label+" terlalu panjang.")
		default:
			out = append(out, label+" tidak valid.")
		}
	}
	return out
}

func monthOptions(selected time.Month) []monthOption {
	out := make([]monthOption, 0, 12)
	for m := time.January; m <= time.December; m++ {
		out = append(out, monthOption{Number: int(m), Name: monthName(m), Selected: m == selected})
	}
	return out
}

func (s *server) supportLink() string {
	return whatsapp.Link(s.cfg.WhatsAppNumber, whatsapp.SupportText())
}

func (s *server) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.log.Error(msg, zap.String("path", r.URL.Path), zap.Error(err))
	http.Error(w, "internal server error", http.StatusInternalServerError)
}
