package main

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mydasteran/portal/internal/otp"
)

type loginViewData struct {
	baseViewData
	Phone  string
	Handle string
}

func (s *server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.sessions.session(r); ok {
		http.Redirect(w, r, "/member/dashboard", http.StatusSeeOther)
		return
	}
	s.renderTemplate(w, r, http.StatusOK, "login.html", loginViewData{baseViewData: s.base(r)})
}

func (s *server) handleOTPRequest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	raw := strings.TrimSpace(r.PostFormValue("phone"))
	data := loginViewData{baseViewData: s.base(r), Phone: raw}

	challenge, err := s.otp.Request(r.Context(), raw)
	switch {
	case errors.Is(err, otp.ErrInvalidPhone):
		s.metrics.RecordOTPRequest("invalid_phone")
		data.ErrorMessage = "Nomor HP tidak valid. Gunakan format 08xx atau 62xx."
		s.renderTemplate(w, r, http.StatusBadRequest, "login.html", data)
		return
	case errors.Is(err, otp.ErrUnknownPhone):
		s.metrics.RecordOTPRequest("unknown_phone")
		data.ErrorMessage = "Nomor HP belum terdaftar sebagai member."
		s.renderTemplate(w, r, http.StatusNotFound, "login.html", data)
		return
	case err != nil:
		s.metrics.RecordOTPRequest("error")
		s.log.Error("request otp", zap.Error(err))
		data.ErrorMessage = "Gagal mengirim kode OTP. Silakan coba lagi."
		s.renderTemplate(w, r, http.StatusInternalServerError, "login.html", data)
		return
	}

	s.metrics.RecordOTPRequest("sent")
	data.Phone = challenge.Phone
	data.Handle = challenge.Handle
	data.SuccessMessage = "Kode OTP berhasil dikirim."
	s.renderTemplate(w, r, http.StatusOK, "login.html", data)
}

func (s *server) handleOTPVerify(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	handle := r.PostFormValue("handle")
	code := strings.TrimSpace(r.PostFormValue("code"))
	data := loginViewData{baseViewData: s.base(r), Phone: r.PostFormValue("phone"), Handle: handle}

	identity, err := s.otp.SignIn(r.Context(), handle, code)
	switch {
	case errors.Is(err, otp.ErrChallengeExpired):
		data.ErrorMessage = "Kode OTP sudah kedaluwarsa. Silakan minta kode baru."
		s.renderTemplate(w, r, http.StatusUnauthorized, "login.html", data)
		return
	case errors.Is(err, otp.ErrTooManyAttempts):
		data.Handle = ""
		data.ErrorMessage = "Terlalu banyak percobaan. Silakan minta kode baru."
		s.renderTemplate(w, r, http.StatusTooManyRequests, "login.html", data)
		return
	case errors.Is(err, otp.ErrInvalidCode):
		data.ErrorMessage = "Kode OTP salah."
		s.renderTemplate(w, r, http.StatusUnauthorized, "login.html", data)
		return
	case err != nil:
		s.log.Error("verify otp", zap.Error(err))
		data.ErrorMessage = "Gagal memverifikasi kode OTP."
		s.renderTemplate(w, r, http.StatusInternalServerError, "login.html", data)
		return
	}

	if err := s.sessions.setSessionCookie(w, identity); err != nil {
		s.log.Error("create session", zap.Error(err))
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}
	s.log.Info("member signed in", zap.String("customer_id", identity.CustomerID))
	http.Redirect(w, r, "/member/dashboard", http.StatusSeeOther)
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.clearSessionCookie(w)
	http.Redirect(w, r, "/member/login", http.StatusSeeOther)
}
