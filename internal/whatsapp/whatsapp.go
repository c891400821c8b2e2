// Package whatsapp builds click-to-chat links with prefilled messages.
package whatsapp

import (
	"net/url"
	"regexp"
	"strings"
)

var nonDigits = regexp.MustCompile(`\D`)

// Link returns a wa.me link to phone. An empty text yields a bare link.
func Link(phone, text string) string {
	link := "https://wa.me/" + nonDigits.ReplaceAllString(phone, "")
	if text == "" {
		return link
	}
	return link + "?text=" + strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
}

func ConsultationText() string {
	return "Halo, saya tertarik konsultasi untuk produksi daster. Saya sudah coba kalkulator di website."
}

func GeneralInquiryText() string {
	return "Halo, saya tertarik dengan layanan konveksi MyDasteran"
}

// BusinessInquiryText is the message sent from the B2B contact form.
func BusinessInquiryText(name, message string) string {
	return strings.TrimSpace("Hello Mydasteran, I am " + strings.TrimSpace(name) + ". " + strings.TrimSpace(message))
}

func SupportText() string {
	return "Halo admin, saya butuh bantuan terkait akun member."
}
