package main

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"math"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/mydasteran/portal/internal/member"
	"github.com/mydasteran/portal/internal/pricing"
)

var monthNames = [...]string{
	"Januari", "Februari", "Maret", "April", "Mei", "Juni",
	"Juli", "Agustus", "September", "Oktober", "November", "Desember",
}

func monthName(m time.Month) string {
	if m < time.January || m > time.December {
		return ""
	}
	return monthNames[m-1]
}

var templateFuncs = template.FuncMap{
	"rupiah":    pricing.FormatRupiah,
	"number":    func(n int) string { return humanize.FormatInteger("#.###,", n) },
	"yards":     func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"percent":   func(ratio float64) int { return int(math.Round(ratio * 100)) },
	"phone":     member.FormatPhone,
	"monthName": monthName,
	"abs": func(n int) int {
		if n < 0 {
			return -n
		}
		return n
	},
	"date": func(v any) string {
		switch t := v.(type) {
		case time.Time:
			if t.IsZero() {
				return "-"
			}
			return fmt.Sprintf("%d %s %d", t.Day(), monthName(t.Month()), t.Year())
		case *time.Time:
			if t == nil || t.IsZero() {
				return "-"
			}
			return fmt.Sprintf("%d %s %d", t.Day(), monthName(t.Month()), t.Year())
		default:
			return "-"
		}
	},
	"datetime": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return fmt.Sprintf("%d %s %d %s", t.Day(), monthName(t.Month()), t.Year(), t.Format("15:04"))
	},
}

// parseTemplates parses every page together with the layout once at startup.
func parseTemplates(fsys fs.FS) (map[string]*template.Template, error) {
	pages, err := fs.Glob(fsys, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	out := make(map[string]*template.Template, len(pages))
	for _, p := range pages {
		name := p[len("templates/"):]
		if name == "layout.html" {
			continue
		}
		tmpl, err := template.New("layout.html").Funcs(templateFuncs).ParseFS(fsys, "templates/layout.html", p)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		out[name] = tmpl
	}
	return out, nil
}

func (s *server) renderTemplate(w http.ResponseWriter, r *http.Request, status int, page string, data any) {
	tmpl, ok := s.pages[page]
	if !ok {
		s.log.Error("unknown template", zap.String("page", page))
		http.Error(w, "failed to render template", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		s.log.Error("render template", zap.String("page", page), zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "failed to render template", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
