package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

const maxPlaceholderSide = 1000

const placeholderSVG = `<svg width="%[1]d" height="%[2]d" xmlns="http://www.w3.org/2000/svg" role="img" aria-labelledby="placeholderTitle">
  <title id="placeholderTitle">Placeholder %[1]dx%[2]d</title>
  <rect width="100%%" height="100%%" fill="#f3f4f6"/>
  <rect x="20" y="20" width="%[3]d" height="%[4]d" fill="#e5e7eb" stroke="#d1d5db" stroke-width="2"/>
  <text x="50%%" y="50%%" font-family="Arial, sans-serif" font-size="14" fill="#6b7280" text-anchor="middle" dy=".3em">%[1]d×%[2]d</text>
</svg>
`

// Placeholder renders a grey SVG box of the requested size.
func (h *Handler) Placeholder(w http.ResponseWriter, r *http.Request) {
	width, okW := placeholderSide(chi.URLParam(r, "width"))
	height, okH := placeholderSide(chi.URLParam(r, "height"))
	if !okW || !okH {
		http.Error(w, "Invalid dimensions", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "public, max-age=31536000")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, placeholderSVG, width, height, max(width-40, 0), max(height-40, 0))
}

func placeholderSide(raw string) (int, bool) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > maxPlaceholderSide {
		return 0, false
	}
	return n, true
}
