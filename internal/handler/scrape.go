package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/gifteo/internal/service"
)

type ScrapeHandler struct {
	scrape *service.ScrapeService
	logger *slog.Logger
}

func NewScrapeHandler(scrape *service.ScrapeService, logger *slog.Logger) *ScrapeHandler {
	return &ScrapeHandler{scrape: scrape, logger: logger}
}

type scrapeRequest struct {
	URL string `json:"url" validate:"required"`
}

// HandleScrape pre-fills an item from a shop page.
//
// HTTP: POST /api/scrape
// REQUEST BODY: {"url": "https://shop.example/product/42"}
// RESPONSE: {"success": true, "product": {"title": "...", "price": "24.99", "currency": "EUR", ...}}
func (h *ScrapeHandler) HandleScrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	p, err := h.scrape.Extract(r.Context(), req.URL)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"product": p})
}
