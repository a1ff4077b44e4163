package service

import (
	"context"
	"log/slog"

	"github.com/sakif/gifteo/internal/apperror"
	"github.com/sakif/gifteo/internal/metrics"
	"github.com/sakif/gifteo/internal/sanitize"
	"github.com/sakif/gifteo/internal/scraper"
)

// Extractor is implemented by *scraper.Scraper.
type Extractor interface {
	Extract(ctx context.Context, pageURL string) (*scraper.Product, error)
}

// ScrapeService pre-fills item fields from a product page.
type ScrapeService struct {
	extractor Extractor
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewScrapeService(extractor Extractor, m *metrics.Metrics, logger *slog.Logger) *ScrapeService {
	return &ScrapeService{extractor: extractor, metrics: m, logger: logger}
}

// Extract returns product details for pageURL.
//
// Whatever went wrong (network, status, content type, nothing found), the
// caller gets one generic error. The cause is only logged.
func (s *ScrapeService) Extract(ctx context.Context, pageURL string) (*scraper.Product, error) {
	clean := sanitize.URL(pageURL)
	if clean == "" {
		return nil, apperror.ValidationFailed("url", "url must be an absolute http(s) URL")
	}

	product, err := s.extractor.Extract(ctx, clean)
	if err != nil {
		s.record("error")
		s.logger.Warn("product extraction failed",
			slog.String("url", clean),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Internal("could not extract product details from this page", err)
	}

	s.record("ok")
	return product, nil
}

func (s *ScrapeService) record(outcome string) {
	if s.metrics != nil {
		s.metrics.Scrapes.WithLabelValues(outcome).Inc()
	}
}
