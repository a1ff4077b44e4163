package scraper

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// titleTokens is how many words of a product title are kept. Shop titles
// tend to be keyword soup after the first few words.
const titleTokens = 3

var (
	numberPattern   = regexp.MustCompile(`\d[\d\s.,'\x{00a0}\x{202f}]*`)
	isoCodePattern  = regexp.MustCompile(`^[A-Za-z]{3}$`)
	codeInText      = regexp.MustCompile(`\b(CZK|EUR|USD|GBP|PLN|CHF|HUF|SEK|NOK|DKK|JPY|CAD|AUD)\b`)
	currencySymbols = []struct {
		symbol string
		code   string
	}{
		// Longer symbols first so "US$" wins over "$".
		{"US$", "USD"},
		{"Kč", "CZK"},
		{"zł", "PLN"},
		{"Ft", "HUF"},
		{"€", "EUR"},
		{"£", "GBP"},
		{"¥", "JPY"},
		{"₹", "INR"},
		{"$", "USD"},
	}
)

func (f fields) normalize(base *url.URL) *Product {
	p := &Product{
		Title:       truncateTitle(f.title),
		Description: f.description,
		Image:       resolveURL(base, f.image),
	}
	if amount, ok := parsePrice(f.price); ok {
		p.Price = decimal.NewNullDecimal(amount)
	}
	p.Currency = currencyOf(f.currency, f.price)
	return p
}

func truncateTitle(s string) string {
	words := strings.Fields(s)
	if len(words) > titleTokens {
		words = words[:titleTokens]
	}
	return strings.Join(words, " ")
}

// parsePrice takes the first numeric token of s and reads it as a decimal
// amount, guessing which of ',' and '.' is the decimal separator.
//
//	"1 299,90 Kč" → 1299.90
//	"$1,299.00"   → 1299.00
//	"1.299"       → 1299 (a lone separator before exactly three digits groups thousands)
//	"24,9"        → 24.9
func parsePrice(s string) (decimal.Decimal, bool) {
	token := numberPattern.FindString(s)
	if token == "" {
		return decimal.Decimal{}, false
	}
	token = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\'', '\u00a0', '\u202f', '\t', '\n', '\r':
			return -1
		}
		return r
	}, token)
	token = strings.TrimRight(token, ".,")

	lastComma := strings.LastIndexByte(token, ',')
	lastDot := strings.LastIndexByte(token, '.')

	var normalized string
	switch {
	case lastComma >= 0 && lastDot >= 0:
		decimalSep, groupSep := ",", "."
		if lastDot > lastComma {
			decimalSep, groupSep = ".", ","
		}
		normalized = strings.ReplaceAll(token, groupSep, "")
		normalized = strings.Replace(normalized, decimalSep, ".", 1)
	case lastComma >= 0 || lastDot >= 0:
		sep := ","
		idx := lastComma
		if lastDot >= 0 {
			sep, idx = ".", lastDot
		}
		grouped := strings.Count(token, sep) > 1 || len(token)-idx-1 == 3
		if grouped {
			normalized = strings.ReplaceAll(token, sep, "")
		} else {
			normalized = strings.Replace(token, sep, ".", 1)
		}
	default:
		normalized = token
	}

	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// currencyOf prefers an ISO code from structured data and otherwise looks
// for a code or symbol in the price text.
func currencyOf(structured, priceText string) string {
	if isoCodePattern.MatchString(structured) {
		return strings.ToUpper(structured)
	}
	if m := codeInText.FindString(strings.ToUpper(priceText)); m != "" {
		return m
	}
	for _, c := range currencySymbols {
		if strings.Contains(priceText, c.symbol) {
			return c.code
		}
	}
	return ""
}

// resolveURL makes ref absolute against the page URL. Anything that is
// not http(s) afterwards is dropped.
func resolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := base.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	return u.String()
}
