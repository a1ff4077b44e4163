package scraper

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// fields are raw, unnormalized candidates. Price is kept as text until
// every source had its say.
type fields struct {
	title       string
	description string
	price       string
	currency    string // ISO code, only from structured data
	image       string
}

// merge fills empty fields from other.
func (f *fields) merge(other fields) {
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = strings.TrimSpace(src)
		}
	}
	fill(&f.title, other.title)
	fill(&f.description, other.description)
	fill(&f.price, other.price)
	fill(&f.currency, other.currency)
	fill(&f.image, other.image)
}

func extract(doc *html.Node, base *url.URL) *Product {
	var f fields
	f.merge(openGraph(doc))
	f.merge(jsonLD(doc))
	f.merge(siteSpecific(doc, base.Hostname()))
	f.merge(generic(doc))
	return f.normalize(base)
}

// =========================================================================
// OPEN GRAPH
// =========================================================================

func openGraph(doc *html.Node) fields {
	var f fields
	walk(doc, func(n *html.Node) bool {
		if n.DataAtom != atom.Meta {
			return true
		}
		key := attr(n, "property")
		if key == "" {
			key = attr(n, "name")
		}
		content := attr(n, "content")
		switch strings.ToLower(key) {
		case "og:title":
			setOnce(&f.title, content)
		case "og:description":
			setOnce(&f.description, content)
		case "og:image", "og:image:url", "og:image:secure_url":
			setOnce(&f.image, content)
		case "product:price:amount", "og:price:amount":
			setOnce(&f.price, content)
		case "product:price:currency", "og:price:currency":
			setOnce(&f.currency, content)
		}
		return true
	})
	return f
}

// =========================================================================
// JSON-LD
// =========================================================================

func jsonLD(doc *html.Node) fields {
	var f fields
	walk(doc, func(n *html.Node) bool {
		if n.DataAtom != atom.Script || !strings.EqualFold(attr(n, "type"), "application/ld+json") {
			return true
		}
		var data any
		if err := json.Unmarshal([]byte(rawText(n)), &data); err != nil {
			return false
		}
		if p, ok := findProduct(data); ok {
			f.merge(productFields(p))
		}
		return false
	})
	return f
}

// findProduct searches a decoded JSON-LD value for a Product node,
// descending into arrays and @graph.
func findProduct(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if p, ok := findProduct(item); ok {
				return p, true
			}
		}
	case map[string]any:
		if hasType(t["@type"], "Product") {
			return t, true
		}
		if graph, ok := t["@graph"]; ok {
			return findProduct(graph)
		}
	}
	return nil, false
}

func hasType(v any, want string) bool {
	switch t := v.(type) {
	case string:
		return strings.EqualFold(t, want)
	case []any:
		for _, item := range t {
			if hasType(item, want) {
				return true
			}
		}
	}
	return false
}

func productFields(p map[string]any) fields {
	f := fields{
		title:       jsonString(p["name"]),
		description: jsonString(p["description"]),
		image:       jsonImage(p["image"]),
	}

	offer := p["offers"]
	if list, ok := offer.([]any); ok && len(list) > 0 {
		offer = list[0]
	}
	if o, ok := offer.(map[string]any); ok {
		f.price = jsonString(o["price"])
		if f.price == "" {
			f.price = jsonString(o["lowPrice"])
		}
		f.currency = jsonString(o["priceCurrency"])
		if f.price == "" {
			if spec, ok := o["priceSpecification"].(map[string]any); ok {
				f.price = jsonString(spec["price"])
				setOnce(&f.currency, jsonString(spec["priceCurrency"]))
			}
		}
	}
	return f
}

// jsonString renders scalars as text; numbers keep their shortest form.
func jsonString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// jsonImage accepts a URL, a list of URLs or an ImageObject.
func jsonImage(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		for _, item := range t {
			if s := jsonImage(item); s != "" {
				return s
			}
		}
	case map[string]any:
		if s := jsonString(t["url"]); s != "" {
			return s
		}
		return jsonString(t["contentUrl"])
	}
	return ""
}

// =========================================================================
// SITE-SPECIFIC SELECTORS
// =========================================================================

// siteRule lists compiled selectors for one retailer, tried in order per
// field.
type siteRule struct {
	title []cascadia.Selector
	price []cascadia.Selector
	image []cascadia.Selector
}

func selectors(css ...string) []cascadia.Selector {
	out := make([]cascadia.Selector, len(css))
	for i, c := range css {
		out[i] = cascadia.MustCompile(c)
	}
	return out
}

// siteRules is keyed by registrable domain; subdomains match too.
var siteRules = map[string]siteRule{
	"amazon.com": {
		title: selectors("#productTitle"),
		price: selectors("#corePrice_feature_div span.a-offscreen", "span.a-offscreen", "#priceblock_ourprice"),
		image: selectors("#landingImage"),
	},
	"amazon.de": {
		title: selectors("#productTitle"),
		price: selectors("#corePrice_feature_div span.a-offscreen", "span.a-offscreen"),
		image: selectors("#landingImage"),
	},
	"alza.cz": {
		title: selectors("h1[itemprop=name]", "h1"),
		price: selectors(".price-box__price", "span.price_withVat"),
		image: selectors("img.detailGallery-alz-4"),
	},
	"ebay.com": {
		title: selectors("h1.x-item-title__mainTitle"),
		price: selectors("div.x-price-primary > span"),
		image: selectors("img[fetchpriority=high]"),
	},
	"etsy.com": {
		title: selectors("h1[data-buy-box-listing-title=true]"),
		price: selectors("div[data-buy-box-region=price] p.wt-text-title-larger", "p.wt-text-title-larger"),
		image: selectors("img.wt-max-width-full"),
	},
}

func siteSpecific(doc *html.Node, host string) fields {
	rule, ok := ruleFor(host)
	if !ok {
		return fields{}
	}
	var f fields
	for _, sel := range rule.title {
		if n := cascadia.Query(doc, sel); n != nil {
			setOnce(&f.title, textOf(n))
		}
	}
	for _, sel := range rule.price {
		if n := cascadia.Query(doc, sel); n != nil {
			setOnce(&f.price, textOf(n))
		}
	}
	for _, sel := range rule.image {
		if n := cascadia.Query(doc, sel); n != nil {
			setOnce(&f.image, imageSource(n))
		}
	}
	return f
}

func ruleFor(host string) (siteRule, bool) {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	for domain, rule := range siteRules {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return rule, true
		}
	}
	return siteRule{}, false
}

// =========================================================================
// GENERIC FALLBACKS
// =========================================================================

func generic(doc *html.Node) fields {
	var f fields
	if h1 := find(doc, func(n *html.Node) bool { return n.DataAtom == atom.H1 && textOf(n) != "" }); h1 != nil {
		f.title = textOf(h1)
	} else if t := find(doc, func(n *html.Node) bool { return n.DataAtom == atom.Title }); t != nil {
		f.title = textOf(t)
	}

	if p := find(doc, looksLikePrice); p != nil {
		f.price = textOf(p)
	}

	if img := find(doc, func(n *html.Node) bool { return n.DataAtom == atom.Img && imageSource(n) != "" }); img != nil {
		f.image = imageSource(img)
	}

	if m := find(doc, func(n *html.Node) bool {
		return n.DataAtom == atom.Meta && strings.EqualFold(attr(n, "name"), "description")
	}); m != nil {
		f.description = attr(m, "content")
	}
	return f
}

// looksLikePrice matches the first element whose class or id mentions
// "price" and whose text contains a digit.
func looksLikePrice(n *html.Node) bool {
	if n.Type != html.ElementNode || n.DataAtom == atom.Meta || n.DataAtom == atom.Script {
		return false
	}
	marker := strings.ToLower(attr(n, "class") + " " + attr(n, "id"))
	if !strings.Contains(marker, "price") {
		return false
	}
	return strings.ContainsAny(textOf(n), "0123456789")
}

func imageSource(n *html.Node) string {
	for _, key := range []string{"src", "data-src", "data-old-hires"} {
		if v := strings.TrimSpace(attr(n, key)); v != "" && !strings.HasPrefix(v, "data:") {
			return v
		}
	}
	return ""
}
