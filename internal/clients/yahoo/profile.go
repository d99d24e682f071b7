package yahoo

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mileslinfeng/MilesRI/internal/common"
	"github.com/mileslinfeng/MilesRI/internal/models"
)

var magnitudes = map[byte]float64{
	'T': 1e12,
	'B': 1e9,
	'M': 1e6,
	'K': 1e3,
}

// FetchExtra scrapes sector, price and market cap from the quote profile page
func (c *Client) FetchExtra(ctx context.Context, symbol string) models.ExtraResult {
	result := models.ExtraResult{Source: sourceName}

	pageURL := c.pageURL + "/quote/" + url.PathEscape(symbol) + "/profile"
	body, err := c.fetch(ctx, pageURL, "text/html")
	if err != nil {
		c.logger.Debug().Err(err).Str("symbol", symbol).Msg("Yahoo profile page request failed")
		return result
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		c.logger.Debug().Err(err).Str("symbol", symbol).Msg("Yahoo profile page parse failed")
		return result
	}

	result.Extra = parseProfile(doc)
	result.OK = true
	return result
}

func parseProfile(doc *goquery.Document) models.CompanyExtra {
	var extra models.CompanyExtra

	doc.Find("dt, span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		label := strings.TrimSuffix(strings.TrimSpace(s.Text()), ":")
		if label != "Sector" && label != "Sector(s)" {
			return true
		}
		value := strings.TrimSpace(s.Next().Text())
		if value == "" {
			return true
		}
		extra.Sector = &value
		return false
	})

	if price := doc.Find(`fin-streamer[data-field="regularMarketPrice"]`).First(); price.Length() > 0 {
		raw, ok := price.Attr("data-value")
		if !ok || raw == "" {
			raw = price.Text()
		}
		extra.Price = common.ParseFloat(raw)
	}

	capSel := doc.Find(`fin-streamer[data-field="marketCap"]`).First()
	if capSel.Length() == 0 {
		capSel = doc.Find(`[data-test="MARKET_CAP-value"]`).First()
	}
	if capSel.Length() > 0 {
		raw, ok := capSel.Attr("data-value")
		if !ok || raw == "" {
			raw = capSel.Text()
		}
		extra.MarketCap = ParseAbbreviated(raw)
	}

	return extra
}

// ParseAbbreviated parses values such as "3.21T", "845.2B" or "1,234".
func ParseAbbreviated(raw string) *float64 {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return nil
	}
	mult := 1.0
	if m, ok := magnitudes[s[len(s)-1]]; ok {
		mult = m
		s = s[:len(s)-1]
	}
	v := common.ParseFloat(s)
	if v == nil {
		return nil
	}
	scaled := *v * mult
	return common.FinitePtr(scaled)
}
