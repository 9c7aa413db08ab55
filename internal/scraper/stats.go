package scraper

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/hkcovid-dashboard/internal/covid"
)

// StatsSelector matches the four counter boxes on the landing page.
const StatsSelector = `div[class*="pages__DailyStatsContainer"] > div`

// ErrStatsNotFound means the landing page carried no stats container, which
// happens when the counters are rendered client-side.
var ErrStatsNotFound = errors.New("stats container not found")

// ParseStats extracts Death, Confirmed, Investigating and Reported, in that
// order, from the first paragraph of each counter box.
func ParseStats(html []byte) (covid.DailyStats, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return covid.DailyStats{}, fmt.Errorf("parse stats html: %w", err)
	}
	boxes := doc.Find(StatsSelector)
	if boxes.Length() == 0 {
		return covid.DailyStats{}, ErrStatsNotFound
	}
	values := make([]int, 0, boxes.Length())
	var parseErr error
	boxes.EachWithBreak(func(i int, box *goquery.Selection) bool {
		text := strings.TrimSpace(box.Find("p").First().Text())
		n, err := strconv.Atoi(strings.ReplaceAll(text, ",", ""))
		if err != nil {
			parseErr = fmt.Errorf("stats box %d: parse %q: %w", i, text, err)
			return false
		}
		values = append(values, n)
		return true
	})
	if parseErr != nil {
		return covid.DailyStats{}, parseErr
	}
	if len(values) < 4 {
		return covid.DailyStats{}, fmt.Errorf("expected 4 stats boxes, found %d", len(values))
	}
	return covid.DailyStats{
		Death:         values[0],
		Confirmed:     values[1],
		Investigating: values[2],
		Reported:      values[3],
	}, nil
}
