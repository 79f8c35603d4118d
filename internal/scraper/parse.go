package scraper

import (
	"io"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"duyurubot/pkg/logx"
)

// listingDateFormat is the day.month.year format used on the listing pages.
const listingDateFormat = "02.01.2006"

// parseRows extracts announcement rows from one listing page.
//
// total counts every <tr> on the page, valid or not; pagination offsets are
// advanced by total, and total == 0 terminates the walk. A row needs an anchor
// in its first cell and a date in its second to be valid; anything else is a
// data-quality anomaly and is dropped without failing the page.
func parseRows(body io.Reader, linkBase string, log logx.Logger) ([]Row, int, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, 0, err
	}

	var (
		rows  []Row
		total int
	)
	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		total++

		cells := tr.Find("td")
		if cells.Length() < 2 {
			return
		}
		a := cells.Eq(0).Find("a").First()
		if a.Length() == 0 {
			return
		}
		href, _ := a.Attr("href")
		title := strings.TrimSpace(a.Text())
		if title == "" && href == "" {
			return
		}

		dateText := strings.TrimSpace(cells.Eq(1).Text())
		published, perr := time.Parse(listingDateFormat, dateText)
		if perr != nil {
			// Keep the row rather than lose the announcement; the dedup check
			// still prevents re-notifying links that are already stored.
			log.Warn("unparseable listing date; using now",
				logx.String("date", dateText), logx.String("href", href))
			published = time.Now()
		}

		rows = append(rows, Row{
			Link:        linkBase + strings.TrimLeft(href, "/"),
			Title:       title,
			PublishedAt: published,
		})
	})

	return rows, total, nil
}
