package dashboard

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/couchcryptid/trade-indicators/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// Page is the data behind the dashboard page.
type Page struct {
	Indicator    string
	Years        []string
	Countries    []string
	Year         string
	Country      string
	RankingLimit int
	Rows         int
	IngestedAt   string
	Stale        bool
}

// NewPage resolves the selections against the snapshot. Unknown selections
// fall back to the snapshot defaults.
func NewPage(snap *domain.Snapshot, indicator, year, country string, rankingLimit int) Page {
	p := Page{
		Indicator:    indicator,
		Years:        snap.Years(),
		Countries:    snap.Countries(),
		Year:         snap.DefaultYear(year),
		Country:      snap.DefaultCountry(country),
		RankingLimit: rankingLimit,
		Rows:         snap.Len(),
	}
	if at, ok := snap.IngestedAt(); ok {
		p.IngestedAt = at.UTC().Format(time.RFC3339)
	} else {
		p.Stale = true
	}
	return p
}

// RenderPage writes the dashboard page.
func RenderPage(w io.Writer, p Page) error {
	if err := pageTemplate.Execute(w, p); err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	return nil
}
