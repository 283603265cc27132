package providers

import (
	"net/url"
	"strings"

	"github.com/stefanh12/holfuy/internal/weather"
)

// DefaultEndpoint is the Holfuy live data API.
const DefaultEndpoint = "https://api.holfuy.com/live/"

// HolfuyURLs renders Holfuy live API URLs.
type HolfuyURLs struct {
	Endpoint string
}

// NewHolfuyURLs returns a URL builder for endpoint, or DefaultEndpoint when
// endpoint is empty.
func NewHolfuyURLs(endpoint string) HolfuyURLs {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultEndpoint
	}
	return HolfuyURLs{Endpoint: endpoint}
}

// URL builds the request for one or many stations. Station ids are joined
// with a literal comma; every other value is query-escaped.
func (h HolfuyURLs) URL(stations []weather.StationID, apiKey string, units weather.Units) string {
	ids := make([]string, 0, len(stations))
	for _, id := range stations {
		ids = append(ids, url.QueryEscape(id.String()))
	}

	sep := "?"
	if strings.Contains(h.Endpoint, "?") {
		sep = "&"
	}

	var b strings.Builder
	b.WriteString(h.Endpoint)
	b.WriteString(sep)
	b.WriteString("stationId=")
	b.WriteString(strings.Join(ids, ","))
	b.WriteString("&apiKey=")
	b.WriteString(url.QueryEscape(apiKey))
	b.WriteString("&tempUnit=")
	b.WriteString(url.QueryEscape(string(units.Temp)))
	b.WriteString("&windUnit=")
	b.WriteString(url.QueryEscape(string(units.Wind)))
	return b.String()
}
