package tools

import (
	"fmt"

	"github.com/baalimago/chatmux/pkg/tools"
)

// StaticConfig selects and configures the built-in tools.
type StaticConfig struct {
	// Enabled holds wildcard patterns of tools to offer, empty means all.
	Enabled          []string `mapstructure:"enabled"`
	WebSearchResults int      `mapstructure:"web_search_results"`
	StockURL         string   `mapstructure:"stock_url"`
	GeocodingURL     string   `mapstructure:"geocoding_url"`
	ForecastURL      string   `mapstructure:"forecast_url"`
}

func DefaultStaticConfig() StaticConfig {
	return StaticConfig{
		WebSearchResults: 5,
		StockURL:         tools.DefaultStockURL,
		GeocodingURL:     tools.DefaultGeocodingURL,
		ForecastURL:      tools.DefaultForecastURL,
	}
}

// NewStatic creates the registry of tools shared by all users. docs may be
// nil, in which case search_documents isn't offered.
func NewStatic(conf StaticConfig, docs *tools.DocumentStore) (*Registry, error) {
	r := NewRegistry()
	webSearch, err := tools.NewWebSearch(conf.WebSearchResults)
	if err != nil {
		return nil, fmt.Errorf("failed to setup web search: %w", err)
	}
	r.Register(webSearch)
	r.Register(tools.NewStock(conf.StockURL, nil))
	r.Register(tools.WebsiteText)
	r.Register(tools.Time)
	r.Register(tools.NewWeather(conf.GeocodingURL, conf.ForecastURL, nil))
	if docs != nil {
		r.Register(docs)
	}
	return r.Filter(conf.Enabled), nil
}
