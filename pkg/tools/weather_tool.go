package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	pub_models "github.com/baalimago/chatmux/pkg/text/models"
)

const (
	DefaultGeocodingURL = "https://geocoding-api.open-meteo.com/v1/search"
	DefaultForecastURL  = "https://api.open-meteo.com/v1/forecast"
)

type weatherArgs struct {
	Location string `json:"location" jsonschema_description:"Name of the city or place."`
	Unit     string `json:"unit,omitempty" jsonschema:"enum=celsius,enum=fahrenheit" jsonschema_description:"Temperature unit, defaults to celsius."`
}

// WeatherTool reports the current weather of a place using Open-Meteo.
type WeatherTool struct {
	GeocodingURL string
	ForecastURL  string
	client       HTTPDoer
}

var weatherSpec = pub_models.Specification{
	Name:        "get_weather",
	Description: "Get the current weather at a location: temperature, wind speed and weather code.",
	Inputs:      schemaOf[weatherArgs](),
}

type geoResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Country   string  `json:"country"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Timezone  string  `json:"timezone"`
	} `json:"results"`
}

type forecastResponse struct {
	CurrentUnits map[string]string `json:"current_units"`
	Current      struct {
		Time          string  `json:"time"`
		Temperature   float64 `json:"temperature_2m"`
		WindSpeed     float64 `json:"wind_speed_10m"`
		WeatherCode   int     `json:"weather_code"`
		Precipitation float64 `json:"precipitation"`
	} `json:"current"`
}

// WeatherReport is the output of the get_weather tool.
type WeatherReport struct {
	Location      string  `json:"location"`
	Time          string  `json:"time"`
	Temperature   float64 `json:"temperature"`
	Unit          string  `json:"unit"`
	WindSpeed     float64 `json:"windSpeed"`
	Precipitation float64 `json:"precipitation"`
	WeatherCode   int     `json:"weatherCode"`
}

// NewWeather returns a weather tool querying the given endpoints.
func NewWeather(geocodingURL, forecastURL string, client HTTPDoer) *WeatherTool {
	return &WeatherTool{GeocodingURL: geocodingURL, ForecastURL: forecastURL, client: client}
}

func (w *WeatherTool) Call(ctx context.Context, input pub_models.Input) (string, error) {
	args, err := decodeInput[weatherArgs](input)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(args.Location) == "" {
		return "", fmt.Errorf("location must not be empty")
	}
	unit := args.Unit
	if unit == "" {
		unit = "celsius"
	}

	var geo geoResponse
	q := url.Values{}
	q.Set("name", args.Location)
	q.Set("count", "1")
	if err := w.getJSON(ctx, w.GeocodingURL, q, &geo); err != nil {
		return "", fmt.Errorf("failed to geocode location: %w", err)
	}
	if len(geo.Results) == 0 {
		return "", fmt.Errorf("location not found: '%v'", args.Location)
	}
	place := geo.Results[0]

	var fc forecastResponse
	q = url.Values{}
	q.Set("latitude", fmt.Sprintf("%v", place.Latitude))
	q.Set("longitude", fmt.Sprintf("%v", place.Longitude))
	q.Set("current", "temperature_2m,wind_speed_10m,weather_code,precipitation")
	q.Set("temperature_unit", unit)
	if place.Timezone != "" {
		q.Set("timezone", place.Timezone)
	}
	if err := w.getJSON(ctx, w.ForecastURL, q, &fc); err != nil {
		return "", fmt.Errorf("failed to get forecast: %w", err)
	}

	name := place.Name
	if place.Country != "" {
		name += ", " + place.Country
	}
	b, err := json.Marshal(WeatherReport{
		Location:      name,
		Time:          fc.Current.Time,
		Temperature:   fc.Current.Temperature,
		Unit:          unit,
		WindSpeed:     fc.Current.WindSpeed,
		Precipitation: fc.Current.Precipitation,
		WeatherCode:   fc.Current.WeatherCode,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal weather: %w", err)
	}
	return string(b), nil
}

func (w *WeatherTool) getJSON(ctx context.Context, base string, q url.Values, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	client := w.client
	if client == nil {
		client = defaultHTTPClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (w *WeatherTool) Specification() pub_models.Specification {
	return weatherSpec
}
