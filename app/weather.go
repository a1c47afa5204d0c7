// Package app proxies WeatherAPI.com lookups so the API key stays
// server-side and forecast depth can be gated by entitlement.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
)

const defaultWeatherBaseURL = "https://api.weatherapi.com/v1"

var errCityNotFound = errors.New("city not found")

// WeatherCondition is the provider's condition descriptor.
type WeatherCondition struct {
	Text string `json:"text"`
	Icon string `json:"icon"`
}

// CurrentWeather carries current conditions for one location.
type CurrentWeather struct {
	TempC      float64          `json:"temp_c"`
	Condition  WeatherCondition `json:"condition"`
	Humidity   float64          `json:"humidity"`
	WindKph    float64          `json:"wind_kph"`
	PressureMb float64          `json:"pressure_mb"`
}

// ForecastDay is one day of the forecast horizon.
type ForecastDay struct {
	Date string `json:"date"`
	Day  struct {
		AvgTempC    float64          `json:"avgtemp_c"`
		MinTempC    float64          `json:"mintemp_c"`
		MaxTempC    float64          `json:"maxtemp_c"`
		Condition   WeatherCondition `json:"condition"`
		AvgHumidity float64          `json:"avghumidity"`
	} `json:"day"`
}

// WeatherReport is the forecast.json response subset we relay.
type WeatherReport struct {
	Location struct {
		Name    string  `json:"name"`
		Region  string  `json:"region"`
		Country string  `json:"country"`
		Lat     float64 `json:"lat"`
		Lon     float64 `json:"lon"`
	} `json:"location"`
	Current  CurrentWeather `json:"current"`
	Forecast struct {
		ForecastDay []ForecastDay `json:"forecastday"`
	} `json:"forecast"`
}

// CitySuggestion is one search.json hit.
type CitySuggestion struct {
	Name    string  `json:"name"`
	Region  string  `json:"region"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// WeatherClient issues lookups against WeatherAPI.com.
type WeatherClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewWeatherClient builds a client; baseURL may be empty for production.
func NewWeatherClient(apiKey, baseURL string) (*WeatherClient, error) {
	if apiKey == "" {
		return nil, errors.New("weather api key must be set")
	}
	if baseURL == "" {
		baseURL = defaultWeatherBaseURL
	}
	return &WeatherClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  httpc,
	}, nil
}

// Forecast fetches current conditions plus a days-long forecast for q,
// which is a city name or "lat,lon" pair.
func (wc *WeatherClient) Forecast(ctx context.Context, q string, days int) (*WeatherReport, error) {
	if q == "" {
		return nil, errors.New("missing location query")
	}
	if days < 1 {
		days = 1
	}

	values := url.Values{}
	values.Set("key", wc.apiKey)
	values.Set("q", q)
	values.Set("days", strconv.Itoa(days))
	values.Set("lang", "fr")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wc.baseURL+"/forecast.json?"+values.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := wc.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound {
		return nil, errCityNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather api returned status %d", resp.StatusCode)
	}

	var report WeatherReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Search returns up to limit city suggestions for a partial query.
func (wc *WeatherClient) Search(ctx context.Context, q string, limit int) ([]CitySuggestion, error) {
	if q == "" {
		return nil, errors.New("missing search query")
	}

	values := url.Values{}
	values.Set("key", wc.apiKey)
	values.Set("q", q)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wc.baseURL+"/search.json?"+values.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := wc.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather api returned status %d", resp.StatusCode)
	}

	var hits []CitySuggestion
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		return nil, err
	}
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// CityWeather is one entry of a batch lookup. Err is set when that city's
// fetch failed; the batch itself never fails.
type CityWeather struct {
	FavoriteID string         `json:"favoriteId"`
	CityName   string         `json:"cityName"`
	Weather    *WeatherReport `json:"weather,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// forecastBatch fans out one fetch per city and joins all results. Order of
// the input is preserved; a failed city carries its error in place.
func (wc *WeatherClient) forecastBatch(ctx context.Context, cities []CityWeather, days int) []CityWeather {
	out := make([]CityWeather, len(cities))
	var wg sync.WaitGroup

	for i, city := range cities {
		wg.Add(1)
		go func(i int, city CityWeather) {
			defer wg.Done()
			report, err := wc.Forecast(ctx, city.CityName, days)
			if err != nil {
				city.Error = err.Error()
			} else {
				city.Weather = report
			}
			out[i] = city
		}(i, city)
	}

	wg.Wait()
	return out
}
