package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newWeatherTestServer(t *testing.T, failCities map[string]bool) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		switch r.URL.Path {
		case "/forecast.json":
			if failCities[q] {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			if q == "Atlantis" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			days := r.URL.Query().Get("days")
			forecastDays := []map[string]any{}
			n := 1
			if days == "5" {
				n = 5
			}
			for i := 0; i < n; i++ {
				forecastDays = append(forecastDays, map[string]any{
					"date": "2025-06-0" + string(rune('1'+i)),
					"day": map[string]any{
						"avgtemp_c":   21.5,
						"mintemp_c":   15.0,
						"maxtemp_c":   27.0,
						"avghumidity": 40.0,
						"condition":   map[string]any{"text": "Ensoleillé"},
					},
				})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"location": map[string]any{"name": q, "country": "France"},
				"current": map[string]any{
					"temp_c":      22.0,
					"humidity":    38.0,
					"wind_kph":    12.0,
					"pressure_mb": 1013.0,
					"condition":   map[string]any{"text": "Ensoleillé"},
				},
				"forecast": map[string]any{"forecastday": forecastDays},
			})
		case "/search.json":
			_ = json.NewEncoder(w).Encode([]map[string]any{
				{"name": "Paris", "region": "Ile-de-France", "country": "France", "lat": 48.87, "lon": 2.33},
				{"name": "Paris", "region": "Texas", "country": "USA", "lat": 33.66, "lon": -95.54},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestForecastParsesResponse(t *testing.T) {
	server := newWeatherTestServer(t, nil)
	wc, err := NewWeatherClient("test-key", server.URL)
	if err != nil {
		t.Fatalf("NewWeatherClient error = %v", err)
	}

	report, err := wc.Forecast(context.Background(), "Paris", 5)
	if err != nil {
		t.Fatalf("Forecast error = %v", err)
	}
	if report.Location.Name != "Paris" {
		t.Fatalf("location = %q, want Paris", report.Location.Name)
	}
	if report.Current.TempC != 22.0 {
		t.Fatalf("temp_c = %v, want 22.0", report.Current.TempC)
	}
	if len(report.Forecast.ForecastDay) != 5 {
		t.Fatalf("forecast days = %d, want 5", len(report.Forecast.ForecastDay))
	}
	if report.Forecast.ForecastDay[0].Day.AvgTempC != 21.5 {
		t.Fatalf("avgtemp_c = %v, want 21.5", report.Forecast.ForecastDay[0].Day.AvgTempC)
	}
}

func TestForecastUnknownCity(t *testing.T) {
	server := newWeatherTestServer(t, nil)
	wc, _ := NewWeatherClient("test-key", server.URL)

	_, err := wc.Forecast(context.Background(), "Atlantis", 1)
	if err != errCityNotFound {
		t.Fatalf("expected errCityNotFound, got %v", err)
	}
}

func TestSearchCapsSuggestions(t *testing.T) {
	server := newWeatherTestServer(t, nil)
	wc, _ := NewWeatherClient("test-key", server.URL)

	hits, err := wc.Search(context.Background(), "Par", 1)
	if err != nil {
		t.Fatalf("Search error = %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("suggestions = %d, want 1", len(hits))
	}
	if hits[0].Name != "Paris" {
		t.Fatalf("suggestion = %q, want Paris", hits[0].Name)
	}
}

func TestForecastBatchIsolatesFailures(t *testing.T) {
	server := newWeatherTestServer(t, map[string]bool{"Lyon": true})
	wc, _ := NewWeatherClient("test-key", server.URL)

	cities := []CityWeather{
		{FavoriteID: "fav-1", CityName: "Paris"},
		{FavoriteID: "fav-2", CityName: "Lyon"},
		{FavoriteID: "fav-3", CityName: "Nice"},
	}

	out := wc.forecastBatch(context.Background(), cities, 5)
	if len(out) != 3 {
		t.Fatalf("batch size = %d, want 3", len(out))
	}

	if out[0].Weather == nil || out[0].Error != "" {
		t.Fatalf("Paris should succeed: %+v", out[0])
	}
	if out[1].Weather != nil || out[1].Error == "" {
		t.Fatalf("Lyon should carry an error marker: %+v", out[1])
	}
	if out[2].Weather == nil || out[2].Error != "" {
		t.Fatalf("Nice should succeed: %+v", out[2])
	}

	// Order of the input is preserved.
	if out[0].FavoriteID != "fav-1" || out[1].FavoriteID != "fav-2" || out[2].FavoriteID != "fav-3" {
		t.Fatalf("batch order not preserved: %+v", out)
	}
}
