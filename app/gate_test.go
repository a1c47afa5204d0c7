package app

import "testing"

func TestFeatureAccess(t *testing.T) {
	tests := []struct {
		name      string
		connected bool
		premium   bool
		want      FeatureAccess
	}{
		{
			name: "disconnected",
			want: FeatureAccess{},
		},
		{
			name:      "free",
			connected: true,
			want:      FeatureAccess{Connected: true, FavoriteLimit: FreeFavoriteLimit},
		},
		{
			name:      "premium",
			connected: true,
			premium:   true,
			want: FeatureAccess{
				Connected:       true,
				Premium:         true,
				FiveDayForecast: true,
				FavoriteLimit:   PremiumFavoriteLimit,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := featureAccess(tt.connected, tt.premium)
			if got != tt.want {
				t.Fatalf("featureAccess(%v, %v) = %+v, want %+v", tt.connected, tt.premium, got, tt.want)
			}
		})
	}
}

func TestForecastDaysAllowed(t *testing.T) {
	tests := []struct {
		name      string
		premium   bool
		requested int
		want      int
	}{
		{"free always one day", false, 5, 1},
		{"free single day", false, 1, 1},
		{"premium within max", true, 3, 3},
		{"premium clamped to max", true, 10, 5},
		{"premium zero defaults to one", true, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := forecastDaysAllowed(tt.premium, tt.requested, 5); got != tt.want {
				t.Fatalf("forecastDaysAllowed(%v, %d, 5) = %d, want %d", tt.premium, tt.requested, got, tt.want)
			}
		})
	}
}
