package app

// FeatureAccess is the entitlement view handlers use to lock or unlock
// gated features. Pure function of connection + premium state.
type FeatureAccess struct {
	Connected       bool `json:"connected"`
	Premium         bool `json:"premium"`
	FiveDayForecast bool `json:"fiveDayForecast"`
	FavoriteLimit   int  `json:"favoriteLimit"`
}

func featureAccess(connected, premium bool) FeatureAccess {
	if !connected {
		return FeatureAccess{FavoriteLimit: 0}
	}
	return FeatureAccess{
		Connected:       true,
		Premium:         premium,
		FiveDayForecast: premium,
		FavoriteLimit:   favoriteLimitFor(premium),
	}
}

// forecastDaysAllowed clamps a requested forecast horizon to what the plan
// unlocks: free accounts get today only, premium gets up to max days.
func forecastDaysAllowed(premium bool, requested, max int) int {
	if !premium {
		return 1
	}
	if requested < 1 {
		return 1
	}
	if requested > max {
		return max
	}
	return requested
}
