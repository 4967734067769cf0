package domain

// Band is the four-level AQI display classification.
type Band int

const (
	BandGood Band = iota
	BandModerate
	BandUnhealthySensitive
	BandUnhealthy
)

func (b Band) String() string {
	switch b {
	case BandGood:
		return "Good"
	case BandModerate:
		return "Moderate"
	case BandUnhealthySensitive:
		return "Unhealthy for Sensitive"
	default:
		return "Unhealthy"
	}
}

// Slug is a stable, lower-case identifier suited for CSS classes and headers.
func (b Band) Slug() string {
	switch b {
	case BandGood:
		return "good"
	case BandModerate:
		return "moderate"
	case BandUnhealthySensitive:
		return "unhealthy_sensitive"
	default:
		return "unhealthy"
	}
}

// BandFor classifies an AQI value. It is total: NaN compares false against
// every threshold and lands in BandUnhealthy.
func BandFor(aqi float64) Band {
	switch {
	case aqi <= 50:
		return BandGood
	case aqi <= 100:
		return BandModerate
	case aqi <= 150:
		return BandUnhealthySensitive
	default:
		return BandUnhealthy
	}
}

// BandOf classifies a Measure. Non-numeric readings are treated like NaN.
func BandOf(m Measure) Band {
	if !m.Valid {
		return BandUnhealthy
	}
	return BandFor(m.Value)
}

// HealthAdvice is the short guidance printed under the live AQI.
func HealthAdvice(m Measure) string {
	if !m.Valid {
		return "Data not available."
	}
	switch {
	case m.Value <= 50:
		return "Good"
	case m.Value <= 100:
		return "Moderate"
	case m.Value <= 150:
		return "Unhealthy for Sensitive Groups Please wear a mask outdoors."
	default:
		return "Unhealthy"
	}
}

// MarkerSeverity is the two-band split used for station markers on the map.
type MarkerSeverity int

const (
	MarkerCaution MarkerSeverity = iota
	MarkerAlert
)

// MarkerSeverityFor returns MarkerAlert above 100, MarkerCaution otherwise.
func MarkerSeverityFor(aqi float64) MarkerSeverity {
	if aqi > 100 {
		return MarkerAlert
	}
	return MarkerCaution
}
