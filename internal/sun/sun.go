package sun

import (
	"fmt"
	"time"

	"github.com/golang-sql/civil"
	"github.com/nathan-osman/go-sunrise"

	"github.com/rowjay/tzwindow/internal/window"
)

// Astronomical computes sunrise and sunset for a fixed place.
type Astronomical struct {
	Latitude  float64
	Longitude float64
}

func New(lat, long float64) (Astronomical, error) {
	if lat < -90 || lat > 90 {
		return Astronomical{}, fmt.Errorf("latitude out of range: %v", lat)
	}
	if long < -180 || long > 180 {
		return Astronomical{}, fmt.Errorf("longitude out of range: %v", long)
	}
	return Astronomical{Latitude: lat, Longitude: long}, nil
}

// SunEvent returns the UTC instant of event on day. go-sunrise reports zero
// times when the sun does not cross the horizon that day.
func (a Astronomical) SunEvent(day civil.Date, event window.SolarEvent) (time.Time, error) {
	rise, set := sunrise.SunriseSunset(a.Latitude, a.Longitude, day.Year, day.Month, day.Day)
	var at time.Time
	switch event {
	case window.Sunrise:
		at = rise
	case window.Sunset:
		at = set
	default:
		return time.Time{}, fmt.Errorf("unknown solar event %q", event)
	}
	if at.IsZero() {
		return time.Time{}, fmt.Errorf("no %s at %.4f,%.4f: %w", event, a.Latitude, a.Longitude, window.ErrSolarDataUnavailable)
	}
	return at.UTC(), nil
}
