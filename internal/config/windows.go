package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/rowjay/tzwindow/internal/sun"
	"github.com/rowjay/tzwindow/internal/window"
)

// WindowTable compiles the configured windows. Every problem is reported as a
// *window.ConfigurationError.
func (c *Config) WindowTable() (window.Table, error) {
	defs := make([]window.Definition, 0, len(c.Windows))
	for _, wc := range c.Windows {
		def, err := c.definition(wc)
		if err != nil {
			return window.Table{}, err
		}
		defs = append(defs, def)
	}
	table, err := window.NewTable(defs...)
	if err != nil {
		return window.Table{}, err
	}
	if c.usesSun() && !c.hasCoordinates() {
		return window.Table{}, &window.ConfigurationError{Window: "*", Field: "location", Err: errors.New("sunrise/sunset windows need location.latitude and location.longitude")}
	}
	return table, nil
}

func (c *Config) definition(wc WindowConfig) (window.Definition, error) {
	def := window.Definition{ID: wc.ID, Name: wc.Name}
	if def.Name == "" {
		def.Name = wc.ID
	}
	if wc.IsChild() {
		startRef, err := window.ParseAnchor(wc.StartRef, window.ParentStart)
		if err != nil {
			return def, &window.ConfigurationError{Window: wc.ID, Field: "start_ref", Err: err}
		}
		endRef, err := window.ParseAnchor(wc.EndRef, window.ParentEnd)
		if err != nil {
			return def, &window.ConfigurationError{Window: wc.ID, Field: "end_ref", Err: err}
		}
		def.Spec = window.ChildConfig{
			Parent:      wc.Parent,
			StartAnchor: startRef,
			StartOffset: time.Duration(wc.StartOffset) * time.Second,
			EndAnchor:   endRef,
			EndOffset:   time.Duration(wc.EndOffset) * time.Second,
		}
		return def, nil
	}

	start, err := window.ParseTimeSpec(wc.Start)
	if err != nil {
		return def, &window.ConfigurationError{Window: wc.ID, Field: "start", Err: err}
	}
	end, err := window.ParseTimeSpec(wc.End)
	if err != nil {
		return def, &window.ConfigurationError{Window: wc.ID, Field: "end", Err: err}
	}
	tz := wc.Timezone
	if tz == "" {
		tz = c.Location.Timezone
	}
	if tz == "" {
		return def, &window.ConfigurationError{Window: wc.ID, Field: "timezone", Err: errors.New("no timezone and no location.timezone default")}
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return def, &window.ConfigurationError{Window: wc.ID, Field: "timezone", Err: fmt.Errorf("invalid timezone: %w", err)}
	}
	def.Spec = window.WindowConfig{
		Start:       start,
		End:         end,
		Location:    loc,
		StartOffset: time.Duration(wc.StartOffset) * time.Second,
		EndOffset:   time.Duration(wc.EndOffset) * time.Second,
	}
	return def, nil
}

func (c *Config) usesSun() bool {
	for _, wc := range c.Windows {
		if wc.IsChild() {
			continue
		}
		for _, v := range []string{wc.Start, wc.End} {
			if ts, err := window.ParseTimeSpec(v); err == nil && ts.IsSolar() {
				return true
			}
		}
	}
	return false
}

func (c *Config) hasCoordinates() bool {
	return c.Location.Latitude != nil && c.Location.Longitude != nil
}

// SunEvents returns the sunrise/sunset source for the configured location,
// or nil when no coordinates are set.
func (c *Config) SunEvents() (window.SunEvents, error) {
	if !c.hasCoordinates() {
		return nil, nil
	}
	place, err := sun.New(*c.Location.Latitude, *c.Location.Longitude)
	if err != nil {
		return nil, &window.ConfigurationError{Window: "*", Field: "location", Err: err}
	}
	return place, nil
}
