package window

import (
	"fmt"
	"strings"
	"time"
)

// Spec is implemented by WindowConfig and ChildConfig only.
type Spec interface {
	isSpec()
}

// WindowConfig defines a root window.
type WindowConfig struct {
	Start       TimeSpec
	End         TimeSpec
	Location    *time.Location
	StartOffset time.Duration
	EndOffset   time.Duration
}

func (WindowConfig) isSpec() {}

func (c WindowConfig) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

func (c WindowConfig) UsesSun() bool {
	return c.Start.IsSolar() || c.End.IsSolar()
}

type Anchor int

const (
	ParentStart Anchor = iota
	ParentEnd
)

// ParseAnchor accepts "start" or "end". An empty value yields def.
func ParseAnchor(val string, def Anchor) (Anchor, error) {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "":
		return def, nil
	case "start":
		return ParentStart, nil
	case "end":
		return ParentEnd, nil
	default:
		return def, fmt.Errorf("invalid anchor %q, expected start or end", val)
	}
}

func (a Anchor) String() string {
	if a == ParentEnd {
		return "end"
	}
	return "start"
}

// ChildConfig defines a window relative to the boundaries of its parent.
type ChildConfig struct {
	Parent      string
	StartAnchor Anchor
	StartOffset time.Duration
	EndAnchor   Anchor
	EndOffset   time.Duration
}

func (ChildConfig) isSpec() {}

type Definition struct {
	ID   string
	Name string
	Spec Spec
}

func (d Definition) IsChild() bool {
	_, ok := d.Spec.(ChildConfig)
	return ok
}
