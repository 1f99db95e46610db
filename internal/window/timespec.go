// Package window resolves recurring daily time windows into absolute UTC
// instants and decides whether an instant falls inside them.
package window

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Kind int

const (
	Clock Kind = iota
	Solar
)

type SolarEvent string

const (
	Sunrise SolarEvent = "sunrise"
	Sunset  SolarEvent = "sunset"
)

// TimeSpec is one boundary of a root window: a wall-clock time of day or a
// solar event.
type TimeSpec struct {
	Kind   Kind
	Hour   int
	Minute int
	Second int
	Event  SolarEvent
}

func At(hour, minute, second int) TimeSpec {
	return TimeSpec{Kind: Clock, Hour: hour, Minute: minute, Second: second}
}

func AtSun(event SolarEvent) TimeSpec {
	return TimeSpec{Kind: Solar, Event: event}
}

// ParseTimeSpec accepts "sunrise", "sunset", "HH:MM" or "HH:MM:SS".
func ParseTimeSpec(val string) (TimeSpec, error) {
	v := strings.ToLower(strings.TrimSpace(val))
	switch SolarEvent(v) {
	case Sunrise, Sunset:
		return AtSun(SolarEvent(v)), nil
	}
	parts := strings.Split(v, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return TimeSpec{}, fmt.Errorf("invalid time %q, expected HH:MM[:SS], sunrise or sunset", val)
	}
	limits := []int{23, 59, 59}
	fields := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > limits[i] {
			return TimeSpec{}, fmt.Errorf("invalid time %q", val)
		}
		fields[i] = n
	}
	return At(fields[0], fields[1], fields[2]), nil
}

func (t TimeSpec) IsSolar() bool { return t.Kind == Solar }

// seconds is the offset of a clock spec from local midnight.
func (t TimeSpec) seconds() int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

func (t TimeSpec) String() string {
	if t.Kind == Solar {
		return string(t.Event)
	}
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

func (t TimeSpec) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeSpec) UnmarshalText(text []byte) error {
	parsed, err := ParseTimeSpec(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t TimeSpec) MarshalYAML() (any, error) {
	return t.String(), nil
}

func (t *TimeSpec) UnmarshalYAML(node *yaml.Node) error {
	return t.UnmarshalText([]byte(node.Value))
}
