// Package timelayer decomposes calendar timestamps into nested precision layers.
package timelayer

import (
	"fmt"
	"strconv"
)

// Calendar layers always present ahead of the sub-hour refinements.
const (
	LayerYear = iota
	LayerMonth
	LayerDay
	LayerHour
	calendarLayers
)

const (
	minutesPerHour   = 60
	secondsPerMinute = 60
)

// Default hierarchy: the hour splits into 4 quarters of 3 blocks of 5 minutes,
// and each minute splits into 4 micro slots of 15 seconds.
var (
	DefaultMinuteFactors = []int{4, 3, 5}
	DefaultSecondFactor  = 4
)

// Hierarchy is the immutable layer configuration shared by the decomposer and the scorer.
// Changing it changes every downstream score.
type Hierarchy struct {
	minuteFactors []int
	secondFactor  int
	names         []string
}

// NewHierarchy validates and builds a hierarchy. minuteFactors successively split the
// hour and their product must divide 60. secondFactor splits the minute into a
// sub-minute layer; zero disables it, and a non-zero value requires the minute
// factors to resolve exactly one minute.
func NewHierarchy(minuteFactors []int, secondFactor int) (Hierarchy, error) {
	product := 1
	for i, f := range minuteFactors {
		if f < 2 {
			return Hierarchy{}, fmt.Errorf("%w: minute factor %d is %d, must be >= 2", ErrInvalidHierarchy, i, f)
		}
		product *= f
		if product > minutesPerHour {
			return Hierarchy{}, fmt.Errorf("%w: minute factors exceed 60", ErrInvalidHierarchy)
		}
	}
	if minutesPerHour%product != 0 {
		return Hierarchy{}, fmt.Errorf("%w: minute factors multiply to %d, which does not divide 60", ErrInvalidHierarchy, product)
	}
	if secondFactor < 0 || secondFactor == 1 {
		return Hierarchy{}, fmt.Errorf("%w: second factor %d", ErrInvalidHierarchy, secondFactor)
	}
	if secondFactor > 0 {
		if secondsPerMinute%secondFactor != 0 {
			return Hierarchy{}, fmt.Errorf("%w: second factor %d does not divide 60", ErrInvalidHierarchy, secondFactor)
		}
		if product != minutesPerHour {
			return Hierarchy{}, fmt.Errorf("%w: sub-minute layer needs minute factors resolving one minute", ErrInvalidHierarchy)
		}
	}

	factors := make([]int, len(minuteFactors))
	copy(factors, minuteFactors)

	names := []string{"year", "month", "day", "hour"}
	unit := minutesPerHour
	for _, f := range factors {
		unit /= f
		names = append(names, strconv.Itoa(unit)+"m")
	}
	if secondFactor > 0 {
		names = append(names, strconv.Itoa(secondsPerMinute/secondFactor)+"s")
	}

	return Hierarchy{minuteFactors: factors, secondFactor: secondFactor, names: names}, nil
}

// DefaultHierarchy returns the year/month/day/hour/15m/5m/1m/15s hierarchy.
func DefaultHierarchy() Hierarchy {
	h, err := NewHierarchy(DefaultMinuteFactors, DefaultSecondFactor)
	if err != nil {
		panic(err) // defaults are constant
	}
	return h
}

// Depth returns the number of layers in a record.
func (h Hierarchy) Depth() int {
	d := calendarLayers + len(h.minuteFactors)
	if h.secondFactor > 0 {
		d++
	}
	return d
}

// MinutePrecisionDepth is the number of layers resolvable from a minute-resolution timestamp.
func (h Hierarchy) MinutePrecisionDepth() int {
	return calendarLayers + len(h.minuteFactors)
}

// LayerNames returns a copy of the layer names, most significant first.
func (h Hierarchy) LayerNames() []string {
	out := make([]string, len(h.names))
	copy(out, h.names)
	return out
}

// LayerName returns the name of the layer at 1-based depth, or "none" for depth 0.
func (h Hierarchy) LayerName(depth int) string {
	if depth <= 0 || depth > len(h.names) {
		return "none"
	}
	return h.names[depth-1]
}

// MinuteFactors returns a copy of the minute factors.
func (h Hierarchy) MinuteFactors() []int {
	out := make([]int, len(h.minuteFactors))
	copy(out, h.minuteFactors)
	return out
}

// SecondFactor returns the sub-minute split, zero when disabled.
func (h Hierarchy) SecondFactor() int {
	return h.secondFactor
}

// IsZero reports whether h was never built.
func (h Hierarchy) IsZero() bool {
	return len(h.names) == 0
}

// subHour computes the sub-hour refinements for minute and second.
func (h Hierarchy) subHour(minute, second int) []int {
	out := make([]int, 0, h.Depth()-calendarLayers)
	prev := minutesPerHour
	for _, f := range h.minuteFactors {
		unit := prev / f
		out = append(out, (minute%prev)/unit)
		prev = unit
	}
	if h.secondFactor > 0 {
		out = append(out, second/(secondsPerMinute/h.secondFactor))
	}
	return out
}
