package timelayer

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/okian/kairos/internal/domain/model"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Timestamp is a calendar timestamp with at least minute resolution.
// Hour and Minute are required; Second is optional and its absence is flagged.
type Timestamp struct {
	Year   int  `validate:"gte=1,lte=9999"`
	Month  int  `validate:"gte=1,lte=12"`
	Day    int  `validate:"gte=1,lte=31"`
	Hour   *int `validate:"omitnil,gte=0,lte=23"`
	Minute *int `validate:"omitnil,gte=0,lte=59"`
	Second *int `validate:"omitnil,gte=0,lte=59"`
}

// At builds a minute-resolution timestamp.
func At(year, month, day, hour, minute int) Timestamp {
	return Timestamp{Year: year, Month: month, Day: day, Hour: &hour, Minute: &minute}
}

// WithSecond returns a copy carrying sub-minute precision.
func (t Timestamp) WithSecond(second int) Timestamp {
	t.Second = &second
	return t
}

// FromTime converts t in its own location. precise controls whether seconds are kept.
func FromTime(t time.Time, precise bool) Timestamp {
	ts := At(t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute())
	if precise {
		return ts.WithSecond(t.Second())
	}
	return ts
}

// Precise reports whether sub-minute precision is present.
func (t Timestamp) Precise() bool {
	return t.Second != nil
}

func (t Timestamp) check() error {
	var missing []string
	if t.Hour == nil {
		missing = append(missing, "hour")
	}
	if t.Minute == nil {
		missing = append(missing, "minute")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncompleteInput, strings.Join(missing, ", "))
	}

	if err := getValidator().Struct(t); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s %s=%s", strings.ToLower(fe.Field()), fe.Tag(), fe.Param()))
			}
			return fmt.Errorf("%w: %s", ErrIncompleteInput, strings.Join(fields, "; "))
		}
		return fmt.Errorf("%w: %v", ErrIncompleteInput, err)
	}

	// Reject calendar overflow such as February 30th.
	d := time.Date(t.Year, time.Month(t.Month), t.Day, 0, 0, 0, 0, time.UTC)
	if d.Day() != t.Day || int(d.Month()) != t.Month {
		return fmt.Errorf("%w: %04d-%02d-%02d is not a calendar date", ErrIncompleteInput, t.Year, t.Month, t.Day)
	}
	return nil
}

// Decomposer turns timestamps into TimeRecords under a fixed Hierarchy.
type Decomposer struct {
	hierarchy Hierarchy
}

// NewDecomposer creates a decomposer. A zero hierarchy falls back to DefaultHierarchy.
func NewDecomposer(h Hierarchy) *Decomposer {
	if h.IsZero() {
		h = DefaultHierarchy()
	}
	return &Decomposer{hierarchy: h}
}

// Hierarchy returns the layer configuration in use.
func (d *Decomposer) Hierarchy() Hierarchy {
	return d.hierarchy
}

// Decompose maps a timestamp to exactly one TimeRecord. Missing seconds decompose
// to zero at the sub-minute layer and the record is marked imprecise.
func (d *Decomposer) Decompose(subjectID string, ts Timestamp) (model.TimeRecord, error) {
	if strings.TrimSpace(subjectID) == "" {
		return model.TimeRecord{}, fmt.Errorf("%w: missing subject id", ErrIncompleteInput)
	}
	if err := ts.check(); err != nil {
		return model.TimeRecord{}, err
	}

	second := 0
	if ts.Second != nil {
		second = *ts.Second
	}

	layers := make([]int, 0, d.hierarchy.Depth())
	layers = append(layers, ts.Year, ts.Month, ts.Day, *ts.Hour)
	layers = append(layers, d.hierarchy.subHour(*ts.Minute, second)...)

	return model.TimeRecord{SubjectID: subjectID, Layers: layers, Precise: ts.Precise()}, nil
}
