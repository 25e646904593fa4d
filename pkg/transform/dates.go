package transform

import (
	"strings"
	"time"
)

const (
	// LocalISOLayout renders wall-clock time with milliseconds and no zone.
	LocalISOLayout = "2006-01-02T15:04:05.000"

	// ZonedISOLayout renders wall-clock time with a numeric UTC offset.
	ZonedISOLayout = "2006-01-02T15:04:05-07:00"

	// InvalidDate is produced when formatting a value that is not a valid date.
	InvalidDate = "Invalid date"
)

// Date conversion targets.
const (
	TargetDate     = "date"
	TargetLocalISO = "localIso"
	TargetZonedISO = "zonedIso"
)

// zonedLayouts carry an explicit offset and denote an absolute instant.
// Fractional seconds are accepted after the seconds field by time.Parse.
var zonedLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04-0700",
	"2006-01-02T15:04:05-07",
}

// localLayouts have no offset and are read as wall-clock time.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15",
	"2006-01-02",
	"2006-01",
	"2006",
}

// DateConverter converts between date strings and time.Time in a fixed location.
type DateConverter struct {
	loc *time.Location
}

// DateOption configures a DateConverter.
type DateOption func(*DateConverter)

// WithLocation sets the location used to read zone-less strings and to render output.
func WithLocation(loc *time.Location) DateOption {
	return func(c *DateConverter) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// NewDateConverter creates a converter. The default location is time.Local.
func NewDateConverter(opts ...DateOption) *DateConverter {
	c := &DateConverter{loc: time.Local}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Location returns the converter location.
func (c *DateConverter) Location() *time.Location {
	return c.loc
}

// Parse reads v as a date. Strings with an offset are parsed as that instant;
// strings without one are wall-clock time in the converter location.
// The zero time and false are returned for anything that is not a valid date.
func (c *DateConverter) Parse(v Value) (time.Time, bool) {
	if t, ok := v.Time(); ok {
		if t.IsZero() {
			return time.Time{}, false
		}
		return t.In(c.loc), true
	}
	s, ok := v.Text()
	if !ok {
		return time.Time{}, false
	}
	return c.parseString(s)
}

func (c *DateConverter) parseString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if len(s) > 10 && s[10] == ' ' {
		s = s[:10] + "T" + s[11:]
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(c.loc), true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, c.loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ToDate converts v to a time.Time. Unparseable input yields the zero time.
func (c *DateConverter) ToDate(v Value) any {
	t, _ := c.Parse(v)
	return t
}

// ToLocalISOString formats v as "2006-01-02T15:04:05.000" in the converter location.
func (c *DateConverter) ToLocalISOString(v Value) any {
	return c.format(v, LocalISOLayout)
}

// ToZonedISOString formats v as "2006-01-02T15:04:05-07:00" in the converter location.
func (c *DateConverter) ToZonedISOString(v Value) any {
	return c.format(v, ZonedISOLayout)
}

func (c *DateConverter) format(v Value, layout string) string {
	t, ok := c.Parse(v)
	if !ok {
		return InvalidDate
	}
	return t.Format(layout)
}

// Conversion returns the conversion for a target name, one of
// TargetDate, TargetLocalISO or TargetZonedISO.
func (c *DateConverter) Conversion(target string) (Conversion, bool) {
	switch target {
	case TargetDate:
		return c.ToDate, true
	case TargetLocalISO:
		return c.ToLocalISOString, true
	case TargetZonedISO:
		return c.ToZonedISOString, true
	default:
		return nil, false
	}
}

// ToDateFunc returns a Func converting the selected fields to time.Time.
func (c *DateConverter) ToDateFunc(spec PathSpec) Func {
	return Build(spec, c.ToDate)
}

// ToLocalISOStringFunc returns a Func formatting the selected fields without a zone.
func (c *DateConverter) ToLocalISOStringFunc(spec PathSpec) Func {
	return Build(spec, c.ToLocalISOString)
}

// ToZonedISOStringFunc returns a Func formatting the selected fields with an offset.
func (c *DateConverter) ToZonedISOStringFunc(spec PathSpec) Func {
	return Build(spec, c.ToZonedISOString)
}

var defaultConverter = NewDateConverter()

// ToDate converts the selected fields to time.Time using the local time zone.
func ToDate(spec PathSpec) Func {
	return defaultConverter.ToDateFunc(spec)
}

// ToLocalISOString formats the selected fields as local wall-clock strings.
func ToLocalISOString(spec PathSpec) Func {
	return defaultConverter.ToLocalISOStringFunc(spec)
}

// ToZonedISOString formats the selected fields as strings with a UTC offset.
func ToZonedISOString(spec PathSpec) Func {
	return defaultConverter.ToZonedISOStringFunc(spec)
}
