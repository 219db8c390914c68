package internal

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// A month is the monthly average of the Gregorian calendar.
const (
	durationDay   time.Duration = 24 * time.Hour
	durationWeek  time.Duration = 7 * durationDay
	durationMonth time.Duration = time.Duration(30.44 * float64(durationDay))
	durationYear  time.Duration = 12 * durationMonth
)

type durationUnit struct {
	suffix string
	name   string
	length time.Duration
}

// durationUnits must be ordered from the longest to the shortest unit.
var durationUnits = []durationUnit{
	{"y", "year", durationYear},
	{"mo", "month", durationMonth},
	{"w", "week", durationWeek},
	{"d", "day", durationDay},
	{"h", "hour", time.Hour},
	{"m", "minute", time.Minute},
	{"s", "second", time.Second},
}

var durationPattern = func() *regexp.Regexp {
	var b strings.Builder

	b.WriteString(`\A`)
	for _, unit := range durationUnits {
		fmt.Fprintf(&b, `((?P<%s>\d+)%s)?`, unit.suffix, unit.suffix)
	}
	b.WriteString(`\z`)

	return regexp.MustCompile(b.String())
}()

// ErrInvalidDuration is returned by ParseDuration for unparsable input.
var ErrInvalidDuration = errors.New("invalid duration")

// ParseDuration parses a positive duration like "1w2d" or "36h". Valid units
// are "s", "m", "h", "d", "w", "mo", "y", each at most once, longest first.
func ParseDuration(s string) (d time.Duration, err error) {
	if s == "" || !durationPattern.MatchString(s) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}

	parts := durationPattern.FindStringSubmatch(s)
	for i, suffix := range durationPattern.SubexpNames() {
		if suffix == "" || parts[i] == "" {
			continue
		}

		amount, err := strconv.Atoi(parts[i])
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidDuration, err)
		}

		for _, unit := range durationUnits {
			if unit.suffix != suffix {
				continue
			}

			if time.Duration(amount) > (math.MaxInt64-d)/unit.length {
				return 0, fmt.Errorf("%w: %q exceeds %s", ErrInvalidDuration, s, time.Duration(math.MaxInt64))
			}
			d += time.Duration(amount) * unit.length
		}
	}
	return
}

// PrettyDuration returns a human readable representation, e.g., "1 week 2 days".
func PrettyDuration(d time.Duration) string {
	if d <= 0 {
		return "forever"
	}

	var parts []string
	for _, unit := range durationUnits {
		if unit.length > d {
			continue
		}

		amount := int64(d / unit.length)
		d = d % unit.length

		part := fmt.Sprintf("%d %s", amount, unit.name)
		if amount > 1 {
			part += "s"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, " ")
}

// Duration in the configuration file, as accepted by ParseDuration.
type Duration time.Duration

// UnmarshalYAML parses a Duration from a YAML string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}

	parsed, err := ParseDuration(s)
	if err != nil {
		return err
	}

	*d = Duration(parsed)
	return nil
}

func (d Duration) String() string {
	return PrettyDuration(time.Duration(d))
}
