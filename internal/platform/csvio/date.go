package csvio

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kaigo-note/api/internal/platform/textutil"
)

// Japanese era bases: era year 1 corresponds to base+1 in the Gregorian
// calendar.
var eraBases = map[string]int{
	"令和": 2018,
	"平成": 1988,
	"昭和": 1925,
}

var (
	eraDatePattern = regexp.MustCompile(`^(令和|平成|昭和)(元|\d{1,2})年(\d{1,2})月(\d{1,2})日$`)
	dateLayouts    = []string{"2006/01/02", "2006-01-02", "2006年01月02日", "2006年1月2日"}
)

// ParseDate accepts the date spellings seen in scheduling-system exports:
// western dates with slash or dash separators and Japanese era dates such
// as 令和6年6月3日 or 平成元年1月8日. Full-width digits are accepted.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(textutil.ToHalfWidth(value))
	if value == "" {
		return time.Time{}, fmt.Errorf("csvio: empty date")
	}

	if m := eraDatePattern.FindStringSubmatch(value); m != nil {
		year, err := eraYear(m[1], m[2])
		if err != nil {
			return time.Time{}, err
		}
		month, _ := strconv.Atoi(m[3])
		day, _ := strconv.Atoi(m[4])
		return civilDate(year, month, day)
	}

	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("csvio: unsupported date %q", value)
}

func eraYear(era, year string) (int, error) {
	base, ok := eraBases[era]
	if !ok {
		return 0, fmt.Errorf("csvio: unsupported era %q", era)
	}
	if year == "元" {
		return base + 1, nil
	}
	n, err := strconv.Atoi(year)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("csvio: invalid era year %q", year)
	}
	return base + n, nil
}

func civilDate(year, month, day int) (time.Time, error) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("csvio: invalid date %04d-%02d-%02d", year, month, day)
	}
	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if date.Day() != day || int(date.Month()) != month {
		return time.Time{}, fmt.Errorf("csvio: invalid date %04d-%02d-%02d", year, month, day)
	}
	return date, nil
}

// ParseClockTime normalises a clock time such as 9:00 or ０９：３０ to the
// canonical HH:MM form.
func ParseClockTime(value string) (string, error) {
	value = strings.TrimSpace(textutil.ToHalfWidth(value))
	if value == "" {
		return "", fmt.Errorf("csvio: empty time")
	}
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		parsed, err = time.Parse("15:4", value)
	}
	if err != nil {
		return "", fmt.Errorf("csvio: unsupported time %q", value)
	}
	return parsed.Format("15:04"), nil
}
