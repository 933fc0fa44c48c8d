// Package form turns an assignment into the exact values typed into the
// training record form: duration in hours, MM/DD/YYYY dates and quarter-hour
// start times.
package form

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/okian/trainingbot/internal/domain/model"
)

const (
	minHours    = 0.25
	maxHours    = 2.0
	minutesHour = 60
	quarterMins = 15
	dateLayout  = "01/02/2006"
	timeLayout  = "3:04 PM"
)

// Values are the normalized field values for one submission.
type Values struct {
	Location    string `json:"location"`
	Topic       string `json:"topic"`
	Description string `json:"description"`
	Hours       string `json:"duration_hours"`
	Date        string `json:"date"`
	Time        string `json:"time_option"`
	Instructor  string `json:"instructor"`
	Participant string `json:"participant"`
}

// Build normalizes the module fields of a for the form. The run date is used
// when the module carries no date of its own.
func Build(a model.Assignment) (Values, error) {
	m := a.Module
	hours, err := Duration(m.Duration)
	if err != nil {
		return Values{}, err
	}
	date, err := Date(m.Date, a.RunDate)
	if err != nil {
		return Values{}, err
	}
	start, err := TimeOption(m.Time)
	if err != nil {
		return Values{}, err
	}
	return Values{
		Location:    strings.TrimSpace(m.Location),
		Topic:       strings.TrimSpace(m.Topic),
		Description: strings.TrimSpace(m.Description),
		Hours:       hours,
		Date:        date,
		Time:        start,
		Instructor:  strings.TrimSpace(m.Instructor),
		Participant: a.Personnel.Name,
	}, nil
}

var hourUnits = strings.NewReplacer("hours", "", "hour", "", "hrs", "", "hr", "", "h", "")

// Duration converts a duration to hours clamped to [0.25, 2]. A bare integer
// is minutes; anything else is hours with an optional unit ("1.5 hrs").
func Duration(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", fmt.Errorf("%w: duration is empty", ErrInvalidValue)
	}

	var hours float64
	if mins, err := strconv.Atoi(s); err == nil {
		hours = float64(mins) / minutesHour
	} else {
		h, err := strconv.ParseFloat(strings.TrimSpace(hourUnits.Replace(s)), 64)
		if err != nil || math.IsNaN(h) || math.IsInf(h, 0) {
			return "", fmt.Errorf("%w: duration %q", ErrInvalidValue, raw)
		}
		hours = h
	}
	hours = min(maxHours, max(minHours, hours))

	out := strconv.FormatFloat(hours, 'f', 2, 64)
	out = strings.TrimRight(out, "0")
	return strings.TrimSuffix(out, "."), nil
}

var dateLayouts = []string{"1/2/2006", "1/2/06", "2006-1-2", "1-2-2006", "1-2-06", "2006/1/2"}

// Date renders raw as MM/DD/YYYY, falling back to fallback when raw is blank.
func Date(raw string, fallback time.Time) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return fallback.Format(dateLayout), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(dateLayout), nil
		}
	}
	return "", fmt.Errorf("%w: date %q", ErrInvalidValue, raw)
}

var clockRe = regexp.MustCompile(`^(\d{1,2})(?:[:.](\d{2}))?\s*([ap]\.?m\.?)?$`)

// Minutes parses a clock time ("7:05 pm", "19:05", "7pm", "19") into minutes
// after midnight. A blank value is noon.
func Minutes(raw string) (int, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return 12 * minutesHour, nil
	}
	m := clockRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: time %q", ErrInvalidValue, raw)
	}
	hh, _ := strconv.Atoi(m[1])
	mm := 0
	if m[2] != "" {
		mm, _ = strconv.Atoi(m[2])
	}
	switch strings.Trim(m[3], ".") {
	case "p.m", "pm":
		if hh < 12 {
			hh += 12
		}
	case "a.m", "am":
		if hh == 12 {
			hh = 0
		}
	}
	if hh > 23 || mm > 59 {
		return 0, fmt.Errorf("%w: time %q", ErrInvalidValue, raw)
	}
	return hh*minutesHour + mm, nil
}

// TimeOption rounds raw to the nearest quarter hour and renders it the way
// the form's start time options are labelled ("7:00 PM").
func TimeOption(raw string) (string, error) {
	mins, err := Minutes(raw)
	if err != nil {
		return "", err
	}
	q := ((mins%minutesHour + quarterMins/2) / quarterMins) * quarterMins
	total := (mins/minutesHour*minutesHour + q) % (24 * minutesHour)
	return clock(total), nil
}

// NearestOption picks the option label closest in time to target. Labels that
// do not parse as a time are skipped. It returns "" when none parse.
func NearestOption(target string, options []string) string {
	want, err := Minutes(target)
	if err != nil {
		return ""
	}
	best, bestDiff := "", -1
	for _, o := range options {
		got, err := Minutes(o)
		if err != nil {
			continue
		}
		diff := got - want
		if diff < 0 {
			diff = -diff
		}
		if bestDiff < 0 || diff < bestDiff {
			best, bestDiff = strings.TrimSpace(o), diff
		}
	}
	return best
}

func clock(mins int) string {
	t := time.Date(2000, 1, 1, mins/minutesHour, mins%minutesHour, 0, 0, time.UTC)
	return t.Format(timeLayout)
}
