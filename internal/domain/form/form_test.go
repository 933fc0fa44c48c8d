package form_test

import (
	"testing"
	"time"

	"github.com/okian/trainingbot/internal/domain/form"
	"github.com/okian/trainingbot/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDuration(t *testing.T) {
	Convey("Given durations as written in module files", t, func() {
		cases := map[string]string{
			"90":        "1.5",
			"60":        "1",
			"15":        "0.25",
			"5":         "0.25",
			"240":       "2",
			"1.5 hours": "1.5",
			"2hrs":      "2",
			"0.75 h":    "0.75",
			"3 hour":    "2",
		}
		for raw, want := range cases {
			got, err := form.Duration(raw)
			So(err, ShouldBeNil)
			So(got, ShouldEqual, want)
		}

		Convey("When the value is blank or not a number", func() {
			_, err := form.Duration("  ")
			So(err, ShouldWrap, form.ErrInvalidValue)
			_, err = form.Duration("all afternoon")
			So(err, ShouldWrap, form.ErrInvalidValue)
		})

		Convey("When the value is not a finite number", func() {
			for _, raw := range []string{"nan", "NaN hours", "inf", "+Inf hrs", "infinity"} {
				got, err := form.Duration(raw)
				So(err, ShouldWrap, form.ErrInvalidValue)
				So(got, ShouldBeEmpty)
			}
		})
	})
}

func TestDate(t *testing.T) {
	Convey("Given dates in common layouts", t, func() {
		runDate := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

		for _, raw := range []string{"3/14/2025", "03/14/2025", "3/14/25", "2025-03-14", "03-14-2025", "2025/3/14"} {
			got, err := form.Date(raw, runDate)
			So(err, ShouldBeNil)
			So(got, ShouldEqual, "03/14/2025")
		}

		Convey("When the date is blank", func() {
			got, err := form.Date("", time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))
			So(err, ShouldBeNil)
			So(got, ShouldEqual, "01/02/2025")
		})

		Convey("When the date is garbage", func() {
			_, err := form.Date("next tuesday", runDate)
			So(err, ShouldWrap, form.ErrInvalidValue)
		})
	})
}

func TestTimeOption(t *testing.T) {
	Convey("Given start times in free form", t, func() {
		cases := map[string]string{
			"7:00 PM":   "7:00 PM",
			"7pm":       "7:00 PM",
			"19:00":     "7:00 PM",
			"19:08":     "7:15 PM",
			"19:07":     "7:00 PM",
			"8:53 am":   "9:00 AM",
			"12 am":     "12:00 AM",
			"12:00 pm":  "12:00 PM",
			"":          "12:00 PM",
			"23:55":     "12:00 AM",
			"7.30 p.m.": "7:30 PM",
		}
		for raw, want := range cases {
			got, err := form.TimeOption(raw)
			So(err, ShouldBeNil)
			So(got, ShouldEqual, want)
		}

		Convey("When the time is out of range", func() {
			_, err := form.TimeOption("25:00")
			So(err, ShouldWrap, form.ErrInvalidValue)
		})
	})
}

func TestNearestOption(t *testing.T) {
	Convey("Given the options of a start time select", t, func() {
		options := []string{"-- select --", "6:00 PM", "6:30 PM", "7:00 PM"}

		Convey("Then the closest option is chosen", func() {
			So(form.NearestOption("6:45 PM", options), ShouldEqual, "6:30 PM")
			So(form.NearestOption("9:00 PM", options), ShouldEqual, "7:00 PM")
		})

		Convey("Then no option is chosen when none parse", func() {
			So(form.NearestOption("6:45 PM", []string{"soon"}), ShouldEqual, "")
		})
	})
}

func TestBuild(t *testing.T) {
	Convey("Given an assignment", t, func() {
		a := model.Assignment{
			RunDate:   time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
			Personnel: model.PersonnelRecord{Name: "Doe, Jane"},
			Module: model.TrainingModule{
				Location:    " Station 1 ",
				Topic:       "Ladders",
				Description: "Ground ladder throws",
				Duration:    "45",
				Time:        "0700",
				Instructor:  "Capt. Smith",
			},
		}

		Convey("When the time does not parse", func() {
			_, err := form.Build(a)
			So(err, ShouldWrap, form.ErrInvalidValue)
		})

		Convey("When every field is valid", func() {
			a.Module.Time = "7:00"
			v, err := form.Build(a)

			Convey("Then the values are normalized", func() {
				So(err, ShouldBeNil)
				So(v.Location, ShouldEqual, "Station 1")
				So(v.Hours, ShouldEqual, "0.75")
				So(v.Date, ShouldEqual, "03/14/2025")
				So(v.Time, ShouldEqual, "7:00 AM")
				So(v.Participant, ShouldEqual, "Doe, Jane")
			})
		})
	})
}
