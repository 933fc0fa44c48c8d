package minicad_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/trainingbot/internal/adapters/minicad"
	"github.com/okian/trainingbot/internal/domain/model"
)

const payload = `{"Results":[
  {"UnitName":"R1","Staff":["Capt. John Public","Doe, Jane"]},
  {"UnitName":"E26","Staff":"Lt Ann Lee; Jane Doe"},
  {"UnitName":"T9","Staff":[]}
]}`

func feed(t *testing.T, hits *atomic.Int32, handler func(n int32, w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler(hits.Add(1), w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientFetch(t *testing.T) {
	ctx := context.Background()

	Convey("Given a MiniCad feed with basic auth", t, func() {
		var hits atomic.Int32
		srv := feed(t, &hits, func(_ int32, w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user != "bot" || pass != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(payload))
		})

		Convey("When the credentials are right", func() {
			c := minicad.NewClient(srv.URL, minicad.WithCredentials("bot", "secret"))
			r, err := c.Fetch(ctx)

			Convey("Then the staffed units are parsed and names normalized", func() {
				So(err, ShouldBeNil)
				So(r.UnitNames(), ShouldResemble, []string{"E26", "R1"})
				So(r.Units[0].Personnel[0].Name, ShouldEqual, "Doe, Jane")
				So(r.Units[0].Personnel[1].Name, ShouldEqual, "Public, John")
				So(r.Units[1].Personnel[0].Name, ShouldEqual, "Doe, Jane")
				So(r.Units[1].Personnel[1].Unit, ShouldEqual, "E26")
			})
		})

		Convey("When the credentials are rejected", func() {
			c := minicad.NewClient(srv.URL,
				minicad.WithCredentials("bot", "wrong"),
				minicad.WithBackOff(&backoff.ZeroBackOff{}),
			)
			_, err := c.Fetch(ctx)

			Convey("Then an auth error is returned without retrying", func() {
				So(errors.Is(err, model.ErrAuth), ShouldBeTrue)
				So(model.KindOf(err), ShouldEqual, model.KindAuth)
				So(hits.Load(), ShouldEqual, 1)

				var se *model.StageError
				So(errors.As(err, &se), ShouldBeTrue)
				So(se.Stage, ShouldEqual, model.StageFetch)
			})
		})
	})

	Convey("Given a feed that fails twice before answering", t, func() {
		var hits atomic.Int32
		srv := feed(t, &hits, func(n int32, w http.ResponseWriter, _ *http.Request) {
			if n <= 2 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = w.Write([]byte(`[{"Unit":"M4","Personnel":[{"FirstName":"Ann","LastName":"Lee","EmployeeID":42}]}]`))
		})

		Convey("When retries cover the failures", func() {
			c := minicad.NewClient(srv.URL, minicad.WithRetries(3), minicad.WithBackOff(&backoff.ZeroBackOff{}))
			r, err := c.Fetch(ctx)

			Convey("Then the roster is returned", func() {
				So(err, ShouldBeNil)
				So(hits.Load(), ShouldEqual, 3)
				p := r.Units[0].Personnel[0]
				So(p.Name, ShouldEqual, "Lee, Ann")
				So(p.ID, ShouldEqual, "42")
				So(p.Fields["EmployeeID"], ShouldEqual, "42")
			})
		})

		Convey("When retries run out", func() {
			c := minicad.NewClient(srv.URL, minicad.WithRetries(1), minicad.WithBackOff(&backoff.ZeroBackOff{}))
			_, err := c.Fetch(ctx)

			Convey("Then the feed is unavailable", func() {
				So(errors.Is(err, model.ErrFeedUnavailable), ShouldBeTrue)
				So(hits.Load(), ShouldEqual, 2)
			})
		})
	})

	Convey("Given a feed that never answers in time", t, func() {
		var hits atomic.Int32
		srv := feed(t, &hits, func(_ int32, w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		})

		c := minicad.NewClient(srv.URL,
			minicad.WithTimeout(50*time.Millisecond),
			minicad.WithRetries(0),
		)
		_, err := c.Fetch(ctx)

		Convey("Then the timeout is reported as feed unavailable", func() {
			So(errors.Is(err, model.ErrFeedUnavailable), ShouldBeTrue)
		})
	})

	Convey("Given an unreachable feed", t, func() {
		c := minicad.NewClient("http://127.0.0.1:1/units", minicad.WithRetries(0))
		_, err := c.Fetch(ctx)

		So(model.KindOf(err), ShouldEqual, model.KindFeedUnavailable)
	})

	Convey("Given a feed returning garbage", t, func() {
		var hits atomic.Int32
		srv := feed(t, &hits, func(_ int32, w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`<html>maintenance</html>`))
		})

		_, err := minicad.NewClient(srv.URL).Fetch(ctx)

		So(errors.Is(err, model.ErrFormat), ShouldBeTrue)
	})
}

func TestParse(t *testing.T) {
	Convey("Given payload shapes seen in the field", t, func() {
		Convey("When units sit under an unlisted key", func() {
			r, err := minicad.Parse([]byte(`{"meta":{"n":1},"apparatus":[{"Name":"BC1","staff":["Chief Sam Ortiz"]}]}`))
			So(err, ShouldBeNil)
			So(r.Units[0].Name, ShouldEqual, "BC1")
			So(r.Units[0].Personnel[0].Name, ShouldEqual, "Ortiz, Sam")
		})

		Convey("When a staff object only has a full name", func() {
			r, err := minicad.Parse([]byte(`{"data":[{"unit":"E1","personnel":[{"FullName":"Maria Diaz Jr"}]}]}`))
			So(err, ShouldBeNil)
			So(r.Units[0].Personnel[0].ID, ShouldEqual, "Diaz, Maria")
		})

		Convey("When nothing is staffed", func() {
			_, err := minicad.Parse([]byte(`{"Units":[{"UnitName":"R1","Staff":[]}]}`))
			So(errors.Is(err, model.ErrFormat), ShouldBeTrue)
		})

		Convey("When there is no unit list", func() {
			_, err := minicad.Parse([]byte(`{"status":"ok"}`))
			So(errors.Is(err, model.ErrFormat), ShouldBeTrue)
		})
	})
}
