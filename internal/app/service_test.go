package service_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/mock"
	"go.uber.org/goleak"

	"github.com/okian/trainingbot/internal/adapters/mq/worker"
	"github.com/okian/trainingbot/internal/adapters/repository"
	"github.com/okian/trainingbot/internal/adapters/runlog"
	"github.com/okian/trainingbot/internal/adapters/tui"
	service "github.com/okian/trainingbot/internal/app"
	"github.com/okian/trainingbot/internal/domain/model"
	"github.com/okian/trainingbot/internal/domain/roster"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var runDay = time.Date(2026, 10, 19, 7, 0, 0, 0, time.UTC)

type fakeLoader struct {
	mods []model.TrainingModule
	err  error
}

func (f fakeLoader) Load(context.Context, string) ([]model.TrainingModule, error) {
	return f.mods, f.err
}

type fakeFetcher struct {
	roster roster.Roster
	err    error
	calls  atomic.Int32
}

func (f *fakeFetcher) Fetch(context.Context) (roster.Roster, error) {
	f.calls.Add(1)
	return f.roster, f.err
}

type submitterMock struct {
	mock.Mock
}

func (m *submitterMock) Submit(_ context.Context, a model.Assignment) error { //nolint:gocritic // matches worker.Submitter
	return m.Called(a.Personnel.Name).Error(0)
}

type sessionSubmitter struct {
	submitterMock
	startErr error
}

func (s *sessionSubmitter) Start(context.Context) error { return s.startErr }

type submitFunc func(ctx context.Context, a model.Assignment) error

func (f submitFunc) Submit(ctx context.Context, a model.Assignment) error { return f(ctx, a) } //nolint:gocritic // matches worker.Submitter

type failingHistory struct{}

func (failingHistory) LastModules(context.Context, []string) (map[string]string, error) {
	return nil, errors.New("database is locked")
}

func twoModules() []model.TrainingModule {
	return []model.TrainingModule{
		{ID: "mod-a", Title: "ModuleA", Topic: "Ladders", Duration: "60"},
		{ID: "mod-b", Title: "ModuleB", Topic: "Hose Lines", Duration: "1.5"},
	}
}

func person(id, name string) model.PersonnelRecord {
	return model.PersonnelRecord{ID: id, Name: name}
}

func aliceAndBob() *fakeFetcher {
	return &fakeFetcher{roster: roster.Roster{Units: []roster.Unit{
		{Name: "R1", Personnel: []model.PersonnelRecord{person("alice", "Smith, Alice")}},
		{Name: "E26", Personnel: []model.PersonnelRecord{person("bob", "Jones, Bob")}},
	}}}
}

type harness struct {
	store  *repository.MemoryStore
	report string
	dir    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	return &harness{
		store:  repository.NewMemoryStore(),
		report: filepath.Join(dir, "logs", "runs.jsonl"),
		dir:    dir,
	}
}

func (h *harness) service(opts ...service.Option) *service.Service {
	base := []service.Option{
		service.WithModules(fakeLoader{mods: twoModules()}, "modules.csv"),
		service.WithRecorder(runlog.NewRecorder(runlog.NewJSONL(h.report), runlog.NewLedger(h.store))),
		service.WithHistory(h.store),
		service.WithClock(func() time.Time { return runDay }),
		service.WithWorkerOptions(worker.WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} })),
	}
	return service.New(append(base, opts...)...)
}

func TestRun(t *testing.T) {
	Convey("Given modules A and B and personnel Alice and Bob", t, func() {
		h := newHarness(t)
		sub := &submitterMock{}

		Convey("When both submissions succeed", func() {
			sub.On("Submit", "Smith, Alice").Return(nil).Once()
			sub.On("Submit", "Jones, Bob").Return(nil).Once()
			res, err := h.service(service.WithFetcher(aliceAndBob()), service.WithSubmitter(sub)).Run(context.Background(), false)

			Convey("Then each person gets exactly one module from the set", func() {
				So(err, ShouldBeNil)
				So(res.Attempted, ShouldEqual, 2)
				So(res.Succeeded, ShouldEqual, 2)
				So(res.Failed, ShouldEqual, 0)
				So(res.Status(), ShouldEqual, "completed")
				So(res.RunDate, ShouldEqual, "2026-10-19")
				So(res.ModulesLoaded, ShouldEqual, 2)
				So(res.PersonnelLoaded, ShouldEqual, 2)
				people := map[string]bool{}
				for _, o := range res.Outcomes {
					people[o.PersonnelID] = true
					So(o.ModuleID, ShouldBeIn, "mod-a", "mod-b")
				}
				So(people, ShouldResemble, map[string]bool{"alice": true, "bob": true})
				sub.AssertExpectations(t)
			})

			Convey("And the result reaches every sink", func() {
				stored, err := h.store.Run(context.Background(), res.ID)
				So(err, ShouldBeNil)
				So(stored.Succeeded, ShouldEqual, 2)

				lines, err := runlog.ReadJSONL(h.report)
				So(err, ShouldBeNil)
				So(lines, ShouldHaveLength, 1)
				So(lines[0].ID, ShouldEqual, res.ID)
			})
		})

		Convey("When one of two submissions is rejected", func() {
			sub.On("Submit", "Smith, Alice").Return(fmt.Errorf("%w: participant not found", model.ErrSubmissionRejected)).Once()
			sub.On("Submit", "Jones, Bob").Return(nil).Once()
			res, err := h.service(service.WithFetcher(aliceAndBob()), service.WithSubmitter(sub)).Run(context.Background(), false)

			Convey("Then the other is still attempted and the counts add up", func() {
				So(err, ShouldBeNil)
				So(res.Attempted, ShouldEqual, 2)
				So(res.Succeeded, ShouldEqual, 1)
				So(res.Failed, ShouldEqual, 1)
				So(res.Status(), ShouldEqual, "partial")
				So(res.Failures, ShouldHaveLength, 1)
				So(res.Failures[0].Stage, ShouldEqual, model.StageSubmit)
				So(res.Failures[0].Kind, ShouldEqual, model.KindSubmissionRejected)
				So(res.Failures[0].PersonnelName, ShouldEqual, "Smith, Alice")
				So(res.Failures[0].Attempts, ShouldEqual, 1)
				sub.AssertExpectations(t)
			})
		})

		Convey("When a transport error clears on retry", func() {
			sub.On("Submit", "Smith, Alice").Return(nil).Once()
			sub.On("Submit", "Jones, Bob").Return(fmt.Errorf("%w: connection reset", model.ErrTransport)).Twice()
			sub.On("Submit", "Jones, Bob").Return(nil).Once()
			res, err := h.service(service.WithFetcher(aliceAndBob()), service.WithSubmitter(sub)).Run(context.Background(), false)

			Convey("Then the assignment succeeds after three attempts", func() {
				So(err, ShouldBeNil)
				So(res.Succeeded, ShouldEqual, 2)
				for _, o := range res.Outcomes {
					if o.PersonnelID == "bob" {
						So(o.Attempts, ShouldEqual, 3)
					}
				}
				sub.AssertExpectations(t)
			})
		})

		Convey("When two people in different units share a feed id", func() {
			fetcher := &fakeFetcher{roster: roster.Roster{Units: []roster.Unit{
				{Name: "R1", Personnel: []model.PersonnelRecord{person("1", "Smith, Alice")}},
				{Name: "E26", Personnel: []model.PersonnelRecord{person("1", "Jones, Bob")}},
			}}}
			sub.On("Submit", "Smith, Alice").Return(nil).Once()
			sub.On("Submit", "Jones, Bob").Return(nil).Once()
			res, err := h.service(service.WithFetcher(fetcher), service.WithSubmitter(sub)).Run(context.Background(), false)

			Convey("Then both are submitted and counted", func() {
				So(err, ShouldBeNil)
				So(res.PersonnelLoaded, ShouldEqual, 2)
				So(res.Attempted, ShouldEqual, 2)
				So(res.Succeeded, ShouldEqual, 2)
				So(res.Failures, ShouldBeEmpty)
				sub.AssertExpectations(t)
			})
		})

		Convey("When the same person is listed under two units", func() {
			fetcher := &fakeFetcher{roster: roster.Roster{Units: []roster.Unit{
				{Name: "R1", Personnel: []model.PersonnelRecord{person("11", "Smith, Alice")}},
				{Name: "E26", Personnel: []model.PersonnelRecord{person("22", "smith, alice"), person("bob", "Jones, Bob")}},
			}}}
			sub.On("Submit", "Smith, Alice").Return(nil).Once()
			sub.On("Submit", "Jones, Bob").Return(nil).Once()
			res, err := h.service(service.WithFetcher(fetcher), service.WithSubmitter(sub)).Run(context.Background(), false)

			Convey("Then she is assigned once and every assignment is counted", func() {
				So(err, ShouldBeNil)
				So(res.PersonnelLoaded, ShouldEqual, 2)
				So(res.Attempted, ShouldEqual, 2)
				So(res.Succeeded+res.Failed, ShouldEqual, res.Attempted)
				sub.AssertExpectations(t)
			})
		})

		Convey("When the feed is unavailable", func() {
			fetcher := &fakeFetcher{err: model.NewStageError(model.StageFetch, "", fmt.Errorf("%w: 503", model.ErrFeedUnavailable))}
			res, err := h.service(service.WithFetcher(fetcher), service.WithSubmitter(sub)).Run(context.Background(), false)

			Convey("Then the run aborts at fetch before any submission", func() {
				So(err, ShouldWrap, model.ErrFeedUnavailable)
				So(res.AbortStage, ShouldEqual, model.StageFetch)
				So(res.Attempted, ShouldEqual, 0)
				So(res.Succeeded+res.Failed, ShouldEqual, res.Attempted)
				So(res.Failures, ShouldHaveLength, 1)
				So(res.Failures[0].Kind, ShouldEqual, model.KindFeedUnavailable)
				So(fetcher.calls.Load(), ShouldEqual, 1)
				sub.AssertNotCalled(t, "Submit", mock.Anything)
			})

			Convey("And the aborted run is still recorded", func() {
				stored, err := h.store.Run(context.Background(), res.ID)
				So(err, ShouldBeNil)
				So(stored.Status(), ShouldEqual, "aborted")
			})
		})

		Convey("When the module file cannot be read", func() {
			loader := fakeLoader{err: fmt.Errorf("%w: open modules.csv", model.ErrSourceUnavailable)}
			res, err := h.service(service.WithModules(loader, "modules.csv"), service.WithFetcher(aliceAndBob()), service.WithSubmitter(sub)).Run(context.Background(), false)

			Convey("Then the run aborts at load", func() {
				So(err, ShouldWrap, model.ErrSourceUnavailable)
				So(res.AbortStage, ShouldEqual, model.StageLoad)
				So(res.AbortError, ShouldContainSubstring, "modules.csv")
				sub.AssertNotCalled(t, "Submit", mock.Anything)
			})
		})

		Convey("When there are no modules", func() {
			res, err := h.service(service.WithModules(fakeLoader{}, "empty.csv"), service.WithFetcher(aliceAndBob()), service.WithSubmitter(sub)).Run(context.Background(), false)

			Convey("Then randomization fails deterministically", func() {
				So(err, ShouldNotBeNil)
				So(res.AbortStage, ShouldEqual, model.StageRandomize)
				So(res.Attempted, ShouldEqual, 0)
			})
		})

		Convey("When it is a dry run", func() {
			res, err := h.service(service.WithFetcher(aliceAndBob()), service.WithSubmitter(sub)).Run(context.Background(), true)

			Convey("Then nothing is submitted but the run is recorded", func() {
				So(err, ShouldBeNil)
				So(res.DryRun, ShouldBeTrue)
				So(res.Attempted, ShouldEqual, 2)
				So(res.Succeeded, ShouldEqual, 2)
				sub.AssertNotCalled(t, "Submit", mock.Anything)
			})
		})

		Convey("When the platform session cannot start", func() {
			sess := &sessionSubmitter{startErr: fmt.Errorf("%w: bad password", model.ErrAuth)}
			res, err := h.service(service.WithFetcher(aliceAndBob()), service.WithSubmitter(sess)).Run(context.Background(), false)

			Convey("Then the run aborts at submit with nothing attempted", func() {
				So(err, ShouldWrap, model.ErrAuth)
				So(res.AbortStage, ShouldEqual, model.StageSubmit)
				So(res.Attempted, ShouldEqual, 0)
				So(res.Failures[0].Kind, ShouldEqual, model.KindAuth)
			})
		})

		Convey("When no submitter is configured", func() {
			_, err := h.service(service.WithFetcher(aliceAndBob())).Run(context.Background(), false)
			So(err, ShouldWrap, service.ErrNotConfigured)
		})
	})
}

func TestRunCancelled(t *testing.T) {
	Convey("Given three people and a submitter that hangs until cancelled", t, func() {
		h := newHarness(t)
		fetcher := &fakeFetcher{roster: roster.Roster{Units: []roster.Unit{{Name: "R1", Personnel: []model.PersonnelRecord{
			person("a", "Able, Ann"), person("b", "Baker, Ben"), person("c", "Cole, Cy"),
		}}}}}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sub := submitFunc(func(sctx context.Context, _ model.Assignment) error {
			cancel()
			<-sctx.Done()
			return sctx.Err()
		})

		Convey("When the run is cancelled during the first submission", func() {
			res, err := h.service(service.WithFetcher(fetcher), service.WithSubmitter(sub)).Run(ctx, false)

			Convey("Then every assignment counts as a cancelled transport failure", func() {
				So(err, ShouldBeNil)
				So(res.Attempted, ShouldEqual, 3)
				So(res.Failed, ShouldEqual, 3)
				So(res.Succeeded, ShouldEqual, 0)
				for _, f := range res.Failures {
					So(f.Kind, ShouldEqual, model.KindTransport)
					So(f.Message, ShouldContainSubstring, "run cancelled")
				}
			})

			Convey("And the result is still recorded", func() {
				stored, err := h.store.Run(context.Background(), res.ID)
				So(err, ShouldBeNil)
				So(stored.Failed, ShouldEqual, 3)
			})
		})
	})
}

func TestPolicies(t *testing.T) {
	Convey("Given the fresh policy and a history that cannot be read", t, func() {
		h := newHarness(t)
		svc := h.service(
			service.WithFetcher(aliceAndBob()),
			service.WithPolicy("fresh"),
			service.WithHistory(failingHistory{}),
		)

		Convey("When previewing", func() {
			plan, err := svc.Preview(context.Background())

			Convey("Then it falls back to uniform", func() {
				So(err, ShouldBeNil)
				So(plan.Policy, ShouldEqual, "uniform")
				So(plan.Assignments, ShouldHaveLength, 2)
			})
		})
	})

	Convey("Given the fresh policy after a recorded run", t, func() {
		h := newHarness(t)
		sub := &submitterMock{}
		sub.On("Submit", mock.Anything).Return(nil)
		opts := []service.Option{service.WithFetcher(aliceAndBob()), service.WithSubmitter(sub), service.WithPolicy("fresh")}
		first, err := h.service(opts...).Run(context.Background(), false)
		So(err, ShouldBeNil)

		Convey("When the next run happens", func() {
			second, err := h.service(opts...).Run(context.Background(), false)

			Convey("Then nobody repeats the previous module", func() {
				So(err, ShouldBeNil)
				prev := map[string]string{}
				for _, o := range first.Outcomes {
					prev[o.PersonnelID] = o.ModuleID
				}
				for _, o := range second.Outcomes {
					So(o.ModuleID, ShouldNotEqual, prev[o.PersonnelID])
				}
			})
		})
	})
}

func TestPreview(t *testing.T) {
	Convey("Given a service with a fixed clock", t, func() {
		h := newHarness(t)
		fetcher := aliceAndBob()

		Convey("When previewing twice on the same day", func() {
			p1, err1 := h.service(service.WithFetcher(fetcher)).Preview(context.Background())
			p2, err2 := h.service(service.WithFetcher(fetcher)).Preview(context.Background())

			Convey("Then the assignments are identical", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(p1.Assignments, ShouldHaveLength, 2)
				for i := range p1.Assignments {
					So(p2.Assignments[i].Personnel.ID, ShouldEqual, p1.Assignments[i].Personnel.ID)
					So(p2.Assignments[i].Module.ID, ShouldEqual, p1.Assignments[i].Module.ID)
				}
			})

			Convey("And nothing is recorded", func() {
				_, err := os.Stat(h.report)
				So(os.IsNotExist(err), ShouldBeTrue)
			})
		})

		Convey("When a unit selection was saved", func() {
			path := filepath.Join(h.dir, "units.json")
			So(tui.SaveSelection(path, []string{"e26", "Ladder 9"}), ShouldBeNil)
			plan, err := h.service(service.WithFetcher(fetcher), service.WithSelectionPath(path)).Preview(context.Background())

			Convey("Then only that unit is assigned and missing units are reported", func() {
				So(err, ShouldBeNil)
				So(plan.Assignments, ShouldHaveLength, 1)
				So(plan.Assignments[0].Personnel.ID, ShouldEqual, "bob")
				So(plan.MissingUnits, ShouldResemble, []string{"Ladder 9"})
			})
		})

		Convey("When explicit units override the saved selection", func() {
			path := filepath.Join(h.dir, "units.json")
			So(tui.SaveSelection(path, []string{"E26"}), ShouldBeNil)
			plan, err := h.service(service.WithFetcher(fetcher), service.WithSelectionPath(path), service.WithUnits([]string{"R1"})).Preview(context.Background())
			So(err, ShouldBeNil)
			So(plan.Assignments, ShouldHaveLength, 1)
			So(plan.Assignments[0].Personnel.ID, ShouldEqual, "alice")
		})
	})
}

func TestRosterAndExport(t *testing.T) {
	Convey("Given a service without a feed", t, func() {
		_, err := service.New().Roster(context.Background())
		So(err, ShouldWrap, service.ErrNotConfigured)
	})

	Convey("Given a service exporting metrics to a textfile", t, func() {
		h := newHarness(t)
		textfile := filepath.Join(h.dir, "trainingbot.prom")
		svc := h.service(service.WithFetcher(aliceAndBob()), service.WithMetricsExport(textfile, ""))

		Convey("When a dry run finishes", func() {
			_, err := svc.Run(context.Background(), true)

			Convey("Then the textfile holds the run gauges", func() {
				So(err, ShouldBeNil)
				data, err := os.ReadFile(textfile)
				So(err, ShouldBeNil)
				So(string(data), ShouldContainSubstring, "last_attempted")
			})
		})
	})
}
