package worker_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/mock"
	"go.uber.org/goleak"

	queue "github.com/okian/trainingbot/internal/adapters/mq/queue"
	worker "github.com/okian/trainingbot/internal/adapters/mq/worker"
	model "github.com/okian/trainingbot/internal/domain/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type submitterMock struct {
	mock.Mock
}

func (s *submitterMock) Submit(ctx context.Context, a model.Assignment) error {
	return s.Called(ctx, a).Error(0)
}

func forID(id string) interface{} {
	return mock.MatchedBy(func(a model.Assignment) bool { return a.ID == id })
}

func assignment(id string) model.Assignment {
	return model.Assignment{
		ID:        id,
		RunID:     "run-1",
		Personnel: model.PersonnelRecord{ID: "p-" + id, Name: "Doe, " + id, Unit: "R26"},
		Module:    model.TrainingModule{ID: "m-1", Title: "Ladders", Topic: "Ladder Operations"},
	}
}

func zeroBackOff() backoff.BackOff { return &backoff.ZeroBackOff{} }

// runJobs enqueues the assignments, closes the queue and collects every
// outcome from a pool of n workers.
func runJobs(ctx context.Context, n int, s worker.Submitter, jobs []model.Assignment, opts ...worker.Option) map[string]model.Outcome {
	q := queue.NewInMemoryQueue(queue.WithCapacity(len(jobs) + 1))
	for _, j := range jobs {
		if !q.Enqueue(ctx, j) {
			panic("enqueue failed for " + j.ID)
		}
	}
	_ = q.Close()

	opts = append(opts, worker.WithBackOff(zeroBackOff))
	pool := worker.NewPool(n, q, s, opts...)
	pool.Start(ctx)

	out := make(map[string]model.Outcome)
	for o := range pool.Results() {
		out[o.AssignmentID] = o
	}
	return out
}

func TestWorkerOutcomes(t *testing.T) {
	convey.Convey("Given a single worker and a scripted submitter", t, func() {
		ctx := context.Background()
		s := &submitterMock{}

		convey.Convey("When the submission succeeds", func() {
			s.On("Submit", mock.Anything, forID("a1")).Return(nil).Once()
			out := runJobs(ctx, 1, s, []model.Assignment{assignment("a1")})

			convey.Convey("Then the outcome is a success after one attempt", func() {
				o := out["a1"]
				convey.So(o.Succeeded, convey.ShouldBeTrue)
				convey.So(o.Attempts, convey.ShouldEqual, 1)
				convey.So(o.PersonnelName, convey.ShouldEqual, "Doe, a1")
				convey.So(o.ModuleTitle, convey.ShouldEqual, "Ladders")
				convey.So(o.Kind, convey.ShouldEqual, model.Kind(""))
				s.AssertExpectations(t)
			})
		})

		convey.Convey("When the platform rejects the submission", func() {
			s.On("Submit", mock.Anything, forID("a1")).
				Return(fmt.Errorf("%w: participant not found", model.ErrSubmissionRejected)).Once()
			out := runJobs(ctx, 1, s, []model.Assignment{assignment("a1")}, worker.WithRetries(2))

			convey.Convey("Then it is not retried", func() {
				o := out["a1"]
				convey.So(o.Succeeded, convey.ShouldBeFalse)
				convey.So(o.Attempts, convey.ShouldEqual, 1)
				convey.So(o.Kind, convey.ShouldEqual, model.KindSubmissionRejected)
				convey.So(o.Error, convey.ShouldContainSubstring, "participant not found")
				s.AssertNumberOfCalls(t, "Submit", 1)
			})
		})

		convey.Convey("When transport fails twice and then recovers", func() {
			s.On("Submit", mock.Anything, forID("a1")).Return(model.ErrTransport).Times(2)
			s.On("Submit", mock.Anything, forID("a1")).Return(nil).Once()
			out := runJobs(ctx, 1, s, []model.Assignment{assignment("a1")}, worker.WithRetries(2))

			convey.Convey("Then the third attempt succeeds", func() {
				convey.So(out["a1"].Succeeded, convey.ShouldBeTrue)
				convey.So(out["a1"].Attempts, convey.ShouldEqual, 3)
				s.AssertExpectations(t)
			})
		})

		convey.Convey("When transport keeps failing", func() {
			s.On("Submit", mock.Anything, forID("a1")).Return(model.ErrTransport)
			out := runJobs(ctx, 1, s, []model.Assignment{assignment("a1")}, worker.WithRetries(2))

			convey.Convey("Then retries stop at the bound", func() {
				o := out["a1"]
				convey.So(o.Succeeded, convey.ShouldBeFalse)
				convey.So(o.Attempts, convey.ShouldEqual, 3)
				convey.So(o.Kind, convey.ShouldEqual, model.KindTransport)
			})
		})

		convey.Convey("When the submitter returns an unclassified error", func() {
			s.On("Submit", mock.Anything, forID("a1")).Return(errors.New("cdp: target closed"))
			out := runJobs(ctx, 1, s, []model.Assignment{assignment("a1")}, worker.WithRetries(0))

			convey.Convey("Then it is treated as a transport failure", func() {
				convey.So(out["a1"].Kind, convey.ShouldEqual, model.KindTransport)
				convey.So(out["a1"].Error, convey.ShouldContainSubstring, "target closed")
			})
		})

		convey.Convey("When one of two submissions is rejected", func() {
			s.On("Submit", mock.Anything, forID("a1")).Return(model.ErrSubmissionRejected)
			s.On("Submit", mock.Anything, forID("a2")).Return(nil)
			out := runJobs(ctx, 1, s, []model.Assignment{assignment("a1"), assignment("a2")})

			convey.Convey("Then the later assignment is still attempted", func() {
				convey.So(out, convey.ShouldHaveLength, 2)
				convey.So(out["a1"].Succeeded, convey.ShouldBeFalse)
				convey.So(out["a2"].Succeeded, convey.ShouldBeTrue)
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of three workers", t, func() {
		ctx := context.Background()
		s := &submitterMock{}
		s.On("Submit", mock.Anything, mock.Anything).Return(nil)

		jobs := make([]model.Assignment, 0, 12)
		for i := 0; i < 12; i++ {
			jobs = append(jobs, assignment(fmt.Sprintf("a%02d", i)))
		}

		convey.Convey("When the queue is drained", func() {
			out := runJobs(ctx, 3, s, jobs)

			convey.Convey("Then every job yields exactly one outcome", func() {
				convey.So(out, convey.ShouldHaveLength, 12)
				s.AssertNumberOfCalls(t, "Submit", 12)
			})
		})

		convey.Convey("When a rate limit is set", func() {
			start := time.Now()
			out := runJobs(ctx, 3, s, jobs[:3], worker.WithRate(20))

			convey.Convey("Then the pool shares one limiter", func() {
				convey.So(out, convey.ShouldHaveLength, 3)
				// Burst of one then two waits of 50ms each.
				convey.So(time.Since(start), convey.ShouldBeGreaterThanOrEqualTo, 90*time.Millisecond)
			})
		})
	})
}

func TestCancellation(t *testing.T) {
	convey.Convey("Given a cancelled run", t, func() {
		ctx, cancel := context.WithCancel(context.Background())

		convey.Convey("When the submitter blocks until the context ends", func() {
			s := &submitterMock{}
			s.On("Submit", mock.Anything, forID("a1")).
				Run(func(args mock.Arguments) {
					cancel()
					<-args.Get(0).(context.Context).Done()
				}).
				Return(context.Canceled)

			q := queue.NewInMemoryQueue()
			q.Enqueue(ctx, assignment("a1"))
			q.Enqueue(ctx, assignment("a2"))
			_ = q.Close()

			pool := worker.NewPool(1, q, s, worker.WithBackOff(zeroBackOff))
			pool.Start(ctx)
			var outs []model.Outcome
			for o := range pool.Results() {
				outs = append(outs, o)
			}
			for _, j := range q.Drain() {
				outs = append(outs, worker.CancelledOutcome(j))
			}

			convey.Convey("Then the attempt and the leftover job fail as cancelled transport errors", func() {
				convey.So(outs, convey.ShouldHaveLength, 2)
				for _, o := range outs {
					convey.So(o.Succeeded, convey.ShouldBeFalse)
					convey.So(o.Kind, convey.ShouldEqual, model.KindTransport)
					convey.So(o.Error, convey.ShouldContainSubstring, "run cancelled")
				}
			})
		})

		convey.Convey("When building an outcome for an unattempted job", func() {
			o := worker.CancelledOutcome(assignment("a9"))

			convey.Convey("Then it counts as a failed transport error", func() {
				convey.So(o.Attempts, convey.ShouldEqual, 0)
				convey.So(o.Kind, convey.ShouldEqual, model.KindTransport)
				convey.So(errors.Is(o.Err, worker.ErrCancelled), convey.ShouldBeTrue)
			})
		})

		cancel()
	})
}

func TestWorkerStopsOnClosedQueue(t *testing.T) {
	convey.Convey("Given a running worker on an open queue", t, func() {
		q := queue.NewInMemoryQueue()
		results := make(chan model.Outcome, 1)
		w := worker.NewInMemoryWorker(q, &submitterMock{}, results, worker.WithName("solo"))
		done := make(chan struct{})
		go func() {
			defer close(done)
			w.Run(context.Background())
		}()

		convey.Convey("When the queue is closed", func() {
			_ = q.Close()

			convey.Convey("Then the worker returns without producing outcomes", func() {
				select {
				case <-done:
				case <-time.After(time.Second):
					t.Fatal("worker did not stop")
				}
				convey.So(results, convey.ShouldBeEmpty)
			})
		})
	})
}
