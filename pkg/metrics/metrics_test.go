package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithHistogramBuckets([]float64{1, 10, 100}),
				WithConstLabels(map[string]string{"station": "hq"}),
				WithPrometheusRegistry(registry),
			)
			manager.ObserveRun("completed", 2, 2, 0, 1.5, 1_700_000_000)

			Convey("Then metric names use the namespace and carry the labels", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_namespace_test_subsystem_runs_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[1].GetValue(), ShouldEqual, "hq")
					}
				}
				So(found, ShouldBeTrue)
			})
		})
	})
}

func TestObserveRun(t *testing.T) {
	Convey("Given a manager on its own registry", t, func() {
		registry := prometheus.NewRegistry()
		m := NewManager(WithPrometheusRegistry(registry))

		Convey("When a partial run is observed", func() {
			m.ObserveRun("partial", 2, 1, 1, 3.2, 1_700_000_000)
			m.RecordSubmission("succeeded", 120)
			m.RecordSubmission("rejected", 80)

			Convey("Then counters and gauges reflect it", func() {
				So(testutil.ToFloat64(m.runsTotal.WithLabelValues("partial")), ShouldEqual, 1)
				So(testutil.ToFloat64(m.lastRunAttempted), ShouldEqual, 2)
				So(testutil.ToFloat64(m.lastRunSucceeded), ShouldEqual, 1)
				So(testutil.ToFloat64(m.lastRunFailed), ShouldEqual, 1)
				So(testutil.ToFloat64(m.submissionsTotal.WithLabelValues("rejected")), ShouldEqual, 1)
			})
		})
	})
}

func TestWriteTextfile(t *testing.T) {
	Convey("Given a manager with recorded values", t, func() {
		registry := prometheus.NewRegistry()
		m := NewManager(WithPrometheusRegistry(registry))
		m.ObserveRun("completed", 3, 3, 0, 4, 1_700_000_000)

		Convey("When writing a textfile into a fresh directory", func() {
			path := filepath.Join(t.TempDir(), "collector", "trainingbot.prom")
			err := m.WriteTextfile(path)

			Convey("Then the exposition contains the run gauges", func() {
				So(err, ShouldBeNil)
				data, readErr := os.ReadFile(path)
				So(readErr, ShouldBeNil)
				So(string(data), ShouldContainSubstring, "trainingbot_run_last_attempted 3")
			})
		})
	})
}

func TestPush(t *testing.T) {
	Convey("Given a fake Pushgateway", t, func() {
		var hits atomic.Int32
		var body atomic.Value
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			b, _ := io.ReadAll(r.Body)
			body.Store(r.URL.Path + " " + string(b))
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		registry := prometheus.NewRegistry()
		m := NewManager(WithPrometheusRegistry(registry))
		m.ObserveRun("completed", 1, 1, 0, 1, 1_700_000_000)

		Convey("When pushing under a job name", func() {
			err := m.Push(context.Background(), srv.URL, "trainingbot")

			Convey("Then the gateway receives the job", func() {
				So(err, ShouldBeNil)
				So(hits.Load(), ShouldEqual, 1)
				So(strings.HasPrefix(body.Load().(string), "/metrics/job/trainingbot"), ShouldBeTrue)
			})
		})

		Convey("When the gateway is unreachable", func() {
			err := m.Push(context.Background(), "http://127.0.0.1:1", "trainingbot")

			Convey("Then an export error is returned", func() {
				So(err, ShouldWrap, ErrExportFailed)
			})
		})
	})
}

func TestGlobalFunctions(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording through package functions", func() {
			So(func() {
				RecordStage("load", 12)
				UpdateModulesLoaded(4)
				UpdatePersonnelLoaded(9)
				RecordAssignments("uniform", 9)
				RecordFeedRequest("ok")
				RecordSubmission("succeeded", 100)
				RecordSubmissionRetry()
				UpdateQueueSize(1)
				UpdateQueueCapacity(10)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				UpdateWorkerActiveCount(1)
				RecordWorkerProcessingLatency(5)
				RecordWorkerError()
				RecordRepositoryQueryLatency("save_run", 0.4)
				UpdateRepositoryRunsTotal(3)
				RecordHTTPRequest("runs", "GET", "200")
				RecordHTTPRequestDuration("runs", "GET", "200", 1)
				RecordErrorByComponent("feed", "auth")
				ObserveRun("completed", 1, 1, 0, 1, 1)
			}, ShouldNotPanic)

			Convey("Then the shared registry gathers them", func() {
				families, err := GetRegistry().Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
			})
		})
	})
}
