package logger

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	err := Init()
	if err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	logger := Get()
	if logger == nil {
		t.Fatal("logger is nil after initialization")
	}
}

func TestLoggerNamed(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	namedLogger := Named("test")
	if namedLogger == nil {
		t.Fatal("named logger is nil")
	}

	namedLogger.Info(context.Background(), "test message")
}

func TestLoggerOutput(t *testing.T) {
	Convey("Given a logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		So(Init(WithOutput(&buf)), ShouldBeNil)
		ctx := context.Background()

		Convey("When logging at info with fields", func() {
			Get().Named("run").Info(ctx, "submitted", String("person", "Doe, Jane"), Int("attempt", 2))

			Convey("Then the record carries the fields and the caller", func() {
				out := buf.String()
				So(out, ShouldContainSubstring, "submitted")
				So(out, ShouldContainSubstring, "run.person=")
				So(out, ShouldContainSubstring, "run.attempt=2")
				So(out, ShouldContainSubstring, "logger_test.go")
			})
		})

		Convey("When logging below the configured level", func() {
			So(SetLevelString("warn"), ShouldBeNil)
			Get().Info(ctx, "quiet")
			Get().Warn(ctx, "loud")

			Convey("Then only the enabled record is written", func() {
				So(buf.String(), ShouldNotContainSubstring, "quiet")
				So(buf.String(), ShouldContainSubstring, "loud")
			})
		})

		Convey("When an error field is logged", func() {
			Get().Error(ctx, "failed", Error(errors.New("boom")))

			Convey("Then the error text is rendered", func() {
				So(buf.String(), ShouldContainSubstring, "error=boom")
			})
		})

		Convey("When fields are bound with With", func() {
			Get().With(String("run_id", "r-1")).Info(ctx, "stage done")

			Convey("Then the bound field appears", func() {
				So(buf.String(), ShouldContainSubstring, "run_id=r-1")
			})
		})

		Convey("When an unknown level is set", func() {
			err := SetLevelString("chatty")

			Convey("Then it is rejected", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestLoggerFile(t *testing.T) {
	Convey("Given a logger mirrored into a file", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "logs", "run.log")
		var console bytes.Buffer
		So(Init(WithOutput(&console), WithFile(path), WithJSON(true)), ShouldBeNil)
		defer func() { _ = Close() }()

		Get().Info(context.Background(), "hello file")
		So(Sync(), ShouldBeNil)

		Convey("Then both the console and the file receive the record", func() {
			data, err := os.ReadFile(path)
			So(err, ShouldBeNil)
			So(string(data), ShouldContainSubstring, `"msg":"hello file"`)
			So(console.String(), ShouldContainSubstring, "hello file")
		})
	})
}
