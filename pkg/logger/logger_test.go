package logger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}
}

func TestLoggerOutput(t *testing.T) {
	Convey("Given a logger writing JSON to a buffer", t, func() {
		var buf bytes.Buffer
		So(Init(WithFormat("json"), WithOutput(&buf)), ShouldBeNil)
		ctx := context.Background()

		Convey("When logging with typed fields", func() {
			Get().Info(ctx, "pair scored",
				String("pair", "a|b"),
				Int("depth", 4),
				Float64("score", 30),
				Bool("precise", true),
				Duration("took", time.Millisecond),
			)

			Convey("Then every field is rendered with the caller", func() {
				out := buf.String()
				So(out, ShouldContainSubstring, `"msg":"pair scored"`)
				So(out, ShouldContainSubstring, `"pair":"a|b"`)
				So(out, ShouldContainSubstring, `"depth":4`)
				So(out, ShouldContainSubstring, `"precise":true`)
				So(out, ShouldContainSubstring, "logger_test.go")
			})
		})

		Convey("When the level is raised to error", func() {
			So(SetLevelString("error"), ShouldBeNil)
			Get().Info(ctx, "hidden")
			Get().Error(ctx, "shown", Error(errors.New("boom")))

			Convey("Then only the error line is written", func() {
				out := buf.String()
				So(out, ShouldNotContainSubstring, "hidden")
				So(out, ShouldContainSubstring, "boom")
			})
		})

		Convey("When using a named child with bound fields", func() {
			Named("rebuild").With(String("run", "r1")).Warn(ctx, "deferred")

			Convey("Then the group and bound field appear", func() {
				out := buf.String()
				So(out, ShouldContainSubstring, `"rebuild"`)
				So(out, ShouldContainSubstring, `"run":"r1"`)
			})
		})
	})
}

func TestSetLevelString(t *testing.T) {
	Convey("Given level strings", t, func() {
		for _, lvl := range []string{"debug", "info", "", "warn", "warning", "ERROR"} {
			So(SetLevelString(lvl), ShouldBeNil)
		}

		Convey("Then unknown levels are rejected", func() {
			err := SetLevelString("verbose")
			So(err, ShouldNotBeNil)
			So(strings.Contains(err.Error(), "verbose"), ShouldBeTrue)
		})
	})
}
