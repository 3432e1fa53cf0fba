package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/kairos/internal/adapters/http/api"
	"github.com/okian/kairos/internal/adapters/http/swagger"
	app "github.com/okian/kairos/internal/app"
	"github.com/okian/kairos/internal/config"
	"github.com/okian/kairos/internal/domain/composite"
	"github.com/okian/kairos/pkg/logger"
	"github.com/okian/kairos/pkg/metrics"
)

func init() {
	_ = logger.Init(logger.WithOutput(io.Discard))
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		if k, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, "KAIROS_") {
			t.Setenv(k, "")
			_ = os.Unsetenv(k)
		}
	}
}

func TestServiceOptions(t *testing.T) {
	convey.Convey("Given the default configuration", t, func() {
		cfg := config.New(context.Background())
		cfg.WorkerCount = 2

		convey.Convey("When it is translated into service options", func() {
			opts, err := serviceOptions(cfg)
			convey.So(err, convey.ShouldBeNil)

			svc := app.New(opts...)
			convey.So(svc.Start(context.Background()), convey.ShouldBeNil)
			defer svc.Stop()

			convey.Convey("Then the service runs with the configured stack", func() {
				convey.So(svc.Hierarchy().Depth(), convey.ShouldEqual, 8)
				convey.So(string(svc.EngineKinds()[0]), convey.ShouldEqual, "resonance")

				active, err := svc.ActiveWeights()
				convey.So(err, convey.ShouldBeNil)
				convey.So(active.Version, convey.ShouldEqual, "default")
				convey.So(active.Weights[composite.FamilyTemporal], convey.ShouldAlmostEqual, 0.5)

				labels := make([]string, 0, len(svc.Bands()))
				for _, b := range svc.Bands() {
					labels = append(labels, b.Label)
				}
				convey.So(labels, convey.ShouldResemble, []string{"exceptional", "strong", "moderate", "weak", "minimal"})
			})
		})

		convey.Convey("When the minute factors do not divide an hour", func() {
			cfg.LayerMinuteFactors = []int{7}
			_, err := serviceOptions(cfg)

			convey.Convey("Then translation fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When no band starts at zero", func() {
			cfg.Bands = map[string]float64{"high": 0.5}
			_, err := serviceOptions(cfg)

			convey.Convey("Then translation fails", func() {
				convey.So(errors.Is(err, composite.ErrInvalidBands), convey.ShouldBeTrue)
			})
		})
	})
}

func TestOpenStore(t *testing.T) {
	convey.Convey("Given a memory store backend", t, func() {
		cfg := config.New(context.Background())

		store, err := openStore(context.Background(), cfg)

		convey.Convey("Then a wrapped store is returned and closes cleanly", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(store, convey.ShouldNotBeNil)
			convey.So(store.Close(), convey.ShouldBeNil)
		})
	})

	convey.Convey("Given a redis backend with a malformed URL", t, func() {
		cfg := config.New(context.Background())
		cfg.StoreBackend = "redis"
		cfg.RedisURL = "not a url"

		_, err := openStore(context.Background(), cfg)

		convey.Convey("Then opening fails", func() {
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestRoutes(t *testing.T) {
	convey.Convey("Given the full route set built from loaded configuration", t, func() {
		clearEnv(t)
		t.Setenv("KAIROS_WORKER_COUNT", "2")
		t.Setenv("KAIROS_MAX_LEADERBOARD_LIMIT", "5")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		cfg, err := config.Load(ctx)
		convey.So(err, convey.ShouldBeNil)
		convey.So(cfg.WorkerCount, convey.ShouldEqual, 2)

		opts, err := serviceOptions(cfg)
		convey.So(err, convey.ShouldBeNil)
		store, err := openStore(ctx, cfg)
		convey.So(err, convey.ShouldBeNil)

		svc := app.New(append(opts, app.WithStore(store))...)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		mux := http.NewServeMux()
		swagger.Register(ctx, mux)
		api.NewServer(svc, cfg.MaxLeaderboardLimit).Register(ctx, mux)

		get := func(path string) int {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
			return w.Code
		}

		convey.Convey("Then docs, ops and metrics routes all answer", func() {
			convey.So(get("/openapi.yaml"), convey.ShouldEqual, http.StatusOK)
			convey.So(get("/api-docs"), convey.ShouldEqual, http.StatusOK)
			convey.So(get("/healthz"), convey.ShouldEqual, http.StatusOK)
			convey.So(get("/weights"), convey.ShouldEqual, http.StatusOK)
			convey.So(get("/leaderboard?limit=5"), convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("And the configured leaderboard cap is enforced", func() {
			convey.So(get("/leaderboard?limit=6"), convey.ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestMetricsOptions(t *testing.T) {
	convey.Convey("Given metric naming settings", t, func() {
		cfg := config.New(context.Background())
		cfg.MetricsNamespace = "ops"
		cfg.MetricsPrefix = "edge"
		cfg.MetricsLabels = map[string]string{"region": "eu"}

		convey.Convey("When the global manager is rebuilt from them", func() {
			metrics.Init(metricsOptions(cfg)...)
			defer metrics.Init()
			metrics.RecordCompositeComputed()

			convey.Convey("Then the served registry uses the configured names", func() {
				mux := http.NewServeMux()
				api.NewServer(app.New(), cfg.MaxLeaderboardLimit).Register(context.Background(), mux)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Body.String(), convey.ShouldContainSubstring, `ops_affinity_edge_composite_computed_total{region="eu"}`)
			})
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given a started service", t, func() {
		svc := app.New(app.WithWorkerCount(1))
		convey.So(svc.Start(context.Background()), convey.ShouldBeNil)
		defer svc.Stop()

		convey.Convey("Then the updaters run and return when the context ends", func() {
			convey.So(func() {
				updateSystemMetrics()
				updateServiceMetrics(svc)
			}, convey.ShouldNotPanic)

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			done := make(chan struct{})
			go func() {
				startSystemMetricsUpdater(ctx)
				startServiceMetricsUpdater(ctx, svc)
				close(done)
			}()

			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("metrics updaters did not stop")
			}
		})
	})
}
