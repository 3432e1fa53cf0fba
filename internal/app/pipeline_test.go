package service_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/okian/kairos/internal/adapters/repository"
	service "github.com/okian/kairos/internal/app"
	"github.com/okian/kairos/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// brokenStore fails every call with err.
type brokenStore struct {
	err   error
	calls atomic.Int64
}

func (s *brokenStore) UpsertScore(context.Context, model.PairScore) (bool, error) {
	s.calls.Add(1)
	return false, s.err
}

func (s *brokenStore) FetchScoresFor(context.Context, string, model.EngineKind) ([]model.PairScore, error) {
	s.calls.Add(1)
	return nil, s.err
}

func (s *brokenStore) DeleteEngine(context.Context, model.EngineKind) (int, error) {
	return 0, s.err
}

// cancellingStore cancels a context right after the given number of fetches.
type cancellingStore struct {
	repository.ScoreStore
	after   int64
	fetches atomic.Int64
	cancel  context.CancelFunc
}

func (s *cancellingStore) FetchScoresFor(ctx context.Context, subject string, engine model.EngineKind) ([]model.PairScore, error) {
	rows, err := s.ScoreStore.FetchScoresFor(ctx, subject, engine)
	if s.fetches.Add(1) == s.after {
		s.cancel()
	}
	return rows, err
}

func TestService_ScoreAndRebuild(t *testing.T) {
	Convey("Given four subjects", t, func() {
		svc, ctx, stop := startService()
		defer stop()
		seedSubjects(ctx, svc)

		Convey("When every pair is scored", func() {
			report, err := svc.ScoreAll(ctx, "")
			So(err, ShouldBeNil)

			Convey("Then each distinct pair is written once", func() {
				So(report.RunID, ShouldNotBeEmpty)
				So(report.Engine, ShouldEqual, string(model.DefaultEngine))
				So(report.Scored, ShouldEqual, 6)
				So(report.Total(), ShouldEqual, 6)
			})

			Convey("Then scoring again changes nothing", func() {
				again, err := svc.ScoreAll(ctx, "")
				So(err, ShouldBeNil)
				So(again.Unchanged, ShouldEqual, 6)
				So(again.Scored, ShouldEqual, 0)
				So(again.RunID, ShouldNotEqual, report.RunID)
			})

			Convey("And the leaderboard is rebuilt", func() {
				rb, err := svc.Rebuild(ctx, "")
				So(err, ShouldBeNil)
				So(rb.Rebuilt, ShouldEqual, 4)
				So(rb.Deferred, ShouldEqual, 0)
				So(rb.Cancelled, ShouldBeFalse)

				Convey("Then subjects are ranked by peak affinity with shared ranks for ties", func() {
					top, err := svc.TopN(ctx, "", 10)
					So(err, ShouldBeNil)
					So(top, ShouldHaveLength, 4)

					So(top[0].SubjectID, ShouldEqual, "alice")
					So(top[0].Rank, ShouldEqual, 1)
					So(top[0].FinalAffinity, ShouldAlmostEqual, 0.85, 1e-9)
					So(top[0].Decayed, ShouldBeTrue)
					So(top[1].SubjectID, ShouldEqual, "bob")
					So(top[1].Rank, ShouldEqual, 1)
					So(top[2].SubjectID, ShouldEqual, "carol")
					So(top[2].Rank, ShouldEqual, 2)
					So(top[2].FinalAffinity, ShouldAlmostEqual, 0.255, 1e-9)
					So(top[3].SubjectID, ShouldEqual, "dave")
					So(top[3].Rank, ShouldEqual, 3)
					So(top[3].FinalAffinity, ShouldEqual, 0)
				})

				Convey("Then a single subject's rank can be read", func() {
					carol, err := svc.Rank(ctx, "", "carol")
					So(err, ShouldBeNil)
					So(carol.Rank, ShouldEqual, 2)
					So(carol.SampleCount, ShouldEqual, 3)
				})
			})

			Convey("And affinity is recomputed on read", func() {
				agg, err := svc.Affinity(ctx, "", "bob")
				So(err, ShouldBeNil)
				So(agg.PeakScore, ShouldEqual, 100)
				So(agg.Stage, ShouldEqual, model.StageFinalized)
				So(agg.Rank, ShouldEqual, 1)
			})
		})

		Convey("When explicit pairs repeat, reverse or name unknown subjects", func() {
			report, err := svc.ScorePairs(ctx, "", []service.Pair{
				{A: "alice", B: "bob"},
				{A: "bob", B: "alice"},
				{A: "alice", B: "alice"},
				{A: "alice", B: "zed"},
			})

			Convey("Then duplicates are dropped and the rest are skipped", func() {
				So(err, ShouldBeNil)
				So(report.Scored, ShouldEqual, 1)
				So(report.Skipped, ShouldEqual, 2)
				So(report.Total(), ShouldEqual, 3)
			})
		})

		Convey("When a subject has no scores yet", func() {
			agg, err := svc.Affinity(ctx, "", "dave")

			Convey("Then it is reported without data", func() {
				So(err, ShouldBeNil)
				So(agg.HasData(), ShouldBeFalse)
				So(agg.FinalAffinity, ShouldEqual, 0)
				_, err = svc.Rank(ctx, "", "dave")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When everything is recomputed", func() {
			batch, rb, err := svc.Recompute(ctx, "")

			Convey("Then all pairs are written fresh and every subject is ranked", func() {
				So(err, ShouldBeNil)
				So(batch.Scored, ShouldEqual, 6)
				So(rb.Rebuilt, ShouldEqual, 4)
			})
		})

		Convey("When a rebuild is cancelled before it starts", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			rb, err := svc.Rebuild(cctx, "")

			Convey("Then it stops with a partial report", func() {
				So(errors.Is(err, service.ErrRebuildCancelled), ShouldBeTrue)
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				So(rb.Cancelled, ShouldBeTrue)
				So(rb.Rebuilt, ShouldEqual, 0)
			})
		})

		Convey("When subject ids only print alike as pair keys", func() {
			_, err := svc.IntakeMany(ctx, []service.Submission{
				{SubjectID: "a|b", Timestamp: at(9, 0, 0)},
				{SubjectID: "c", Timestamp: at(9, 0, 5)},
				{SubjectID: "a", Timestamp: at(9, 30, 0)},
				{SubjectID: "b|c", Timestamp: at(9, 30, 5)},
			})
			So(err, ShouldBeNil)
			report, err := svc.ScorePairs(ctx, "", []service.Pair{
				{A: "a|b", B: "c"},
				{A: "a", B: "b|c"},
			})

			Convey("Then each pair is scored on its own", func() {
				So(err, ShouldBeNil)
				So(report.Scored, ShouldEqual, 2)
				So(report.Total(), ShouldEqual, 2)
			})
		})

		Convey("When an unknown engine kind is named", func() {
			_, err := svc.ScoreAll(ctx, "astral")
			So(errors.Is(err, service.ErrUnknownEngine), ShouldBeTrue)
			_, err = svc.TopN(ctx, "astral", 5)
			So(errors.Is(err, service.ErrUnknownEngine), ShouldBeTrue)
		})

		Convey("When the leaderboard limit is invalid", func() {
			_, err := svc.TopN(ctx, "", 0)
			So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
		})
	})
}

func TestService_EngineKinds(t *testing.T) {
	Convey("Given a service with two engine kinds", t, func() {
		svc, ctx, stop := startService(service.WithEngineKinds("resonance", "shadow"))
		defer stop()
		seedSubjects(ctx, svc)

		Convey("When only the second kind is scored and rebuilt", func() {
			_, err := svc.ScoreAll(ctx, "shadow")
			So(err, ShouldBeNil)
			_, err = svc.Rebuild(ctx, "shadow")
			So(err, ShouldBeNil)

			Convey("Then the kinds do not share a leaderboard", func() {
				shadow, err := svc.TopN(ctx, "shadow", 10)
				So(err, ShouldBeNil)
				So(shadow, ShouldHaveLength, 4)
				resonance, err := svc.TopN(ctx, "", 10)
				So(err, ShouldBeNil)
				So(resonance, ShouldBeEmpty)
			})
		})
	})
}

func TestService_StoreFailures(t *testing.T) {
	Convey("Given a store whose circuit is open", t, func() {
		store := &brokenStore{err: repository.ErrCircuitOpen}
		svc, ctx, stop := startService(service.WithStore(store), service.WithWorkerCount(1))
		defer stop()
		seedSubjects(ctx, svc)

		Convey("When every pair is scored", func() {
			report, err := svc.ScoreAll(ctx, "")

			Convey("Then the batch aborts and accounts for every pair", func() {
				So(errors.Is(err, repository.ErrCircuitOpen), ShouldBeTrue)
				So(report.Aborted, ShouldBeGreaterThan, 0)
				So(report.Scored, ShouldEqual, 0)
				So(report.Total(), ShouldEqual, 6)
			})
		})

		Convey("When the leaderboard is rebuilt", func() {
			_, err := svc.Rebuild(ctx, "")

			Convey("Then the rebuild stops at the first subject", func() {
				So(errors.Is(err, repository.ErrCircuitOpen), ShouldBeTrue)
				So(store.calls.Load(), ShouldEqual, 1)
			})
		})
	})

	Convey("Given a store failing individual calls", t, func() {
		store := &brokenStore{err: repository.ErrStoreUnavailable}
		svc, ctx, stop := startService(service.WithStore(store))
		defer stop()
		seedSubjects(ctx, svc)

		Convey("When every pair is scored", func() {
			report, err := svc.ScoreAll(ctx, "")

			Convey("Then each pair is deferred and the batch completes", func() {
				So(err, ShouldBeNil)
				So(report.Deferred, ShouldEqual, 6)
			})
		})

		Convey("When the leaderboard is rebuilt", func() {
			rb, err := svc.Rebuild(ctx, "")

			Convey("Then each subject is deferred", func() {
				So(err, ShouldBeNil)
				So(rb.Deferred, ShouldEqual, 4)
				So(rb.Rebuilt, ShouldEqual, 0)
			})
		})

		Convey("When affinity is read", func() {
			_, err := svc.Affinity(ctx, "", "alice")
			So(errors.Is(err, repository.ErrStoreUnavailable), ShouldBeTrue)
		})
	})
}

func TestService_RebuildCancelledMidRun(t *testing.T) {
	Convey("Given scored subjects and a store that cancels the rebuild after two subjects", t, func() {
		rctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		store := &cancellingStore{ScoreStore: repository.NewMemoryStore(), after: 2, cancel: cancel}
		svc, ctx, stop := startService(service.WithStore(store))
		defer stop()
		seedSubjects(ctx, svc)
		_, err := svc.ScoreAll(ctx, "")
		So(err, ShouldBeNil)

		Convey("When the leaderboard is rebuilt", func() {
			rb, err := svc.Rebuild(rctx, "")

			Convey("Then it stops between subjects and keeps what it finished", func() {
				So(errors.Is(err, service.ErrRebuildCancelled), ShouldBeTrue)
				So(rb.Cancelled, ShouldBeTrue)
				So(rb.Rebuilt, ShouldEqual, 2)
				So(store.fetches.Load(), ShouldEqual, 2)

				for _, id := range []string{"alice", "bob"} {
					agg, err := svc.Rank(ctx, "", id)
					So(err, ShouldBeNil)
					So(agg.Rank, ShouldEqual, 1)
					So(agg.FinalAffinity, ShouldAlmostEqual, 0.85, 1e-9)
				}
				_, err = svc.Rank(ctx, "", "carol")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestService_DepthScale(t *testing.T) {
	Convey("Given a depth table whose full-depth score is not 100", t, func() {
		for _, tc := range []struct {
			name   string
			scores []float64
		}{
			{"above", []float64{0, 0, 0, 20, 60, 90, 120, 160, 200}},
			{"below", []float64{0, 0, 0, 5, 10, 20, 30, 40, 50}},
		} {
			Convey("When the table tops out "+tc.name+" 100", func() {
				svc, ctx, stop := startService(service.WithDepthScores(tc.scores))
				defer stop()
				seedSubjects(ctx, svc)
				// one minute-depth match with alice and bob
				_, err := svc.Intake(ctx, "erin", at(14, 7, 50))
				So(err, ShouldBeNil)
				_, err = svc.ScoreAll(ctx, "")
				So(err, ShouldBeNil)

				Convey("Then affinity is normalised by that score and deeper matches rank higher", func() {
					full, err := svc.Affinity(ctx, "", "alice")
					So(err, ShouldBeNil)
					So(full.PeakScore, ShouldEqual, tc.scores[8])
					So(full.RawAffinity, ShouldAlmostEqual, 1.0, 1e-9)

					minute, err := svc.Affinity(ctx, "", "erin")
					So(err, ShouldBeNil)
					So(minute.PeakScore, ShouldEqual, tc.scores[7])
					So(minute.RawAffinity, ShouldAlmostEqual, 0.8, 1e-9)
					So(minute.FinalAffinity, ShouldBeLessThan, full.FinalAffinity)
				})
			})
		}
	})
}
