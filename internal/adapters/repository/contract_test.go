package repository_test

import (
	"context"
	"errors"
	"time"

	"github.com/okian/kairos/internal/adapters/repository"
	"github.com/okian/kairos/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var scoredAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func pair(a, b string, score float64, depth int) model.PairScore {
	return model.PairScore{
		Key:          model.PairKey{A: a, B: b, Engine: model.DefaultEngine},
		Score:        score,
		MatchedDepth: depth,
		ScoredAt:     scoredAt,
	}
}

// scoreStoreContract runs the behaviour every ScoreStore must share.
// newStore must return an empty store.
func scoreStoreContract(newStore func() repository.ScoreStore) {
	ctx := context.Background()

	Convey("Given an empty score store", func() {
		s := newStore()

		Convey("When a pair is upserted in reverse order", func() {
			changed, err := s.UpsertScore(ctx, pair("bob", "alice", 30, 4))

			Convey("Then it is stored under the canonical key for both subjects", func() {
				So(err, ShouldBeNil)
				So(changed, ShouldBeTrue)

				for _, id := range []string{"alice", "bob"} {
					rows, err := s.FetchScoresFor(ctx, id, model.DefaultEngine)
					So(err, ShouldBeNil)
					So(len(rows), ShouldEqual, 1)
					So(rows[0].Key.A, ShouldEqual, "alice")
					So(rows[0].Key.B, ShouldEqual, "bob")
					So(rows[0].Score, ShouldEqual, 30)
					So(rows[0].MatchedDepth, ShouldEqual, 4)
					So(rows[0].ScoredAt.Equal(scoredAt), ShouldBeTrue)
				}
			})

			Convey("Then re-upserting the same result writes nothing", func() {
				again := pair("alice", "bob", 30, 4)
				again.ScoredAt = scoredAt.Add(time.Hour)
				changed, err := s.UpsertScore(ctx, again)
				So(err, ShouldBeNil)
				So(changed, ShouldBeFalse)

				rows, _ := s.FetchScoresFor(ctx, "alice", model.DefaultEngine)
				So(len(rows), ShouldEqual, 1)
				So(rows[0].ScoredAt.Equal(scoredAt), ShouldBeTrue)
			})

			Convey("Then a changed result replaces the row", func() {
				changed, err := s.UpsertScore(ctx, pair("alice", "bob", 80, 7))
				So(err, ShouldBeNil)
				So(changed, ShouldBeTrue)

				rows, _ := s.FetchScoresFor(ctx, "bob", model.DefaultEngine)
				So(len(rows), ShouldEqual, 1)
				So(rows[0].Score, ShouldEqual, 80)
			})
		})

		Convey("When several engines hold rows", func() {
			_, _ = s.UpsertScore(ctx, pair("a", "b", 100, 8))
			_, _ = s.UpsertScore(ctx, pair("a", "c", 30, 4))
			_, _ = s.UpsertScore(ctx, pair("b", "c", 0, 0))
			other := pair("a", "b", 45, 5)
			other.Key.Engine = "trait"
			_, _ = s.UpsertScore(ctx, other)

			Convey("Then fetches are scoped to the subject and engine", func() {
				rows, err := s.FetchScoresFor(ctx, "a", model.DefaultEngine)
				So(err, ShouldBeNil)
				So(len(rows), ShouldEqual, 2)
				So(rows[0].Key.B, ShouldEqual, "b")
				So(rows[1].Key.B, ShouldEqual, "c")

				rows, _ = s.FetchScoresFor(ctx, "a", "trait")
				So(len(rows), ShouldEqual, 1)
				So(rows[0].Score, ShouldEqual, 45)
			})

			Convey("Then deleting an engine leaves the others intact", func() {
				n, err := s.DeleteEngine(ctx, model.DefaultEngine)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 3)

				rows, _ := s.FetchScoresFor(ctx, "a", model.DefaultEngine)
				So(len(rows), ShouldEqual, 0)
				rows, _ = s.FetchScoresFor(ctx, "a", "trait")
				So(len(rows), ShouldEqual, 1)
			})
		})

		Convey("When subject ids contain the key separator", func() {
			_, err := s.UpsertScore(ctx, pair("a|b", "c", 100, 8))
			So(err, ShouldBeNil)
			_, err = s.UpsertScore(ctx, pair("a", "b|c", 30, 4))
			So(err, ShouldBeNil)

			Convey("Then both pairs keep their own row", func() {
				rows, err := s.FetchScoresFor(ctx, "c", model.DefaultEngine)
				So(err, ShouldBeNil)
				So(len(rows), ShouldEqual, 1)
				So(rows[0].Key.A, ShouldEqual, "a|b")
				So(rows[0].Key.B, ShouldEqual, "c")
				So(rows[0].Score, ShouldEqual, 100)

				rows, err = s.FetchScoresFor(ctx, "b|c", model.DefaultEngine)
				So(err, ShouldBeNil)
				So(len(rows), ShouldEqual, 1)
				So(rows[0].Key.A, ShouldEqual, "a")
				So(rows[0].Score, ShouldEqual, 30)
			})
		})

		Convey("When ids differ only in case", func() {
			changed, err := s.UpsertScore(ctx, model.PairScore{
				Key:          model.NewPairKey("a", "B", model.DefaultEngine),
				Score:        45,
				MatchedDepth: 5,
				ScoredAt:     scoredAt,
			})

			Convey("Then the byte-ordered key is accepted", func() {
				So(err, ShouldBeNil)
				So(changed, ShouldBeTrue)

				rows, err := s.FetchScoresFor(ctx, "a", model.DefaultEngine)
				So(err, ShouldBeNil)
				So(len(rows), ShouldEqual, 1)
				So(rows[0].Key.A, ShouldEqual, "B")
				So(rows[0].Key.B, ShouldEqual, "a")
			})
		})

		Convey("When an unknown subject is fetched", func() {
			rows, err := s.FetchScoresFor(ctx, "nobody", model.DefaultEngine)
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 0)
		})

		Convey("When a pair names one subject twice", func() {
			_, err := s.UpsertScore(ctx, pair("a", "a", 100, 8))
			So(errors.Is(err, repository.ErrInvalidPair), ShouldBeTrue)
		})
	})
}
