package model_test

import (
	"testing"
	"time"

	"github.com/okian/kairos/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestPairKey(t *testing.T) {
	Convey("Given two subject ids", t, func() {
		Convey("When building keys in either order", func() {
			ab := model.NewPairKey("alice", "bob", model.DefaultEngine)
			ba := model.NewPairKey("bob", "alice", model.DefaultEngine)

			Convey("Then both map to the same canonical key", func() {
				So(ab, ShouldResemble, ba)
				So(ab.A, ShouldEqual, "alice")
				So(ab.B, ShouldEqual, "bob")
				So(ab.Valid(), ShouldBeTrue)
				So(ab.String(), ShouldEqual, "resonance:alice|bob")
			})

			Convey("And the counterpart lookup works from both sides", func() {
				So(ab.Other("alice"), ShouldEqual, "bob")
				So(ab.Other("bob"), ShouldEqual, "alice")
				So(ab.Involves("carol"), ShouldBeFalse)
			})
		})

		Convey("When the pair is degenerate", func() {
			So(model.NewPairKey("a", "a", model.DefaultEngine).Valid(), ShouldBeFalse)
			So(model.NewPairKey("", "a", model.DefaultEngine).Valid(), ShouldBeFalse)
			So(model.NewPairKey("a", "b", "").Valid(), ShouldBeFalse)
		})
	})
}

func TestPairScoreSameResult(t *testing.T) {
	Convey("Given two scores for the same pair", t, func() {
		key := model.NewPairKey("a", "b", model.DefaultEngine)
		first := model.PairScore{Key: key, Score: 30, MatchedDepth: 4, ScoredAt: time.Unix(1, 0)}
		second := model.PairScore{Key: key, Score: 30, MatchedDepth: 4, ScoredAt: time.Unix(2, 0)}

		Convey("Then differing timestamps do not count as a change", func() {
			So(first.SameResult(second), ShouldBeTrue)
		})

		Convey("Then a different depth does", func() {
			second.MatchedDepth = 5
			So(first.SameResult(second), ShouldBeFalse)
		})
	})
}

func TestTimeRecord(t *testing.T) {
	Convey("Given a time record", t, func() {
		rec := model.TimeRecord{SubjectID: "s1", Layers: []int{2000, 1, 2}, Precise: true}

		Convey("Then completeness depends on depth and subject", func() {
			So(rec.Complete(3), ShouldBeTrue)
			So(rec.Complete(4), ShouldBeFalse)
			So(model.TimeRecord{Layers: []int{1, 2, 3}}.Complete(3), ShouldBeFalse)
		})

		Convey("Then clones do not share layers", func() {
			c := rec.Clone()
			c.Layers[0] = 1999
			So(rec.Layers[0], ShouldEqual, 2000)
		})
	})
}

func TestStageString(t *testing.T) {
	Convey("Stages render their names", t, func() {
		So(model.StageRawScoresPresent.String(), ShouldEqual, "raw_scores_present")
		So(model.StageAdjusted.String(), ShouldEqual, "capped_decayed")
		So(model.StageFinalized.String(), ShouldEqual, "finalized")
		So(model.Stage(99).String(), ShouldEqual, "unknown")
	})
}
