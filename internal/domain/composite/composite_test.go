package composite_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/okian/kairos/internal/domain/composite"
	. "github.com/smartystreets/goconvey/convey"
)

func subscores(t, p, s float64) map[string]float64 {
	return map[string]float64{
		composite.FamilyTemporal:       t,
		composite.FamilyTraitPrimary:   p,
		composite.FamilyTraitSecondary: s,
	}
}

func TestWeightVectorValidate(t *testing.T) {
	Convey("Given weight vectors", t, func() {
		So(composite.DefaultWeights().Validate(composite.DefaultTolerance), ShouldBeNil)

		Convey("When weights do not sum to 1", func() {
			w := composite.NewWeightVector("v", map[string]float64{"a": 0.5, "b": 0.4})
			err := w.Validate(composite.DefaultTolerance)

			Convey("Then the sum invariant is named", func() {
				So(errors.Is(err, composite.ErrMalformedWeightVector), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "sum")
			})
		})

		Convey("When a weight is out of range", func() {
			w := composite.NewWeightVector("v", map[string]float64{"a": 1.5, "b": -0.5})
			err := w.Validate(composite.DefaultTolerance)

			Convey("Then the range invariant is named", func() {
				So(errors.Is(err, composite.ErrMalformedWeightVector), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "outside [0,1]")
			})
		})

		Convey("When the sum is within tolerance", func() {
			w := composite.NewWeightVector("v", map[string]float64{"a": 0.1, "b": 0.2, "c": 0.7000000001})
			So(w.Validate(1e-6), ShouldBeNil)
			So(w.Validate(0), ShouldNotBeNil)
		})

		Convey("When the vector is empty", func() {
			err := composite.NewWeightVector("v", nil).Validate(composite.DefaultTolerance)
			So(errors.Is(err, composite.ErrMalformedWeightVector), ShouldBeTrue)
		})

		Convey("When the source map changes after construction", func() {
			src := map[string]float64{"a": 1}
			w := composite.NewWeightVector("v", src)
			src["a"] = 0
			So(w.Weights["a"], ShouldEqual, 1)
		})
	})
}

func TestBands(t *testing.T) {
	Convey("Given the default bands", t, func() {
		b := composite.DefaultBands()

		Convey("Then values map to tiers", func() {
			So(b.Classify(1), ShouldEqual, "exceptional")
			So(b.Classify(0.85), ShouldEqual, "exceptional")
			So(b.Classify(0.849), ShouldEqual, "strong")
			So(b.Classify(0.5), ShouldEqual, "moderate")
			So(b.Classify(0.3), ShouldEqual, "weak")
			So(b.Classify(0), ShouldEqual, "minimal")
		})
	})

	Convey("Given invalid band sets", t, func() {
		cases := [][]composite.Band{
			nil,
			{{Min: 0.5, Label: "high"}},
			{{Min: 0, Label: "low"}, {Min: 0, Label: "also"}},
			{{Min: 0, Label: "low"}, {Min: 1.2, Label: "high"}},
			{{Min: 0, Label: ""}},
		}
		for _, c := range cases {
			_, err := composite.NewBands(c)
			So(errors.Is(err, composite.ErrInvalidBands), ShouldBeTrue)
		}
	})
}

func TestEngineCompute(t *testing.T) {
	Convey("Given an engine with default settings", t, func() {
		e := composite.NewEngine()
		w := composite.DefaultWeights()

		Convey("When all subscores are present", func() {
			res, err := e.Compute(w, subscores(0.85, 0.5, 1))

			Convey("Then the composite is the weighted sum", func() {
				So(err, ShouldBeNil)
				So(res.Composite, ShouldAlmostEqual, 0.5*0.85+0.3*0.5+0.2*1, 1e-12)
				So(res.Tier, ShouldEqual, "strong")
				So(res.Version, ShouldEqual, "default")
				So(len(res.Families), ShouldEqual, 3)
				So(res.Families[0].Family, ShouldEqual, composite.FamilyTemporal)
				So(res.Families[0].Tier, ShouldEqual, "exceptional")
			})
		})

		Convey("When every subscore is at an extreme", func() {
			hi, _ := e.Compute(w, subscores(1, 1, 1))
			lo, _ := e.Compute(w, subscores(0, 0, 0))
			So(hi.Composite, ShouldBeLessThanOrEqualTo, 1)
			So(lo.Composite, ShouldEqual, 0)
		})

		Convey("When a subscore is missing", func() {
			_, err := e.Compute(w, map[string]float64{composite.FamilyTemporal: 1})
			So(errors.Is(err, composite.ErrMissingSubscore), ShouldBeTrue)
		})

		Convey("When a subscore is out of range", func() {
			_, err := e.Compute(w, subscores(1.2, 0, 0))
			So(errors.Is(err, composite.ErrSubscoreOutOfRange), ShouldBeTrue)
		})

		Convey("When the weight vector is malformed", func() {
			bad := composite.NewWeightVector("bad", map[string]float64{composite.FamilyTemporal: 0.9})
			_, err := e.Compute(bad, subscores(1, 1, 1))
			So(errors.Is(err, composite.ErrMalformedWeightVector), ShouldBeTrue)
		})
	})

	Convey("Given an engine with custom bands", t, func() {
		b, err := composite.NewBands([]composite.Band{{Min: 0.5, Label: "hi"}, {Min: 0, Label: "lo"}})
		So(err, ShouldBeNil)
		e := composite.NewEngine(composite.WithBands(b), composite.WithTolerance(0.01))

		res, err := e.Compute(composite.NewWeightVector("v", map[string]float64{"x": 0.6, "y": 0.395}),
			map[string]float64{"x": 1, "y": 1})
		So(err, ShouldBeNil)
		So(res.Tier, ShouldEqual, "hi")
		So(e.Tolerance(), ShouldEqual, 0.01)
	})
}

func TestRegistry(t *testing.T) {
	Convey("Given a registry seeded with the defaults", t, func() {
		r, err := composite.NewRegistry(composite.DefaultWeights(), composite.DefaultTolerance)
		So(err, ShouldBeNil)
		So(r.Active().Version, ShouldEqual, "default")

		tuned := composite.NewWeightVector("", map[string]float64{
			composite.FamilyTemporal:       0.6,
			composite.FamilyTraitPrimary:   0.2,
			composite.FamilyTraitSecondary: 0.2,
		})

		Convey("When a valid vector is promoted", func() {
			held := r.Active()
			got, err := r.Promote(tuned, "v2")

			Convey("Then it becomes active without touching held copies", func() {
				So(err, ShouldBeNil)
				So(got.Version, ShouldEqual, "v2")
				So(r.Active().Weights[composite.FamilyTemporal], ShouldEqual, 0.6)
				So(held.Weights[composite.FamilyTemporal], ShouldEqual, 0.5)
				So(r.Versions(), ShouldResemble, []string{"default", "v2"})
			})

			Convey("Then the version cannot be reused", func() {
				_, err := r.Promote(tuned, "v2")
				So(errors.Is(err, composite.ErrVersionExists), ShouldBeTrue)
			})

			Convey("Then rollback restores the earlier vector", func() {
				v, err := r.Rollback("default")
				So(err, ShouldBeNil)
				So(v.Version, ShouldEqual, "default")
				So(r.Active().Weights[composite.FamilyTemporal], ShouldEqual, 0.5)
				So(r.Versions(), ShouldResemble, []string{"default", "v2"})
			})
		})

		Convey("When a malformed vector is promoted", func() {
			bad := composite.NewWeightVector("", map[string]float64{composite.FamilyTemporal: 0.7})
			_, err := r.Promote(bad, "v3")

			Convey("Then it is rejected and the live vector is unchanged", func() {
				So(errors.Is(err, composite.ErrMalformedWeightVector), ShouldBeTrue)
				So(r.Active().Version, ShouldEqual, "default")
				_, err := r.Get("v3")
				So(errors.Is(err, composite.ErrVersionNotFound), ShouldBeTrue)
			})
		})

		Convey("When the version tag is empty", func() {
			_, err := r.Promote(tuned, "")
			So(errors.Is(err, composite.ErrEmptyVersion), ShouldBeTrue)
		})

		Convey("When mutating a vector returned by Active", func() {
			a := r.Active()
			a.Weights[composite.FamilyTemporal] = 0
			So(r.Active().Weights[composite.FamilyTemporal], ShouldEqual, 0.5)
		})

		Convey("When readers race with promotions", func() {
			var wg sync.WaitGroup
			var invalid atomic.Int64
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < 200; j++ {
						if r.Active().Validate(composite.DefaultTolerance) != nil {
							invalid.Add(1)
						}
					}
				}()
			}
			for _, v := range []string{"a", "b", "c"} {
				_, err := r.Promote(tuned, v)
				So(err, ShouldBeNil)
			}
			wg.Wait()
			So(invalid.Load(), ShouldEqual, 0)
			So(r.Active().Version, ShouldEqual, "c")
		})
	})

	Convey("Given an invalid initial vector", t, func() {
		_, err := composite.NewRegistry(composite.NewWeightVector("x", map[string]float64{"a": 2}), composite.DefaultTolerance)
		So(errors.Is(err, composite.ErrMalformedWeightVector), ShouldBeTrue)
	})
}
