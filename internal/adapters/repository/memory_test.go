package repository_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/kairos/internal/adapters/repository"
	"github.com/okian/kairos/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMemoryStore(t *testing.T) {
	Convey("MemoryStore", t, func() {
		scoreStoreContract(func() repository.ScoreStore { return repository.NewMemoryStore() })
	})

	Convey("Given concurrent writers on one store", t, func() {
		s := repository.NewMemoryStore()
		var wg sync.WaitGroup
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					_, _ = s.UpsertScore(context.Background(), pair("hub", fmt.Sprintf("s%02d", i), 30, 4))
				}
			}()
		}
		wg.Wait()

		Convey("Then each pair is stored once", func() {
			So(s.Len(), ShouldEqual, 50)
			rows, err := s.FetchScoresFor(context.Background(), "hub", model.DefaultEngine)
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 50)
		})
	})

	Convey("Given a cancelled context", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := repository.NewMemoryStore().UpsertScore(ctx, pair("a", "b", 1, 1))
		So(err, ShouldEqual, context.Canceled)
	})
}
