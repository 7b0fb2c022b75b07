package pending_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/minerwatch/internal/domain/model"
	"github.com/okian/minerwatch/internal/domain/pending"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func ev(seq uint64) model.Event {
	return model.Event{Seq: seq, Signature: "s", Kind: model.KindRunning}
}

func seqs(events []model.Event) []uint64 {
	out := make([]uint64, 0, len(events))
	for _, e := range events {
		out = append(out, e.Seq)
	}
	return out
}

func TestPendingBuffer(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new pending buffer", t, func() {
		b := pending.NewInMemoryBuffer()

		Convey("Then it starts empty", func() {
			So(b.Len(), ShouldEqual, 0)
			So(b.Signatures(), ShouldEqual, 0)
		})

		Convey("When events are added under two signatures", func() {
			b.Add(ctx, "s1", ev(1))
			b.Add(ctx, "s2", ev(2))
			b.Add(ctx, "s1", ev(3))

			Convey("Then they are counted", func() {
				So(b.Len(), ShouldEqual, 3)
				So(b.Signatures(), ShouldEqual, 2)
			})

			Convey("And taking one signature", func() {
				got, expired := b.Take(ctx, "s1")

				Convey("Then its events come back in arrival order", func() {
					So(seqs(got), ShouldResemble, []uint64{1, 3})
					So(expired, ShouldEqual, 0)
					So(b.Len(), ShouldEqual, 1)
					So(b.Signatures(), ShouldEqual, 1)
				})

				Convey("Then a second take returns nothing", func() {
					again, _ := b.Take(ctx, "s1")
					So(again, ShouldBeEmpty)
				})
			})

			Convey("And clearing", func() {
				b.Clear()

				Convey("Then everything is gone", func() {
					So(b.Len(), ShouldEqual, 0)
					So(b.Signatures(), ShouldEqual, 0)
					got, _ := b.Take(ctx, "s2")
					So(got, ShouldBeEmpty)
				})
			})
		})

		Convey("When taking an unknown signature", func() {
			got, expired := b.Take(ctx, "nope")

			Convey("Then nothing is returned", func() {
				So(got, ShouldBeNil)
				So(expired, ShouldEqual, 0)
			})
		})
	})
}

func TestPendingBounds(t *testing.T) {
	ctx := context.Background()

	Convey("Given a buffer bounded by signature count", t, func() {
		b := pending.NewInMemoryBuffer(pending.WithMaxSignatures(2))
		b.Add(ctx, "s1", ev(1))
		b.Add(ctx, "s1", ev(2))
		b.Add(ctx, "s2", ev(3))

		Convey("When a third signature arrives", func() {
			dropped := b.Add(ctx, "s3", ev(4))

			Convey("Then the oldest signature is evicted with its events", func() {
				So(dropped, ShouldEqual, 2)
				So(b.Signatures(), ShouldEqual, 2)
				So(b.Len(), ShouldEqual, 2)
				got, _ := b.Take(ctx, "s1")
				So(got, ShouldBeEmpty)
				got, _ = b.Take(ctx, "s2")
				So(seqs(got), ShouldResemble, []uint64{3})
			})
		})

		Convey("When an existing signature grows", func() {
			dropped := b.Add(ctx, "s2", ev(5))

			Convey("Then nothing is evicted", func() {
				So(dropped, ShouldEqual, 0)
				So(b.Len(), ShouldEqual, 4)
			})
		})
	})

	Convey("Given a buffer bounded per signature", t, func() {
		b := pending.NewInMemoryBuffer(pending.WithMaxPerSignature(2))

		Convey("When more events than the bound arrive", func() {
			total := 0
			for i := uint64(1); i <= 4; i++ {
				total += b.Add(ctx, "s", ev(i))
			}

			Convey("Then the oldest are dropped", func() {
				So(total, ShouldEqual, 2)
				So(b.Len(), ShouldEqual, 2)
				got, _ := b.Take(ctx, "s")
				So(seqs(got), ShouldResemble, []uint64{3, 4})
			})
		})
	})

	Convey("Given an unbounded buffer", t, func() {
		b := pending.NewInMemoryBuffer(pending.WithMaxSignatures(0), pending.WithMaxPerSignature(-1))

		Convey("When many signatures are added", func() {
			for i := 0; i < 500; i++ {
				b.Add(ctx, fmt.Sprintf("s%d", i), ev(uint64(i)))
			}

			Convey("Then all are held", func() {
				So(b.Signatures(), ShouldEqual, 500)
				So(b.Len(), ShouldEqual, 500)
			})
		})
	})
}

func TestPendingExpiry(t *testing.T) {
	ctx := context.Background()

	Convey("Given a buffer with a TTL and a fake clock", t, func() {
		clock := &fakeClock{now: time.Unix(1000, 0)}
		b := pending.NewInMemoryBuffer(pending.WithTTL(time.Minute), pending.WithClock(clock.Now))

		b.Add(ctx, "old", ev(1))
		b.Add(ctx, "mixed", ev(2))
		clock.Advance(45 * time.Second)
		b.Add(ctx, "mixed", ev(3))
		clock.Advance(30 * time.Second)

		Convey("When sweeping", func() {
			removed := b.Sweep(ctx)

			Convey("Then only expired events are removed", func() {
				So(removed, ShouldEqual, 2)
				So(b.Len(), ShouldEqual, 1)
				So(b.Signatures(), ShouldEqual, 1)
				got, _ := b.Take(ctx, "mixed")
				So(seqs(got), ShouldResemble, []uint64{3})
			})
		})

		Convey("When taking without a sweep", func() {
			got, expired := b.Take(ctx, "mixed")

			Convey("Then expired events are skipped", func() {
				So(seqs(got), ShouldResemble, []uint64{3})
				So(expired, ShouldEqual, 1)
			})
		})

		Convey("When expiry is disabled", func() {
			nb := pending.NewInMemoryBuffer(pending.WithTTL(0), pending.WithClock(clock.Now))
			nb.Add(ctx, "s", ev(1))
			clock.Advance(24 * time.Hour)

			Convey("Then nothing expires", func() {
				So(nb.Sweep(ctx), ShouldEqual, 0)
				got, expired := nb.Take(ctx, "s")
				So(len(got), ShouldEqual, 1)
				So(expired, ShouldEqual, 0)
			})
		})
	})
}

func TestPendingConcurrency(t *testing.T) {
	ctx := context.Background()

	Convey("Given a buffer with concurrent writers", t, func() {
		b := pending.NewInMemoryBuffer(pending.WithMaxPerSignature(0))

		Convey("When goroutines add to their own signatures", func() {
			var wg sync.WaitGroup
			for g := 0; g < 8; g++ {
				wg.Add(1)
				go func(g int) {
					defer wg.Done()
					for i := 0; i < 100; i++ {
						b.Add(ctx, fmt.Sprintf("sig-%d", g), ev(uint64(i)))
					}
				}(g)
			}
			wg.Wait()

			Convey("Then every event is held and order is kept per signature", func() {
				So(b.Len(), ShouldEqual, 800)
				got, _ := b.Take(ctx, "sig-3")
				So(len(got), ShouldEqual, 100)
				for i, e := range got {
					So(e.Seq, ShouldEqual, uint64(i))
				}
			})
		})
	})
}
