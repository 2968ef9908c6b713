package queueing

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Workers", func() {
	var buf *PairBuffer[Item]

	BeforeEach(func() {
		buf = NewPairBuffer[Item]("Buffer", 8)
	})

	It("should name workers by index", func() {
		Expect((&Producer{ID: 2}).Name()).To(Equal("Producer[2]"))
		Expect((&Consumer{ID: 0}).Name()).To(Equal("Consumer[0]"))
	})

	It("should stop producing at the limit", func() {
		p := &Producer{ID: 1, Buffer: buf, Limit: 3}

		Expect(p.Run(context.Background())).To(Succeed())
		Expect(buf.Size()).To(Equal(6))
	})

	It("should hand consumed pairs to the sink in order", func() {
		p := &Producer{ID: 1, Buffer: buf, Limit: 2}
		Expect(p.Run(context.Background())).To(Succeed())

		var got []string
		c := &Consumer{
			ID:     0,
			Buffer: buf,
			Limit:  2,
			Sink: func(pair Pair[Item]) {
				got = append(got, pair.First.String(), pair.Second.String())
			},
		}

		Expect(c.Run(context.Background())).To(Succeed())
		Expect(got).To(Equal([]string{"P1-1A", "P1-1B", "P1-2A", "P1-2B"}))
		Expect(buf.Size()).To(BeZero())
	})

	It("should return the context error when stopped", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		c := &Consumer{ID: 0, Buffer: buf}

		Expect(c.Run(ctx)).To(MatchError(context.DeadlineExceeded))
	})
})

var _ = Describe("RandomPacer", func() {
	It("should rest at least Min", func() {
		p := RandomPacer{Min: 10 * time.Millisecond, Max: 20 * time.Millisecond}

		start := time.Now()
		Expect(p.Pause(context.Background())).To(Succeed())
		Expect(time.Since(start)).To(BeNumerically(">=", 10*time.Millisecond))
	})

	It("should wake up when the context ends", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		p := RandomPacer{Min: time.Hour, Max: 2 * time.Hour}

		Expect(p.Pause(ctx)).To(MatchError(context.Canceled))
	})

	It("should not rest when the range is empty", func() {
		Expect(RandomPacer{}.Pause(context.Background())).To(Succeed())
		Expect(NoPacer{}.Pause(context.Background())).To(Succeed())
	})
})
