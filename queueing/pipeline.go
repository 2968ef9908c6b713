package queueing

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ErrMayStall is returned when a pipeline configuration can reach a state in
// which every worker waits on a half-acquired pair.
var ErrMayStall = errors.New("pipeline may stall")

// CanStall reports whether producers and consumers can all end up parked.
//
// Each worker may hold one of the two permits it needs for a pair. With L
// elements in the buffer, every producer is parked once the partial holders
// cover the C-L free slots, and every consumer is parked once they cover the L
// filled slots. Such a state exists iff some even L satisfies
// C-producers <= L <= consumers.
func CanStall(capacity, producers, consumers int) bool {
	lo := max(0, capacity-producers)
	hi := min(capacity, consumers)

	if lo%2 != 0 {
		lo++
	}

	return lo <= hi
}

// A Pipeline launches producers and consumers against one buffer.
type Pipeline struct {
	Buffer    *PairBuffer[Item]
	Producers int
	Consumers int

	// PairsPerProducer bounds the run. With a bound, Run returns once every
	// produced pair was consumed. Zero runs until ctx is done.
	PairsPerProducer int

	ProducerPacer Pacer
	ConsumerPacer Pacer

	// Sink receives consumed pairs. It is called concurrently by consumers.
	Sink func(Pair[Item])
}

// Validate checks the pipeline configuration.
func (p Pipeline) Validate() error {
	if p.Buffer == nil {
		return errors.New("pipeline has no buffer")
	}

	if p.Producers < 1 || p.Consumers < 1 {
		return fmt.Errorf("pipeline needs at least one producer and one consumer, got %d and %d",
			p.Producers, p.Consumers)
	}

	if p.PairsPerProducer < 0 {
		return fmt.Errorf("pairs per producer must not be negative, got %d",
			p.PairsPerProducer)
	}

	if CanStall(p.Buffer.Capacity(), p.Producers, p.Consumers) {
		return fmt.Errorf("%w: capacity %d with %d producers and %d consumers",
			ErrMayStall, p.Buffer.Capacity(), p.Producers, p.Consumers)
	}

	return nil
}

// Run starts all workers and waits for them. Cancellation of ctx is a normal
// way to stop and is not reported as an error.
func (p Pipeline) Run(ctx context.Context) error {
	if err := p.Validate(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	consumerCtx, stopConsumers := context.WithCancel(gctx)
	defer stopConsumers()

	sink := p.countingSink(stopConsumers)

	for i := range p.Producers {
		producer := &Producer{
			ID:     i,
			Buffer: p.Buffer,
			Limit:  p.PairsPerProducer,
			Pacer:  p.ProducerPacer,
		}

		g.Go(func() error {
			return ignoreStop(producer.Run(gctx))
		})
	}

	for i := range p.Consumers {
		consumer := &Consumer{
			ID:     i,
			Buffer: p.Buffer,
			Pacer:  p.ConsumerPacer,
			Sink:   sink,
		}

		g.Go(func() error {
			return ignoreStop(consumer.Run(consumerCtx))
		})
	}

	return g.Wait()
}

func (p Pipeline) countingSink(done func()) func(Pair[Item]) {
	if p.PairsPerProducer == 0 {
		return p.Sink
	}

	total := int64(p.Producers * p.PairsPerProducer)

	var consumed atomic.Int64

	return func(pair Pair[Item]) {
		if p.Sink != nil {
			p.Sink(pair)
		}

		if consumed.Add(1) == total {
			done()
		}
	}
}

func ignoreStop(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}

	return err
}
