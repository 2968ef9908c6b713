package queueing

import (
	"context"

	"github.com/sarchlab/lockstep/naming"
)

// A Producer keeps appending pairs to a buffer.
type Producer struct {
	ID     int
	Buffer *PairBuffer[Item]

	// Limit is the number of pairs to produce; zero means until ctx is done.
	Limit int

	// Pacer rests between pairs; nil means no rest.
	Pacer Pacer
}

// Name returns the actor name used when reporting, for example "Producer[1]".
func (p *Producer) Name() string {
	return naming.BuildNameWithIndex("", "Producer", p.ID)
}

// Run produces pairs until the limit is reached or ctx is done. Reaching the
// limit returns nil; cancellation returns ctx.Err().
func (p *Producer) Run(ctx context.Context) error {
	pacer := pacerOrDefault(p.Pacer)

	for seq := 1; p.Limit == 0 || seq <= p.Limit; seq++ {
		if seq > 1 {
			if err := pacer.Pause(ctx); err != nil {
				return err
			}
		}

		err := p.Buffer.Produce(ctx, p.Name(), MakeItemPair(p.ID, seq))
		if err != nil {
			return err
		}
	}

	return nil
}

// A Consumer keeps removing pairs from a buffer.
type Consumer struct {
	ID     int
	Buffer *PairBuffer[Item]

	// Limit is the number of pairs to consume; zero means until ctx is done.
	Limit int

	// Pacer rests between pairs; nil means no rest.
	Pacer Pacer

	// Sink, when set, receives every consumed pair.
	Sink func(Pair[Item])
}

// Name returns the actor name used when reporting, for example "Consumer[0]".
func (c *Consumer) Name() string {
	return naming.BuildNameWithIndex("", "Consumer", c.ID)
}

// Run consumes pairs until the limit is reached or ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	pacer := pacerOrDefault(c.Pacer)

	for n := 0; c.Limit == 0 || n < c.Limit; n++ {
		if n > 0 {
			if err := pacer.Pause(ctx); err != nil {
				return err
			}
		}

		p, err := c.Buffer.Consume(ctx, c.Name())
		if err != nil {
			return err
		}

		if c.Sink != nil {
			c.Sink(p)
		}
	}

	return nil
}

func pacerOrDefault(p Pacer) Pacer {
	if p == nil {
		return NoPacer{}
	}

	return p
}
