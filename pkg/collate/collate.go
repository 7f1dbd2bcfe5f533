// Package collate groups a hunter's output Detections by rule group and
// orders each group by timestamp for a sink. It is the single collator
// thread draining the worker pool's shared channel: workers give no
// cross-file ordering guarantee, so everything downstream of them is
// sorted here, once, right before delivery.
package collate

import (
	"context"
	"sort"

	"github.com/WithSecureLabs/chainsaw/pkg/hunter"
)

// Group is every Detection sharing one rule.group, ordered by Timestamp
// ascending. Detections with equal timestamps keep their arrival order
// (sort.SliceStable).
type Group struct {
	Name       string
	Detections []hunter.Detection
}

// Sink receives one finished Group at a time. No ordering is guaranteed
// across calls to Put.
type Sink interface {
	Put(Group) error
}

// Collator accumulates Detections under their rule.group key until Flush
// is told the stream is exhausted, then emits one sorted Group per key to
// the Sink. It holds no lock of its own: a Collator is meant to be driven
// by a single goroutine draining a Hunter.Run channel, never called
// concurrently from multiple goroutines.
type Collator struct {
	sink   Sink
	groups map[string][]hunter.Detection
	order  []string
}

// New builds a Collator that delivers finished groups to sink.
func New(sink Sink) *Collator {
	return &Collator{
		sink:   sink,
		groups: make(map[string][]hunter.Detection),
	}
}

// Add appends d to its rule.group's pending slice. The group key is
// d.Group when set (mapping groups and grouped rules alike), falling back
// to d.RuleName for ungrouped rules, so every Detection lands somewhere.
func (c *Collator) Add(d hunter.Detection) {
	key := d.Group
	if key == "" {
		key = d.RuleName
	}
	if _, seen := c.groups[key]; !seen {
		c.order = append(c.order, key)
	}
	c.groups[key] = append(c.groups[key], d)
}

// Drain reads every Detection off in, in the order delivered, calling Add
// for each, then Flushes once the channel closes or ctx is cancelled; in
// the latter case it returns ctx.Err() after the Flush.
func (c *Collator) Drain(ctx context.Context, in <-chan hunter.Detection) error {
	for {
		select {
		case d, ok := <-in:
			if !ok {
				return c.Flush()
			}
			c.Add(d)
		case <-ctx.Done():
			if err := c.Flush(); err != nil {
				return err
			}
			return ctx.Err()
		}
	}
}

// Flush sorts each pending group by Timestamp ascending (stable, so equal
// timestamps keep arrival order) and hands it to the Sink, in the order
// groups were first seen. It clears all pending state.
func (c *Collator) Flush() error {
	for _, key := range c.order {
		dets := c.groups[key]
		sort.SliceStable(dets, func(i, j int) bool {
			return dets[i].Timestamp.Before(dets[j].Timestamp)
		})
		if err := c.sink.Put(Group{Name: key, Detections: dets}); err != nil {
			return err
		}
	}
	c.groups = make(map[string][]hunter.Detection)
	c.order = nil
	return nil
}

// SinkFunc adapts a plain function into a Sink.
type SinkFunc func(Group) error

func (f SinkFunc) Put(g Group) error { return f(g) }
