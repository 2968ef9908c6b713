// Package datarecording stores reported events in a database so that a run
// can be inspected after it ends.
package datarecording

import (
	"context"
	"fmt"
	"time"

	"github.com/sarchlab/lockstep/hooking"
)

// An Event is one hook invocation as stored in the events table.
type Event struct {
	ID        string
	RunID     string
	TimeNS    int64
	Component string
	Actor     string
	Pos       string
	Item      string
	Detail    string
}

// ExecInfo is a property of the process that produced a recording.
type ExecInfo struct {
	RunID    string
	Property string
	Value    string
}

func makeEvent(runID, id string, ctx hooking.HookCtx) Event {
	e := Event{
		ID:        id,
		RunID:     runID,
		TimeNS:    time.Now().UnixNano(),
		Component: ctx.DomainName(),
		Actor:     ctx.Actor,
	}

	if ctx.Pos != nil {
		e.Pos = ctx.Pos.Name
	}

	if ctx.Item != nil {
		e.Item = fmt.Sprint(ctx.Item)
	}

	if ctx.Detail != nil {
		e.Detail = fmt.Sprintf("%+v", ctx.Detail)
	}

	return e
}

// A Store persists events.
type Store interface {
	// CreateTables prepares the tables. It is safe to call more than once.
	CreateTables(ctx context.Context) error

	// WriteEvents stores a batch of events in one transaction.
	WriteEvents(ctx context.Context, events []Event) error

	// WriteExecInfo stores process properties.
	WriteExecInfo(ctx context.Context, infos []ExecInfo) error

	// ReadEvents returns the events of a run in insertion order.
	ReadEvents(ctx context.Context, runID string) ([]Event, error)

	// Close releases the connection.
	Close() error
}
