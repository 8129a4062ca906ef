// Package queue defines the crawl task queue the scheduler feeds and workers
// drain.
package queue

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrClosed is returned once the queue has been closed.
	ErrClosed = errors.New("queue closed")
	// ErrFull is returned by TryEnqueue when no capacity is left.
	ErrFull = errors.New("queue full")
)

// Trigger records what asked for a crawl.
type Trigger string

// Known triggers.
const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
	TriggerAPI      Trigger = "api"
)

// Item is one queued crawl of a single source.
type Item struct {
	TaskID     string
	Source     string
	Trigger    Trigger
	EnqueuedAt time.Time
}

// Queue is a bounded FIFO of crawl tasks.
type Queue interface {
	Enqueue(ctx context.Context, item Item) error
	TryEnqueue(item Item) error
	Dequeue(ctx context.Context) (Item, error)
	Len() int
	Close()
}
