// Package feature supplies feature vectors to the decoder: from memory,
// from a live producer or from HTK parameter files.
package feature

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
)

// ErrClosed is returned by Push after Close.
var ErrClosed = errors.New("feature: source closed")

// Source yields one fixed-dimension vector per frame and io.EOF at the end.
type Source interface {
	Next(ctx context.Context) ([]float64, error)
	Dim() int
}

// SliceSource serves frames already in memory. It never blocks and can be
// rewound.
type SliceSource struct {
	frames [][]float64
	dim    int
	pos    int
}

// NewSliceSource wraps frames of dimension dim.
func NewSliceSource(dim int, frames [][]float64) *SliceSource {
	return &SliceSource{frames: frames, dim: dim}
}

func (s *SliceSource) Next(ctx context.Context) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.frames) {
		return nil, io.EOF
	}
	x := s.frames[s.pos]
	s.pos++
	return x, nil
}

func (s *SliceSource) Dim() int { return s.dim }

// Len returns the number of frames.
func (s *SliceSource) Len() int { return len(s.frames) }

// Rewind restarts from the first frame.
func (s *SliceSource) Rewind() { s.pos = 0 }

// ChanSource is a bounded queue between a live producer and the search.
// Next blocks until a frame arrives, the producer closes, or ctx ends.
type ChanSource struct {
	ch   chan []float64
	dim  int
	done chan struct{}
	once sync.Once
}

// NewChanSource creates a queue holding up to capacity frames.
func NewChanSource(dim, capacity int) *ChanSource {
	return &ChanSource{
		ch:   make(chan []float64, capacity),
		dim:  dim,
		done: make(chan struct{}),
	}
}

// Push enqueues a frame, blocking while the queue is full.
func (c *ChanSource) Push(ctx context.Context, x []float64) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.ch <- x:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close marks the end of input. Frames already queued are still served.
func (c *ChanSource) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *ChanSource) Next(ctx context.Context) ([]float64, error) {
	select {
	case x := <-c.ch:
		return x, nil
	default:
	}
	select {
	case x := <-c.ch:
		return x, nil
	case <-c.done:
		// drain what raced with Close
		select {
		case x := <-c.ch:
			return x, nil
		default:
			return nil, io.EOF
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *ChanSource) Dim() int { return c.dim }

// ReadAll drains src into memory.
func ReadAll(ctx context.Context, src Source) ([][]float64, error) {
	var frames [][]float64
	for {
		x, err := src.Next(ctx)
		if err == io.EOF {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, x)
	}
}
