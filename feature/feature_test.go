package feature

import (
	"bytes"
	"context"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSliceSource(t *testing.T) {
	src := NewSliceSource(2, [][]float64{{1, 2}, {3, 4}})
	ctx := context.Background()
	assert.Equal(t, 2, src.Dim())

	frames, err := ReadAll(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 2}, {3, 4}}, frames)

	_, err = src.Next(ctx)
	assert.Equal(t, io.EOF, err)

	src.Rewind()
	x, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, x)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = src.Next(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChanSource(t *testing.T) {
	src := NewChanSource(1, 2)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 5; i++ {
			assert.NoError(t, src.Push(ctx, []float64{float64(i)}))
		}
		src.Close()
	}()

	frames, err := ReadAll(ctx, src)
	require.NoError(t, err)
	wg.Wait()
	require.Len(t, frames, 5)
	for i, f := range frames {
		assert.Equal(t, float64(i), f[0])
	}
	assert.ErrorIs(t, src.Push(ctx, []float64{9}), ErrClosed)
}

func TestChanSourceBlocksUntilCancel(t *testing.T) {
	src := NewChanSource(1, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := src.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTKRoundTrip(t *testing.T) {
	in := &HTK{
		Kind:   6 | HTKEnergy | HTKZeroMean, // MFCC_E_Z
		Period: 10 * time.Millisecond,
		Frames: [][]float64{{0.5, -1, 2}, {1.25, 0, -3}},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteHTK(&buf, in))
	assert.Equal(t, 12+2*3*4, buf.Len())

	out, err := ReadHTK(&buf)
	require.NoError(t, err)
	assert.Equal(t, in.Kind, out.Kind)
	assert.Equal(t, in.Period, out.Period)
	assert.Equal(t, in.Frames, out.Frames)
	assert.Equal(t, "MFCC_E_Z", out.KindName())
}

func TestHTKRejects(t *testing.T) {
	_, err := ReadHTK(bytes.NewReader([]byte{0, 0, 0}))
	assert.Error(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteHTK(&buf, &HTK{Kind: 6, Frames: [][]float64{{1}}}))
	data := buf.Bytes()
	data[10] |= byte(HTKCompressed >> 8)
	_, err = ReadHTK(bytes.NewReader(data))
	assert.Error(t, err)

	buf.Reset()
	require.NoError(t, WriteHTK(&buf, &HTK{Kind: 6, Frames: [][]float64{{1}, {2}}}))
	_, err = ReadHTK(bytes.NewReader(buf.Bytes()[:buf.Len()-2]))
	assert.Error(t, err)
}

func TestDelta(t *testing.T) {
	frames := [][]float64{{0}, {1}, {2}, {3}, {4}}
	d := Delta(frames, 2)
	require.Len(t, d, 5)
	// interior frame of a linear ramp has slope 1
	assert.InDelta(t, 1.0, d[2][0], 1e-12)
	// clamped edges flatten the slope
	assert.Less(t, d[0][0], 1.0)
}

func TestPostprocess(t *testing.T) {
	h := &HTK{Kind: 6, Frames: [][]float64{{1, 3}, {3, 5}}}
	p := ForHTK(h, 6)
	assert.True(t, p.CMN)
	assert.True(t, p.Deltas)

	out := p.Apply(h.Frames)
	require.Len(t, out, 2)
	require.Len(t, out[0], 6)
	assert.Equal(t, []float64{-1, -1}, out[0][:2])
	assert.Equal(t, []float64{1, 1}, out[1][:2])
	for _, v := range out[0] {
		assert.False(t, math.IsNaN(v))
	}

	z := &HTK{Kind: 6 | HTKZeroMean | HTKDelta, Frames: [][]float64{{1, 2, 3}}}
	assert.Equal(t, Postprocess{}, ForHTK(z, 3))
}
