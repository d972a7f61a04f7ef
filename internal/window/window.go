// Package window groups raw record lines into the units that are encoded
// together.
//
// FixedWindow returns overlapping windows of up to size lines, advancing by
// stride lines per call. SingleRecordWindow returns one line at a time for
// drivers that regroup records themselves. Both read from a LineSource, which
// decides between batch delivery (the source ends with io.EOF) and streaming
// delivery (the source blocks on a growing file).
//
// Blank and whitespace-only lines are skipped everywhere, while priming the
// carry-over as well as in steady state.
package window

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/RobBa/alphabet-generator/internal/errs"
)

// Window pulls the next group of raw lines. It returns io.EOF, with no
// lines, once the source is exhausted.
type Window interface {
	Pull(ctx context.Context) ([]string, error)
}

// FixedWindow yields windows of size lines shifted by stride lines, so that
// consecutive windows share size-stride lines.
//
// When the source runs out, the remaining carry-over keeps shrinking by
// stride lines per call until nothing is left: size 3 and stride 1 over five
// lines give windows of 3, 3, 3, 2 and 1 lines.
type FixedWindow struct {
	size   int
	stride int
	src    LineSource

	carry       []string
	initialized bool
	exhausted   bool
}

// NewFixed creates a FixedWindow over src.
func NewFixed(size, stride int, src LineSource) (*FixedWindow, error) {
	if size < 1 || stride < 1 || size < stride {
		return nil, errs.New(errs.KindConfig, "window",
			fmt.Errorf("%w: size %d, stride %d: need size >= stride >= 1", errs.ErrInvalidWindow, size, stride))
	}
	return &FixedWindow{size: size, stride: stride, src: src}, nil
}

// Size returns the window size.
func (w *FixedWindow) Size() int { return w.size }

// Stride returns the window stride.
func (w *FixedWindow) Stride() int { return w.stride }

// Reset restarts the window on a new source, dropping any carry-over.
func (w *FixedWindow) Reset(src LineSource) {
	w.src = src
	w.carry = nil
	w.initialized = false
	w.exhausted = false
}

// Pull implements Window.
func (w *FixedWindow) Pull(ctx context.Context) ([]string, error) {
	if !w.initialized {
		for len(w.carry) < w.size-w.stride && !w.exhausted {
			line, err := w.next(ctx)
			if err != nil {
				return nil, err
			}
			if w.exhausted {
				break
			}
			w.carry = append(w.carry, line)
		}
		w.initialized = true
	}

	window := make([]string, len(w.carry), w.size)
	copy(window, w.carry)

	for fresh := 0; fresh < w.stride && !w.exhausted; fresh++ {
		line, err := w.next(ctx)
		if err != nil {
			return nil, err
		}
		if w.exhausted {
			break
		}
		window = append(window, line)
	}

	if len(window) == 0 {
		return nil, io.EOF
	}

	if len(window) > w.stride {
		w.carry = append(w.carry[:0], window[w.stride:]...)
	} else {
		w.carry = w.carry[:0]
	}
	return window, nil
}

// next returns the next non-blank line. On io.EOF it marks the window
// exhausted and returns no error.
func (w *FixedWindow) next(ctx context.Context) (string, error) {
	for {
		line, err := w.src.ReadLine(ctx)
		if errors.Is(err, io.EOF) {
			w.exhausted = true
			return "", nil
		}
		if err != nil {
			return "", err
		}
		if isBlank(line) {
			continue
		}
		return line, nil
	}
}

// SingleRecordWindow yields one complete, non-blank line per call.
type SingleRecordWindow struct {
	src LineSource
}

// NewSingle creates a SingleRecordWindow over src.
func NewSingle(src LineSource) *SingleRecordWindow {
	return &SingleRecordWindow{src: src}
}

// PullOne returns the next non-blank line. Over a streaming source it blocks
// until one is complete.
func (w *SingleRecordWindow) PullOne(ctx context.Context) (string, error) {
	for {
		line, err := w.src.ReadLine(ctx)
		if err != nil {
			return "", err
		}
		if !isBlank(line) {
			return line, nil
		}
	}
}

// Pull implements Window.
func (w *SingleRecordWindow) Pull(ctx context.Context) ([]string, error) {
	line, err := w.PullOne(ctx)
	if err != nil {
		return nil, err
	}
	return []string{line}, nil
}
