package stream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/zjrosen/sift/internal/log"
)

// DefaultMaxFrameSize bounds a single record. Longer lines are dropped.
const DefaultMaxFrameSize = 8 * 1024 * 1024

const readBufferSize = 64 * 1024

// ErrClosed is returned by Next after Close was called.
var ErrClosed = errors.New("stream: decoder closed")

// DecoderOption is a functional option for configuring a Decoder.
type DecoderOption func(*Decoder)

// WithContext ties the decoder to ctx: cancelling ctx closes the body, which
// unblocks a pending Next.
func WithContext(ctx context.Context) DecoderOption {
	return func(d *Decoder) {
		d.ctx = ctx
	}
}

// WithMaxFrameSize sets the largest record the decoder will buffer.
func WithMaxFrameSize(n int) DecoderOption {
	return func(d *Decoder) {
		if n > 0 {
			d.maxFrame = n
		}
	}
}

// Decoder turns a response body into a lazy sequence of events.
//
// The sequence is finite and cannot be restarted: once Next has returned an
// error (io.EOF included) every later call returns the same error without
// touching the body. Next and Close may be called from different goroutines;
// Next itself must not be called concurrently.
type Decoder struct {
	ctx      context.Context
	body     io.ReadCloser
	reader   *bufio.Reader
	read     atomic.Int64
	maxFrame int

	line    []byte
	err     error
	dropped int

	closed    atomic.Bool
	closeOnce sync.Once
	stopWatch func() bool
}

// NewDecoder starts decoding body. The decoder owns body and closes it when
// the sequence ends.
func NewDecoder(body io.ReadCloser, opts ...DecoderOption) *Decoder {
	d := &Decoder{
		ctx:      context.Background(),
		body:     body,
		maxFrame: DefaultMaxFrameSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.reader = bufio.NewReaderSize(&countingReader{r: body, n: &d.read}, readBufferSize)
	d.stopWatch = context.AfterFunc(d.ctx, func() {
		_ = d.closeBody()
	})
	return d
}

// Next returns the next event. It blocks only until one complete record has
// been assembled. At the end of the body it returns io.EOF; after a terminal
// event (result or error) the body is released and io.EOF follows.
func (d *Decoder) Next() (Event, error) {
	if d.err != nil {
		return nil, d.err
	}

	for {
		// Records already buffered must not outlive Close or cancellation.
		if d.aborted() {
			return nil, d.finish(ErrClosed)
		}
		line, readErr := d.readLine()
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			// A partial line at a broken connection is never a complete frame.
			return nil, d.finish(readErr)
		}

		if ev, ok := d.parse(line); ok {
			if d.aborted() {
				return nil, d.finish(ErrClosed)
			}
			if IsTerminal(ev) || readErr != nil {
				_ = d.finish(io.EOF)
			}
			return ev, nil
		}

		if readErr != nil {
			return nil, d.finish(io.EOF)
		}
	}
}

// Close aborts the stream. A Next blocked on a read returns promptly and no
// further reads are attempted.
func (d *Decoder) Close() error {
	d.closed.Store(true)
	d.stopWatch()
	return d.closeBody()
}

// BytesRead reports how many body bytes have been consumed so far.
func (d *Decoder) BytesRead() int64 {
	return d.read.Load()
}

// Dropped reports how many record lines were discarded as malformed.
func (d *Decoder) Dropped() int {
	return d.dropped
}

func (d *Decoder) parse(line []byte) (Event, bool) {
	line = bytes.TrimSuffix(line, []byte("\n"))
	if len(line) == 0 {
		return nil, false
	}
	ev, ok := ParseFrame(line)
	if !ok {
		if bytes.HasPrefix(line, framePrefix) {
			d.dropped++
			log.Debug(log.CatStream, "dropping malformed frame", "bytes", len(line))
		}
		return nil, false
	}
	return ev, true
}

// readLine returns the next '\n'-terminated line, or the unterminated residue
// together with the read error. Lines longer than maxFrame are consumed and
// returned empty.
func (d *Decoder) readLine() ([]byte, error) {
	d.line = d.line[:0]
	oversized := false
	for {
		chunk, err := d.reader.ReadSlice('\n')
		if !oversized && len(d.line)+len(chunk) <= d.maxFrame {
			d.line = append(d.line, chunk...)
		} else if !oversized {
			oversized = true
			d.line = d.line[:0]
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if oversized {
			d.dropped++
			log.Debug(log.CatStream, "dropping oversized frame", "limit", d.maxFrame)
		}
		return d.line, err
	}
}

func (d *Decoder) aborted() bool {
	return d.closed.Load() || d.ctx.Err() != nil
}

// finish records the sticky terminal error and releases the body.
func (d *Decoder) finish(err error) error {
	switch {
	case d.ctx.Err() != nil:
		err = d.ctx.Err()
	case d.closed.Load():
		err = ErrClosed
	}
	d.err = err
	d.stopWatch()
	_ = d.closeBody()
	if !errors.Is(err, io.EOF) {
		log.Debug(log.CatStream, "stream ended", "error", err, "bytes", d.BytesRead())
	}
	return err
}

func (d *Decoder) closeBody() error {
	var err error
	d.closeOnce.Do(func() {
		err = d.body.Close()
	})
	return err
}

type countingReader struct {
	r io.Reader
	n *atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}
