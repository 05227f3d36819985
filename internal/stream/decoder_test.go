package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"pgregory.net/rapid"
)

// chunkReader returns one chunk per Read call, so tests control exactly
// where read boundaries fall.
type chunkReader struct {
	chunks [][]byte
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for len(r.chunks) > 0 && len(r.chunks[0]) == 0 {
		r.chunks = r.chunks[1:]
	}
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	return n, nil
}

func (r *chunkReader) Close() error { return nil }

func newChunkDecoder(chunks ...[]byte) *Decoder {
	return NewDecoder(&chunkReader{chunks: chunks})
}

func splitAt(body []byte, cuts []int) [][]byte {
	var chunks [][]byte
	prev := 0
	for _, c := range cuts {
		if c <= prev || c >= len(body) {
			continue
		}
		chunks = append(chunks, body[prev:c])
		prev = c
	}
	return append(chunks, body[prev:])
}

func collect(d *Decoder) ([]Event, error) {
	var events []Event
	for {
		ev, err := d.Next()
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
}

const sampleBody = "event: connected\n" +
	"data: {\"type\":\"progress\",\"agent\":\"planner\",\"status\":\"running\"}\n\n" +
	": heartbeat\n\n" +
	"data: {\"type\":\"plan_expanded\",\"sub_questions\":[\"Does α-synuclein aggregate?\",\"Ψ → outcomes 😀\"]}\n\n" +
	"data: {\"type\":\"subtask_progress\",\"index\":0,\"status\":\"running\"}\r\n\r\n" +
	"data: {\"type\":\"subtask_progress\",\"index\":0,\"status\":\"completed\",\"papers_found\":4}\n\n" +
	"data: {\"type\":\"progress\",\"agent\":\"planner\",\"status\":\"completed\"}\n\n" +
	"data: {\"type\":\"result\",\"data\":{\"answer\":\"naïve café\"}}\n\n"

func TestDecoder_DecodesSampleStream(t *testing.T) {
	events, err := collect(newChunkDecoder([]byte(sampleBody)))
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, []Event{
		Progress{Stage: "planner", Status: "running"},
		PlanExpanded{Subtasks: []string{"Does α-synuclein aggregate?", "Ψ → outcomes 😀"}},
		SubtaskProgress{Index: 0, Status: "running"},
		SubtaskProgress{Index: 0, Status: "completed", ResultCount: intPtr(4)},
		Progress{Stage: "planner", Status: "completed"},
		Result{Payload: json.RawMessage(`{"answer":"naïve café"}`)},
	}, events)
}

func TestDecoder_MultiByteCharacterSplitAcrossReads(t *testing.T) {
	body := []byte("data: {\"type\":\"error\",\"message\":\"😀 failed\"}\n")
	idx := bytes.Index(body, []byte("😀"))
	require.Positive(t, idx)

	// Cut inside the four-byte emoji, one byte per read around it.
	d := newChunkDecoder(body[:idx+1], body[idx+1:idx+2], body[idx+2:idx+3], body[idx+3:])
	ev, err := d.Next()
	require.NoError(t, err)
	require.Equal(t, Error{Message: "😀 failed"}, ev)
}

func TestDecoder_MalformedFrameIsDropped(t *testing.T) {
	body := "data: {\"type\":\"progress\",\"agent\":\"retriever\",\"status\":\"running\"}\n" +
		"data: {\"type\":\"progress\",\"agent\":\n" +
		"data: {\"type\":\"progress\",\"agent\":\"retriever\",\"status\":\"completed\"}\n" +
		"data: {\"type\":\"result\",\"data\":{}}\n"

	d := newChunkDecoder([]byte(body))
	events, err := collect(d)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, []Event{
		Progress{Stage: "retriever", Status: "running"},
		Progress{Stage: "retriever", Status: "completed"},
		Result{Payload: json.RawMessage(`{}`)},
	}, events)
	require.Equal(t, 1, d.Dropped())
}

func TestDecoder_ResidualCompleteFrameAtClose(t *testing.T) {
	body := "data: {\"type\":\"progress\",\"agent\":\"critic\",\"status\":\"running\"}\n" +
		"data: {\"type\":\"result\",\"data\":[1]}"

	events, err := collect(newChunkDecoder([]byte(body)))
	require.ErrorIs(t, err, io.EOF)
	require.Len(t, events, 2)
	require.Equal(t, Result{Payload: json.RawMessage(`[1]`)}, events[1])
}

func TestDecoder_ResidualIncompleteFrameDiscarded(t *testing.T) {
	body := "data: {\"type\":\"progress\",\"agent\":\"critic\",\"status\":\"running\"}\n" +
		"data: {\"type\":\"result\",\"da"

	events, err := collect(newChunkDecoder([]byte(body)))
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, []Event{Progress{Stage: "critic", Status: "running"}}, events)
}

func TestDecoder_StopsAfterTerminalEvent(t *testing.T) {
	body := "data: {\"type\":\"error\",\"message\":\"Critic failed\"}\n" +
		"data: {\"type\":\"progress\",\"agent\":\"critic\",\"status\":\"completed\"}\n"

	d := newChunkDecoder([]byte(body))
	events, err := collect(d)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, []Event{Error{Message: "Critic failed"}}, events)

	_, err = d.Next()
	require.ErrorIs(t, err, io.EOF, "sequence is not restartable")
}

func TestDecoder_ReadErrorEndsSequence(t *testing.T) {
	pr, pw := io.Pipe()
	d := NewDecoder(pr)

	go func() {
		_, _ = pw.Write([]byte("data: {\"type\":\"progress\",\"agent\":\"retriever\",\"status\":\"running\"}\ndata: {\"ty"))
		_ = pw.CloseWithError(errors.New("connection reset by peer"))
	}()

	ev, err := d.Next()
	require.NoError(t, err)
	require.Equal(t, Progress{Stage: "retriever", Status: "running"}, ev)

	_, err = d.Next()
	require.EqualError(t, err, "connection reset by peer")
	require.Greater(t, d.BytesRead(), int64(0))

	_, again := d.Next()
	require.Equal(t, err, again)
}

func TestDecoder_CloseUnblocksNext(t *testing.T) {
	defer goleak.VerifyNone(t)

	pr, pw := io.Pipe()
	defer pw.Close()
	d := NewDecoder(pr)

	errCh := make(chan error, 1)
	go func() {
		_, err := d.Next()
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, d.Close())

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		require.Fail(t, "Next did not return after Close")
	}
}

func TestDecoder_ContextCancelUnblocksNext(t *testing.T) {
	defer goleak.VerifyNone(t)

	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	d := NewDecoder(pr, WithContext(ctx))

	go func() {
		_, _ = pw.Write([]byte("data: {\"type\":\"progress\",\"agent\":\"retriever\",\"status\":\"running\"}\n"))
	}()

	ev, err := d.Next()
	require.NoError(t, err)
	require.Equal(t, Progress{Stage: "retriever", Status: "running"}, ev)

	errCh := make(chan error, 1)
	go func() {
		_, err := d.Next()
		errCh <- err
	}()

	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		require.Fail(t, "Next did not return after cancel")
	}
}

const bufferedBody = "data: {\"type\":\"progress\",\"agent\":\"retriever\",\"status\":\"running\"}\n\n" +
	"data: {\"type\":\"progress\",\"agent\":\"retriever\",\"status\":\"completed\"}\n\n" +
	"data: {\"type\":\"result\",\"data\":{\"n\":3}}\n\n"

func TestDecoder_CloseDiscardsBufferedFrames(t *testing.T) {
	d := NewDecoder(io.NopCloser(strings.NewReader(bufferedBody)))

	ev, err := d.Next()
	require.NoError(t, err)
	require.Equal(t, Progress{Stage: "retriever", Status: "running"}, ev)

	require.NoError(t, d.Close())

	ev, err = d.Next()
	require.ErrorIs(t, err, ErrClosed)
	require.Nil(t, ev)
	_, err = d.Next()
	require.ErrorIs(t, err, ErrClosed, "the error is sticky")
}

func TestDecoder_CancelDiscardsBufferedFrames(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d := NewDecoder(io.NopCloser(strings.NewReader(bufferedBody)), WithContext(ctx))

	_, err := d.Next()
	require.NoError(t, err)

	cancel()

	ev, err := d.Next()
	require.ErrorIs(t, err, context.Canceled)
	require.Nil(t, ev)
}

func TestDecoder_OversizedFrameDropped(t *testing.T) {
	long := "data: {\"type\":\"error\",\"message\":\"" + strings.Repeat("x", 256) + "\"}\n"
	body := long + "data: {\"type\":\"result\",\"data\":1}\n"

	d := NewDecoder(&chunkReader{chunks: [][]byte{[]byte(body)}}, WithMaxFrameSize(64))
	events, err := collect(d)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, []Event{Result{Payload: json.RawMessage(`1`)}}, events)
	require.Equal(t, 1, d.Dropped())
}

func TestDecoder_EmptyBody(t *testing.T) {
	d := newChunkDecoder()
	_, err := d.Next()
	require.ErrorIs(t, err, io.EOF)
	require.Zero(t, d.BytesRead())
}

func TestProperty_FrameBoundaryIndependence(t *testing.T) {
	body := []byte(sampleBody)
	want, wantErr := collect(newChunkDecoder(body))

	rapid.Check(t, func(t *rapid.T) {
		cuts := rapid.SliceOfN(rapid.IntRange(0, len(body)), 0, 48).Draw(t, "cuts")
		slices.Sort(cuts)

		got, err := collect(newChunkDecoder(splitAt(body, cuts)...))
		require.Equal(t, wantErr, err)
		require.Equal(t, want, got)
	})
}

func TestProperty_MalformedRecordOnlyRemovesItself(t *testing.T) {
	lines := strings.SplitAfter(sampleBody, "\n")
	want, _ := collect(newChunkDecoder([]byte(sampleBody)))

	rapid.Check(t, func(t *rapid.T) {
		at := rapid.IntRange(0, len(lines)).Draw(t, "at")
		junk := rapid.SampledFrom([]string{
			"data: {\"type\":\n",
			"data: not json\n",
			"data: {\"agent\":\"retriever\"}\n",
			"data: {\"type\":\"subtask_progress\",\"index\":\"x\"}\n",
		}).Draw(t, "junk")

		injected := strings.Join(lines[:at], "") + junk + strings.Join(lines[at:], "")
		got, err := collect(newChunkDecoder([]byte(injected)))
		require.ErrorIs(t, err, io.EOF)
		require.Equal(t, want, got)
	})
}
