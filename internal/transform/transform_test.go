package transform

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RobBa/alphabet-generator/internal/config"
	"github.com/RobBa/alphabet-generator/internal/errs"
	"github.com/RobBa/alphabet-generator/internal/metrics"
	"github.com/RobBa/alphabet-generator/internal/output"
	"github.com/RobBa/alphabet-generator/internal/schema"
	"github.com/RobBa/alphabet-generator/internal/window"
)

// Proto digits: A=1, B=2, C=0. Label codes in first-seen order: x=1, y=2.
var flows = []string{
	"h1 h2 A x",
	"h1 h2 B y",
	"h1 h3 C x",
	"h1 h3 A x",
}

type schemaOpt func(b *schema.Builder)

func flowSchema(t *testing.T, opts ...schemaOpt) *schema.Schema {
	t.Helper()
	b := schema.NewBuilder().
		Source(0).
		Destination(1).
		Categorical("Proto", 2, "A", "B", "C").
		Label(3)
	for _, o := range opts {
		o(b)
	}
	s, err := b.Build()
	require.NoError(t, err)
	return s
}

func run(t *testing.T, kind Kind, opts Options, src window.LineSource) (string, *Result, error) {
	t.Helper()
	tr, err := New(kind, opts)
	require.NoError(t, err)

	var out bytes.Buffer
	res, err := tr.Run(context.Background(), src, &out)
	return out.String(), res, err
}

func lines(ls ...string) window.LineSource {
	return window.NewSliceSource(ls)
}

func TestBatch_OverlappingWindows(t *testing.T) {
	opts := Options{Schema: flowSchema(t), WindowSize: 2, WindowStride: 1}
	out, res, err := run(t, KindBatch, opts, lines(flows...))
	require.NoError(t, err)

	assert.Equal(t, "4 2\n2 2 1 2\n2 2 2 0\n1 2 0 1\n1 1 1\n", out)
	assert.Equal(t, 4, res.Records)
	assert.Equal(t, 4, res.Tally.Sequences())
}

func TestBatch_Unlabelled(t *testing.T) {
	s, err := schema.NewBuilder().Categorical("Proto", 0, "A", "B", "C").Build()
	require.NoError(t, err)

	out, _, err := run(t, KindBatch, Options{Schema: s, WindowSize: 3, WindowStride: 3}, lines("A", "B", "", "C", "A"))
	require.NoError(t, err)
	assert.Equal(t, "2 2\n3 1 2 0\n1 1\n", out)
}

func TestBatch_EmptyInput(t *testing.T) {
	out, res, err := run(t, KindBatch, Options{Schema: flowSchema(t), WindowSize: 3, WindowStride: 1}, lines())
	require.NoError(t, err)
	assert.Equal(t, "0 0\n", out)
	assert.Zero(t, res.Records)
}

func TestBatch_ErrorPolicy(t *testing.T) {
	input := []string{"h1 h2 A x", "h1 h2 Z x", "h1 h2 B x"}

	t.Run("abort", func(t *testing.T) {
		opts := Options{Schema: flowSchema(t), WindowSize: 2, WindowStride: 1, Policy: config.PolicyAbort}
		_, res, err := run(t, KindBatch, opts, lines(input...))
		require.Error(t, err)
		assert.True(t, errs.Is(err, errs.KindEncoding))
		assert.True(t, errors.Is(err, errs.ErrUnknownCategoricalValue))
		assert.Contains(t, err.Error(), "record 2")
		assert.Equal(t, 2, res.Records)
	})

	t.Run("skip", func(t *testing.T) {
		opts := Options{Schema: flowSchema(t), WindowSize: 2, WindowStride: 1, Policy: config.PolicySkip}
		out, res, err := run(t, KindBatch, opts, lines(input...))
		require.NoError(t, err)
		// the bad record keeps its place in the windows but adds no symbol
		assert.Equal(t, "3 2\n1 1 1\n1 1 2\n1 1 2\n", out)
		assert.Equal(t, 3, res.Records)
		assert.Equal(t, 1, res.Skipped)
	})
}

func TestBatch_SourceFilter(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		want     string
		filtered int
	}{
		{
			name:     "filtered record keeps its place",
			input:    []string{"h1 h2 A x", "h9 h2 B x", "h1 h2 C x"},
			want:     "2 1\n1 1 1\n1 1 0\n",
			filtered: 1,
		},
		{
			name:     "windows cut before filtering",
			input:    []string{"h9 h2 A x", "h1 h2 B x", "h1 h2 C x", "h1 h2 A x"},
			want:     "2 2\n1 1 2\n1 2 0 1\n",
			filtered: 1,
		},
		{
			name:     "empty window not written",
			input:    []string{"h9 h2 A x", "h9 h2 B x", "h1 h2 C x"},
			want:     "1 0\n1 1 0\n",
			filtered: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := flowSchema(t, func(b *schema.Builder) { b.SourceAddress("h1") })
			out, res, err := run(t, KindBatch, Options{Schema: s, WindowSize: 2, WindowStride: 2}, lines(tt.input...))
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
			assert.Equal(t, len(tt.input), res.Records)
			assert.Equal(t, tt.filtered, res.Filtered)
		})
	}
}

func TestMissingStructuralColumn(t *testing.T) {
	t.Run("source filter", func(t *testing.T) {
		s := flowSchema(t, func(b *schema.Builder) { b.Source(5).SourceAddress("h1") })
		out, res, err := run(t, KindBatch, Options{Schema: s, WindowSize: 2, WindowStride: 1}, lines(flows...))
		require.Error(t, err)
		assert.True(t, errs.Is(err, errs.KindEncoding))
		assert.True(t, errors.Is(err, errs.ErrMissingRequiredColumn))
		assert.Contains(t, err.Error(), "source column 5")
		assert.Empty(t, out)
		assert.Zero(t, res.Filtered)
	})

	t.Run("destination grouping", func(t *testing.T) {
		s := flowSchema(t, func(b *schema.Builder) { b.Destination(7).FilterByDestination(true).BatchSize(3) })
		out, _, err := run(t, KindStreaming, Options{Schema: s}, lines(flows...))
		require.Error(t, err)
		assert.True(t, errors.Is(err, errs.ErrMissingRequiredColumn))
		assert.Contains(t, err.Error(), "destination column 7")
		assert.Equal(t, "0 0\n", out)
	})

	t.Run("skip policy", func(t *testing.T) {
		s := flowSchema(t, func(b *schema.Builder) { b.FilterByDestination(true).BatchSize(3) })
		opts := Options{Schema: s, Policy: config.PolicySkip}
		out, res, err := run(t, KindStreaming, opts, lines("h1 h2 A x", "h1", "h1 h3 B x"))
		require.NoError(t, err)
		assert.Equal(t, "0 0\n1 1 1\n1 1 2\n", out)
		assert.Equal(t, 1, res.Skipped)
	})
}

func TestBatch_MissingLabelColumn(t *testing.T) {
	opts := Options{Schema: flowSchema(t), WindowSize: 1, WindowStride: 1}
	_, _, err := run(t, KindBatch, opts, lines("h1 h2 A"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrMissingRequiredColumn))
}

func TestBatch_Augmented(t *testing.T) {
	opts := Options{Schema: flowSchema(t), Format: output.FormatAugmented, WindowSize: 5, WindowStride: 1}
	out, res, err := run(t, KindBatch, opts, lines(flows[:2]...))
	require.NoError(t, err)

	assert.Equal(t, "h1 <-> h2\n1:Proto/x\nh1 <-> h2\n2:Proto/y\n", out)
	assert.Equal(t, 2, res.Tally.Sequences())
}

// cancellingSource serves its lines, then cancels the run and blocks the way
// a followed file does.
type cancellingSource struct {
	lines  []string
	cancel context.CancelFunc
}

func (s *cancellingSource) ReadLine(ctx context.Context) (string, error) {
	if len(s.lines) > 0 {
		line := s.lines[0]
		s.lines = s.lines[1:]
		return line, nil
	}
	s.cancel()
	<-ctx.Done()
	return "", ctx.Err()
}

func TestBatch_FollowStopsOnCancel(t *testing.T) {
	tr, err := New(KindBatch, Options{Schema: flowSchema(t), WindowSize: 2, WindowStride: 1, FlushEvery: 1, Follow: true})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out bytes.Buffer
	res, err := tr.Run(ctx, &cancellingSource{lines: flows[:3], cancel: cancel}, &out)
	require.NoError(t, err)
	assert.Equal(t, "0 0\n2 2 1 2\n2 2 2 0\n", out.String())
	assert.Equal(t, 3, res.Records)
}

func TestStreaming_Batches(t *testing.T) {
	s := flowSchema(t, func(b *schema.Builder) { b.BatchSize(2) })
	out, res, err := run(t, KindStreaming, Options{Schema: s}, lines(flows...))
	require.NoError(t, err)

	assert.Equal(t, "0 0\n2 2 1 2\n1 2 0 1\n", out)
	assert.Equal(t, 2, res.Tally.Sequences())
}

func TestStreaming_PerDestination(t *testing.T) {
	s := flowSchema(t, func(b *schema.Builder) { b.BatchSize(3).FilterByDestination(true) })
	out, _, err := run(t, KindStreaming, Options{Schema: s}, lines(flows...))
	require.NoError(t, err)

	// the last record forms a partial batch written at the end of input
	assert.Equal(t, "0 0\n2 2 1 2\n1 1 0\n1 1 1\n", out)
}

func TestStreaming_PartialBatchOnCancel(t *testing.T) {
	s := flowSchema(t, func(b *schema.Builder) { b.BatchSize(10) })
	tr, err := New(KindStreaming, Options{Schema: s})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out bytes.Buffer
	_, err = tr.Run(ctx, &cancellingSource{lines: flows[:2], cancel: cancel}, &out)
	require.NoError(t, err)
	assert.Equal(t, "0 0\n2 2 1 2\n", out.String())
}

type memFile struct {
	bytes.Buffer
	closed bool
}

func (m *memFile) Close() error {
	m.closed = true
	return nil
}

func memHosts(files map[string]*memFile) func(string) (io.WriteCloser, string, error) {
	return func(address string) (io.WriteCloser, string, error) {
		f := &memFile{}
		files[address] = f
		return f, address + ".txt", nil
	}
}

var pairFlows = []string{
	"h1 h2 A x",
	"h1 h2 B y",
	"h1 h3 C x",
	"h4 h2 A x",
}

func TestPairwise_HostBlocks(t *testing.T) {
	files := make(map[string]*memFile)
	opts := Options{Schema: flowSchema(t), WindowSize: 2, WindowStride: 1, HostOutput: memHosts(files)}

	out, res, err := run(t, KindPairwise, opts, lines(pairFlows...))
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, []string{"h1.txt", "h4.txt"}, res.Outputs)
	require.Len(t, files, 2)

	assert.Equal(t, "Host address: h1\nEncoded features: Proto\n3 3\n2 2 0 1\n2 1 1\n1 1 2\n", files["h1"].String())
	assert.Equal(t, "Host address: h4\nEncoded features: Proto\n1 1\n1 1 0\n", files["h4"].String())
	assert.True(t, files["h1"].closed)
	assert.Equal(t, 4, res.Records)
}

func TestPairwise_PairBlocks(t *testing.T) {
	s := flowSchema(t, func(b *schema.Builder) { b.FilterByDestination(true).SourceAddress("h1") })
	opts := Options{Schema: s, WindowSize: 2, WindowStride: 1}

	out, res, err := run(t, KindPairwise, opts, lines(pairFlows...))
	require.NoError(t, err)

	want := "h1 <-> h2\nEncoded features: Proto\n2 2\n2 2 1 2\n2 1 2\n" +
		"h1 <-> h3\nEncoded features: Proto\n1 1\n1 1 0\n"
	assert.Equal(t, want, out)
	assert.Empty(t, res.Outputs)
	assert.Equal(t, 3, res.Records)
}

func TestPairwise_UnknownSourceAddress(t *testing.T) {
	s := flowSchema(t, func(b *schema.Builder) { b.SourceAddress("h7") })
	out, _, err := run(t, KindPairwise, Options{Schema: s, WindowSize: 2, WindowStride: 1}, lines(pairFlows...))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindConfig), "got %v", err)
	assert.Contains(t, err.Error(), "h7")
	assert.Empty(t, out)
}

func TestPairwise_HostFiles(t *testing.T) {
	base := filepath.Join(t.TempDir(), "run")
	opts := Options{Schema: flowSchema(t), WindowSize: 2, WindowStride: 1, HostOutput: HostFiles(base)}

	_, res, err := run(t, KindPairwise, opts, lines(pairFlows[3]))
	require.NoError(t, err)
	require.Equal(t, []string{HostFileName(base, "h4")}, res.Outputs)

	data, err := os.ReadFile(res.Outputs[0])
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "Host address: h4\n"))
	assert.Regexp(t, `run_host_[0-9a-f]{16}\.txt$`, res.Outputs[0])
}

func TestNew_Validation(t *testing.T) {
	unpaired, err := schema.NewBuilder().Categorical("Proto", 0, "A").Build()
	require.NoError(t, err)
	unpairedByDst, err := schema.NewBuilder().Categorical("Proto", 0, "A").FilterByDestination(true).Build()
	require.NoError(t, err)

	tests := []struct {
		name string
		kind Kind
		opts Options
	}{
		{"no schema", KindBatch, Options{WindowSize: 1, WindowStride: 1}},
		{"bad window", KindBatch, Options{Schema: flowSchema(t), WindowSize: 1, WindowStride: 2}},
		{"pairwise augmented", KindPairwise, Options{Schema: flowSchema(t), Format: output.FormatAugmented, WindowSize: 1, WindowStride: 1}},
		{"pairwise without endpoints", KindPairwise, Options{Schema: unpaired, WindowSize: 1, WindowStride: 1}},
		{"streaming per destination without column", KindStreaming, Options{Schema: unpairedByDst}},
		{"unknown kind", Kind("nope"), Options{Schema: flowSchema(t)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.kind, tt.opts)
			require.Error(t, err)
			assert.True(t, errs.Is(err, errs.KindConfig), "got %v", err)
		})
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("Pairwise")
	require.NoError(t, err)
	assert.Equal(t, KindPairwise, k)

	_, err = ParseKind("stochastic")
	assert.True(t, errs.Is(err, errs.KindConfig))
}

func counter(t *testing.T, reg *prometheus.Registry, name, status string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if status == "" {
				return m.GetCounter().GetValue()
			}
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "status" && lp.GetValue() == status {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestBatch_Metrics(t *testing.T) {
	m, err := metrics.New(string(KindBatch))
	require.NoError(t, err)

	opts := Options{Schema: flowSchema(t), WindowSize: 2, WindowStride: 1, Policy: config.PolicySkip, Metrics: m}
	_, _, err = run(t, KindBatch, opts, lines("h1 h2 A x", "h1 h2 Z x", "h1 h2 B x"))
	require.NoError(t, err)

	reg := m.Registry()
	assert.Equal(t, 2.0, counter(t, reg, "alphagen_records_total", metrics.StatusEncoded))
	assert.Equal(t, 1.0, counter(t, reg, "alphagen_records_total", metrics.StatusSkipped))
	assert.Equal(t, 3.0, counter(t, reg, "alphagen_sequences_total", ""))
	assert.Equal(t, 1.0, counter(t, reg, "alphagen_flushes_total", ""))
}

func TestOpenFiles_HeaderAndConcat(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(a, []byte("src dst proto label\nh1 h2 A x\n"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("src dst proto label\nh1 h2 B y\n"), 0o644))

	s := flowSchema(t, func(b *schema.Builder) { b.Header(true) })
	src, closer, err := OpenFiles([]string{a, b}, s)
	require.NoError(t, err)
	defer closer.Close()

	out, _, err := run(t, KindBatch, Options{Schema: s, WindowSize: 2, WindowStride: 2}, src)
	require.NoError(t, err)
	assert.Equal(t, "1 2\n2 2 1 2\n", out)
}

func TestOpenFiles_Missing(t *testing.T) {
	_, _, err := OpenFiles([]string{filepath.Join(t.TempDir(), "nope.txt")}, flowSchema(t))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindIO))

	_, _, err = OpenFiles(nil, flowSchema(t))
	assert.True(t, errs.Is(err, errs.KindConfig))
}
