package aggregate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RobBa/alphabet-generator/internal/errs"
	"github.com/RobBa/alphabet-generator/internal/schema"
	"github.com/RobBa/alphabet-generator/internal/window"
)

func pairSchema(t *testing.T, label bool) *schema.Schema {
	t.Helper()
	b := schema.NewBuilder().
		Source(0).
		Destination(1).
		Categorical("Proto", 2, "A", "B", "C")
	if label {
		b.Label(3)
	}
	s, err := b.Build()
	require.NoError(t, err)
	return s
}

func TestIngestAll_PairsAndMaxLabel(t *testing.T) {
	input := strings.Join([]string{
		"10.0.0.1 10.0.0.2 A 1",
		"10.0.0.1 10.0.0.2 B 2",
		"10.0.0.1 10.0.0.3 C 1",
	}, "\n")

	agg, err := New(pairSchema(t, true), nil)
	require.NoError(t, err)

	hosts, err := agg.IngestAll(context.Background(), window.NewReaderSource(strings.NewReader(input)))
	require.NoError(t, err)
	require.Len(t, hosts, 1)

	host := hosts["10.0.0.1"]
	require.NotNil(t, host)
	assert.Equal(t, []string{"10.0.0.2", "10.0.0.3"}, host.Peers())

	p2 := host.Peer("10.0.0.2")
	assert.Equal(t, 2, p2.MaxLabel)
	assert.Equal(t, []string{"10.0.0.1 10.0.0.2 A 1", "10.0.0.1 10.0.0.2 B 2"}, p2.Records)

	p3 := host.Peer("10.0.0.3")
	assert.Equal(t, 1, p3.MaxLabel)
	assert.Equal(t, []string{"10.0.0.1 10.0.0.3 C 1"}, p3.Records)

}

func TestIngestAll_MultipleHostsSorted(t *testing.T) {
	lines := []string{
		"10.0.0.9 10.0.0.1 A",
		"",
		"10.0.0.1 10.0.0.9 B",
		"   ",
		"10.0.0.5 10.0.0.1 C",
	}
	agg, err := New(pairSchema(t, false), nil)
	require.NoError(t, err)

	hosts, err := agg.IngestAll(context.Background(), window.NewSliceSource(lines))
	require.NoError(t, err)

	assert.Equal(t, []string{"10.0.0.1", "10.0.0.5", "10.0.0.9"}, SortedAddresses(hosts))
	assert.Equal(t, 0, hosts["10.0.0.9"].Peer("10.0.0.1").MaxLabel)
}

func TestIngestAll_DeclaredLabelsComeFirst(t *testing.T) {
	s, err := schema.NewBuilder().
		Source(0).
		Destination(1).
		Categorical("Proto", 2, "A").
		Label(3, "benign", "malicious").
		Build()
	require.NoError(t, err)

	labels := s.NewLabelVocabulary()
	agg, err := New(s, labels)
	require.NoError(t, err)

	hosts, err := agg.IngestAll(context.Background(), window.NewSliceSource([]string{"h1 h2 A scan", "h1 h2 A benign"}))
	require.NoError(t, err)

	assert.Equal(t, 3, hosts["h1"].Peer("h2").MaxLabel)
	assert.Equal(t, []string{"benign", "malicious", "scan"}, labels.Names())
}

func TestAdd_MissingRequiredColumn(t *testing.T) {
	tests := []struct {
		name  string
		label bool
		line  string
	}{
		{"no destination", false, "10.0.0.1"},
		{"no label", true, "10.0.0.1 10.0.0.2 A"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg, err := New(pairSchema(t, tt.label), nil)
			require.NoError(t, err)

			err = agg.Add(tt.line)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errs.ErrMissingRequiredColumn))
			assert.True(t, errs.Is(err, errs.KindEncoding))
		})
	}
}

func TestIngestAll_StopsAtFirstBadLine(t *testing.T) {
	agg, err := New(pairSchema(t, false), nil)
	require.NoError(t, err)

	_, err = agg.IngestAll(context.Background(), window.NewSliceSource([]string{"a b A", "lonely"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestNew_RequiresEndpoints(t *testing.T) {
	s, err := schema.NewBuilder().Source(0).Categorical("Proto", 1, "tcp").Build()
	require.NoError(t, err)

	_, err = New(s, nil)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindConfig))
}
