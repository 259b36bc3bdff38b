package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/light-rec/lr-ibcf/internal/recommend"
)

var matches = []recommend.Match{
	{Candidate: recommend.Candidate{ID: "inception", Title: "Inception"}, Score: 0.99},
	{Candidate: recommend.Candidate{ID: "amelie", Title: "Amelie"}, Score: 0},
}

func TestWriteMatches_Plain(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMatches(&buf, matches, true))
	assert.Equal(t, "inception\t0.990000\tInception\namelie\t0.000000\tAmelie\n", buf.String())
}

func TestWriteMatches_Table(t *testing.T) {
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = false })

	var buf bytes.Buffer
	require.NoError(t, WriteMatches(&buf, matches, false))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[0]), "ITEM")
	assert.Contains(t, string(lines[1]), "inception")
	assert.Contains(t, string(lines[1]), "0.9900")
	assert.Contains(t, string(lines[2]), "amelie")
}

func TestMatchIDs(t *testing.T) {
	assert.Equal(t, "inception\namelie", MatchIDs(matches))
	assert.Empty(t, MatchIDs(nil))
}

func TestFormatAge(t *testing.T) {
	now := time.Now()
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{90 * time.Second, "1 minute ago"},
		{5 * time.Minute, "5 minutes ago"},
		{61 * time.Minute, "1 hour ago"},
		{5 * time.Hour, "5 hours ago"},
		{25 * time.Hour, "1 day ago"},
		{72 * time.Hour, "3 days ago"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatAge(now.Add(-tt.ago)), tt.ago.String())
	}
}

func TestPositiveInt(t *testing.T) {
	assert.NoError(t, positiveInt("20"))
	assert.Error(t, positiveInt("0"))
	assert.Error(t, positiveInt("many"))
}
