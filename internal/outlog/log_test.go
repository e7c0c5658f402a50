package outlog_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/suiterunner/harness/internal/outlog"
)

func TestSmallWritePassesThrough(t *testing.T) {
	l := outlog.New()
	_, err := l.Write([]byte("hello\n"))
	require.NoError(t, err)

	out := l.Finalize()
	require.Equal(t, "hello\n", string(out.Bytes))
	require.False(t, out.HasNonUTF8)
}

func TestTruncationInsertsBannerAndBoundsSize(t *testing.T) {
	l := outlog.New()

	// Fill head entirely, then push well past it so a tail remains.
	head := bytes.Repeat([]byte("a"), outlog.MaxHead)
	_, err := l.Write(head)
	require.NoError(t, err)

	tailContent := strings.Repeat("z", outlog.TailLength*3)
	_, err = l.Write([]byte(tailContent))
	require.NoError(t, err)

	out := l.Finalize()
	require.Contains(t, string(out.Bytes), outlog.TruncationBanner)

	// Invariant 6: total captured bytes never exceed MAX_HEAD + 2*TAIL_LENGTH.
	require.LessOrEqual(t, len(out.Bytes), outlog.MaxHead+2*outlog.TailLength+len(outlog.TruncationBanner))

	// Tail must be exactly the last TailLength bytes written.
	require.True(t, strings.HasSuffix(string(out.Bytes), strings.Repeat("z", outlog.TailLength)))
}

func TestNoTruncationMeansNoBanner(t *testing.T) {
	l := outlog.New()
	_, err := l.Write(bytes.Repeat([]byte("a"), outlog.MaxHead/2))
	require.NoError(t, err)

	out := l.Finalize()
	require.NotContains(t, string(out.Bytes), outlog.TruncationBanner)
}

func TestNonUTF8DataIsRepairedWithBanner(t *testing.T) {
	l := outlog.New()
	invalid := []byte{'o', 'k', 0xff, 0xfe, '\n'}
	_, err := l.Write(invalid)
	require.NoError(t, err)

	out := l.Finalize()
	require.True(t, out.HasNonUTF8)
	require.Contains(t, string(out.Bytes), outlog.NonUTF8Banner)
}

func TestFinalizeIsIdempotent(t *testing.T) {
	l := outlog.New()
	_, _ = l.Write([]byte("abc"))

	a := l.Finalize()
	b := l.Finalize()
	require.Equal(t, a.Bytes, b.Bytes)
	require.Equal(t, a.HasNonUTF8, b.HasNonUTF8)
}

func TestTeeWritesToSink(t *testing.T) {
	var sink bytes.Buffer
	l := outlog.NewTee(&sink)

	_, err := l.Write([]byte("hi"))
	require.NoError(t, err)
	require.Equal(t, "hi", sink.String())
	require.NoError(t, l.Close())
}

func TestCloseIsSafeOnAllPaths(t *testing.T) {
	l := outlog.New()
	require.NoError(t, l.Close())
	require.NoError(t, l.Close(), "Close must be idempotent")
}
