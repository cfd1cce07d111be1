package log

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerWritesFormattedLine(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("core", &buf)
	l.Infof("round %d started", 3)

	out := buf.String()
	require.Contains(t, out, "INFO")
	require.Contains(t, out, "core")
	require.Contains(t, out, "round 3 started")
}

func TestLoggerSetLevelSuppressesBelow(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("core", &buf)
	l.SetLevel(LevelWarn)

	l.Debugf("should not appear")
	l.Infof("should not appear either")
	l.Warnf("should appear")

	out := buf.String()
	require.NotContains(t, out, "should not appear")
	require.Contains(t, out, "should appear")
}

func TestLoggerNamedAppendsSuffix(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("node", &buf)
	child := l.Named("consensus")
	child.Errorf("boom")
	require.True(t, strings.Contains(buf.String(), "node.consensus"))
}

func TestLevelString(t *testing.T) {
	require.Equal(t, "DEBUG", LevelDebug.String())
	require.Equal(t, "ERROR", LevelError.String())
}
