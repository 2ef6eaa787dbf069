package autover

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestLogFormatter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, false)

	logger.WithField("count", 3).Info("hello")
	out := buf.String()
	require.Contains(t, out, "[autover] ")
	require.Contains(t, out, "INFO")
	require.Contains(t, out, "hello")
	require.Contains(t, out, "count=3")
	require.NotContains(t, out, "time=")
}

func TestLogFormatterLevels(t *testing.T) {
	tests := []struct {
		log   func(l *logrus.Logger)
		label string
	}{
		{func(l *logrus.Logger) { l.Debug("msg") }, "DEBUG"},
		{func(l *logrus.Logger) { l.Warn("msg") }, "WARNING"},
		{func(l *logrus.Logger) { l.Error("msg") }, "ERROR"},
		{func(l *logrus.Logger) { logSuccess(l, "done %d", 1) }, "SUCCESS"},
	}

	for _, test := range tests {
		t.Run(test.label, func(t *testing.T) {
			var buf bytes.Buffer
			test.log(NewLogger(&buf, true))
			require.Contains(t, buf.String(), test.label)
			require.NotContains(t, buf.String(), successKey+"=")
		})
	}
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, false).Debug("hidden")
	require.Empty(t, buf.String())

	NewLogger(&buf, true).Debug("shown")
	require.Contains(t, buf.String(), "shown")
}

func TestLogFormatterSortsFields(t *testing.T) {
	f := NewLogFormatter(&bytes.Buffer{}, "")
	entry := logrus.NewEntry(logrus.New())
	entry.Level = logrus.InfoLevel
	entry.Message = "fields"
	entry.Data = logrus.Fields{"b": 2, "a": 1}

	out, err := f.Format(entry)
	require.NoError(t, err)
	require.Less(t, bytes.Index(out, []byte("a=1")), bytes.Index(out, []byte("b=2")))
	require.False(t, bytes.HasPrefix(out, []byte("[")))
}

func TestLoggerOrDiscard(t *testing.T) {
	require.NotNil(t, loggerOrDiscard(nil))

	l := logrus.New()
	require.Same(t, l, loggerOrDiscard(l))
}
