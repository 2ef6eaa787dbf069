package autover

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"
)

// successKey marks an info entry as a success message
const successKey = "success"

var (
	colorRed    = lipgloss.Color("#ff5555")
	colorGreen  = lipgloss.Color("#50fa7b")
	colorYellow = lipgloss.Color("#f1fa8c")
	colorBlue   = lipgloss.Color("#8be9fd")
	colorDim    = lipgloss.Color("#6272a4")
)

// NewLogger returns a logger writing prefixed, colored lines to w
func NewLogger(w io.Writer, debug bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(NewLogFormatter(w, "autover"))
	logger.SetLevel(logrus.InfoLevel)
	if debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

// LogFormatter renders "[prefix] LEVEL message key=value" without timestamps.
// Colors are only emitted when the writer is a terminal.
type LogFormatter struct {
	Prefix string
	styles map[string]lipgloss.Style
	dim    lipgloss.Style
}

// NewLogFormatter binds the level styles to w
func NewLogFormatter(w io.Writer, prefix string) *LogFormatter {
	r := lipgloss.NewRenderer(w)
	label := func(c lipgloss.Color) lipgloss.Style {
		return r.NewStyle().Foreground(c).Bold(true)
	}
	return &LogFormatter{
		Prefix: prefix,
		styles: map[string]lipgloss.Style{
			"DEBUG":   label(colorDim),
			"INFO":    label(colorBlue),
			"WARNING": label(colorYellow),
			"ERROR":   label(colorRed),
			"SUCCESS": label(colorGreen),
		},
		dim: r.NewStyle().Foreground(colorDim),
	}
}

// Format implements logrus.Formatter
func (f *LogFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	level := strings.ToUpper(entry.Level.String())
	if ok, _ := entry.Data[successKey].(bool); ok {
		level = "SUCCESS"
	}
	if level == "FATAL" || level == "PANIC" {
		level = "ERROR"
	}

	var b bytes.Buffer
	if f.Prefix != "" {
		fmt.Fprintf(&b, "[%s] ", f.Prefix)
	}
	if style, ok := f.styles[level]; ok {
		b.WriteString(style.Render(level))
	} else {
		b.WriteString(level)
	}
	b.WriteByte(' ')
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k != successKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(f.dim.Render(fmt.Sprintf("%s=%v", k, entry.Data[k])))
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// logSuccess logs at info level, rendered with the SUCCESS label
func logSuccess(l logrus.FieldLogger, format string, args ...interface{}) {
	l.WithField(successKey, true).Infof(format, args...)
}

// loggerOrDiscard lets zero-value collaborators run without a logger
func loggerOrDiscard(l *logrus.Logger) *logrus.Logger {
	if l != nil {
		return l
	}
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	return discard
}
