package log

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	cblog "github.com/charmbracelet/log"
)

// Logger embeds the Charm Logger.
type Logger = cblog.Logger

var (
	logger     *Logger
	initLogger sync.Once
)

// New builds a styled logger writing to w. Components take one of these so
// tests can point it at a buffer.
func New(w io.Writer, prefix string) *Logger {
	styles := cblog.DefaultStyles()
	styles.Levels[cblog.FatalLevel] = lipgloss.NewStyle().
		SetString(" FATAL").
		Foreground(lipgloss.Color("1"))
	styles.Levels[cblog.ErrorLevel] = lipgloss.NewStyle().
		SetString(" ERROR").
		Foreground(lipgloss.Color("9"))
	styles.Levels[cblog.WarnLevel] = lipgloss.NewStyle().
		SetString("  WARN").
		Foreground(lipgloss.Color("3"))
	styles.Levels[cblog.InfoLevel] = lipgloss.NewStyle().
		SetString("  INFO").
		Foreground(lipgloss.Color("2"))
	styles.Levels[cblog.DebugLevel] = lipgloss.NewStyle().
		SetString(" DEBUG").
		Foreground(lipgloss.Color("4"))

	base := cblog.New(w)
	base.SetStyles(styles)
	base.SetReportTimestamp(true)
	base.SetLevel(cblog.InfoLevel)
	base.SetPrefix(prefix)
	return base
}

// GetLogger returns the process-wide logger.
func GetLogger() *Logger {
	initLogger.Do(func() {
		logger = New(os.Stderr, "wallshuffle")
	})
	return logger
}

// SetLevel parses a level name ("debug", "info", ...) and applies it to the
// process-wide logger. Unknown names leave the level unchanged.
func SetLevel(name string) error {
	level, err := cblog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return err
	}
	GetLogger().SetLevel(level)
	return nil
}

// Or returns l, or the process-wide logger when l is nil.
func Or(l *Logger) *Logger {
	if l != nil {
		return l
	}
	return GetLogger()
}

// * Convenience wrappers

func Debug(msg interface{}, keyvals ...interface{}) { GetLogger().Debug(msg, keyvals...) }
func Debugf(format string, v ...interface{})        { GetLogger().Debugf(format, v...) }
func Info(msg interface{}, keyvals ...interface{})  { GetLogger().Info(msg, keyvals...) }
func Infof(format string, v ...interface{})         { GetLogger().Infof(format, v...) }
func Warn(msg interface{}, keyvals ...interface{})  { GetLogger().Warn(msg, keyvals...) }
func Warnf(format string, v ...interface{})         { GetLogger().Warnf(format, v...) }
func Error(msg interface{}, keyvals ...interface{}) { GetLogger().Error(msg, keyvals...) }
func Errorf(format string, v ...interface{})        { GetLogger().Errorf(format, v...) }
func Fatal(msg interface{}, keyvals ...interface{}) { GetLogger().Fatal(msg, keyvals...) }
