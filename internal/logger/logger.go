package logger

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"camsync/internal/config"

	"github.com/sirupsen/logrus"
)

// Logger provides leveled logging (debug/info/warning/error) to files and stdout/stderr.
type Logger struct {
	log    *logrus.Logger
	logDir string
	mu     sync.Mutex
}

// levelFileHook fans each entry out to the writer registered for its level.
type levelFileHook struct {
	writers map[logrus.Level]io.Writer
}

func (h *levelFileHook) Levels() []logrus.Level {
	levels := make([]logrus.Level, 0, len(h.writers))
	for level := range h.writers {
		levels = append(levels, level)
	}
	return levels
}

func (h *levelFileHook) Fire(entry *logrus.Entry) error {
	line, err := entry.Bytes()
	if err != nil {
		return err
	}
	_, err = h.writers[entry.Level].Write(line)
	return err
}

// NewLogger creates a Logger and ensures the log directory exists.
func NewLogger(config *config.Config) *Logger {
	if err := os.MkdirAll(config.LogDirectory, 0755); err != nil {
		log.Fatalf("Failed to create log directory: %v", err)
	}

	logger := &Logger{
		log:    logrus.New(),
		logDir: config.LogDirectory,
	}

	level, err := logrus.ParseLevel(config.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.log.SetLevel(level)

	logger.setupLoggers()
	return logger
}

// NewNop returns a Logger that discards everything. Used by tests and tools.
func NewNop() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Logger{log: l}
}

// setupLoggers initializes writers and per-level file hooks.
func (l *Logger) setupLoggers() {
	infoFileHandle := l.openLogFile(filepath.Join(l.logDir, "info.log"))
	warningFileHandle := l.openLogFile(filepath.Join(l.logDir, "warning.log"))
	errorFileHandle := l.openLogFile(filepath.Join(l.logDir, "error.log"))

	infoWriter := io.MultiWriter(os.Stdout, infoFileHandle)

	l.log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	l.log.SetOutput(io.Discard)
	l.log.AddHook(&levelFileHook{writers: map[logrus.Level]io.Writer{
		logrus.DebugLevel: infoWriter,
		logrus.InfoLevel:  infoWriter,
		logrus.WarnLevel:  io.MultiWriter(os.Stdout, warningFileHandle),
		logrus.ErrorLevel: io.MultiWriter(os.Stderr, errorFileHandle),
	}})
}

// openLogFile opens or creates a log file for appending.
func (l *Logger) openLogFile(filename string) *os.File {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file %s: %v", filename, err)
	}
	return file
}

// Debug writes a formatted debug-level log entry.
func (l *Logger) Debug(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log.Debugf(format, v...)
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log.Infof(format, v...)
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log.Warnf(format, v...)
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log.Errorf(format, v...)
}

// CleanLogs truncates the specified log file.
func (l *Logger) CleanLogs(fileName string) {
	if l.logDir == "" {
		return
	}
	filePath := filepath.Join(l.logDir, fileName)
	file, err := os.OpenFile(filePath, os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		l.Error("Error opening file: %v", err)
		return
	}
	defer file.Close()

	l.Info("Log file %s has been cleared.", fileName)
}
