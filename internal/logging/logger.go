// Package logging provides the leveled file logger used across stepcap.
// Log output goes to a file under the project's .stepcap directory so it
// never interleaves with command output; the file is size-rotated and old
// rotations are cleaned up on a fixed age.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger levels
const (
	DEBUG = iota
	INFO
	WARN
	ERROR
)

var (
	globalLogger *Logger
	once         sync.Once

	defaultLogDir  = ".stepcap/logs"
	defaultLogFile = "stepcap.log"
	maxLogSize     = int64(10 * 1024 * 1024) // 10MB
	maxLogAge      = 7 * 24 * time.Hour
)

// Logger writes leveled, rotated log output to a file.
type Logger struct {
	mu          sync.Mutex
	file        *os.File
	logger      *log.Logger
	level       int
	logPath     string
	maxSize     int64
	currentSize int64
}

// Initialize sets up the global logger rooted at projectDir. Safe to call
// more than once; only the first call takes effect.
func Initialize(projectDir string) error {
	var initErr error
	once.Do(func() {
		globalLogger = &Logger{level: INFO, maxSize: maxLogSize}
		initErr = globalLogger.init(projectDir)
	})
	return initErr
}

// Get returns the global logger, initializing it against the current
// directory if Initialize was never called.
func Get() *Logger {
	if globalLogger == nil {
		Initialize(".")
	}
	return globalLogger
}

func (l *Logger) init(projectDir string) error {
	logDir := filepath.Join(projectDir, defaultLogDir)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	l.logPath = filepath.Join(logDir, defaultLogFile)
	return l.openLogFile()
}

func (l *Logger) openLogFile() error {
	file, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	if info, err := file.Stat(); err == nil {
		l.currentSize = info.Size()
	}
	l.file = file
	l.logger = log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	return nil
}

// rotateIfNeeded rotates the log file once it crosses the size cap.
func (l *Logger) rotateIfNeeded() {
	if l.currentSize < l.maxSize {
		return
	}
	if l.file != nil {
		l.file.Close()
	}
	rotated := filepath.Join(filepath.Dir(l.logPath),
		fmt.Sprintf("stepcap-%s.log", time.Now().Format("20060102-150405")))
	if err := os.Rename(l.logPath, rotated); err != nil {
		return
	}
	if err := l.openLogFile(); err != nil {
		return
	}
	go l.cleanOldLogs()
}

// cleanOldLogs removes rotated log files older than maxLogAge.
func (l *Logger) cleanOldLogs() {
	logDir := filepath.Dir(l.logPath)
	files, err := os.ReadDir(logDir)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-maxLogAge)
	for _, file := range files {
		if file.IsDir() || file.Name() == defaultLogFile || filepath.Ext(file.Name()) != ".log" {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(filepath.Join(logDir, file.Name()))
		}
	}
}

func (l *Logger) write(level int, format string, v ...interface{}) {
	if level < l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.logger == nil {
		return
	}
	l.rotateIfNeeded()
	msg := fmt.Sprintf("[%s] %s", levelString(level), fmt.Sprintf(format, v...))
	l.logger.Output(2, msg)
	l.currentSize += int64(len(msg)) + 1
}

func levelString(level int) string {
	switch level {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// SetLevel sets the minimum level the logger emits.
func (l *Logger) SetLevel(level int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Close closes the underlying log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Package-level helpers on the global logger.

// Debug logs a debug message.
func Debug(format string, v ...interface{}) { Get().write(DEBUG, format, v...) }

// Info logs an info message.
func Info(format string, v ...interface{}) { Get().write(INFO, format, v...) }

// Warn logs a warning message.
func Warn(format string, v ...interface{}) { Get().write(WARN, format, v...) }

// Error logs an error message.
func Error(format string, v ...interface{}) { Get().write(ERROR, format, v...) }
