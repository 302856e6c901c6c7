// Package logging builds the structured logger of a repoman session.
//
// Every process gets one session ID; all loggers created during the session
// append JSON lines to <dir>/<session-id>-repoman.log.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a session logger backed by zap.
//
// The embedded *zap.Logger is what components receive through their
// WithLogger options.
type Logger struct {
	*zap.Logger

	sessionID string
	file      *os.File
	logPath   string
	closeOnce sync.Once
}

var (
	// Global session ID for the current execution
	sessionID     string
	sessionIDOnce sync.Once
)

// getSessionID returns or creates the session ID for this execution
func getSessionID() string {
	sessionIDOnce.Do(func() {
		sessionID = uuid.New().String()
	})
	return sessionID
}

// NewLogger creates a logger writing JSON lines at level (debug, info, warn,
// error) to <dir>/<session-id>-repoman.log.
//
// If the directory cannot be created or the file cannot be opened, it returns
// a fallback logger that writes to stderr along with the error. Callers can
// check the error to detect fallback mode and warn the user.
func NewLogger(dir, level string) (*Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	sessID := getSessionID()
	if err := os.MkdirAll(dir, 0750); err != nil {
		return newFallbackLogger(lvl, fmt.Errorf("failed to create log directory: %w", err))
	}

	logPath := filepath.Join(dir, fmt.Sprintf("%s-repoman.log", sessID))

	// Append mode: several loggers of one session share the file.
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return newFallbackLogger(lvl, fmt.Errorf("failed to open log file: %w", err))
	}

	return &Logger{
		Logger:    newZap(zapcore.AddSync(file), lvl, sessID),
		sessionID: sessID,
		file:      file,
		logPath:   logPath,
	}, nil
}

// newFallbackLogger creates a logger that writes to stderr when file logging fails
func newFallbackLogger(lvl zapcore.Level, err error) (*Logger, error) {
	sessID := getSessionID()
	l := &Logger{
		Logger:    newZap(zapcore.Lock(os.Stderr), lvl, sessID),
		sessionID: sessID,
	}
	l.Warn("file logging unavailable, falling back to stderr", zap.Error(err))
	return l, err
}

func newZap(ws zapcore.WriteSyncer, lvl zapcore.Level, sessID string) *zap.Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), ws, lvl)
	return zap.New(core).With(zap.String("session", sessID))
}

// ParseLevel converts a level name to a zap level. Empty means info.
func ParseLevel(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return lvl, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}

// SessionID returns the current session ID
func (l *Logger) SessionID() string {
	return l.sessionID
}

// LogPath returns the path to the log file, empty in fallback mode
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close flushes and closes the log file. Safe to call multiple times.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		_ = l.Sync()
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}
