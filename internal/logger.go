package internal

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pangalink/entity"
	"pangalink/services"
)

// Logger writes structured log lines with zap. Warnings and errors are also
// stored in the database log collection when a database is set.
type Logger struct {
	category string
	debug    bool
	zap      *zap.Logger
	database services.Database
}

func NewLogger(category string, debug bool, database services.Database) *Logger {
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	if debug {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := config.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return &Logger{
		category: category,
		debug:    debug,
		zap:      logger.With(zap.String("category", category)),
		database: database,
	}
}

// NewTestLogger discards all output.
func NewTestLogger() *Logger {
	return &Logger{category: "test", zap: zap.NewNop()}
}

func (l *Logger) Debug(text string) {
	if !l.debug {
		return
	}
	l.zap.Debug(text)
}

func (l *Logger) Info(text string) {
	l.zap.Info(text)
}

func (l *Logger) Warn(text string) {
	l.zap.Warn(text)
	l.store("warning", text)
}

func (l *Logger) Error(text string, err error) {
	l.zap.Error(text, zap.Error(err))
	if err != nil {
		text = fmt.Sprintf("%s: %v", text, err)
	}
	l.store("error", text)
}

func (l *Logger) store(level, text string) {
	if l.database == nil {
		return
	}
	message := &entity.LogMessage{
		Time:     time.Now(),
		Level:    level,
		Category: l.category,
		Text:     text,
	}
	if err := l.database.WriteLogMessage(message); err != nil {
		l.zap.Warn("store log message", zap.Error(err))
	}
}
