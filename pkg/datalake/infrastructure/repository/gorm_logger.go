package repository

import (
	"fmt"
	"strings"
	"time"

	gormlogger "gorm.io/gorm/logger"

	"github.com/tigerroll/datalake-export/pkg/datalake/support/util/logger"
)

// NewGormLogger routes GORM output to the application logger. SQL statements are only traced
// when the application runs at DEBUG.
func NewGormLogger() gormlogger.Interface {
	level := gormlogger.Warn
	if logger.GetLogLevel() == logger.LevelDebug {
		level = gormlogger.Info
	}
	return gormlogger.New(NewGormWriter(), gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// GormWriter implements gormlogger.Writer on top of the application logger.
type GormWriter struct{}

// NewGormWriter creates a GormWriter.
func NewGormWriter() *GormWriter {
	return &GormWriter{}
}

// Printf implements gormlogger.Writer.
func (w *GormWriter) Printf(format string, v ...interface{}) {
	msg := strings.TrimSpace(fmt.Sprintf(format, v...))
	if isStatement(msg) {
		logger.Debugf("[GORM] %s", msg)
		return
	}
	logger.Warnf("[GORM] %s", msg)
}

func isStatement(msg string) bool {
	for _, verb := range []string{"SELECT", "INSERT", "UPDATE", "DELETE", "CREATE"} {
		if strings.Contains(msg, verb) && !strings.Contains(msg, "SLOW SQL") {
			return true
		}
	}
	return false
}
