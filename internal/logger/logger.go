// internal/logger/logger.go
package logger

import (
	"log"
	"os"
	"strings"
)

type Logger struct {
	*log.Logger
}

func New() *Logger {
	return &Logger{
		Logger: log.New(os.Stdout, "", log.LstdFlags),
	}
}

func NewLogger(prefix string) *Logger {
	return &Logger{
		Logger: log.New(os.Stdout, "["+prefix+"] ", log.LstdFlags),
	}
}

func (l *Logger) Info(msg string, fields ...interface{}) {
	if len(fields) == 0 {
		l.Printf("[INFO] %s", msg)
		return
	}
	l.Printf("[INFO] "+msg, fields...)
}

func (l *Logger) Error(msg string, err error) {
	l.Printf("[ERROR] %s: %v", msg, err)
}

func (l *Logger) Debug(msg string, fields ...interface{}) {
	if len(fields) == 0 {
		l.Printf("[DEBUG] %s", msg)
		return
	}
	l.Printf("[DEBUG] "+msg, fields...)
}

// Ctx formats structured request context (uploadId, route, requestId, ...)
// as space-separated key=value pairs for use ahead of a log line.
func Ctx(kv ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(kv[i])
		b.WriteByte('=')
		b.WriteString(kv[i+1])
	}
	return b.String()
}
