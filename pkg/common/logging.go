package common

import "log"

// Logger is the minimal logging surface the coordination subsystems use.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type stdLogger struct {
	prefix string
}

func (l *stdLogger) Infof(format string, args ...any) {
	log.Printf("INFO "+l.prefix+": "+format, args...)
}

func (l *stdLogger) Warnf(format string, args ...any) {
	log.Printf("WARN "+l.prefix+": "+format, args...)
}

func (l *stdLogger) Errorf(format string, args ...any) {
	log.Printf("ERROR "+l.prefix+": "+format, args...)
}

// NewLogger returns a stdlib-backed logger tagged with the given subsystem prefix.
func NewLogger(prefix string) Logger {
	return &stdLogger{prefix: prefix}
}

var DefaultLogger Logger = &stdLogger{prefix: "podsync"}
