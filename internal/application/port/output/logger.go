package output

// LoggerPort is the structured logger the engine packages depend on.
// Messages take alternating key/value pairs, zap-sugar style; the With
// variants return a child logger carrying the fields on every entry, which
// is how sessions stamp their id onto everything they log.
type LoggerPort interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	WithField(key string, value any) LoggerPort
	WithFields(fields map[string]any) LoggerPort

	// Close flushes buffered entries.
	Close() error
}
