package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// Level represents the logging level
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

var levelNames = map[Level]string{
	DebugLevel: "DEBUG",
	InfoLevel:  "INFO",
	WarnLevel:  "WARN",
	ErrorLevel: "ERROR",
	FatalLevel: "FATAL",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// Logger is the printf-style logger every component receives
type Logger interface {
	Debug(format string, v ...any)
	Info(format string, v ...any)
	Warn(format string, v ...any)
	Error(format string, v ...any)
	Fatal(format string, v ...any)
}

// LogConfig holds configuration for the logger. Empty fields fall back to
// LOG_OUTPUT, LOG_LEVEL and LOG_FILE_PATH.
type LogConfig struct {
	// Output destination: "file" or "stderr"
	Output string
	// Log level: "debug", "info", "warn", "error", "fatal"
	Level string
	// FilePath for file output (only used when Output is "file")
	FilePath string
	// Writer overrides Output and FilePath when set
	Writer io.Writer
}

type standardLogger struct {
	logger    *log.Logger
	level     Level
	component string
}

// NewLogger creates a logger writing "[LEVEL] [component] message" lines
// with a timestamp
func NewLogger(config LogConfig) (Logger, error) {
	writer, err := openOutput(config)
	if err != nil {
		return nil, err
	}
	return &standardLogger{
		logger: log.New(writer, "", log.LstdFlags),
		level:  parseLevel(firstNonEmpty(config.Level, os.Getenv("LOG_LEVEL"), "info")),
	}, nil
}

// NewNoOpLogger creates a logger that discards all output
func NewNoOpLogger() Logger {
	return &standardLogger{logger: log.New(io.Discard, "", 0), level: FatalLevel}
}

// openOutput resolves the destination: an explicit writer, stderr inside
// containers, otherwise ~/.exam-mcp/exam.log opened for append.
func openOutput(config LogConfig) (io.Writer, error) {
	if config.Writer != nil {
		return config.Writer, nil
	}

	output := firstNonEmpty(config.Output, os.Getenv("LOG_OUTPUT"))
	if output == "" {
		output = "file"
		if inContainer() {
			output = "stderr"
		}
	}

	switch output {
	case "stderr":
		return os.Stderr, nil
	case "file":
		path := firstNonEmpty(config.FilePath, os.Getenv("LOG_FILE_PATH"))
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to get user home directory: %w", err)
			}
			path = filepath.Join(home, ".exam-mcp", "exam.log")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		return file, nil
	}
	return nil, fmt.Errorf("invalid log output: %s (expected 'file' or 'stderr')", output)
}

func inContainer() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return os.Getenv("KUBERNETES_SERVICE_HOST") != ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseLevel converts a level name to a Level; unknown names are InfoLevel
func parseLevel(name string) Level {
	name = strings.ToUpper(name)
	if name == "WARNING" {
		return WarnLevel
	}
	for level, n := range levelNames {
		if n == name {
			return level
		}
	}
	return InfoLevel
}

// WithComponent returns a logger that tags every message with a component
// name, e.g. "[INFO] [extract] page 3: 42 lines". Nested components are
// joined with "/". Loggers of other implementations are returned unchanged.
func WithComponent(parent Logger, component string) Logger {
	std, ok := parent.(*standardLogger)
	if !ok {
		return parent
	}
	name := component
	if std.component != "" {
		name = std.component + "/" + component
	}
	return &standardLogger{logger: std.logger, level: std.level, component: name}
}

func (l *standardLogger) Debug(format string, v ...any) { l.logf(DebugLevel, format, v...) }
func (l *standardLogger) Info(format string, v ...any)  { l.logf(InfoLevel, format, v...) }
func (l *standardLogger) Warn(format string, v ...any)  { l.logf(WarnLevel, format, v...) }
func (l *standardLogger) Error(format string, v ...any) { l.logf(ErrorLevel, format, v...) }

// Fatal logs regardless of level and exits
func (l *standardLogger) Fatal(format string, v ...any) {
	l.write(FatalLevel, format, v...)
	os.Exit(1)
}

func (l *standardLogger) logf(level Level, format string, v ...any) {
	if level >= l.level {
		l.write(level, format, v...)
	}
}

func (l *standardLogger) write(level Level, format string, v ...any) {
	message := fmt.Sprintf(format, v...)
	if l.component != "" {
		l.logger.Printf("[%s] [%s] %s", level, l.component, message)
		return
	}
	l.logger.Printf("[%s] %s", level, message)
}
