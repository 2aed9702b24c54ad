// Package logger provides the bot's logging system on top of logrus.
// Entries go to a colored console formatter, to log files through a hook,
// and to Discord webhooks through a second, asynchronous hook.
package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	LevelCritical LogLevel = iota
	LevelError
	LevelWarn
	LevelSuccess
	LevelInfo
	LevelDebug
	LevelSystem
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LevelCritical:
		return "CRITICAL"
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelSuccess:
		return "SUCCESS"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	case LevelSystem:
		return "SYSTEM"
	default:
		return "UNKNOWN"
	}
}

// Color returns the ANSI color code for the log level
func (l LogLevel) Color() string {
	switch l {
	case LevelCritical:
		return "\033[1;31m" // Bold Red
	case LevelError:
		return "\033[31m"
	case LevelWarn:
		return "\033[33m"
	case LevelSuccess:
		return "\033[32m"
	case LevelInfo:
		return "\033[36m"
	case LevelDebug:
		return "\033[35m"
	case LevelSystem:
		return "\033[34m"
	default:
		return "\033[0m"
	}
}

// DiscordColor returns the Discord embed color for the log level
func (l LogLevel) DiscordColor() int {
	switch l {
	case LevelCritical, LevelError:
		return 0xFF0000
	case LevelWarn:
		return 0xFFFF00
	case LevelSuccess:
		return 0x00FF00
	case LevelInfo:
		return 0x0000FF
	case LevelDebug:
		return 0x800080
	case LevelSystem:
		return 0x808080
	default:
		return 0xFFFFFF
	}
}

// logrusLevel maps the bot level onto the closest logrus level.
// Panic and Fatal are never used: logrus would panic or exit on them.
func (l LogLevel) logrusLevel() logrus.Level {
	switch l {
	case LevelCritical, LevelError:
		return logrus.ErrorLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelDebug:
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}

const (
	colorReset  = "\033[0m"
	fieldLevel  = "level"
	fieldPrefix = "prefix"
	timeLayout  = "2006-01-02 15:04:05"
)

// entryLevel reads the bot level stored on a logrus entry
func entryLevel(e *logrus.Entry) LogLevel {
	if l, ok := e.Data[fieldLevel].(LogLevel); ok {
		return l
	}
	switch e.Level {
	case logrus.PanicLevel, logrus.FatalLevel:
		return LevelCritical
	case logrus.ErrorLevel:
		return LevelError
	case logrus.WarnLevel:
		return LevelWarn
	case logrus.DebugLevel, logrus.TraceLevel:
		return LevelDebug
	}
	return LevelInfo
}

func entryPrefix(e *logrus.Entry) string {
	if p, ok := e.Data[fieldPrefix].(string); ok {
		return p
	}
	return "SYS"
}

// formatLine renders "[time] [LEVEL] [prefix]: message"
func formatLine(e *logrus.Entry, colored bool) []byte {
	level := entryLevel(e)
	name := level.String()
	if colored {
		name = level.Color() + name + colorReset
	}
	return []byte(fmt.Sprintf("[%s] [%s] [%s]: %s\n",
		e.Time.Format(timeLayout), name, entryPrefix(e), e.Message))
}

// consoleFormatter is the logrus formatter for the terminal
type consoleFormatter struct{}

func (consoleFormatter) Format(e *logrus.Entry) ([]byte, error) {
	return formatLine(e, true), nil
}

// fileHook writes every entry to combined.log and errors to error.log
type fileHook struct {
	mu       sync.Mutex
	combined *os.File
	errors   *os.File
}

func (h *fileHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *fileHook) Fire(e *logrus.Entry) error {
	line := formatLine(e, false)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.combined != nil {
		if _, err := h.combined.Write(line); err != nil {
			return err
		}
	}
	if entryLevel(e) <= LevelError && h.errors != nil {
		if _, err := h.errors.Write(line); err != nil {
			return err
		}
	}
	return nil
}

func (h *fileHook) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.combined != nil {
		h.combined.Close()
		h.combined = nil
	}
	if h.errors != nil {
		h.errors.Close()
		h.errors = nil
	}
}

// webhookHook mirrors entries to Discord: errors to one webhook, the rest
// to another
type webhookHook struct {
	errorURL string
	logsURL  string
	client   *http.Client
}

func (h *webhookHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *webhookHook) Fire(e *logrus.Entry) error {
	level := entryLevel(e)
	url := h.logsURL
	if level <= LevelError {
		url = h.errorURL
	}
	if url == "" {
		return nil
	}
	go h.send(url, level, entryPrefix(e), e.Message)
	return nil
}

func (h *webhookHook) send(url string, level LogLevel, prefix, message string) {
	embed := map[string]interface{}{
		"title":       fmt.Sprintf("[%s] %s", level.String(), prefix),
		"description": fmt.Sprintf("```%s```", message),
		"color":       level.DiscordColor(),
		"timestamp":   time.Now().Format(time.RFC3339),
		"footer": map[string]string{
			"text": "💫 Developed by PancyStudio | PancyModBot",
		},
	}

	jsonData, err := json.Marshal(map[string]interface{}{"embeds": []interface{}{embed}})
	if err != nil {
		return
	}

	req, err := http.NewRequest("POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}

// Logger is the main logging structure
type Logger struct {
	logrus *logrus.Logger
	files  *fileHook
}

var (
	logger *Logger
	once   sync.Once
)

// Init initializes the global logger instance
func Init(errorWebhook, logsWebhook string) *Logger {
	once.Do(func() {
		logger = NewLogger(errorWebhook, logsWebhook)
	})
	return logger
}

// Get returns the global logger instance
func Get() *Logger {
	once.Do(func() {
		logger = NewLogger("", "")
	})
	return logger
}

// NewLogger creates a Logger writing to the console, ./logs and the given
// webhooks (empty URLs disable them)
func NewLogger(errorWebhook, logsWebhook string) *Logger {
	l := &Logger{
		logrus: logrus.New(),
		files:  &fileHook{},
	}
	l.logrus.SetOutput(os.Stdout)
	l.logrus.SetFormatter(consoleFormatter{})
	l.logrus.SetLevel(logrus.DebugLevel)

	logsDir := filepath.Join(".", "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		fmt.Printf("Error creating logs directory: %v\n", err)
	}

	var err error
	l.files.combined, err = os.OpenFile(filepath.Join(logsDir, "combined.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Printf("Error opening combined log file: %v\n", err)
	}
	l.files.errors, err = os.OpenFile(filepath.Join(logsDir, "error.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Printf("Error opening error log file: %v\n", err)
	}

	l.logrus.AddHook(l.files)
	if errorWebhook != "" || logsWebhook != "" {
		l.logrus.AddHook(&webhookHook{
			errorURL: errorWebhook,
			logsURL:  logsWebhook,
			client:   &http.Client{Timeout: 5 * time.Second},
		})
	}
	return l
}

func (l *Logger) log(level LogLevel, message string, prefix string) {
	l.logrus.WithFields(logrus.Fields{
		fieldLevel:  level,
		fieldPrefix: prefix,
	}).Log(level.logrusLevel(), message)
}

// Logrus exposes the underlying logger, e.g. for gin's writers
func (l *Logger) Logrus() *logrus.Logger {
	return l.logrus
}

// Close closes the log files
func (l *Logger) Close() {
	l.files.close()
}

// Critical logs a critical message
func (l *Logger) Critical(message string, prefix string) {
	l.log(LevelCritical, message, prefix)
}

// Error logs an error message
func (l *Logger) Error(message string, prefix string) {
	l.log(LevelError, message, prefix)
}

// Warn logs a warning message
func (l *Logger) Warn(message string, prefix string) {
	l.log(LevelWarn, message, prefix)
}

// Success logs a success message
func (l *Logger) Success(message string, prefix string) {
	l.log(LevelSuccess, message, prefix)
}

// Info logs an info message
func (l *Logger) Info(message string, prefix string) {
	l.log(LevelInfo, message, prefix)
}

// Debug logs a debug message
func (l *Logger) Debug(message string, prefix string) {
	l.log(LevelDebug, message, prefix)
}

// System logs a system message
func (l *Logger) System(message string, prefix string) {
	l.log(LevelSystem, message, prefix)
}

// Package-level functions for convenience

func Critical(message string, prefix string) { Get().Critical(message, prefix) }
func Error(message string, prefix string)    { Get().Error(message, prefix) }
func Warn(message string, prefix string)     { Get().Warn(message, prefix) }
func Success(message string, prefix string)  { Get().Success(message, prefix) }
func Info(message string, prefix string)     { Get().Info(message, prefix) }
func Debug(message string, prefix string)    { Get().Debug(message, prefix) }
func System(message string, prefix string)   { Get().System(message, prefix) }
