package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Logger writes component-tagged lines to the console. All methods are safe
// for concurrent use.
type Logger struct {
	mu    sync.Mutex
	out   io.Writer
	file  *os.File
	level Level
}

var (
	debugColor    = color.New(color.FgHiBlack)
	infoColor     = color.New(color.FgGreen)
	warnColor     = color.New(color.FgYellow)
	errorColor    = color.New(color.FgRed, color.Bold)
	processColor  = color.New(color.FgCyan)
	databaseColor = color.New(color.FgBlue)
	kafkaColor    = color.New(color.FgMagenta)
	paymentColor  = color.New(color.FgHiGreen)
	bookingColor  = color.New(color.FgHiCyan)
	securityColor = color.New(color.FgHiYellow)
	integrity     = color.New(color.FgHiRed, color.Bold, color.Underline)
)

// NewLogger returns a console logger. When LOG_FILE is set, lines are also
// appended to that file without colour codes.
func NewLogger() *Logger {
	l := &Logger{out: os.Stdout, level: LevelInfo}
	if os.Getenv("LOG_LEVEL") == "debug" {
		l.level = LevelDebug
	}
	if path := os.Getenv("LOG_FILE"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err == nil {
			l.file = f
		}
	}
	return l
}

// NewWithWriter is used by tests to capture or discard output.
func NewWithWriter(w io.Writer) *Logger {
	return &Logger{out: w, level: LevelDebug}
}

func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}
}

func (l *Logger) write(c *color.Color, level Level, label, component, msg string) {
	if level < l.level {
		return
	}
	ts := time.Now().Format("2006-01-02 15:04:05.000")
	line := fmt.Sprintf("%s [%-5s] [%s] %s", ts, label, component, msg)

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = c.Fprintln(l.out, line)
	if l.file != nil {
		_, _ = fmt.Fprintln(l.file, line)
	}
}

func (l *Logger) Debug(component, msg string) { l.write(debugColor, LevelDebug, "DEBUG", component, msg) }
func (l *Logger) Info(component, msg string)  { l.write(infoColor, LevelInfo, "INFO", component, msg) }
func (l *Logger) Warn(component, msg string)  { l.write(warnColor, LevelWarn, "WARN", component, msg) }
func (l *Logger) Error(component, msg string) { l.write(errorColor, LevelError, "ERROR", component, msg) }

// Fatal logs and exits the process.
func (l *Logger) Fatal(component, msg string) {
	l.write(errorColor, LevelError, "FATAL", component, msg)
	l.Close()
	os.Exit(1)
}

func (l *Logger) LogProcess(stage, msg string) {
	l.write(processColor, LevelInfo, "INFO", stage, msg)
}

func (l *Logger) LogDatabase(op, db, msg string) {
	l.write(databaseColor, LevelDebug, "DEBUG", "DB:"+db, fmt.Sprintf("%s %s", op, msg))
}

func (l *Logger) LogKafka(op, topic, msg string) {
	l.write(kafkaColor, LevelInfo, "INFO", "KAFKA:"+topic, fmt.Sprintf("%s %s", op, msg))
}

func (l *Logger) LogPayment(op, paymentID, msg string) {
	l.write(paymentColor, LevelInfo, "INFO", "PAYMENT:"+paymentID, fmt.Sprintf("%s %s", op, msg))
}

func (l *Logger) LogBooking(op, sessionID, msg string) {
	l.write(bookingColor, LevelInfo, "INFO", "BOOKING:"+sessionID, fmt.Sprintf("%s %s", op, msg))
}

func (l *Logger) LogAPI(method, path, status, duration string) {
	l.write(infoColor, LevelInfo, "INFO", "API", fmt.Sprintf("%s %s - %s (%s)", method, path, status, duration))
}

func (l *Logger) LogSecurity(event, msg string) {
	l.write(securityColor, LevelWarn, "WARN", "SECURITY:"+event, msg)
}

// LogIntegrity reports a charged payment that holds no seat and was not
// refunded. These lines feed manual reconciliation alerts.
func (l *Logger) LogIntegrity(studio, paymentIntentID, reason, msg string) {
	l.write(integrity, LevelError, "ERROR", "INTEGRITY",
		fmt.Sprintf("studio=%s payment_intent=%s reason=%s: %s", studio, paymentIntentID, reason, msg))
}
