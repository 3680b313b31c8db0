package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger writes leveled entries for one gate session. A nil *Logger is valid
// and discards everything, so components can be built without one in tests.
type Logger struct {
	symbol   string
	interval string
	logFile  *os.File
	logger   *log.Logger
	mu       sync.Mutex
	logDir   string
	debug    bool
}

// LogLevel represents different types of log entries
type LogLevel string

const (
	LogLevelDebug   LogLevel = "DEBUG"
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARN"
	LogLevelError   LogLevel = "ERROR"
	LogLevelTrade   LogLevel = "TRADE"
	LogLevelStatus  LogLevel = "STATUS"
)

// NewLogger creates a file logger under logs/ for the symbol and interval
func NewLogger(symbol, interval string) (*Logger, error) {
	return NewLoggerWithDebug(symbol, interval, "logs", false)
}

// NewLoggerWithDebug creates a file logger in logDir; debug enables DEBUG entries
func NewLoggerWithDebug(symbol, interval, logDir string, debug bool) (*Logger, error) {
	if logDir == "" {
		logDir = "logs"
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logPath := filepath.Join(logDir, logFileName(symbol, interval))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l := &Logger{
		symbol:   symbol,
		interval: interval,
		logFile:  file,
		logger:   log.New(file, "", 0),
		logDir:   logDir,
		debug:    debug,
	}
	l.writeSessionHeader()

	return l, nil
}

// NewWriterLogger logs to an arbitrary writer, without session header or file
func NewWriterLogger(w io.Writer, debug bool) *Logger {
	return &Logger{
		symbol: "-",
		logger: log.New(w, "", 0),
		debug:  debug,
	}
}

func logFileName(symbol, interval string) string {
	return fmt.Sprintf("%s_%s_%s.log", symbol, interval, time.Now().Format("2006-01-02"))
}

func (l *Logger) writeSessionHeader() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	header := fmt.Sprintf(`
================================================================================
🚀 TRADE GATE SESSION STARTED
================================================================================
Symbol: %s | Interval: %s
Started: %s
Log File: %s
================================================================================
`, l.symbol, l.interval, now.Format("2006-01-02 15:04:05"), logFileName(l.symbol, l.interval))

	l.logger.Print(header)
}

// Log writes a formatted log entry with the specified level
func (l *Logger) Log(level LogLevel, format string, args ...interface{}) {
	if l == nil {
		return
	}
	if level == LogLevelDebug && !l.debug {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	message := fmt.Sprintf(format, args...)
	l.logger.Println(fmt.Sprintf("[%s] [%s] %s", timestamp, level, message))
}

// Debug logs only when the logger was built with debug enabled
func (l *Logger) Debug(format string, args ...interface{}) {
	l.Log(LogLevelDebug, format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.Log(LogLevelInfo, format, args...)
}

// Warning logs a warning message
func (l *Logger) Warning(format string, args ...interface{}) {
	l.Log(LogLevelWarning, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.Log(LogLevelError, format, args...)
}

// Trade logs a trading action
func (l *Logger) Trade(format string, args ...interface{}) {
	l.Log(LogLevelTrade, format, args...)
}

// Status logs gate status information
func (l *Logger) Status(format string, args ...interface{}) {
	l.Log(LogLevelStatus, format, args...)
}

// LogTradeExecution logs an executed entry order
func (l *Logger) LogTradeExecution(side, orderID string, quantity, price, cost, stopLoss, takeProfit float64) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	l.logger.Println(fmt.Sprintf(`
[%s] [TRADE] ==================== %s EXECUTED ====================
✅ Order ID: %s
📦 Quantity: %.8f %s
💰 Price: $%.4f
💵 Cost: $%.2f
🛑 Stop Loss: $%.4f | 🎯 Take Profit: $%.4f
=============================================================`,
		timestamp, side, orderID, quantity, l.symbol, price, cost, stopLoss, takeProfit))
}

// LogPositionClosed logs a realized position
func (l *Logger) LogPositionClosed(exitType string, entryPrice, exitPrice, pnl, returnPct float64) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	l.logger.Println(fmt.Sprintf(`
[%s] [TRADE] ==================== POSITION CLOSED (%s) ====================
🎯 Entry Price: $%.4f
🚪 Exit Price: $%.4f
💹 Realized P&L: $%.2f (%.2f%%)
==============================================================`,
		timestamp, exitType, entryPrice, exitPrice, pnl, returnPct))
}

// LogEmergency logs a kill switch trip
func (l *Logger) LogEmergency(code, message string) {
	l.Error("🚨 EMERGENCY STOP [%s]: %s", code, message)
}

// LogError logs error with context
func (l *Logger) LogError(context string, err error) {
	l.Error("%s: %v", context, err)
}

// LogWarning logs warning with context
func (l *Logger) LogWarning(context string, message string, args ...interface{}) {
	fullMessage := fmt.Sprintf(context+": "+message, args...)
	l.Warning("%s", fullMessage)
}

// Close closes the log file
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile != nil {
		timestamp := time.Now().Format("2006-01-02 15:04:05")
		footer := fmt.Sprintf(`
================================================================================
🛑 TRADE GATE SESSION ENDED
================================================================================
Ended: %s
================================================================================

`, timestamp)
		l.logger.Print(footer)

		err := l.logFile.Close()
		l.logFile = nil
		return err
	}
	return nil
}

// GetLogPath returns the current log file path
func (l *Logger) GetLogPath() string {
	if l == nil || l.logDir == "" {
		return ""
	}
	return filepath.Join(l.logDir, logFileName(l.symbol, l.interval))
}
