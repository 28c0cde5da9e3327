package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

// ANSI color codes
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
)

var (
	coloredLoggingEnabled bool
	logFile               *os.File
	logger                *log.Logger
)

// InitLogger initializes console and file logging. Colors are on unless
// LOG_COLOR=false; files go to LOG_DIR (default "logs").
func InitLogger() {
	coloredLoggingEnabled = os.Getenv("LOG_COLOR") != "false"

	logDir := os.Getenv("LOG_DIR")
	if logDir == "" {
		logDir = "logs"
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.Printf("Failed to create log directory: %v", err)
	}

	logFilePath := filepath.Join(logDir, fmt.Sprintf("buff-deliver-%s.log", time.Now().Format("2006-01-02")))

	var err error
	logFile, err = os.OpenFile(logFilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("Failed to open log file: %v", err)
	} else {
		multiWriter := io.MultiWriter(os.Stdout, logFile)
		logger = log.New(multiWriter, "", log.LstdFlags)
	}

	LogInfo("Logging initialized. Logs will be saved to: %s", logFilePath)
}

// CloseLogger closes the log file
func CloseLogger() {
	if logFile != nil {
		logFile.Close()
	}
}

// LogDebug logs a debug message
func LogDebug(format string, args ...interface{}) {
	logWithLevel("DEBUG", ColorCyan, format, args...)
}

// LogInfo logs an info message
func LogInfo(format string, args ...interface{}) {
	logWithLevel("INFO", ColorGreen, format, args...)
}

// LogWarning logs a warning message
func LogWarning(format string, args ...interface{}) {
	logWithLevel("WARNING", ColorYellow, format, args...)
}

// LogError logs an error message
func LogError(format string, args ...interface{}) {
	logWithLevel("ERROR", ColorRed, format, args...)
}

func logWithLevel(level string, color string, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)

	if logger != nil {
		// File output stays color-free
		logger.Printf("[%s] %s", level, message)
		return
	}

	if coloredLoggingEnabled {
		level = color + level + ColorReset
	}
	log.Printf("[%s] %s", level, message)
}
