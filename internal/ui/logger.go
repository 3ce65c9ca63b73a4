// Package ui provides terminal styling and logging setup for docrag.
package ui

import (
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// InitLogger sends logs to stderr at info level.
func InitLogger() {
	log.SetOutput(os.Stderr)
	log.SetLevel(log.InfoLevel)
	log.SetReportCaller(false)
	log.SetReportTimestamp(false)
}

// SetDebug enables debug logging.
func SetDebug(enabled bool) {
	if enabled {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// UseTimestamps prefixes log lines with the time, for long-running commands.
func UseTimestamps() {
	log.SetReportTimestamp(true)
	log.SetTimeFormat(time.TimeOnly)
}
