// Package logging routes the standard logger through a level filter.
// Callers log with a "[LEVEL] component: " prefix.
package logging

import (
	"io"
	"log"
	"strings"

	"github.com/hashicorp/logutils"
)

// Levels in ascending severity.
var Levels = []logutils.LogLevel{"DEBUG", "INFO", "WARN", "ERROR"}

// Filter builds a LevelFilter writing to w. Unknown levels fall back to INFO.
func Filter(level string, w io.Writer) *logutils.LevelFilter {
	min := logutils.LogLevel(strings.ToUpper(strings.TrimSpace(level)))
	known := false
	for _, l := range Levels {
		if l == min {
			known = true
			break
		}
	}
	if !known {
		min = "INFO"
	}
	return &logutils.LevelFilter{
		Levels:   Levels,
		MinLevel: min,
		Writer:   w,
	}
}

// Setup installs the filter on the standard logger.
func Setup(level string, w io.Writer) {
	log.SetOutput(Filter(level, w))
	log.Printf("[DEBUG] logging: level %s", level)
}
