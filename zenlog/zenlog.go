// Package zenlog provides process-wide structured-ish logging, mirroring the
// plain *log.Logger convention used throughout the orchestrator: one logger
// per severity, writing to a file under the user's home directory.
package zenlog

import (
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

var (
	InfoLog    *log.Logger
	WarningLog *log.Logger
	ErrorLog   *log.Logger
	DebugLog   *log.Logger
)

var debugEnabled = os.Getenv("DEBUG") == "true" || os.Getenv("DEBUG") == "1"

var globalLogFile *os.File

func init() {
	// Ensure the loggers are always non-nil, even if Initialize is never
	// called (e.g. in unit tests that import packages transitively).
	InfoLog = log.New(io.Discard, "INFO: ", log.Ldate|log.Ltime)
	WarningLog = log.New(io.Discard, "WARNING: ", log.Ldate|log.Ltime)
	ErrorLog = log.New(io.Discard, "ERROR: ", log.Ldate|log.Ltime)
	DebugLog = log.New(io.Discard, "DEBUG: ", log.Ldate|log.Ltime)
}

// Initialize opens (or falls back from) the log file at path and wires up
// InfoLog/WarningLog/ErrorLog/DebugLog. Call Close when done.
func Initialize(path string) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		fallbackToStderr()
		fmt.Fprintf(os.Stderr, "warning: could not create log dir: %v\n", err)
		return
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		fallbackToStderr()
		fmt.Fprintf(os.Stderr, "warning: using stderr for logging: %v\n", err)
		return
	}

	InfoLog = log.New(f, "INFO: ", log.Ldate|log.Ltime|log.Lshortfile)
	WarningLog = log.New(f, "WARNING: ", log.Ldate|log.Ltime|log.Lshortfile)
	ErrorLog = log.New(f, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile)
	if debugEnabled {
		DebugLog = log.New(f, "DEBUG: ", log.Ldate|log.Ltime|log.Lshortfile)
	} else {
		DebugLog = log.New(io.Discard, "", 0)
	}

	globalLogFile = f
}

func fallbackToStderr() {
	InfoLog = log.New(os.Stderr, "INFO: ", log.Ldate|log.Ltime)
	WarningLog = log.New(os.Stderr, "WARNING: ", log.Ldate|log.Ltime)
	ErrorLog = log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime)
	if debugEnabled {
		DebugLog = log.New(os.Stderr, "DEBUG: ", log.Ldate|log.Ltime)
	} else {
		DebugLog = log.New(io.Discard, "", 0)
	}
}

// Close flushes and closes the underlying log file, if one was opened.
func Close() {
	if globalLogFile != nil {
		_ = globalLogFile.Close()
	}
}

// IsDebugEnabled reports whether DEBUG=1/true was set in the environment.
func IsDebugEnabled() bool {
	return debugEnabled
}

// SanitizeURL redacts credentials embedded in a URL before it is logged.
func SanitizeURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "[INVALID_URL]"
	}
	if u.User != nil {
		redacted := "***@"
		if _, hasPassword := u.User.Password(); hasPassword {
			redacted = "***:***@"
		}
		// Spliced in as text: url.URL.String would percent-encode the '*'s.
		u.User = nil
		return strings.Replace(u.String(), "//", "//"+redacted, 1)
	}
	return u.String()
}

// SanitizeURLs redacts credentials in every URL-shaped token of message.
func SanitizeURLs(message string) string {
	words := strings.Fields(message)
	for i, word := range words {
		if strings.Contains(word, "://") {
			words[i] = SanitizeURL(word)
		}
	}
	return strings.Join(words, " ")
}
