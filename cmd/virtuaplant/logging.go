package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

const (
	logDir      = "logs"
	logFileName = "virtuaplant.log"
	maxLogSize  = 10 * 1024 * 1024 // rotate past 10MB
)

// setupLogging points the standard logger at the chosen destination
// quiet discards everything; an empty path writes to stderr; otherwise logs/<path>
// is opened for append after rotating an oversized previous file
// The returned file, if any, must be closed by the caller
func setupLogging(path string, quiet bool) *os.File {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if quiet {
		log.SetOutput(io.Discard)
		return nil
	}
	if path == "" {
		log.SetOutput(os.Stderr)
		return nil
	}

	if !filepath.IsAbs(path) && filepath.Dir(path) == "." {
		path = filepath.Join(logDir, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "log dir: %v, logging to stderr\n", err)
		log.SetOutput(os.Stderr)
		return nil
	}

	if info, err := os.Stat(path); err == nil && info.Size() > maxLogSize {
		ext := filepath.Ext(path)
		rotated := fmt.Sprintf("%s.%s%s", path[:len(path)-len(ext)], time.Now().Format("20060102-150405"), ext)
		if err := os.Rename(path, rotated); err != nil {
			fmt.Fprintf(os.Stderr, "log rotate: %v\n", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "log file: %v, logging to stderr\n", err)
		log.SetOutput(os.Stderr)
		return nil
	}
	log.SetOutput(f)
	return f
}
