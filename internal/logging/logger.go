// Package logging configures the process-wide logrus logger.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	writerMu  sync.Mutex
	logWriter *lumberjack.Logger
)

// Formatter renders one line per entry:
// [2026-01-05 08:00:00] [info ] [store.go:91] Plan generated | plan_id=..., user_id=...
type Formatter struct{}

// Format implements log.Formatter.
func (f *Formatter) Format(entry *log.Entry) ([]byte, error) {
	buffer := entry.Buffer
	if buffer == nil {
		buffer = &bytes.Buffer{}
	}

	level := entry.Level.String()
	if level == "warning" {
		level = "warn"
	}

	fmt.Fprintf(buffer, "[%s] [%-5s]", entry.Time.Format("2006-01-02 15:04:05"), level)
	if entry.Caller != nil {
		fmt.Fprintf(buffer, " [%s:%d]", filepath.Base(entry.Caller.File), entry.Caller.Line)
	}
	buffer.WriteString(" ")
	buffer.WriteString(strings.TrimRight(entry.Message, "\r\n"))

	if len(entry.Data) > 0 {
		keys := make([]string, 0, len(entry.Data))
		for k := range entry.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buffer.WriteString(" |")
		for i, k := range keys {
			if i > 0 {
				buffer.WriteString(",")
			}
			fmt.Fprintf(buffer, " %s=%v", k, entry.Data[k])
		}
	}
	buffer.WriteString("\n")
	return buffer.Bytes(), nil
}

// Setup installs the formatter, sets the level and points output at stdout,
// or at a rotating file when file is set. gin's writers follow the logger.
func Setup(level, file string) error {
	lvl := log.InfoLevel
	if level != "" {
		parsed, err := log.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("logging: invalid level %q: %w", level, err)
		}
		lvl = parsed
	}

	log.SetLevel(lvl)
	log.SetReportCaller(true)
	log.SetFormatter(&Formatter{})

	if err := setOutput(file); err != nil {
		return err
	}

	gin.DefaultWriter = log.StandardLogger().Writer()
	gin.DefaultErrorWriter = log.StandardLogger().WriterLevel(log.ErrorLevel)
	return nil
}

func setOutput(file string) error {
	writerMu.Lock()
	defer writerMu.Unlock()

	if logWriter != nil {
		_ = logWriter.Close()
		logWriter = nil
	}

	if file == "" {
		log.SetOutput(os.Stdout)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return fmt.Errorf("logging: failed to create log directory: %w", err)
	}
	logWriter = &lumberjack.Logger{
		Filename:   file,
		MaxSize:    10,
		MaxBackups: 5,
		MaxAge:     30,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, logWriter))
	return nil
}

// Close flushes and closes the rotating file, if any.
func Close() {
	writerMu.Lock()
	defer writerMu.Unlock()
	if logWriter != nil {
		_ = logWriter.Close()
		logWriter = nil
	}
}
