package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// ParseLevel maps a level name to a Level, defaulting to INFO.
func ParseLevel(level string) Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

type Logger struct {
	level    Level
	mu       *sync.Mutex
	out      io.Writer
	tag      string
	debugLog *log.Logger
	infoLog  *log.Logger
	warnLog  *log.Logger
	errorLog *log.Logger
}

func New(level string) *Logger {
	return NewWithOutput(level, os.Stderr)
}

// NewWithOutput builds a logger writing every level to w.
func NewWithOutput(level string, w io.Writer) *Logger {
	return build(ParseLevel(level), w, "", &sync.Mutex{})
}

func build(lvl Level, w io.Writer, tag string, mu *sync.Mutex) *Logger {
	flags := log.LstdFlags | log.Lshortfile | log.Lmicroseconds
	prefix := func(name string) string {
		if tag == "" {
			return "[" + name + "] "
		}
		return "[" + name + "] [" + tag + "] "
	}

	return &Logger{
		level:    lvl,
		mu:       mu,
		out:      w,
		tag:      tag,
		debugLog: log.New(w, prefix("DEBUG"), flags),
		infoLog:  log.New(w, prefix("INFO"), flags),
		warnLog:  log.New(w, prefix("WARN"), flags),
		errorLog: log.New(w, prefix("ERROR"), flags),
	}
}

// Named returns a logger sharing the output and level, tagging every line
// with the component name.
func (l *Logger) Named(tag string) *Logger {
	if l.tag != "" {
		tag = l.tag + "." + tag
	}
	return build(l.level, l.out, tag, l.mu)
}

func (l *Logger) print(lvl Level, lg *log.Logger, format string, args ...interface{}) {
	if l.level > lvl {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	// calldepth 3: print -> Debug/Info/... -> caller
	lg.Output(3, fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.print(DEBUG, l.debugLog, format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.print(INFO, l.infoLog, format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.print(WARN, l.warnLog, format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.print(ERROR, l.errorLog, format, args...)
}

// Fields renders key=value pairs in a stable order for log lines.
func Fields(ctx map[string]interface{}) string {
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, ctx[k]))
	}
	return strings.Join(parts, " ")
}
