package log

import (
	"context"
	"log"
	"strings"
	"sync/atomic"
)

// levelRank orders the interface's eight methods by severity so a
// configured floor can mute the chattier ones. It departs from syslog's
// RFC 5424 scale in two places. Notice sits between Info and Warn
// there, but nothing in this module currently emits it above routine
// milestones, so it's ranked just below Info here rather than above it.
// Alert sits above Critical and Error there but is ranked between Warn
// and Error here, so a floor of "error" or "critical" mutes Alert calls.
var levelRank = map[string]int32{
	"debug":     0,
	"notice":    1,
	"info":      2,
	"warn":      3,
	"alert":     4,
	"error":     5,
	"critical":  6,
	"emergency": 7,
}

// CslLogger is the console-backed default Logger implementation. It
// carries no state beyond the stdlib log package's own global logger,
// plus an atomically adjustable severity floor driven by
// cfg.Config.Log.Level so a config reload can quiet or un-quiet it
// without restarting the process that owns it.
type CslLogger struct {
	floor int32
}

// NewCslLogger builds a console logger at the "info" floor.
func NewCslLogger() (*CslLogger, error) {
	return NewCslLoggerAtLevel("info")
}

// NewCslLoggerAtLevel builds a console logger that only emits calls
// ranked at or above level, falling back to "info" for an unrecognized
// name so a config typo mutes nothing rather than muting everything.
func NewCslLoggerAtLevel(level string) (*CslLogger, error) {
	l := &CslLogger{}
	l.SetLevel(level)
	return l, nil
}

// SetLevel adjusts the severity floor at runtime; safe to call
// concurrently with in-flight log calls.
func (l *CslLogger) SetLevel(level string) {
	rank, ok := levelRank[strings.ToLower(level)]
	if !ok {
		rank = levelRank["info"]
	}
	atomic.StoreInt32(&l.floor, rank)
}

func (l *CslLogger) emit(rank int32, prefix, format string, args ...interface{}) {
	if rank < atomic.LoadInt32(&l.floor) {
		return
	}
	log.Printf(prefix+format, args...)
}

func (l *CslLogger) Info(ctx context.Context, format string, args ...interface{}) {
	l.emit(levelRank["info"], "[INFO] ", format, args...)
}

func (l *CslLogger) Alert(ctx context.Context, format string, args ...interface{}) {
	l.emit(levelRank["alert"], "[ALERT] ", format, args...)
}

func (l *CslLogger) Error(ctx context.Context, format string, args ...interface{}) {
	l.emit(levelRank["error"], "[ERROR] ", format, args...)
}

func (l *CslLogger) Warn(ctx context.Context, format string, args ...interface{}) {
	l.emit(levelRank["warn"], "[WARN] ", format, args...)
}

func (l *CslLogger) Debug(ctx context.Context, format string, args ...interface{}) {
	l.emit(levelRank["debug"], "[DEBUG] ", format, args...)
}

func (l *CslLogger) Critical(ctx context.Context, format string, args ...interface{}) {
	l.emit(levelRank["critical"], "[CRITICAL] ", format, args...)
}

func (l *CslLogger) Emergency(ctx context.Context, format string, args ...interface{}) {
	l.emit(levelRank["emergency"], "[EMERGENCY] ", format, args...)
}

func (l *CslLogger) Notice(ctx context.Context, format string, args ...interface{}) {
	l.emit(levelRank["notice"], "[NOTICE] ", format, args...)
}
