// Copyright 2024 The tewta Authors
// This file is part of the tewta library.
//
// The tewta library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The tewta library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the tewta library. If not, see <http://www.gnu.org/licenses/>.

// Package log is the module-scoped structured logger shared by every package
// in this repository. Call sites look like:
//
//	var logger = log.NewModuleLogger(log.P2P)
//	logger.Debug("dialing peer", "addr", addr)
//
// Records are written through a single zap core; this package only adds the
// module tag, the familiar key/value call surface, and TTY-aware formatting
// on top of it.
package log

import (
	"fmt"
	"os"
	"sync"

	"github.com/fatih/color"
	colorable "github.com/mattn/go-colorable"
	"github.com/go-stack/stack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Module names one of this repository's packages for the purpose of
// attributing log lines. New modules are added here, not invented ad hoc at
// call sites.
type Module string

const (
	P2P       Module = "p2p"
	Discovery Module = "discover"
	DHT       Module = "dht"
	Node      Module = "node"
	Common    Module = "common"
	Crypto    Module = "crypto"
	Config    Module = "config"
	Metrics   Module = "metrics"
)

// Lvl is a logging verbosity level, ordered from most to least severe.
type Lvl int

const (
	LvlCrit Lvl = iota
	LvlError
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

var levelNames = map[Lvl]string{
	LvlCrit:  "CRIT",
	LvlError: "ERROR",
	LvlWarn:  "WARN",
	LvlInfo:  "INFO",
	LvlDebug: "DEBUG",
	LvlTrace: "TRACE",
}

var levelColors = map[Lvl]*color.Color{
	LvlCrit:  color.New(color.FgWhite, color.BgRed, color.Bold),
	LvlError: color.New(color.FgRed, color.Bold),
	LvlWarn:  color.New(color.FgYellow),
	LvlInfo:  color.New(color.FgGreen),
	LvlDebug: color.New(color.FgCyan),
	LvlTrace: color.New(color.FgMagenta),
}

var (
	mu          sync.Mutex
	globalLevel = LvlInfo
	moduleLevel = map[Module]Lvl{}
	callerInfo  = false
	out         = colorable.NewColorableStdout()
	useColor    = isTerminal(os.Stdout)
	core        zapcore.Core
	coreOnce    sync.Once
)

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

func zapCore() zapcore.Core {
	coreOnce.Do(func() {
		ws := zapcore.AddSync(out)
		enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
			TimeKey:    "t",
			MessageKey: "msg",
			EncodeTime: zapcore.ISO8601TimeEncoder,
		})
		core = zapcore.NewCore(enc, ws, zapcore.DebugLevel)
	})
	return core
}

// SetGlobalLevel bounds every module logger not given its own level via
// SetModuleLevel.
func SetGlobalLevel(l Lvl) {
	mu.Lock()
	defer mu.Unlock()
	globalLevel = l
}

// SetModuleLevel overrides the verbosity of a single module, e.g. raising
// just "dht" to debug while the rest of the node stays at info.
func SetModuleLevel(m Module, l Lvl) {
	mu.Lock()
	defer mu.Unlock()
	moduleLevel[m] = l
}

// SetCallerInfo prepends file:line to every record.
func SetCallerInfo(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	callerInfo = enabled
}

func effectiveLevel(m Module) Lvl {
	mu.Lock()
	defer mu.Unlock()
	if l, ok := moduleLevel[m]; ok {
		return l
	}
	return globalLevel
}

// Logger is a module-bound logger. The zero value is not usable; obtain one
// via NewModuleLogger.
type Logger struct {
	module Module
	zap    *zap.Logger
}

// NewModuleLogger returns the logger used by every call site in module m.
func NewModuleLogger(m Module) *Logger {
	l := zap.New(zapCore())
	return &Logger{module: m, zap: l}
}

func (l *Logger) log(lvl Lvl, msg string, kv ...interface{}) {
	if lvl > effectiveLevel(l.module) {
		return
	}
	prefix := fmt.Sprintf("[%s]", l.module)
	if callerInfo {
		prefix = fmt.Sprintf("%s %+v", prefix, stack.Caller(2))
	}
	fields := toZapFields(kv)
	fields = append(fields, zap.String("module", string(l.module)))
	line := prefix + " " + msg
	if useColor {
		line = levelColors[lvl].Sprint(prefix) + " " + msg
	}

	switch lvl {
	case LvlCrit, LvlError:
		l.zap.Error(line, fields...)
	case LvlWarn:
		l.zap.Warn(line, fields...)
	case LvlInfo:
		l.zap.Info(line, fields...)
	case LvlDebug:
		l.zap.Debug(line, fields...)
	default:
		l.zap.Debug(line, fields...)
	}
}

func toZapFields(kv []interface{}) []zap.Field {
	if len(kv) == 0 {
		return nil
	}
	fields := make([]zap.Field, 0, len(kv)/2+1)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kv[i])
		}
		fields = append(fields, zap.Any(key, kv[i+1]))
	}
	if len(kv)%2 == 1 {
		fields = append(fields, zap.Any("extra", kv[len(kv)-1]))
	}
	return fields
}

func (l *Logger) Crit(msg string, kv ...interface{})  { l.log(LvlCrit, msg, kv...); os.Exit(1) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.log(LvlError, msg, kv...) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.log(LvlWarn, msg, kv...) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.log(LvlInfo, msg, kv...) }
func (l *Logger) Debug(msg string, kv ...interface{}) { l.log(LvlDebug, msg, kv...) }
func (l *Logger) Trace(msg string, kv ...interface{}) { l.log(LvlTrace, msg, kv...) }

// Sync flushes the underlying zap core; call during graceful shutdown.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}
