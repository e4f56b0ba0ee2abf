// Package log is a module-scoped, level-aware logger in the idiom the
// teacher codebase uses everywhere (`logger = log.NewModuleLogger(...)`)
// without ever shipping its own log package in this pack. It is rebuilt
// here rather than replaced with the standard library's log package,
// since every call site across the corpus expects Trace/Debug/Info/
// Warn/Error/Crit with key-value pairs.
package log

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
)

// Module identifies the subsystem a logger belongs to, mirroring the
// teacher's log.StorageDatabase / log.ConsensusIstanbulBackend constants.
type Module string

const (
	ModuleUTXO        Module = "utxo"
	ModulePool        Module = "pool"
	ModuleValidator   Module = "validator"
	ModuleSampling    Module = "sampling"
	ModuleSlot        Module = "slot"
	ModuleChain       Module = "chain"
	ModuleP2P         Module = "p2p"
	ModuleStorage     Module = "storage"
	ModuleDatasync    Module = "datasync"
	ModuleNode        Module = "node"
	ModuleCommon      Module = "common"
)

type Level int

const (
	LvlCrit Level = iota
	LvlError
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

var levelNames = map[Level]string{
	LvlCrit:  "CRIT",
	LvlError: "ERROR",
	LvlWarn:  "WARN",
	LvlInfo:  "INFO",
	LvlDebug: "DEBUG",
	LvlTrace: "TRACE",
}

var levelColors = map[Level]*color.Color{
	LvlCrit:  color.New(color.FgRed, color.Bold),
	LvlError: color.New(color.FgRed),
	LvlWarn:  color.New(color.FgYellow),
	LvlInfo:  color.New(color.FgGreen),
	LvlDebug: color.New(color.FgCyan),
	LvlTrace: color.New(color.FgWhite),
}

var (
	mu        sync.Mutex
	out       = colorable.NewColorableStdout()
	globalLvl = LvlInfo
)

// SetLevel sets the process-wide verbosity floor; call sites below it are
// dropped before any formatting work happens.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	globalLvl = l
}

// Logger is a contextual logger bound to a module and a set of sticky
// key-value pairs, matching the teacher's log.Logger interface shape.
type Logger interface {
	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	Crit(msg string, ctx ...interface{})
	New(ctx ...interface{}) Logger
	NewWith(ctx ...interface{}) Logger
}

type logger struct {
	module Module
	ctx    []interface{}
}

// NewModuleLogger returns the logger for a subsystem, the call-site
// convention used throughout the teacher's packages.
func NewModuleLogger(m Module) Logger {
	return &logger{module: m}
}

// New returns a root logger tagged with ad-hoc key-value context, used
// outside a fixed module (e.g. storage/database's per-file logger).
func New(ctx ...interface{}) Logger {
	return &logger{module: "", ctx: ctx}
}

func (l *logger) New(ctx ...interface{}) Logger {
	merged := append(append([]interface{}{}, l.ctx...), ctx...)
	return &logger{module: l.module, ctx: merged}
}

func (l *logger) NewWith(ctx ...interface{}) Logger { return l.New(ctx...) }

func (l *logger) log(lvl Level, msg string, ctx []interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if lvl > globalLvl {
		return
	}
	var b strings.Builder
	b.WriteString(time.Now().UTC().Format("2006-01-02T15:04:05.000Z"))
	b.WriteByte(' ')
	c := levelColors[lvl]
	b.WriteString(c.Sprintf("[%-5s]", levelNames[lvl]))
	if l.module != "" {
		b.WriteString(" ")
		b.WriteString(color.New(color.Faint).Sprintf("%s", l.module))
	}
	b.WriteString(" ")
	b.WriteString(msg)
	all := append(append([]interface{}{}, l.ctx...), ctx...)
	for i := 0; i+1 < len(all); i += 2 {
		fmt.Fprintf(&b, " %v=%v", all[i], all[i+1])
	}
	if lvl <= LvlError {
		if call := callSite(3); call != "" {
			fmt.Fprintf(&b, " at=%s", call)
		}
	}
	fmt.Fprintln(out, b.String())
	if lvl == LvlCrit {
		os.Exit(1)
	}
}

// callSite reports the first frame outside this package, the same role
// go-stack/stack plays in the teacher's logger.
func callSite(skip int) string {
	trace := stack.Trace().TrimBelow(stack.Caller(skip))
	if len(trace) == 0 {
		return ""
	}
	return fmt.Sprintf("%+v", trace[0])
}

func (l *logger) Trace(msg string, ctx ...interface{}) { l.log(LvlTrace, msg, ctx) }
func (l *logger) Debug(msg string, ctx ...interface{}) { l.log(LvlDebug, msg, ctx) }
func (l *logger) Info(msg string, ctx ...interface{})  { l.log(LvlInfo, msg, ctx) }
func (l *logger) Warn(msg string, ctx ...interface{})  { l.log(LvlWarn, msg, ctx) }
func (l *logger) Error(msg string, ctx ...interface{}) { l.log(LvlError, msg, ctx) }
func (l *logger) Crit(msg string, ctx ...interface{})  { l.log(LvlCrit, msg, ctx) }

// package-level convenience wrappers, used by bootstrap code before a
// module logger is constructed.
func Info(msg string, ctx ...interface{})  { New().Info(msg, ctx...) }
func Warn(msg string, ctx ...interface{})  { New().Warn(msg, ctx...) }
func Error(msg string, ctx ...interface{}) { New().Error(msg, ctx...) }
func Crit(msg string, ctx ...interface{})  { New().Crit(msg, ctx...) }
