package debug

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (device, sizes, persisted files)
	LevelLive    = 2 // Live info (state transitions, captures)
	LevelVerbose = 3 // Verbose (requests, pipeline stages)
	LevelTrace   = 4 // Trace (frames, GPIO, very low level)
)

var (
	level  atomic.Int32
	logger atomic.Pointer[zap.SugaredLogger]

	outMu sync.Mutex
	out   io.Writer = os.Stdout
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (device, chosen sizes, persisted files)
// 2 = live info (state transitions, captures)
// 3 = verbose (requests, pipeline stages, config)
// 4 = trace (frames, GPIO, very low level)
func Init(debugLevel int) {
	level.Store(int32(debugLevel))
	if debugLevel > LevelOff {
		outMu.Lock()
		build(out)
		outMu.Unlock()
		return
	}
	logger.Store(nil)
}

// SetOutput redirects debug output to w.
// The logger is rebuilt so the change applies to subsequent messages.
func SetOutput(w io.Writer) {
	outMu.Lock()
	defer outMu.Unlock()
	out = w
	if Level() > LevelOff {
		build(w)
	}
}

func build(w io.Writer) {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05.000000")
	enc.CallerKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), zapcore.DebugLevel)
	logger.Store(zap.New(core).Named("chromara").Sugar())
}

// Sync flushes buffered output.
func Sync() {
	if l := logger.Load(); l != nil {
		_ = l.Sync()
	}
}

// Level returns the current debug level.
func Level() int {
	return int(level.Load())
}

func at(minLevel int) *zap.SugaredLogger {
	if Level() < minLevel {
		return nil
	}
	return logger.Load()
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	if l := at(LevelInfo); l != nil {
		l.Infof(format, args...)
	}
}

// Summary prints an important summary (level 1).
func Summary(title string) {
	if l := at(LevelInfo); l != nil {
		l.Info("═══════════════════════════════════════")
		l.Infof("  %s", title)
		l.Info("═══════════════════════════════════════")
	}
}

// Persisted prints a saved asset (level 1).
func Persisted(kind, name, uri string) {
	if l := at(LevelInfo); l != nil {
		l.Infow("asset persisted", "kind", kind, "name", name, "uri", uri)
	}
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	if l := at(LevelLive); l != nil {
		l.Named("live").Infof(format, args...)
	}
}

// Transition prints a session state change (level 2).
func Transition(session, from, to, event string) {
	if l := at(LevelLive); l != nil {
		l.Named("live").Infow("session transition", "session", session, "from", from, "to", to, "event", event)
	}
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	if l := at(LevelVerbose); l != nil {
		l.Debugf(format, args...)
	}
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	if l := at(LevelVerbose); l != nil {
		l.Debugf("%s: %+v", name, v)
	}
}

// Section prints a section separator (level 3).
func Section(name string) {
	if l := at(LevelVerbose); l != nil {
		l.Debug("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		l.Debugf("  %s", name)
		l.Debug("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	}
}

// Step prints a numbered step (level 3).
func Step(num int, description string) {
	if l := at(LevelVerbose); l != nil {
		l.Debugf("Step %d: %s", num, description)
	}
}

// Value prints a named value in formatted form (level 1).
func Value(name string, value interface{}) {
	if l := at(LevelInfo); l != nil {
		l.Infof("  %s = %v", name, value)
	}
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace).
func Trace(format string, args ...interface{}) {
	if l := at(LevelTrace); l != nil {
		l.Named("trace").Debugf(format, args...)
	}
}

// Frame prints a delivered frame (level 4).
func Frame(output string, width, height, size int) {
	if l := at(LevelTrace); l != nil {
		l.Named("trace").Debugw("frame", "output", output, "width", width, "height", height, "bytes", size)
	}
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	if l := at(LevelTrace); l != nil {
		l.Named("gpio").Debugf("%s pin=%d value=%v", operation, pin, value)
	}
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	if l := at(LevelInfo); l != nil {
		l.Error(err)
	}
}
