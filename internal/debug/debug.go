package debug

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (config, FPS, errors)
	LevelLive    = 2 // Live info (per-frame motor commands, misses)
	LevelVerbose = 3 // Verbose (calculation details, steps)
	LevelTrace   = 4 // Trace (GPIO, very low level)
)

var (
	mu     sync.RWMutex
	level  int
	out    io.Writer = os.Stdout
	logger           = zerolog.Nop()
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (config, FPS)
// 2 = live info (motor commands per frame)
// 3 = verbose (calculation details, steps)
// 4 = trace (GPIO, very low level)
func Init(debugLevel int) {
	mu.Lock()
	defer mu.Unlock()
	level = debugLevel
	rebuild()
}

// SetOutput redirects log output (e.g. to stdout plus the web status stream).
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	rebuild()
}

// rebuild must be called with mu held.
func rebuild() {
	if level <= LevelOff {
		logger = zerolog.Nop()
		return
	}
	cw := zerolog.ConsoleWriter{Out: out, NoColor: true, TimeFormat: "15:04:05.000000"}
	logger = zerolog.New(cw).Level(zerolog.TraceLevel).With().Timestamp().Str("app", "babycam").Logger()
}

// Level returns the current debug level.
func Level() int {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return Level() >= minLevel
}

// Logger returns the underlying structured logger, tagged with component.
func Logger(component string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger.With().Str("component", component).Logger()
}

func emit(minLevel int, zl zerolog.Level, format string, args ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	if level < minLevel {
		return
	}
	logger.WithLevel(zl).Msgf(format, args...)
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	emit(LevelInfo, zerolog.InfoLevel, format, args...)
}

// FPS prints the processed frame rate (level 1).
func FPS(fps float64) {
	emit(LevelInfo, zerolog.InfoLevel, "FPS: %.1f", fps)
}

// Value prints a named value in formatted form (level 1).
func Value(name string, value interface{}) {
	emit(LevelInfo, zerolog.InfoLevel, "  %s = %v", name, value)
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	emit(LevelLive, zerolog.InfoLevel, format, args...)
}

// Command prints a per-frame motor command with the target's centre error (level 2).
func Command(frame, stepX, stepY int, errX, errY float64) {
	emit(LevelLive, zerolog.InfoLevel, "Frame %d: Motor X=%+4d, Motor Y=%+4d steps | Error X=%+.1f%%, Y=%+.1f%%",
		frame, stepX, stepY, errX, errY)
}

// Miss prints a frame without a detected target (level 2).
func Miss(frame int) {
	emit(LevelLive, zerolog.InfoLevel, "Frame %d: no face detected, holding last command", frame)
}

// Move prints a motor movement (level 2).
func Move(motor string, steps int, direction string) {
	emit(LevelLive, zerolog.InfoLevel, "Motor %s: %d steps (%s)", motor, steps, direction)
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	emit(LevelVerbose, zerolog.DebugLevel, format, args...)
}

// Printf is an alias for Verbose.
func Printf(format string, args ...interface{}) {
	Verbose(format, args...)
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	emit(LevelVerbose, zerolog.DebugLevel, "%s: %+v", name, v)
}

// Section prints a section separator (level 3).
func Section(name string) {
	emit(LevelVerbose, zerolog.DebugLevel, "━━━ %s ━━━", name)
}

// Step prints a numbered step (level 3).
func Step(num int, description string) {
	emit(LevelVerbose, zerolog.DebugLevel, "Step %d: %s", num, description)
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace, GPIO).
func Trace(format string, args ...interface{}) {
	emit(LevelTrace, zerolog.TraceLevel, format, args...)
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	emit(LevelTrace, zerolog.TraceLevel, "[GPIO] %s pin=%d value=%v", operation, pin, value)
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	emit(LevelInfo, zerolog.ErrorLevel, "%v", err)
}
