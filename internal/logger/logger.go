package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logMu   sync.RWMutex
	base    *zap.Logger
	sugar   *zap.SugaredLogger
	logFile *os.File
	level   = zap.NewAtomicLevelAt(zap.InfoLevel)

	lastRotateCheck int64 // unix nano
)

const (
	// MaxLogSizeBytes rotate system.log past 5MB
	MaxLogSizeBytes int64 = 5 * 1024 * 1024
	// MaxRotatedFiles rotated files kept besides system.log
	MaxRotatedFiles = 2
)

func logDir() string {
	if d := strings.TrimSpace(os.Getenv("PLANTCARE_LOG_DIR")); d != "" {
		return d
	}
	return "/var/log/plantcare"
}

// InitLogger opens system.log (falling back to the temp dir without permission) and
// tees output to stdout.
func InitLogger() error {
	dir := logDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		dir = filepath.Join(os.TempDir(), "plantcare")
		if err2 := os.MkdirAll(dir, 0755); err2 != nil {
			return err
		}
	}

	file, err := os.OpenFile(filepath.Join(dir, "system.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		dir = filepath.Join(os.TempDir(), "plantcare")
		_ = os.MkdirAll(dir, 0755)
		file, err = os.OpenFile(filepath.Join(dir, "system.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
	}

	logMu.Lock()
	defer logMu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
	}
	logFile = file
	build()
	return nil
}

func build() {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	enc := zapcore.NewConsoleEncoder(encCfg)

	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.Lock(os.Stdout), level)}
	if logFile != nil {
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(logFile), level))
	}
	base = zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	sugar = base.WithOptions(zap.AddCallerSkip(2)).Sugar()
}

// SetLevel accepts debug, info, warn or error
func SetLevel(l string) error {
	var lv zapcore.Level
	if err := lv.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(l)))); err != nil {
		return fmt.Errorf("invalid log level %q: %w", l, err)
	}
	level.SetLevel(lv)
	return nil
}

// L returns the structured logger; a no-op logger before InitLogger
func L() *zap.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	if base == nil {
		return zap.NewNop()
	}
	return base
}

func maybeRotate() {
	// stat at most once a second
	now := time.Now().UnixNano()
	last := atomic.LoadInt64(&lastRotateCheck)
	if last != 0 && now-last < int64(time.Second) {
		return
	}
	atomic.StoreInt64(&lastRotateCheck, now)
	_ = RotateLog(MaxLogSizeBytes)
}

func logf(fn func(*zap.SugaredLogger, string, ...interface{}), format string, v ...interface{}) {
	maybeRotate()
	logMu.RLock()
	s := sugar
	logMu.RUnlock()
	if s != nil {
		fn(s, format, v...)
	}
}

// Info logs at info level
func Info(format string, v ...interface{}) {
	logf((*zap.SugaredLogger).Infof, format, v...)
}

// Error logs at error level
func Error(format string, v ...interface{}) {
	logf((*zap.SugaredLogger).Errorf, format, v...)
}

// Warn logs at warn level
func Warn(format string, v ...interface{}) {
	logf((*zap.SugaredLogger).Warnf, format, v...)
}

// Debug logs at debug level
func Debug(format string, v ...interface{}) {
	logf((*zap.SugaredLogger).Debugf, format, v...)
}

// Fatal logs and exits
func Fatal(format string, v ...interface{}) {
	logf((*zap.SugaredLogger).Errorf, format, v...)
	Close()
	os.Exit(1)
}

// Close flushes and closes the log file
func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if base != nil {
		_ = base.Sync()
	}
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	build()
}

// CurrentLogPath path of the active log file
func CurrentLogPath() string {
	logMu.RLock()
	defer logMu.RUnlock()
	if logFile != nil {
		if name := strings.TrimSpace(logFile.Name()); name != "" {
			return name
		}
	}
	return filepath.Join(logDir(), "system.log")
}

func cleanupRotatedLogs(dir string) {
	// system.YYYYMMDD-HHMMSS.log
	matches, _ := filepath.Glob(filepath.Join(dir, "system.*.log"))
	if len(matches) <= MaxRotatedFiles {
		return
	}
	type fi struct {
		path string
		mod  time.Time
	}
	arr := make([]fi, 0, len(matches))
	for _, p := range matches {
		if st, err := os.Stat(p); err == nil {
			arr = append(arr, fi{path: p, mod: st.ModTime()})
		}
	}
	sort.Slice(arr, func(i, j int) bool {
		if arr[i].mod.Equal(arr[j].mod) {
			return arr[i].path > arr[j].path
		}
		return arr[i].mod.After(arr[j].mod)
	})
	for i := MaxRotatedFiles; i < len(arr); i++ {
		_ = os.Remove(arr[i].path)
	}
}

// RotateLog renames system.log once it reaches maxSize and reopens a fresh file
func RotateLog(maxSize int64) error {
	logMu.Lock()
	defer logMu.Unlock()
	if logFile == nil {
		return nil
	}

	stat, err := logFile.Stat()
	if err != nil {
		return err
	}
	if stat.Size() < maxSize {
		return nil
	}

	_ = base.Sync()
	_ = logFile.Close()

	dir := filepath.Dir(logFile.Name())
	current := filepath.Join(dir, "system.log")
	rotated := filepath.Join(dir, fmt.Sprintf("system.%s.log", time.Now().Format("20060102-150405.000")))
	_ = os.Rename(current, rotated)

	file, err := os.OpenFile(current, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logFile = nil
		build()
		return err
	}
	logFile = file
	build()

	cleanupRotatedLogs(dir)
	return nil
}
