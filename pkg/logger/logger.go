package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logMu             sync.Mutex
	lumberjackWriters map[string]*lumberjack.Logger
	TimeFormat        = "2006-01-02 15:04:05"
)

// initLogger wires zerolog to per-level rotating files and, optionally,
// a console writer. Safe to call again to reconfigure.
func initLogger(config Config) error {
	zerolog.TimeFieldFormat = TimeFormat
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	setLogLevel(config.Level)

	if config.LevelFiles.IsEmpty() {
		config.LevelFiles = LevelFiles{
			{Level: INFO, Path: "logs/info.log"},
		}
	}

	for _, filePath := range config.LevelFiles.GetPaths() {
		if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
			return err
		}
	}

	setWriter(config)
	return nil
}

func setWriter(config Config) {
	// Bitmask of levels that have a dedicated file. A level without one
	// falls through to the info file.
	var configuredLevels uint8
	for _, entry := range config.LevelFiles {
		configuredLevels |= 1 << parseLevel(entry.Level)
	}

	newWriters := make([]io.Writer, 0, len(config.LevelFiles)+1)
	newLumberjackWriters := make(map[string]*lumberjack.Logger, len(config.LevelFiles))

	for _, entry := range config.LevelFiles {
		lj := &lumberjack.Logger{
			Filename:   entry.Path,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		}
		newLumberjackWriters[entry.Level] = lj

		newWriters = append(newWriters, &levelFilterWriter{
			level:            parseLevel(entry.Level),
			configuredLevels: configuredLevels,
			Writer: &zerolog.ConsoleWriter{
				Out:        lj,
				TimeFormat: TimeFormat,
				NoColor:    true,
			},
		})
	}

	if config.Console {
		newWriters = append(newWriters, &zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: TimeFormat,
		})
	}

	logMu.Lock()
	defer logMu.Unlock()

	closeAllWriters()
	lumberjackWriters = newLumberjackWriters
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(newWriters...)).With().Timestamp().Caller().Logger()
}

// levelFilterWriter routes a log line to the file configured for its level.
type levelFilterWriter struct {
	level            zerolog.Level
	configuredLevels uint8
	io.Writer
}

func (w *levelFilterWriter) WriteLevel(level zerolog.Level, p []byte) (n int, err error) {
	if level == w.level {
		return w.Writer.Write(p)
	}

	switch w.level {
	case zerolog.InfoLevel:
		if w.configuredLevels&(1<<level) == 0 {
			return w.Writer.Write(p)
		}
	case zerolog.ErrorLevel:
		if level == zerolog.FatalLevel && w.configuredLevels&(1<<level) == 0 {
			return w.Writer.Write(p)
		}
	}
	return len(p), nil
}

func parseLevel(levelName string) zerolog.Level {
	switch levelName {
	case "debug", "DEBUG":
		return zerolog.DebugLevel
	case "info", "INFO":
		return zerolog.InfoLevel
	case "warn", "WARN":
		return zerolog.WarnLevel
	case "error", "ERROR":
		return zerolog.ErrorLevel
	case "fatal", "FATAL":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

func closeAllWriters() {
	for levelName, lj := range lumberjackWriters {
		if err := lj.Close(); err != nil {
			log.Logger.Err(err).Str("level", levelName).Msg("failed to close lumberjack writer")
		}
	}
	lumberjackWriters = nil
}

// L returns the global logger.
func L() zerolog.Logger {
	return log.Logger
}

func Debug() *zerolog.Event {
	return log.Logger.Debug()
}

func Info() *zerolog.Event {
	return log.Logger.Info()
}

func Warn() *zerolog.Event {
	return log.Logger.Warn()
}

func Error() *zerolog.Event {
	return log.Logger.Error()
}

func Fatal() *zerolog.Event {
	return log.Logger.Fatal()
}

// Err logs an error directly.
func Err(err error) *zerolog.Event {
	return log.Logger.Err(err)
}

// Close flushes and closes all file writers.
func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	closeAllWriters()
}
