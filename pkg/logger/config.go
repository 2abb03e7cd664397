package logger

import "github.com/rs/zerolog"

var (
	DEBUG = "debug"
	INFO  = "info"
	WARN  = "warn"
	ERROR = "error"
	FATAL = "fatal"
)

func setLogLevel(level string) {
	switch level {
	case DEBUG:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case INFO:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case WARN:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case ERROR:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case FATAL:
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// LevelFileEntry maps one log level to its output file.
type LevelFileEntry struct {
	Level string
	Path  string
}

type LevelFiles []LevelFileEntry

func (lf LevelFiles) IsEmpty() bool {
	return len(lf) == 0
}

func (lf LevelFiles) GetPaths() []string {
	paths := make([]string, 0, len(lf))
	for _, entry := range lf {
		paths = append(paths, entry.Path)
	}
	return paths
}

type Config struct {
	LevelFiles LevelFiles // per-level file paths; empty means a single info file
	MaxSize    int        // max file size in MB before rotation
	MaxBackups int
	MaxAge     int // days
	Level      string
	Compress   bool
	Console    bool
}

func DefaultConfig() Config {
	return Config{
		LevelFiles: LevelFiles{
			{Level: ERROR, Path: "logs/err.log"},
			{Level: INFO, Path: "logs/info.log"},
		},
		MaxSize:    10,
		MaxBackups: 100,
		MaxAge:     5,
		Level:      INFO,
		Compress:   false,
		Console:    false,
	}
}

type Builder struct {
	config Config
}

func NewBuilder() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) SetMaxSize(size int) *Builder {
	b.config.MaxSize = size
	return b
}

func (b *Builder) SetMaxBackups(backups int) *Builder {
	b.config.MaxBackups = backups
	return b
}

func (b *Builder) SetMaxAge(days int) *Builder {
	b.config.MaxAge = days
	return b
}

func (b *Builder) SetLevel(level string) *Builder {
	b.config.Level = level
	return b
}

func (b *Builder) EnableCompression(enable bool) *Builder {
	b.config.Compress = enable
	return b
}

func (b *Builder) EnableConsoleOutput(enable bool) *Builder {
	b.config.Console = enable
	return b
}

func (b *Builder) SetLevelFiles(files LevelFiles) *Builder {
	b.config.LevelFiles = files
	return b
}

func (b *Builder) Build() error {
	return initLogger(b.config)
}
