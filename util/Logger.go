package util

import (
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"ywwzwb/imagearchive/models/config"

	"github.com/getsentry/sentry-go"
	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"
	llumberjack "gopkg.in/natefinch/lumberjack.v2"
)

var logLevel = new(slog.LevelVar)

// NewLogHandler builds the handler chain: JSON into the rotating file, text
// on stdout when console output is on, and errors to Sentry when a DSN is set.
// The returned rotate func reopens the log file.
func NewLogHandler(loggerConfig config.LoggerConfig, console io.Writer) (slog.Handler, func() error) {
	var handlers []slog.Handler
	rotate := func() error { return nil }
	if loggerConfig.File.Path != "" {
		logFileWriter := &llumberjack.Logger{
			Filename:   loggerConfig.File.Path,
			MaxSize:    loggerConfig.File.MaxLogFileSize, // megabytes
			MaxBackups: loggerConfig.File.MaxLogFileCount,
			MaxAge:     1, //days
			LocalTime:  true,
		}
		rotate = logFileWriter.Rotate
		handlers = append(handlers, slog.NewJSONHandler(logFileWriter, &slog.HandlerOptions{
			AddSource: true,
			Level:     logLevel,
		}))
	}
	if loggerConfig.Console || len(handlers) == 0 {
		handlers = append(handlers, slog.NewTextHandler(console, &slog.HandlerOptions{
			Level: logLevel,
		}))
	}
	if loggerConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: loggerConfig.SentryDSN}); err == nil {
			handlers = append(handlers, slogsentry.Option{Level: slog.LevelError}.NewSentryHandler())
		} else {
			slog.Warn("sentry init failed", "error", err)
		}
	}
	logLevel.Set(loggerConfig.Level)
	if len(handlers) == 1 {
		return handlers[0], rotate
	}
	return slogmulti.Fanout(handlers...), rotate
}

func InitLogger(loggerConfig config.LoggerConfig) {
	handler, rotate := NewLogHandler(loggerConfig, os.Stdout)
	slog.SetDefault(slog.New(handler))
	slog.Info("Logger is initialized", "level", loggerConfig.Level, "file", loggerConfig.File.Path, "console", loggerConfig.Console)
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGHUP)
	go func() {
		for {
			<-c
			if err := rotate(); err != nil {
				slog.Error("rotate log file failed", "error", err)
			}
		}
	}()
}
func SetLogLevel(level slog.Level) {
	slog.Info("SetLogLevel", "level", level)
	logLevel.Set(level)
}
