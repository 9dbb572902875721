// Package logging configures the shared logger: colored console output
// at Info level plus a rotated debug log on disk.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where log output goes.
type Options struct {
	Console io.Writer
	Dir     string
	Debug   bool
}

// writerHook routes formatted entries to one writer for a fixed set of
// levels, letting the console and the file carry different levels and
// formats on a single logger.
type writerHook struct {
	writer    io.Writer
	levels    []logrus.Level
	formatter logrus.Formatter
}

func (h *writerHook) Levels() []logrus.Level { return h.levels }

func (h *writerHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(line)
	return err
}

// New builds the logger. The logger itself writes nowhere; hooks fan
// entries out to the console and the rotated file.
func New(opts Options) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	log.SetLevel(logrus.DebugLevel)

	console := opts.Console
	if console == nil {
		console = os.Stdout
	}
	consoleLevel := logrus.InfoLevel
	if opts.Debug {
		consoleLevel = logrus.DebugLevel
	}
	log.AddHook(&writerHook{
		writer: console,
		levels: levelsFrom(consoleLevel),
		formatter: &logrus.TextFormatter{
			ForceColors:     true,
			FullTimestamp:   true,
			TimestampFormat: "15:04:05",
		},
	})

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, err
		}
		log.AddHook(&writerHook{
			writer: &lumberjack.Logger{
				Filename:   filepath.Join(opts.Dir, "guildmgr.log"),
				MaxSize:    10, // megabytes
				MaxBackups: 5,
				MaxAge:     14, // days
			},
			levels: levelsFrom(logrus.DebugLevel),
			formatter: &logrus.TextFormatter{
				DisableColors:   true,
				FullTimestamp:   true,
				TimestampFormat: "2006-01-02 15:04:05",
			},
		})
	}

	return log, nil
}

func levelsFrom(max logrus.Level) []logrus.Level {
	var out []logrus.Level
	for _, l := range logrus.AllLevels {
		if l <= max {
			out = append(out, l)
		}
	}
	return out
}
