package logging

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

const mainPackage = "github.com/pjw7536/react-timeline2/"

// Format selects how log lines are written.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// shortStack returns the innermost pkg/errors frame as "file:line > func",
// falling back to the full pkg/errors stack.
func shortStack(err error) interface{} {
	var stackErr interface{ StackTrace() errors.StackTrace }
	if !errors.As(err, &stackErr) {
		return nil
	}
	st := stackErr.StackTrace()
	if len(st) == 0 {
		return nil
	}
	frame := fmt.Sprintf("%+v", st[0])
	parts := strings.Split(frame, "\n\t")
	if len(parts) < 2 {
		return pkgerrors.MarshalStack(err)
	}
	fileLine := strings.TrimPrefix(parts[1], mainPackage)
	funcName := strings.TrimPrefix(parts[0], mainPackage)
	return fmt.Sprintf("%s > %s", fileLine, funcName)
}

// InitConsoleStdErrLog sets up console logging on stderr at info level. Used
// before the configuration is loaded.
func InitConsoleStdErrLog() {
	Init(os.Stderr, "info", FormatConsole)
}

// Init replaces the global logger. Unknown levels fall back to info.
func Init(out io.Writer, level string, format Format) zerolog.Level {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	zerolog.ErrorStackMarshaler = shortStack
	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		if i := strings.Index(file, mainPackage); i >= 0 {
			file = file[i+len(mainPackage):]
		}
		return file + ":" + strconv.Itoa(line)
	}

	lvl := ParseLevel(level)
	zerolog.SetGlobalLevel(lvl)

	w := out
	if format != FormatJSON {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
	}
	log.Logger = zerolog.New(w).
		With().
		Timestamp().
		Caller().
		Logger().
		Hook(fatalStackHook{})
	return lvl
}

// ParseLevel maps a config level name to a zerolog level.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// fatalStackHook adds stack traces to Fatal level logs
type fatalStackHook struct{}

func (h fatalStackHook) Run(e *zerolog.Event, level zerolog.Level, _ string) {
	if level == zerolog.FatalLevel {
		e.Stack()
	}
}
