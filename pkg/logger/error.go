package logger

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"github.com/cockroachdb/errors/errbase"
	"github.com/ligun0805/tier-sale/pkg/logger/slogx"
)

// middlewareErrorStackTrace keeps the error attribute as its plain message and adds
// the verbose message and the captured stack trace of cockroachdb errors next to it.
func middlewareErrorStackTrace() middleware {
	return func(next handleFunc) handleFunc {
		return func(ctx context.Context, rec slog.Record) error {
			out := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
			rec.Attrs(func(attr slog.Attr) bool {
				err, ok := attr.Value.Any().(error)
				if attr.Key != slogx.ErrorKey || !ok || err == nil {
					out.AddAttrs(attr)
					return true
				}
				out.AddAttrs(
					slog.String(slogx.ErrorKey, err.Error()),
					slog.String(ErrorVerboseKey, fmt.Sprintf("%+v", err)),
				)
				if x, ok := err.(errbase.StackTraceProvider); ok {
					out.AddAttrs(slog.Any(ErrorStackTraceKey, traceLines(x.StackTrace())))
				}
				return true
			})

			return next(ctx, out)
		}
	}
}

func traceLines(frames errbase.StackTrace) []string {
	lines := make([]string, 0, len(frames))

	// Iterate in reverse to skip consecutive runtime frames at the bottom of the trace.
	skipping := true
	for i := len(frames) - 1; i >= 0; i-- {
		pc := uintptr(frames[i]) - 1
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			lines = append(lines, "unknown")
			skipping = false
			continue
		}

		name := fn.Name()
		if skipping && strings.HasPrefix(name, "runtime.") {
			continue
		}
		skipping = false

		filename, lineNr := fn.FileLine(pc)
		lines = append(lines, fmt.Sprintf("%s %s:%d", name, filename, lineNr))
	}

	return lines[:len(lines):len(lines)]
}
