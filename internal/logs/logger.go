package logs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	slogmulti "github.com/samber/slog-multi"
	slogjournal "github.com/systemd/slog-journal"
)

// LevelTrace is below debug; the debugger logs each executed instruction at it.
const LevelTrace = slog.LevelDebug - 4

var level = new(slog.LevelVar)

func SetLevel(l slog.Level) {
	level.Set(l)
}

func Level() slog.Level {
	return level.Level()
}

// ParseLevel accepts "trace" and the slog level names, case insensitive, with
// optional offsets like "debug+2".
func ParseLevel(s string) (slog.Level, error) {
	if strings.EqualFold(s, "trace") {
		return LevelTrace, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", s, err)
	}
	return l, nil
}

func levelName(l slog.Level) string {
	if l < slog.LevelDebug && l >= LevelTrace {
		if l == LevelTrace {
			return "TRACE"
		}
		return fmt.Sprintf("TRACE+%d", l-LevelTrace)
	}
	return l.String()
}

// New logs to w, and to the systemd journal when available. Under a systemd
// service w is skipped, since the journal already captures stderr.
func New(w io.Writer) *slog.Logger {
	return newLogger(w, isSystemdService())
}

func newLogger(w io.Writer, service bool) *slog.Logger {
	var handlers []slog.Handler

	var terminal slog.Handler
	if !service {
		terminal = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: level,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.LevelKey && len(groups) == 0 {
					if l, ok := a.Value.Any().(slog.Level); ok {
						a.Value = slog.StringValue(levelName(l))
					}
				}
				return a
			},
		})
		handlers = append(handlers, terminal)
	}

	journal, err := slogjournal.NewHandler(&slogjournal.Options{
		ReplaceGroup: toJournalKey,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			a.Key = toJournalKey(a.Key)
			return a
		},
	})
	switch {
	case err == nil:
		handlers = append(handlers, journal)
	case terminal != nil:
		record := slog.NewRecord(time.Now(), slog.LevelWarn, "systemd journal unavailable", 0)
		record.Add("error", err)
		_ = terminal.Handle(context.Background(), record)
	}

	return slog.New(&Handler{
		Handler: slogmulti.Fanout(handlers...),
	})
}

// toJournalKey maps an attribute key onto the journal field alphabet.
func toJournalKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		}
		return '_'
	}, key)
}

// isSystemdService reports whether this process runs in a systemd service unit,
// judged from the unified cgroup path in /proc/self/cgroup.
func isSystemdService() bool {
	content, err := os.ReadFile("/proc/self/cgroup")
	if err != nil {
		return false
	}
	for line := range strings.Lines(string(content)) {
		parts := strings.SplitN(strings.TrimSpace(line), ":", 3)
		if len(parts) == 3 && parts[0] == "0" {
			return strings.HasSuffix(path.Dir(parts[2]), ".service")
		}
	}
	return false
}
