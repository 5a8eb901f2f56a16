package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"go.trai.ch/respawn/internal/ui/output"
	"go.trai.ch/respawn/internal/ui/style"
)

// prefix tags every coordinator line so it stands apart from the program's output.
const prefix = "[respawn] "

type levelStyle struct {
	icon  string
	color lipgloss.Color
}

// styleFor picks the icon and color of a line. Levels between the named ones
// take the style of the level below them.
func styleFor(level slog.Level) levelStyle {
	switch {
	case level >= slog.LevelError:
		return levelStyle{icon: style.Cross, color: style.Red}
	case level >= slog.LevelWarn:
		return levelStyle{icon: style.Warning, color: style.Yellow}
	case level >= slog.LevelInfo:
		return levelStyle{color: style.Cyan}
	default:
		return levelStyle{color: style.Gray}
	}
}

// PrettyHandler writes one colored line per record, prefixed so coordinator
// messages can be told apart from the supervised program's own output.
//
// Attributes bound through WithAttrs are rendered once, when bound.
type PrettyHandler struct {
	out    *termenv.Output
	level  slog.Leveler
	bound  string
	groups []string
}

// NewPrettyHandler creates a PrettyHandler writing to w, or stderr when w is nil.
func NewPrettyHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyHandler {
	if w == nil {
		w = os.Stderr
	}

	var level slog.Leveler = slog.LevelInfo
	if opts != nil && opts.Level != nil {
		level = opts.Level
	}

	return &PrettyHandler{
		out:   output.New(w),
		level: level,
	}
}

// Enabled reports whether the handler handles records at the given level.
func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle formats and outputs the log record.
//
//nolint:gocritic // slog.Handler interface requires slog.Record by value
func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	ls := styleFor(r.Level)

	var b strings.Builder
	b.WriteString(prefix)
	if ls.icon != "" {
		b.WriteString(ls.icon)
		b.WriteByte(' ')
	}
	b.WriteString(r.Message)
	b.WriteString(h.bound)

	qualifier := h.qualifier()
	r.Attrs(func(attr slog.Attr) bool {
		appendAttr(&b, qualifier, attr)
		return true
	})

	line := h.out.String(b.String()).Foreground(termenv.RGBColor(string(ls.color)))
	_, err := h.out.WriteString(line.String() + "\n")
	return err
}

// WithAttrs returns a new Handler with the given attributes appended.
func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}

	var b strings.Builder
	b.WriteString(h.bound)
	qualifier := h.qualifier()
	for _, attr := range attrs {
		appendAttr(&b, qualifier, attr)
	}

	next := *h
	next.bound = b.String()
	return &next
}

// WithGroup returns a new Handler that qualifies later attributes with name.
func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}

	next := *h
	next.groups = append(h.groups[:len(h.groups):len(h.groups)], name)
	return &next
}

func (h *PrettyHandler) qualifier() string {
	if len(h.groups) == 0 {
		return ""
	}
	return strings.Join(h.groups, ".") + "."
}

// appendAttr writes " key=value", flattening group values into dotted keys.
func appendAttr(b *strings.Builder, qualifier string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}

	if attr.Value.Kind() == slog.KindGroup {
		inner := qualifier
		if attr.Key != "" {
			inner += attr.Key + "."
		}
		for _, member := range attr.Value.Group() {
			appendAttr(b, inner, member)
		}
		return
	}

	b.WriteByte(' ')
	b.WriteString(qualifier)
	b.WriteString(attr.Key)
	b.WriteByte('=')
	b.WriteString(attr.Value.String())
}
