package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/MikeSquared-Agency/oracle/internal/backend"
	"github.com/MikeSquared-Agency/oracle/internal/store"
)

const wordWrap = 100

// renderer draws answers as markdown in the user's theme.
type renderer struct {
	term *glamour.TermRenderer
}

func newRenderer(ctx context.Context, prefs *store.Preferences) *renderer {
	style := "light"
	if dark, err := prefs.DarkTheme(ctx); err == nil && dark {
		style = "dark"
	}
	term, err := glamour.NewTermRenderer(
		glamour.WithStylePath(style),
		glamour.WithWordWrap(wordWrap),
	)
	if err != nil {
		return &renderer{}
	}
	return &renderer{term: term}
}

// answerMarkdown is the markdown shown for an assistant reply.
func answerMarkdown(msg backend.Message) string {
	var sb strings.Builder
	sb.WriteString(msg.Content)
	if len(msg.Sources) > 0 {
		sb.WriteString("\n\n**Sources**\n\n")
		for i, src := range msg.Sources {
			title := src.Title
			if title == "" {
				title = src.URL
			}
			fmt.Fprintf(&sb, "%d. [%s](%s) · %s · %.0f%%\n", i+1, title, src.URL, src.SourceType, src.Confidence*100)
		}
	}
	if msg.ProcessingTime != nil {
		fmt.Fprintf(&sb, "\n_%.2fs_\n", *msg.ProcessingTime)
	}
	return sb.String()
}

func (r *renderer) message(w io.Writer, msg backend.Message) {
	switch msg.Type {
	case backend.MessageUser:
		fmt.Fprintf(w, "you › %s\n", msg.Content)
	case backend.MessageError:
		fmt.Fprintf(w, "✗ %s\n", msg.Content)
	default:
		md := answerMarkdown(msg)
		if r.term != nil {
			if out, err := r.term.Render(md); err == nil {
				fmt.Fprint(w, out)
				return
			}
		}
		fmt.Fprintln(w, md)
	}
}
