package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/oracle/internal/backend"
	"github.com/MikeSquared-Agency/oracle/internal/slack"
	"github.com/MikeSquared-Agency/oracle/internal/workspace"
)

var interactiveCmd = &cobra.Command{
	Use:     "interactive",
	Aliases: []string{"chat"},
	Short:   "Chat in the terminal; type /help for commands",
	RunE:    withApp(true, true, runInteractive),
}

func init() {
	rootCmd.AddCommand(interactiveCmd)
}

var errQuit = errors.New("quit")

const replHelp = `Type a question to ask it. Commands:
  /sources            list sources in this context (* = selected)
  /toggle <id>        add or remove a source from the selection
  /context [scope]    show or switch context: personal or a team id
  /teams              list your teams
  /sessions           list chat sessions
  /new                start a new session
  /switch <id>        open another session
  /rename <title>     rename the active session
  /delete             delete the active session
  /type <t>           brief, concise or expansive
  /temp <x>           temperature in [0, 1]
  /model [name]       show models or choose one
  /sync <id>          synchronize a source
  /share              post the last answer to Slack
  /quit               leave`

type repl struct {
	a      *app
	r      *renderer
	out    io.Writer
	poster *slack.Poster
	last   *backend.Message
	thread string
}

func runInteractive(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	rp := &repl{a: a, r: newRenderer(ctx, a.prefs), out: cmd.OutOrStdout()}
	user := a.ws.Auth.User()
	fmt.Fprintf(rp.out, "Signed in as %s · context %s · session %s\n", user.Username, a.ws.Scope(), a.ws.Sessions.Active())
	fmt.Fprintln(rp.out, "Type /help for commands.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		fmt.Fprint(rp.out, "› ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(rp.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}
		err := rp.handle(ctx, line)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintln(rp.out, "✗", describe(err))
		}
		if !a.ws.Auth.Authenticated() {
			return workspace.ErrNotAuthenticated
		}
	}
}

func (rp *repl) handle(ctx context.Context, line string) error {
	if !strings.HasPrefix(line, "/") {
		return rp.ask(ctx, line)
	}
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)
	ws := rp.a.ws

	switch name {
	case "quit", "exit", "q":
		return errQuit
	case "help", "?":
		fmt.Fprintln(rp.out, replHelp)
	case "sources":
		printSources(rp.out, rp.a)
	case "toggle":
		on, err := ws.Sources.Toggle(backend.ID(arg))
		if err != nil {
			return err
		}
		fmt.Fprintf(rp.out, "%s %s\n", arg, map[bool]string{true: "selected", false: "deselected"}[on])
	case "context":
		if arg == "" {
			fmt.Fprintln(rp.out, ws.Scope())
			return nil
		}
		if err := ws.SetContext(ctx, workspace.ParseScope(arg)); err != nil {
			return err
		}
		fmt.Fprintf(rp.out, "context %s · %d sources selected\n", ws.Scope(), len(ws.Sources.SelectedIDs()))
	case "teams":
		printTeams(rp.out, rp.a)
	case "sessions":
		printSessions(rp.out, rp.a)
	case "new":
		s, err := ws.Sessions.Create(ctx)
		if err != nil {
			return err
		}
		rp.thread = ""
		fmt.Fprintf(rp.out, "session %s\n", s.ID)
	case "switch":
		if err := ws.Sessions.Select(ctx, backend.ID(arg)); err != nil {
			return err
		}
		rp.thread = ""
		for _, m := range ws.Chat.Messages() {
			rp.r.message(rp.out, m)
		}
	case "rename":
		return ws.Sessions.Rename(ctx, ws.Sessions.Active(), arg)
	case "delete":
		if err := ws.Sessions.Delete(ctx, ws.Sessions.Active()); err != nil {
			return err
		}
		fmt.Fprintf(rp.out, "session %s\n", ws.Sessions.Active())
	case "type":
		s := ws.Options.Settings()
		s.ResponseType = backend.ResponseType(arg)
		return ws.Options.SetSettings(s)
	case "temp":
		t, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return fmt.Errorf("parse temperature: %w", err)
		}
		s := ws.Options.Settings()
		s.Temperature = t
		return ws.Options.SetSettings(s)
	case "model":
		if arg == "" {
			printModels(rp.out, rp.a)
			return nil
		}
		return ws.Options.SetModel(arg)
	case "sync":
		msg, err := ws.TriggerSync(ctx, backend.ID(arg))
		if err != nil {
			return err
		}
		fmt.Fprintln(rp.out, msg)
	case "share":
		return rp.share(ctx)
	default:
		return fmt.Errorf("unknown command /%s, try /help", name)
	}
	return nil
}

func (rp *repl) ask(ctx context.Context, text string) error {
	reply, err := rp.a.ws.Chat.Submit(ctx, text)
	if reply != nil {
		rp.r.message(rp.out, *reply)
	}
	if err == nil {
		rp.last = reply
		return nil
	}
	// the error is already in the log as a message
	if errors.Is(err, workspace.ErrBusy) || errors.Is(err, workspace.ErrNotAuthenticated) || reply == nil {
		return err
	}
	return nil
}

// share posts the last answer; later shares in the same session go to its
// thread.
func (rp *repl) share(ctx context.Context) error {
	if rp.last == nil {
		return errors.New("nothing to share yet")
	}
	if rp.poster == nil {
		p, err := rp.a.poster()
		if err != nil {
			return err
		}
		rp.poster = p
	}
	if rp.thread != "" {
		return rp.poster.PostThread(ctx, rp.thread, slack.FormatAnswer(*rp.last))
	}
	ts, err := rp.poster.PostAnswer(ctx, *rp.last)
	if err != nil {
		return err
	}
	rp.thread = ts
	fmt.Fprintln(rp.out, "shared to slack")
	return nil
}
