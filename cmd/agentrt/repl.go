package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/aixgo-dev/agentrt"
	"github.com/aixgo-dev/agentrt/agent"
	"github.com/aixgo-dev/agentrt/agents"
)

const replHelp = `Commands:
  send <type>/<key> <payload>         send and print the reply
  publish <type>/<source> <payload>   publish to a topic
  start | stop | idle                 control dispatch
  stats                               show queue and instance counts
  types                               list registered agent types
  agents                              list live agent instances
  jobs                                list scheduled jobs
  run <job>                           fire a scheduled job now
  help                                show this text
  quit                                drain and exit

Payloads are plain text. !inc [n], !get, !reset and !tick build counter messages.
`

var replCommands = []string{"send", "publish", "start", "stop", "idle", "stats", "types", "agents", "jobs", "run", "help", "quit"}

func newReplCmd(opts *rootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Run the configured agents behind an interactive prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if err := a.start(); err != nil {
				_ = a.shutdown(context.Background())
				return err
			}

			r := &repl{app: a, out: cmd.OutOrStdout(), timeout: timeout}
			loopErr := r.loop(cmd.Context())
			if err := a.shutdown(context.Background()); err != nil {
				return err
			}
			return loopErr
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "how long send waits for a reply")
	return cmd
}

type repl struct {
	app     *app
	out     io.Writer
	timeout time.Duration
}

func (r *repl) loop(ctx context.Context) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(s string) []string {
		var out []string
		for _, c := range replCommands {
			if strings.HasPrefix(c, s) {
				out = append(out, c)
			}
		}
		return out
	})

	history := historyPath()
	if f, err := os.Open(history); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(history); err == nil {
			_, _ = line.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Fprintln(r.out, "agentrt REPL. Type 'help' for commands.")
	for {
		input, err := line.Prompt("agentrt> ")
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		line.AppendHistory(input)

		quit, err := r.execLine(ctx, input)
		if err != nil {
			fmt.Fprintln(r.out, "error:", err)
		}
		if quit {
			return nil
		}
	}
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentrt_history"
	}
	return filepath.Join(home, ".agentrt_history")
}

// execLine runs one REPL command. It reports true when the session should
// end.
func (r *repl) execLine(ctx context.Context, input string) (bool, error) {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(input), " ")
	rest = strings.TrimSpace(rest)
	rt := r.app.rt

	switch cmd {
	case "send":
		target, text, _ := strings.Cut(rest, " ")
		id, err := agent.ParseAgentID(target)
		if err != nil {
			return false, err
		}
		payload, err := parsePayload(text)
		if err != nil {
			return false, err
		}
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		out, err := agentrt.Call[any](ctx, rt, payload, id)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, formatReply(out))
	case "publish":
		target, text, _ := strings.Cut(rest, " ")
		topic, err := agent.ParseTopicID(target)
		if err != nil {
			return false, err
		}
		payload, err := parsePayload(text)
		if err != nil {
			return false, err
		}
		if err := rt.Publish(ctx, payload, topic); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, "published")
	case "start":
		if err := rt.Start(); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, rt.State())
	case "stop":
		rt.Stop()
		fmt.Fprintln(r.out, rt.State())
	case "idle":
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		if err := rt.StopWhenIdle(ctx); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, rt.State())
	case "stats":
		s := rt.Stats()
		fmt.Fprintf(r.out, "state=%s queued=%d in_flight=%d instances=%d\n", s.State, s.Queued, s.InFlight, s.Instances)
	case "types":
		for _, t := range rt.RegisteredTypes() {
			fmt.Fprintln(r.out, t)
		}
	case "agents":
		for _, id := range rt.Agents() {
			fmt.Fprintln(r.out, id)
		}
	case "jobs":
		for _, name := range r.app.jobs.Jobs() {
			next, _ := r.app.jobs.Next(name)
			if next.IsZero() {
				fmt.Fprintln(r.out, name)
				continue
			}
			fmt.Fprintf(r.out, "%s next=%s\n", name, next.Format(time.RFC3339))
		}
	case "run":
		if err := r.app.jobs.RunNow(rest); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, "fired", rest)
	case "help":
		fmt.Fprint(r.out, replHelp)
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return false, nil
}

// parsePayload turns REPL text into a message. Text starting with '!' names
// a counter message; anything else is sent as a string.
func parsePayload(text string) (any, error) {
	if !strings.HasPrefix(text, "!") {
		return text, nil
	}
	name, arg, _ := strings.Cut(text[1:], " ")
	switch name {
	case "inc":
		if arg == "" {
			return agents.Increment{By: 1}, nil
		}
		n, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("!inc: %w", err)
		}
		return agents.Increment{By: n}, nil
	case "get":
		return agents.Get{}, nil
	case "reset":
		return agents.Reset{}, nil
	case "tick":
		return agents.Tick{Job: "repl", At: time.Now()}, nil
	default:
		return nil, fmt.Errorf("unknown message %q", text)
	}
}

func formatReply(v any) string {
	switch v := v.(type) {
	case nil:
		return "(no reply)"
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}
