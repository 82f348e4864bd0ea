package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"iphone-alarms-sync/internal/logging"
)

func newShellCmd() *cobra.Command {
	var prompt string
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Run subcommands interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractiveShell(prompt, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&prompt, "prompt", "alarms> ", "shell prompt")
	return cmd
}

func runInteractiveShell(prompt string, out io.Writer) error {
	historyFile := filepath.Join(os.TempDir(), "iphone-alarms-sync-shell.history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	session := shellSession{cfgPath: cfgPath, verbosity: verbosity, out: out}
	fmt.Fprintln(out, "Interactive shell. 'help' for examples, 'exit' to quit.")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			fmt.Fprintln(out)
			continue
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(out)
			return nil
		}
		if session.handle(line) {
			return nil
		}
	}
}

// shellSession carries the flags that survive between shell lines.
type shellSession struct {
	cfgPath   string
	verbosity int
	out       io.Writer
}

// handle runs one line and reports whether the shell should exit.
func (s *shellSession) handle(line string) bool {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return false
	case "exit", "quit":
		fmt.Fprintln(s.out, "Bye!")
		return true
	case "help":
		printShellHelp(s.out)
		return false
	}

	tokens, err := shlex.Split(line)
	if err != nil {
		fmt.Fprintf(s.out, "Parse error: %v\n", err)
		return false
	}
	if len(tokens) == 0 {
		return false
	}
	switch tokens[0] {
	case "log":
		if err := s.handleLog(tokens[1:]); err != nil {
			fmt.Fprintf(s.out, "log: %v\n", err)
		}
		return false
	case "shell":
		fmt.Fprintln(s.out, "Already inside the shell.")
		return false
	}

	if err := s.execute(tokens); err != nil {
		fmt.Fprintf(s.out, "command error: %v\n", err)
	}
	return false
}

func (s *shellSession) execute(args []string) error {
	root := NewRootCmd()
	root.SetOut(s.out)
	full := append([]string{"--config", s.cfgPath}, args...)
	if s.verbosity > 0 {
		full = append(full, "-"+strings.Repeat("v", s.verbosity))
	}
	root.SetArgs(full)
	return root.Execute()
}

func (s *shellSession) handleLog(args []string) error {
	fs := pflag.NewFlagSet("log", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var vcount int
	var level string
	var show bool
	fs.CountVarP(&vcount, "verbose", "v", "Increase verbosity (-v... up to 4)")
	fs.StringVar(&level, "level", "", "level name (error|warn|info|debug|trace)")
	fs.BoolVarP(&show, "show", "s", false, "show the current level")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch {
	case show && vcount == 0 && level == "":
		fmt.Fprintf(s.out, "log level: %s (-v x%d)\n", logging.LevelName(), logging.Verbosity())
		return nil
	case level != "":
		count, err := logging.ParseLevel(level)
		if err != nil {
			return err
		}
		s.verbosity = count
	case vcount > 0:
		s.verbosity = vcount
	default:
		fmt.Fprintf(s.out, "log level: %s (-v x%d)\n", logging.LevelName(), logging.Verbosity())
		return nil
	}

	logging.SetVerbosity(s.verbosity)
	fmt.Fprintf(s.out, "log level set to %s (-v x%d)\n", logging.LevelName(), logging.Verbosity())
	return nil
}

func printShellHelp(out io.Writer) {
	fmt.Fprintln(out, `Examples:
  setup --name "Jane's iPhone"    # create the phone
  sync --file alarms.json         # apply a sync payload
  alarms list                     # list alarms
  alarms snooze <id> 15           # change snooze duration
  report alarm <id> goes_off      # record an alarm event
  report device bedtime_starts    # record a phone-level event
  next                            # soonest upcoming alarm
  log -vv                         # more verbose logging
  log --show                      # current log level
  exit / quit                     # leave the shell`)
}
