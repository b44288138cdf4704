package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"pomodoro/focusd/internal/client"
	"pomodoro/focusd/internal/model"
)

type options struct {
	server    string
	token     string
	tokenFile string
}

func rootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "pomoctl",
		Short:         "Control a focusd Pomodoro timer",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.server, "server", envOr("POMOCTL_SERVER", "http://localhost:8080"), "focusd base URL")
	cmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("POMOCTL_TOKEN"), "bearer token (defaults to the saved login)")
	cmd.PersistentFlags().StringVar(&opts.tokenFile, "token-file", defaultTokenFile(), "where login stores the token")

	cmd.AddCommand(loginCmd(opts))
	cmd.AddCommand(statusCmd(opts))
	cmd.AddCommand(startCmd(opts))
	cmd.AddCommand(stopCmd(opts))
	cmd.AddCommand(skipCmd(opts))
	cmd.AddCommand(settingsCmd(opts))
	cmd.AddCommand(focusCmd(opts))
	cmd.AddCommand(watchCmd(opts))

	return cmd
}

func loginCmd(opts *options) *cobra.Command {
	var email, password string
	var register bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and save the token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" || password == "" {
				return errors.New("--email and --password are required")
			}
			c := client.New(opts.server, "", nil)
			var token string
			var err error
			if register {
				token, err = c.Register(cmd.Context(), email, password)
			} else {
				token, err = c.Login(cmd.Context(), email, password)
			}
			if err != nil {
				return err
			}
			if err := saveToken(opts.tokenFile, token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s\n", email)
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	cmd.Flags().BoolVar(&register, "register", false, "create the account first")

	return cmd
}

func statusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the timer state",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			state, err := c.State(cmd.Context())
			if err != nil {
				return err
			}
			printState(cmd.OutOrStdout(), state)
			return nil
		},
	}
}

func startCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start or resume the countdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			state, err := c.Start(cmd.Context())
			if err != nil {
				return err
			}
			printState(cmd.OutOrStdout(), state)
			return nil
		},
	}
}

func stopCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the countdown, keeping the remaining time",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			state, err := c.Stop(cmd.Context())
			if err != nil {
				return err
			}
			printState(cmd.OutOrStdout(), state)
			return nil
		},
	}
}

func skipCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "skip <phase>",
		Short: "Jump to the next occurrence of a phase (focus, short_break, long_break)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			state, err := c.SwitchPhase(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printState(cmd.OutOrStdout(), state)
			return nil
		},
	}
}

func settingsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change phase durations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showSettings(cmd, opts)
		},
	}

	get := &cobra.Command{
		Use:   "get",
		Short: "Show the saved settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showSettings(cmd, opts)
		},
	}

	set := &cobra.Command{
		Use:   "set",
		Short: "Change settings; unspecified values keep their saved value",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			settings, err := c.Settings(cmd.Context())
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("focus") {
				settings.FocusMinutes, _ = flags.GetInt("focus")
			}
			if flags.Changed("short") {
				settings.ShortBreakMinutes, _ = flags.GetInt("short")
			}
			if flags.Changed("long") {
				settings.LongBreakMinutes, _ = flags.GetInt("long")
			}
			if flags.Changed("sound") {
				settings.NotificationSound, _ = flags.GetString("sound")
			}

			saved, err := c.UpdateSettings(cmd.Context(), settings)
			if err != nil {
				return err
			}
			printSettings(cmd.OutOrStdout(), saved)
			return nil
		},
	}
	set.Flags().Int("focus", 0, "focus minutes")
	set.Flags().Int("short", 0, "short break minutes")
	set.Flags().Int("long", 0, "long break minutes")
	set.Flags().String("sound", "", "notification sound reference")

	cmd.AddCommand(get, set)
	return cmd
}

func showSettings(cmd *cobra.Command, opts *options) error {
	c, err := opts.client()
	if err != nil {
		return err
	}
	settings, err := c.Settings(cmd.Context())
	if err != nil {
		return err
	}
	printSettings(cmd.OutOrStdout(), settings)
	return nil
}

func focusCmd(opts *options) *cobra.Command {
	var clearFocus bool
	cmd := &cobra.Command{
		Use:   "focus [taskID]",
		Short: "Show, set or clear the focused task",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}

			var focus client.Focus
			switch {
			case clearFocus:
				focus, err = c.ClearFocus(cmd.Context())
			case len(args) == 1:
				taskID, parseErr := strconv.ParseInt(args[0], 10, 64)
				if parseErr != nil {
					return fmt.Errorf("invalid task id %q", args[0])
				}
				focus, err = c.SetFocus(cmd.Context(), taskID)
			default:
				focus, err = c.Focus(cmd.Context())
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if focus.TaskID == model.NoFocusedTask {
				fmt.Fprintln(out, "no focused task")
				return nil
			}
			if focus.Task != nil {
				fmt.Fprintf(out, "focused on #%d %s (%d/%d)\n", focus.TaskID, focus.Task.Title, focus.Task.Spent, focus.Task.Target)
				return nil
			}
			fmt.Fprintf(out, "focused on #%d\n", focus.TaskID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&clearFocus, "clear", false, "clear the focused task")
	return cmd
}

func watchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow the timer until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			out := cmd.OutOrStdout()
			return c.Watch(ctx, func(state model.TimerState) error {
				printState(out, state)
				return nil
			})
		},
	}
}

func (o *options) client() (*client.Client, error) {
	token := o.token
	if token == "" {
		raw, err := os.ReadFile(o.tokenFile)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, errors.New("not logged in: run pomoctl login")
			}
			return nil, fmt.Errorf("read token: %w", err)
		}
		token = strings.TrimSpace(string(raw))
	}
	return client.New(o.server, token, nil), nil
}

func printState(w io.Writer, state model.TimerState) {
	line := fmt.Sprintf("%-11s #%d  %s / %s  %s",
		state.Phase,
		state.CycleIndex,
		client.FormatRemaining(state.SecondsRemaining),
		client.FormatRemaining(state.TotalSeconds),
		state.Status,
	)
	if state.HasFocusedTask() {
		line += fmt.Sprintf("  task #%d", state.FocusedTaskID)
	}
	fmt.Fprintln(w, line)
}

func printSettings(w io.Writer, settings model.Settings) {
	fmt.Fprintf(w, "focus:       %d min\n", settings.FocusMinutes)
	fmt.Fprintf(w, "short break: %d min\n", settings.ShortBreakMinutes)
	fmt.Fprintf(w, "long break:  %d min\n", settings.LongBreakMinutes)
	if settings.NotificationSound != "" {
		fmt.Fprintf(w, "sound:       %s\n", settings.NotificationSound)
	}
}

func saveToken(path, token string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".pomoctl-token"
	}
	return filepath.Join(dir, "pomoctl", "token")
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
