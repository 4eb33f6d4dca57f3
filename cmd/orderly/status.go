package main

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/glazed/pkg/cmds/logging"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/orderly/pkg/tui"
)

// runStatusCLI is the "orderly status" entry point. Unlike the primary
// supervise grammar, status's flags are a normal single-pass set, so it
// gets the teacher's ordinary cobra + glazed logging treatment, with its
// own small command tree rather than riding on a shared root command.
func runStatusCLI(args []string) {
	cmd := newStatusCmd()
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newStatusCmd() *cobra.Command {
	var watch bool
	var interval time.Duration
	var statusFile string
	var logDir string
	var altScreen bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a supervised cohort's current status",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.InitLoggerFromCobra(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if statusFile == "" {
				return errors.New("--status-file is required (the same path the supervisor was started with)")
			}

			model := tui.NewStatusModel(statusFile, logDir, interval)

			if !watch {
				fmt.Fprintln(cmd.OutOrStdout(), model.Refreshed().View())
				return nil
			}

			programOpts := []tea.ProgramOption{
				tea.WithInput(cmd.InOrStdin()),
				tea.WithOutput(cmd.OutOrStdout()),
			}
			if altScreen {
				programOpts = append(programOpts, tea.WithAltScreen())
			}
			_, err := tea.NewProgram(model, programOpts...).Run()
			return err
		},
	}

	cobra.CheckErr(logging.AddLoggingLayerToRootCommand(cmd, "orderly-status"))
	cmd.Flags().StringVar(&statusFile, "status-file", "", "path to the supervisor's status file")
	cmd.Flags().StringVar(&logDir, "log-dir", "", "the supervisor's -log-dir, if any, to show captured exit info for dead services")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep polling and redraw the table every --interval")
	cmd.Flags().DurationVar(&interval, "interval", 500*time.Millisecond, "poll interval in --watch mode")
	cmd.Flags().BoolVar(&altScreen, "alt-screen", true, "use the terminal's alternate screen buffer in --watch mode")

	return cmd
}
