package app

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/agentstation/rowsync/cmd/rowsync/cmd/fingerprint"
	"github.com/agentstation/rowsync/cmd/rowsync/cmd/list"
	"github.com/agentstation/rowsync/cmd/rowsync/cmd/run"
	"github.com/agentstation/rowsync/internal/cmd/output"
)

// Execute runs the CLI with args.
func (a *App) Execute(ctx context.Context, args []string) error {
	rootCmd := a.createRootCommand()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

func (a *App) createRootCommand() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:     "rowsync",
		Short:   "Reconcile upstream records into tabular destinations",
		Version: a.version,
		Long: `rowsync keeps destination tables in step with upstream record sources.

Each job fetches records from one or more sources, fingerprints them,
compares them with a snapshot of the destination table by identity, and
writes only the rows that are new or changed, in paced chunks with retry.

Jobs are defined in a YAML job file (--jobs, default rowsync.jobs.yaml).`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setupCommand(cmd, configFile)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddGroup(&cobra.Group{ID: "core", Title: "Core Commands:"})
	rootCmd.AddGroup(&cobra.Group{ID: "management", Title: "Management Commands:"})

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file (default is $HOME/.rowsync.yaml)")
	pf.StringVar(&a.flags.Jobs, "jobs", "", "job file (default is "+DefaultJobsFile+")")
	pf.BoolVarP(&a.flags.Verbose, "verbose", "v", false, "verbose output (shortcut for --log-level=debug)")
	pf.BoolVarP(&a.flags.Quiet, "quiet", "q", false, "minimal output (shortcut for --log-level=warn)")
	pf.BoolVar(&a.flags.NoColor, "no-color", false, "disable colored output")
	pf.StringVarP(&a.flags.Format, "format", "o", "", "output format: table, json, yaml, markdown")
	pf.StringVar(&a.flags.LogLevel, "log-level", "", "log level: trace, debug, info, warn, error (overrides -v/-q)")

	rootCmd.SetVersionTemplate("rowsync {{.Version}}\n")

	rootCmd.AddCommand(run.NewSyncCommand(a))
	rootCmd.AddCommand(run.NewBackfillCommand(a))
	rootCmd.AddCommand(list.NewCommand(a))
	rootCmd.AddCommand(fingerprint.NewCommand(a))
	rootCmd.AddCommand(a.createVersionCommand())
	rootCmd.AddCommand(createManCommand())

	return rootCmd
}

// setupCommand reloads the config file when --config is given, applies the
// global flags, and rebuilds the logger.
func (a *App) setupCommand(cmd *cobra.Command, configFile string) error {
	if configFile != "" {
		config, err := LoadConfig(configFile)
		if err != nil {
			return err
		}
		a.config = config
	}
	a.config.UpdateFromFlags(a.flags)

	if _, err := output.ParseFormat(a.config.Format); err != nil {
		return err
	}

	logger := NewLogger(a.config)
	a.logger = &logger
	a.logger.Debug().Str("command", cmd.Name()).Str("config", a.config.ConfigFile).Msg("Starting")
	return nil
}

func (a *App) createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		GroupID: "management",
		Short:   "Show version information",
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("rowsync %s\n", a.version)
			if a.config.Verbose {
				cmd.Printf("  commit:   %s\n", a.commit)
				cmd.Printf("  built:    %s\n", a.date)
				cmd.Printf("  built by: %s\n", a.builtBy)
			}
		},
	}
}

// createManCommand renders the rowsync(1) man page to stdout.
func createManCommand() *cobra.Command {
	return &cobra.Command{
		Use:    "man",
		Short:  "Generate the man page",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return doc.GenMan(cmd.Root(), &doc.GenManHeader{
				Title:   "ROWSYNC",
				Section: "1",
				Source:  "rowsync",
				Manual:  "rowsync Manual",
			}, cmd.OutOrStdout())
		},
	}
}

// ExitOnError prints err and exits with status 1.
func ExitOnError(err error) {
	if err != nil {
		_, _ = os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}
