package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/mseaborn/nacl-dev-tools/internal/config"
	"github.com/mseaborn/nacl-dev-tools/internal/envfile"
	"github.com/mseaborn/nacl-dev-tools/internal/logging"
	"github.com/mseaborn/nacl-dev-tools/internal/remote"
)

var (
	targetsPath string
	logLevel    string
	rootCmd     = &cobra.Command{
		Use:   "nacl-try",
		Short: "Build and test a source tree on local and remote machines",
		Long: `nacl-try syncs the tracked files of the current source tree to each
target's host with rsync and runs the build there over ssh. Each host
location is synced once per invocation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&targetsPath, "targets", "", "target table (YAML); default is built in")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error, none")

	runCmd := &cobra.Command{
		Use:   "run ARGS TARGET...",
		Short: "Build ARGS on each target (ARGS of \"sync\" only syncs)",
		Example: `  nacl-try run run_hello_world_test 32 64 mac win
  nacl-try run 'run_hello_world_test --verbose' 32
  nacl-try run '' 32 64
  nacl-try run sync mac win`,
		Args: cobra.MinimumNArgs(1),
		RunE: runRun,
	}
	runCmd.Flags().SetInterspersed(false)
	rootCmd.AddCommand(runCmd)

	targetsCmd := &cobra.Command{
		Use:   "targets",
		Short: "List the known targets",
		Args:  cobra.NoArgs,
		RunE:  runTargets,
	}
	rootCmd.AddCommand(targetsCmd)

	setenvCmd := &cobra.Command{
		Use:   "setenv ENVFILE COMMAND [ARG...]",
		Short: "Run COMMAND with the variables from ENVFILE added to the environment",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runSetenv,
	}
	setenvCmd.Flags().SetInterspersed(false)
	rootCmd.AddCommand(setenvCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	table, err := remote.Load(afero.NewOsFs(), config.ExpandPath(targetsPath))
	if err != nil {
		return err
	}
	log, err := logging.New(logLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	d := remote.NewDispatcher(table, remote.ExecCommander{
		Dir:    wd,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}, afero.NewOsFs(), log)

	results, err := d.Dispatch(cmd.Context(), args[0], args[1:])
	if len(results) > 0 {
		fmt.Printf("\n%s\n", remote.Summary(results))
	}
	return err
}

func runTargets(cmd *cobra.Command, args []string) error {
	table, err := remote.Load(afero.NewOsFs(), config.ExpandPath(targetsPath))
	if err != nil {
		return err
	}
	for _, name := range table.TargetNames() {
		t := table.Targets[name]
		host := t.Host
		if host == "" {
			host = remote.LocalHost
		}
		fmt.Printf("%-10s %-10s %s\n", name, host, t.Opts)
	}
	return nil
}

func runSetenv(cmd *cobra.Command, args []string) error {
	vars, err := envfile.Load(afero.NewOsFs(), config.ExpandPath(args[0]))
	if err != nil {
		return err
	}
	return envfile.Exec(args[1:], envfile.Merge(os.Environ(), vars))
}
