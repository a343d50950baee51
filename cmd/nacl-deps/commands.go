package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mseaborn/nacl-dev-tools/internal/batch"
	"github.com/mseaborn/nacl-dev-tools/internal/bump"
	"github.com/mseaborn/nacl-dev-tools/internal/depsfile"
	"github.com/mseaborn/nacl-dev-tools/internal/history"
	"github.com/mseaborn/nacl-dev-tools/internal/lkgr"
)

var (
	bumpRevision int64
	bumpNoCommit bool
	bumpNoUpload bool
	bumpNoTry    bool
	checkDry     bool
	revsLimit    int
	historyLimit int
)

func init() {
	// bump command
	bumpCmd := &cobra.Command{
		Use:   "bump",
		Short: "Update the pinned revision and send the change for review",
		Args:  cobra.NoArgs,
		RunE:  runBump,
	}
	bumpCmd.Flags().Int64Var(&bumpRevision, "revision", 0, "upstream revision to pin (default: newest settled)")
	bumpCmd.Flags().BoolVar(&bumpNoCommit, "no-commit", false, "only rewrite the manifest")
	bumpCmd.Flags().BoolVar(&bumpNoUpload, "no-upload", false, "commit but do not upload")
	bumpCmd.Flags().BoolVar(&bumpNoTry, "no-try", false, "upload but do not start try jobs")
	rootCmd.AddCommand(bumpCmd)

	// check command
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Decide whether a bump is due and run it if so",
		Args:  cobra.NoArgs,
		RunE:  runCheck,
	}
	checkCmd.Flags().BoolVar(&checkDry, "dry", false, "only print the decision")
	rootCmd.AddCommand(checkCmd)

	// watch command
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Run check on the configured schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runWatch,
	}
	watchCmd.Flags().BoolVar(&checkDry, "dry", false, "only print decisions")
	rootCmd.AddCommand(watchCmd)

	// lkgr command
	lkgrCmd := &cobra.Command{
		Use:   "lkgr",
		Short: "Fetch the last known good revision and append it to the log",
		Args:  cobra.NoArgs,
		RunE:  runLKGR,
	}
	rootCmd.AddCommand(lkgrCmd)

	// revs command
	revsCmd := &cobra.Command{
		Use:   "revs",
		Short: "List downstream commits that changed the pinned field",
		Args:  cobra.NoArgs,
		RunE:  runRevs,
	}
	revsCmd.Flags().IntVar(&revsLimit, "limit", 10, "maximum number of commits (0 for all)")
	rootCmd.AddCommand(revsCmd)

	// show command
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the fields of the downstream manifest",
		Args:  cobra.NoArgs,
		RunE:  runShow,
	}
	rootCmd.AddCommand(showCmd)

	// history command
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded evaluations and bump runs",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum rows per table (0 for all)")
	rootCmd.AddCommand(historyCmd)
}

func runBump(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	return doBump(cmd.Context(), e, bump.Options{
		Revision: bumpRevision,
		NoCommit: bumpNoCommit,
		NoUpload: bumpNoUpload,
		NoTry:    bumpNoTry,
	})
}

func doBump(ctx context.Context, e *env, opts bump.Options) error {
	res, err := e.executor().Run(ctx, opts)
	if res != nil {
		printResult(os.Stdout, res)
	}
	return err
}

func runCheck(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	return check(cmd.Context(), e, checkDry)
}

// check evaluates the trigger once and bumps when it says so
func check(ctx context.Context, e *env, dry bool) error {
	decision, ev, err := e.evaluator().Evaluate(ctx, time.Now())
	if err != nil {
		return err
	}
	if err := e.store.RecordEvaluation(&ev); err != nil {
		e.log.Warn("recording evaluation failed", zap.Error(err))
	}
	printDecision(os.Stdout, decision, ev)

	if !decision.Build || dry {
		return nil
	}
	return doBump(ctx, e, bump.Options{Revision: decision.Target})
}

func runWatch(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	sched, err := batch.NewScheduler(e.log, batch.Job{
		Name:       "check-" + e.name,
		Cron:       e.cfg.Schedule.Cron,
		RunOnStart: true,
		Run: func(ctx context.Context) error {
			return check(ctx, e, checkDry)
		},
	})
	if err != nil {
		return err
	}

	fmt.Printf("Watching %s on %q, next check %s\n", e.name, e.cfg.Schedule.Cron,
		humanize.Time(sched.NextRun("check-"+e.name)))
	err = sched.Run(cmd.Context())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runLKGR(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	rev, err := e.oracle().Fetch(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("LKGR: r%d\n", rev)

	entries, err := lkgr.ReadLog(afero.NewOsFs(), e.cfg.LKGR.LogPath)
	if err != nil {
		return err
	}
	if n := len(entries); n > 1 {
		prev := entries[n-2]
		fmt.Printf("Previous: r%d, fetched %s\n", prev.Revision, humanize.Time(prev.Time))
	}
	return nil
}

func runRevs(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	p := e.profile
	changes, err := e.git.FieldChanges(cmd.Context(), p.BaseRef, p.Manifest.Path, p.Manifest.Field, revsLimit)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		fmt.Printf("No commit on %s changes %s\n", p.BaseRef, p.Manifest.Field)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "REVISION\tCOMMIT\t%s\n", strings.ToUpper(p.Manifest.Field))
	for _, c := range changes {
		fmt.Fprintf(w, "r%d\t%.12s\t%s\n", c.Revision, c.Commit, c.Value)
	}
	return w.Flush()
}

func runShow(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	p := e.profile
	fs := afero.NewBasePathFs(afero.NewOsFs(), e.checkout)
	text, err := afero.ReadFile(fs, p.Manifest.Path)
	if err != nil {
		return err
	}

	tracked := map[string]bool{p.Manifest.Field: true}
	for field := range p.Manifest.Companions {
		tracked[field] = true
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LINE\tFIELD\tVALUE")
	for _, f := range depsfile.Fields(string(text)) {
		key := f.Key
		if tracked[key] {
			key = pinnedStyle.Render(key)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", f.Line, key, f.Value)
	}
	return w.Flush()
}

func runHistory(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	opts := history.ListOptions{Profile: e.name, Limit: historyLimit}
	evals, err := e.store.ListEvaluations(opts)
	if err != nil {
		return err
	}
	runs, err := e.store.ListRuns(opts)
	if err != nil {
		return err
	}

	fmt.Println(headerStyle.Render("Evaluations"))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tLAST\tNEWEST\tLKGR\tVERDICT")
	for _, ev := range evals {
		fmt.Fprintf(w, "%s\tr%d\tr%d\tr%d\t%s\n",
			humanize.Time(ev.EvaluatedAt), ev.LastAttempted, ev.Newest, ev.StableMarker, verdict(ev.Provisional, ev.Build))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(headerStyle.Render("Runs"))
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tBRANCH\tCHANGE\tSTATUS\tSTAGE\tERROR")
	for _, r := range runs {
		started := "-"
		if r.StartedAt != nil {
			started = humanize.Time(*r.StartedAt)
		}
		fmt.Fprintf(w, "%s\t%s\t%s -> %s\t%s\t%s\t%s\n",
			started, r.Branch, r.OldValue, r.NewValue, r.Status, orDash(string(r.Stage)), orDash(r.Error))
	}
	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
