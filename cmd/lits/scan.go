package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/wlockwood/lits/internal/ingest"
	"github.com/wlockwood/lits/internal/source"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Learn known people, then find them in a photo library",
	Long: `Scan first learns every person in the known directory, then ingests each
photo under the scan root: faces are extracted once per photo, matched against
the known people, and the matches are stored and tagged.

Photos already in the store are not extracted again, so a scan can be
interrupted and rerun.

Examples:
  # Scan a local library
  lits scan --scanroot ~/Pictures --known ~/Pictures/known

  # Scan a MinIO bucket and publish matches to the live feed
  lits scan --bucket --known ./known --publish`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().String("scanroot", "", "Directory to scan (overrides scan.root)")
	scanCmd.Flags().String("known", "", "Directory of known-person photos (overrides scan.known)")
	scanCmd.Flags().Bool("bucket", false, "Scan the configured MinIO bucket instead of a directory")
	scanCmd.Flags().Bool("publish", false, "Publish match events to NATS")
}

func runScan(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	root := mustGetString(cmd, "scanroot")
	if root == "" {
		root = cfg.Scan.Root
	}
	known := mustGetString(cmd, "known")
	if known == "" {
		known = cfg.Scan.Known
	}
	fromBucket := mustGetBool(cmd, "bucket")

	a, err := newApp(ctx, appOptions{publish: mustGetBool(cmd, "publish")})
	if err != nil {
		return err
	}
	defer a.close()

	var knownPaths []string
	if known != "" {
		sum, paths, err := bootstrap(cmd, a, known)
		if err != nil {
			return err
		}
		knownPaths = paths
		fmt.Printf("Known people: %s\n", sum)
	}

	cands, err := a.candidates(ctx, root, fromBucket)
	if err != nil {
		return fmt.Errorf("list photos: %w", err)
	}
	cands = source.Exclude(cands, knownPaths)
	slog.Info("scan started", "root", root, "bucket", fromBucket, "candidates", len(cands))

	bar := newProgressBar(len(cands), "Scanning")
	sum, err := a.coordinator.Scan(ctx, cands, barProgress(bar))
	_ = bar.Finish()
	fmt.Println()
	fmt.Printf("Scan: %s\n", sum)
	if sum.Errored > 0 {
		fmt.Printf("%d photos failed, see the log for details\n", sum.Errored)
	}
	return err
}

// bootstrap learns the people in dir and returns the paths it read so the
// scan can leave them out.
func bootstrap(cmd *cobra.Command, a *app, dir string) (ingest.Summary, []string, error) {
	ctx := cmd.Context()
	cands, err := source.NewDir(dir, cfg.Scan.Extensions).Candidates(ctx)
	if err != nil {
		return ingest.Summary{}, nil, fmt.Errorf("list known people: %w", err)
	}

	bar := newProgressBar(len(cands), "Learning known people")
	sum, err := a.coordinator.Bootstrap(ctx, cands, barProgress(bar))
	_ = bar.Finish()
	fmt.Println()
	return sum, source.Paths(cands), err
}
