package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wlockwood/lits/internal/models"
	"github.com/wlockwood/lits/internal/storage"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print library statistics",
	Long: `Report prints four summaries of the store: how many faces photos contain,
how many photos each known person appears in, photos per month taken, and how
often each aperture, shutter speed and ISO value was used.`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().Bool("json", false, "Output as JSON")
}

// Report is the JSON form of the report command.
type Report struct {
	Faces    []models.FaceHistogramRow `json:"faces"`
	People   []models.PersonImagesRow  `json:"people"`
	Timeline []models.TimelineRow      `json:"timeline"`
	Exposure []models.ExposureRow      `json:"exposure"`
}

func runReport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	rep, err := buildReport(ctx, store)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(os.Stdout, rep)
	}
	printReport(os.Stdout, rep)
	return nil
}

func buildReport(ctx context.Context, reports storage.Reports) (*Report, error) {
	var (
		rep Report
		err error
	)
	if rep.Faces, err = reports.FaceHistogram(ctx); err != nil {
		return nil, fmt.Errorf("faces report: %w", err)
	}
	if rep.People, err = reports.ImagesPerPerson(ctx); err != nil {
		return nil, fmt.Errorf("people report: %w", err)
	}
	if rep.Timeline, err = reports.Timeline(ctx); err != nil {
		return nil, fmt.Errorf("timeline report: %w", err)
	}
	if rep.Exposure, err = reports.ExposureFrequencies(ctx); err != nil {
		return nil, fmt.Errorf("exposure report: %w", err)
	}
	return &rep, nil
}

func printReport(out io.Writer, rep *Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "FACES\tPHOTOS")
	for _, r := range rep.Faces {
		fmt.Fprintf(w, "%d\t%d\n", r.Faces, r.Images)
	}

	fmt.Fprintln(w, "\nPERSON\tPHOTOS")
	for _, r := range rep.People {
		fmt.Fprintf(w, "%s\t%d\n", r.PersonName, r.Images)
	}

	fmt.Fprintln(w, "\nMONTH\tPHOTOS")
	for _, r := range rep.Timeline {
		fmt.Fprintf(w, "%s\t%d\n", r.Period, r.Images)
	}

	fmt.Fprintln(w, "\nSETTING\tVALUE\tPHOTOS")
	for _, r := range rep.Exposure {
		fmt.Fprintf(w, "%s\t%s\t%d\n", r.Field, r.Value, r.Images)
	}
	_ = w.Flush()
}

func outputJSON(out io.Writer, data any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
