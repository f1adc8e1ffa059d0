package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var knownCmd = &cobra.Command{
	Use:   "known [dir]",
	Short: "Learn known people without scanning",
	Long: `Known ingests a directory of reference photos. Each photo must show exactly
one face and is named after the person it shows; the file extension is
dropped, so "Grace Hopper.jpg" becomes the person "Grace Hopper".

The directory defaults to scan.known.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runKnown,
}

func init() {
	rootCmd.AddCommand(knownCmd)
}

func runKnown(cmd *cobra.Command, args []string) error {
	dir := cfg.Scan.Known
	if len(args) == 1 {
		dir = args[0]
	}
	if dir == "" {
		return fmt.Errorf("no known-people directory given")
	}

	a, err := newApp(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	sum, _, err := bootstrap(cmd, a, dir)
	fmt.Printf("Known people: %s\n", sum)
	return err
}
