package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/ethpandaops/dumpoor/pkg/dumps"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending dumps",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	pending, err := dumps.NewLister(&cfg.Dumps).List()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "FILE\tSIZE\tMODIFIED")

	for _, d := range pending {
		fmt.Fprintf(tw, "%s\t%s\t%s\n",
			filepath.Base(d.Path), d.HumanSize(), d.ModTime.Format(time.RFC3339))
	}

	return tw.Flush()
}
