package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/xtxerr/atmolog/internal/storage/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export retained readings",
	Long: `Export writes every retained reading, oldest first, or with --window the
newest N readings. Ages are labelled in minutes before the newest reading.`,
	RunE: runExport,
}

var (
	exportFormat string
	exportWindow int
	exportOutput string
)

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "csv, json, pb or parquet")
	exportCmd.Flags().IntVarP(&exportWindow, "window", "w", -1, "export only the newest N readings (0 selects the configured maximum)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "-", "output file, - for stdout")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	f, err := export.ParseFormat(exportFormat, export.FormatCSV)
	if err != nil {
		return err
	}

	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	var out io.Writer = cmd.OutOrStdout()
	if exportOutput != "-" {
		file, err := os.Create(exportOutput)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}

	var n int
	if exportWindow >= 0 {
		n, err = store.WriteWindow(out, f, exportWindow)
	} else {
		n, err = store.WriteFull(out, f)
	}
	if err != nil {
		return err
	}
	if exportOutput != "-" {
		fmt.Fprintf(cmd.ErrOrStderr(), "exported %d readings to %s\n", n, exportOutput)
	}
	return nil
}
