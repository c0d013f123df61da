package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/xtxerr/atmolog/internal/storage"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store statistics and storage requirements",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		st := store.Stats()
		isTTY := term.IsTerminal(int(os.Stdout.Fd()))
		printStats(cmd.OutOrStdout(), st, isTTY)
		fmt.Fprintln(cmd.OutOrStdout())
		fmt.Fprint(cmd.OutOrStdout(), st.Requirements.FormatRequirements())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

// statRows flattens stats into name/value pairs.
func statRows(st storage.StoreStats) [][2]string {
	itoa := func(v int64) string { return strconv.FormatInt(v, 10) }
	rows := [][2]string{
		{"layout", st.Layout},
		{"readings", fmt.Sprintf("%d/%d", st.Len, st.Cap)},
		{"sample interval", fmt.Sprintf("%d min", st.SampleInterval)},
		{"window max", strconv.Itoa(st.WindowMax)},
		{"storage available", strconv.FormatBool(st.StorageAvailable)},
		{"objects", strconv.Itoa(st.Usage.Objects)},
		{"bytes on medium", itoa(st.Usage.Bytes)},
		{"aggregate updates", itoa(st.Aggregate.Updates)},
		{"aggregate persist failures", itoa(st.Aggregate.PersistFailures)},
	}
	if st.Ring != nil {
		rows = append(rows,
			[2]string{"appends", itoa(st.Ring.Appends)},
			[2]string{"evictions", itoa(st.Ring.Evictions)},
			[2]string{"migrations", itoa(st.Ring.Migrations)},
			[2]string{"failures", itoa(st.Ring.Failures)},
		)
	}
	if st.Flat != nil {
		rows = append(rows,
			[2]string{"appends", itoa(st.Flat.Appends)},
			[2]string{"evictions", itoa(st.Flat.Evictions)},
			[2]string{"rewrites", itoa(st.Flat.Rewrites)},
			[2]string{"recoveries", itoa(st.Flat.Recoveries)},
			[2]string{"failures", itoa(st.Flat.Failures)},
		)
	}
	return rows
}

// printStats renders a table for terminals and key: value lines otherwise.
func printStats(w io.Writer, st storage.StoreStats, table bool) {
	rows := statRows(st)
	if !table {
		for _, r := range rows {
			fmt.Fprintf(w, "%s: %s\n", r[0], r[1])
		}
		return
	}

	t := tablewriter.NewWriter(w)
	t.SetHeader([]string{"Statistic", "Value"})
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, r := range rows {
		t.Append([]string{r[0], r[1]})
	}
	t.Render()
}
