package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	prompt "github.com/c-bata/go-prompt"
	"github.com/spf13/cobra"

	"github.com/xtxerr/atmolog/internal/storage"
	"github.com/xtxerr/atmolog/internal/storage/aggregate"
	"github.com/xtxerr/atmolog/internal/storage/export"
	"github.com/xtxerr/atmolog/internal/storage/query"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive shell over the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		sh := &shell{store: store, out: cmd.OutOrStdout(), ctx: cmd.Context()}
		p := prompt.New(
			func(line string) { sh.exec(line) },
			sh.complete,
			prompt.OptionPrefix("atmolog> "),
			prompt.OptionTitle("atmolog"),
			prompt.OptionSetExitCheckerOnInput(func(in string, breakline bool) bool {
				return breakline && isExit(in)
			}),
		)
		p.Run()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

var shellCommands = []prompt.Suggest{
	{Text: "len", Description: "number of retained readings"},
	{Text: "agg", Description: "min/max since the last clear"},
	{Text: "tail", Description: "tail N: newest N readings"},
	{Text: "window", Description: "window N: newest N readings, capped at the window maximum"},
	{Text: "summary", Description: "summary N [field]: statistics over the newest N readings"},
	{Text: "sql", Description: "sql <query>: read-only query over the readings table"},
	{Text: "clear", Description: "remove every reading and reset the aggregate"},
	{Text: "help", Description: "list commands"},
	{Text: "exit", Description: "leave the shell"},
}

// shell executes one command line at a time against a store.
type shell struct {
	store *storage.Store
	out   io.Writer
	ctx   context.Context
}

func isExit(line string) bool {
	switch strings.TrimSpace(line) {
	case "exit", "quit":
		return true
	}
	return false
}

func (s *shell) complete(d prompt.Document) []prompt.Suggest {
	if strings.Contains(d.TextBeforeCursor(), " ") {
		return nil
	}
	return prompt.FilterHasPrefix(shellCommands, d.GetWordBeforeCursor(), true)
}

// exec runs line and reports whether the shell should exit.
func (s *shell) exec(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if isExit(line) {
		return true
	}

	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	var err error
	switch cmd {
	case "len":
		st := s.store.Stats()
		fmt.Fprintf(s.out, "%d/%d\n", st.Len, st.Cap)
	case "agg":
		s.printAggregate()
	case "tail":
		err = s.withCount(rest, 10, func(n int) error {
			return s.store.View(func(q *query.Service) error {
				_, err := q.WriteLast(s.out, export.FormatCSV, n)
				return err
			})
		})
	case "window":
		err = s.withCount(rest, 0, func(n int) error {
			_, err := s.store.WriteWindow(s.out, export.FormatCSV, n)
			return err
		})
	case "summary":
		count, field, _ := strings.Cut(rest, " ")
		err = s.withCount(count, 0, func(n int) error {
			return s.printSummary(n, strings.TrimSpace(field))
		})
	case "sql":
		err = s.runSQL(rest)
	case "clear":
		if s.store.Clear() {
			fmt.Fprintln(s.out, "cleared")
		} else {
			fmt.Fprintln(s.out, "clear failed; running clear again is safe")
		}
	case "help":
		for _, c := range shellCommands {
			fmt.Fprintf(s.out, "  %-8s %s\n", c.Text, c.Description)
		}
	default:
		err = fmt.Errorf("unknown command %q, try help", cmd)
	}

	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
	}
	return false
}

func (s *shell) withCount(arg string, def int, fn func(int) error) error {
	n := def
	if arg != "" {
		v, err := strconv.Atoi(arg)
		if err != nil || v < 0 {
			return fmt.Errorf("expected a non-negative count, got %q", arg)
		}
		n = v
	}
	return fn(n)
}

func (s *shell) printAggregate() {
	agg := s.store.Aggregate()
	fmt.Fprintf(s.out, "humidity     %s .. %s\n", agg.MinHumidity, agg.MaxHumidity)
	fmt.Fprintf(s.out, "temperature  %s .. %s\n", agg.MinTemperature, agg.MaxTemperature)
	fmt.Fprintf(s.out, "pressure     %s .. %s\n", agg.MinPressure, agg.MaxPressure)
}

// printSummary prints every field, or only field when it is not empty.
func (s *shell) printSummary(n int, field string) error {
	sum, err := s.store.Summary(s.ctx, n)
	if err != nil {
		return err
	}
	fields := sum.Fields
	if field != "" {
		f, ok := sum.Field(field)
		if !ok {
			return fmt.Errorf("unknown field %q", field)
		}
		fields = []aggregate.FieldSummary{f}
	}
	fmt.Fprintf(s.out, "points: %d\n", sum.Points)
	for _, f := range fields {
		fmt.Fprintf(s.out, "%-12s count=%d mean=%.2f min=%.2f max=%.2f", f.Field, f.Count, f.Mean, f.Min, f.Max)
		if f.HasPercentiles() {
			fmt.Fprintf(s.out, " p50=%.2f p90=%.2f p99=%.2f", *f.P50, *f.P90, *f.P99)
		}
		fmt.Fprintln(s.out)
	}
	return nil
}

func (s *shell) runSQL(sql string) error {
	if sql == "" {
		return fmt.Errorf("usage: sql <query>")
	}
	res, err := s.store.ExecuteSQL(s.ctx, sql)
	if err != nil {
		return err
	}

	cols := res.Columns
	if len(cols) == 0 && len(res.Rows) > 0 {
		for c := range res.Rows[0] {
			cols = append(cols, c)
		}
		sort.Strings(cols)
	}
	fmt.Fprintln(s.out, strings.Join(cols, "\t"))
	for _, row := range res.Rows {
		vals := make([]string, len(cols))
		for i, c := range cols {
			vals[i] = fmt.Sprint(row[c])
		}
		fmt.Fprintln(s.out, strings.Join(vals, "\t"))
	}
	if res.Truncated {
		fmt.Fprintln(s.out, "(truncated)")
	}
	return nil
}
