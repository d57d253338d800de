package cli

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/kilupskalvis/contentsync/internal/journal"
	"github.com/kilupskalvis/contentsync/internal/models"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show recent sync runs",
	Long: `Display the journal of reindex, webhook and manual sync runs, newest
first. Pass a run ID (or its first characters) to show one run in full.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runHistory,
}

var (
	historyOneline bool
	historyLimit   int
)

func init() {
	historyCmd.Flags().BoolVar(&historyOneline, "oneline", false, "Show each run on a single line")
	historyCmd.Flags().IntVarP(&historyLimit, "n", "n", 20, "Limit the number of runs to show")
}

func openJournal() *journal.Journal {
	c := initContext()
	j, err := journal.New(c.Config.JournalPath())
	if err != nil {
		exitError("failed to open journal: %v", err)
	}
	if err := j.Initialize(); err != nil {
		j.Close()
		exitError("failed to initialize journal: %v", err)
	}
	return j
}

func runHistory(cmd *cobra.Command, args []string) {
	j := openJournal()
	defer j.Close()

	if len(args) == 1 {
		run, err := j.GetByShortID(args[0])
		if err != nil {
			exitError("%v", err)
		}
		printRun(run, true)
		return
	}

	runs, err := j.Recent(historyLimit)
	if err != nil {
		exitError("failed to read journal: %v", err)
	}
	if len(runs) == 0 {
		fmt.Println("No sync runs yet")
		return
	}

	for _, run := range runs {
		if historyOneline {
			printRunOneline(run)
		} else {
			printRun(run, false)
		}
	}
}

func printRunOneline(run *models.SyncRun) {
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	yellow.Printf("%s ", run.ShortID())
	fmt.Printf("%-8s %-14s +%d -%d", run.Kind, humanize.Time(run.StartedAt), len(run.Upserted), len(run.Deleted))
	if run.Failed() {
		red.Print(" failed")
	}
	fmt.Println()
}

func printRun(run *models.SyncRun, full bool) {
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)

	yellow.Printf("run %s ", run.ID)
	cyan.Printf("(%s)\n", run.Kind)
	fmt.Printf("Date:     %s (%s)\n", run.StartedAt.Local().Format("Mon Jan 2 15:04:05 2006"), humanize.Time(run.StartedAt))
	fmt.Printf("Duration: %s\n", run.Duration().Round(1e6))
	if len(run.Codenames) > 0 {
		fmt.Printf("Items:    %s\n", strings.Join(run.Codenames, ", "))
	}
	if run.Failed() {
		red.Printf("Error:    %s\n", run.Error)
	}

	fmt.Printf("\n    %d indexed, %d deleted\n", len(run.Upserted), len(run.Deleted))
	if full {
		for _, id := range run.Upserted {
			green.Printf("      + %s\n", id)
		}
		for _, id := range run.Deleted {
			red.Printf("      - %s\n", id)
		}
	}
	fmt.Println()
}
