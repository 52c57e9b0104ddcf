package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/journal"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/sandbox"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/session"
)

var doctorVerbose bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Validate the sandbox root, journal readability, and snapshot permissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDoctor(projectRoot, doctorVerbose)
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVarP(&doctorVerbose, "verbose", "v", false, "dump each session's tracker state")
}

func runDoctor(root string, verbose bool) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	ok := color.New(color.FgGreen).SprintFunc()
	bad := color.New(color.FgRed).SprintFunc()

	fmt.Println(color.New(color.Bold).Sprint("ntsfs doctor"))
	fmt.Println()

	_, err = sandbox.New(absRoot, nil, 10*1024*1024)
	if err != nil {
		fmt.Printf("%s sandbox root: %v\n", bad("✗"), err)
		return err
	}
	fmt.Printf("%s sandbox root resolves: %s\n", ok("✓"), absRoot)

	sessionsDir := filepath.Join(absRoot, ".nts", "sessions")
	entries, err := os.ReadDir(sessionsDir)
	if err != nil && !os.IsNotExist(err) {
		fmt.Printf("%s reading sessions dir: %v\n", bad("✗"), err)
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Session", "Journal", "Snapshots writable", "Undo entries"})

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sid := e.Name()
		sessDir := filepath.Join(sessionsDir, sid)

		journalStatus := ok("readable")
		undoCount := "0"
		doc, jerr := journal.Load(sessDir)
		if jerr != nil {
			journalStatus = bad(fmt.Sprintf("error: %v", jerr))
		} else {
			undoCount = fmt.Sprintf("%d", len(doc.UndoStack))
		}

		snapDir := filepath.Join(sessDir, "snapshots")
		writable := ok("yes")
		probe := filepath.Join(snapDir, ".doctor-probe")
		if err := os.MkdirAll(snapDir, 0o755); err != nil {
			writable = bad(fmt.Sprintf("no: %v", err))
		} else if err := os.WriteFile(probe, []byte("x"), 0o644); err != nil {
			writable = bad(fmt.Sprintf("no: %v", err))
		} else {
			os.Remove(probe)
		}

		table.Append([]string{sid, journalStatus, writable, undoCount})
	}
	table.Render()

	if verbose {
		fmt.Println()
		fmt.Println(color.New(color.Bold).Sprint("Session tracker dump"))
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			sid := e.Name()
			ctx, err := session.Load(sessionsDir, sid)
			if err != nil {
				fmt.Printf("%s %s: %v\n", bad("✗"), sid, err)
				continue
			}
			fmt.Printf("--- %s ---\n", sid)
			spew.Dump(ctx.Lineage.Snapshot())
			spew.Dump(ctx.Ext.Snapshot())
			spew.Dump(ctx.Txn.Stats())
		}
	}

	return nil
}
