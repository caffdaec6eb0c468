package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/LeJamon/goshamap/internal/config"
	"github.com/LeJamon/goshamap/internal/shamap"
)

var (
	diffType   string
	diffMax    int
	diffOutput string
)

// errMapsDiffer makes the diff command exit non-zero when the maps differ.
var errMapsDiffer = errors.New("maps differ")

// diffCmd represents the diff command
var diffCmd = &cobra.Command{
	Use:   "diff <rootA> <rootB>",
	Short: "Compare two stored maps",
	Long: `Compare the maps with the given root hashes, descending only into
subtrees whose hashes differ.

Shows:
- Added entries (in rootB but not rootA)
- Removed entries (in rootA but not rootB)
- Modified entries

The command exits with an error when the maps differ.

Examples:
    shamapd diff <rootA> <rootB>
    shamapd diff <rootA> <rootB> --max 100 --output diff.json`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := parseHash(args[0])
		if err != nil {
			return err
		}
		b, err := parseHash(args[1])
		if err != nil {
			return err
		}

		report, err := runDiff(cfg, a, b, diffType, diffMax)
		if err != nil {
			return err
		}
		printDiffReport(cmd.OutOrStdout(), a, b, report)

		if diffOutput != "" {
			if err := writeDiffJSON(diffOutput, report); err != nil {
				return fmt.Errorf("failed to write diff file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Diff written to: %s\n", diffOutput)
		}
		if report.differs() {
			return errMapsDiffer
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(diffCmd)

	diffCmd.Flags().StringVarP(&diffType, "type", "t", "state", "Map type: state or tx")
	diffCmd.Flags().IntVar(&diffMax, "max", 10000, "Stop after this many differences")
	diffCmd.Flags().StringVarP(&diffOutput, "output", "o", "", "Output diff to JSON file")
}

type diffEntry struct {
	Index string `json:"index"`
	Old   string `json:"old,omitempty"`
	New   string `json:"new,omitempty"`
}

type diffReport struct {
	Added    []diffEntry `json:"added"`
	Removed  []diffEntry `json:"removed"`
	Modified []diffEntry `json:"modified"`
	Complete bool        `json:"complete"` // false when --max was hit
}

func (r *diffReport) differs() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0 || len(r.Modified) > 0
}

func runDiff(c *config.Config, a, b [32]byte, typ string, max int) (*diffReport, error) {
	mapType, _, err := parseMapType(typ)
	if err != nil {
		return nil, err
	}
	env, err := openStore(c, "")
	if err != nil {
		return nil, err
	}
	defer env.Close()

	first, err := env.loadMap(a, mapType)
	if err != nil {
		return nil, err
	}
	second, err := env.loadMap(b, mapType)
	if err != nil {
		return nil, err
	}

	delta, complete, err := first.Compare(second, max)
	if err != nil {
		return nil, err
	}

	report := &diffReport{
		Added:    []diffEntry{},
		Removed:  []diffEntry{},
		Modified: []diffEntry{},
		Complete: complete,
	}
	for key, d := range delta {
		e := diffEntry{Index: fmt.Sprintf("%X", key)}
		if d.First != nil {
			e.Old = fmt.Sprintf("%X", d.First.Data())
		}
		if d.Second != nil {
			e.New = fmt.Sprintf("%X", d.Second.Data())
		}
		switch d.Type() {
		case shamap.DiffAdded:
			report.Added = append(report.Added, e)
		case shamap.DiffRemoved:
			report.Removed = append(report.Removed, e)
		default:
			report.Modified = append(report.Modified, e)
		}
	}

	// Sort for consistent output
	for _, entries := range [][]diffEntry{report.Added, report.Removed, report.Modified} {
		sort.Slice(entries, func(i, j int) bool { return entries[i].Index < entries[j].Index })
	}
	return report, nil
}

func printDiffReport(w io.Writer, a, b [32]byte, r *diffReport) {
	fmt.Fprintf(w, "Map A: %X\n", a)
	fmt.Fprintf(w, "Map B: %X\n", b)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "--- Summary ---")
	fmt.Fprintf(w, "Added:    %d entries (in B but not A)\n", len(r.Added))
	fmt.Fprintf(w, "Removed:  %d entries (in A but not B)\n", len(r.Removed))
	fmt.Fprintf(w, "Modified: %d entries\n", len(r.Modified))
	if !r.Complete {
		fmt.Fprintln(w, "(stopped early: maps too different)")
	}
	fmt.Fprintln(w)

	for _, e := range r.Added {
		fmt.Fprintf(w, "[+] %s\n", e.Index)
	}
	for _, e := range r.Removed {
		fmt.Fprintf(w, "[-] %s\n", e.Index)
	}
	for _, e := range r.Modified {
		fmt.Fprintf(w, "[~] %s\n", e.Index)
		fmt.Fprintf(w, "      - %s\n", e.Old)
		fmt.Fprintf(w, "      + %s\n", e.New)
	}
}

func writeDiffJSON(path string, r *diffReport) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
