package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dhcgn/msg-to-imap/chunks"
	"github.com/dhcgn/msg-to-imap/mapi"
	"github.com/dhcgn/msg-to-imap/stats"
	"github.com/dhcgn/msg-to-imap/storage"
)

type inspectOptions struct {
	reportDir      string
	topN           int
	codePage       int
	maxDepth       int
	normalizeOrder bool
}

// NewInspectCommand returns the inspect subcommand, which dumps the chunk
// groups of a single .msg file.
func NewInspectCommand() *cobra.Command {
	var opts inspectOptions
	cmd := &cobra.Command{
		Use:   "inspect [msg file]",
		Short: "Decode a .msg file and list its chunk groups",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := mapi.CodePageEncoding(opts.codePage); err != nil {
				return fmt.Errorf("invalid --code-page %d: %w", opts.codePage, err)
			}
			root, err := storage.OpenFile(args[0])
			if err != nil {
				return err
			}
			parseOpts := chunks.Options{CodePage: opts.codePage, MaxDepth: opts.maxDepth}
			if opts.normalizeOrder {
				parseOpts.Order = chunks.OrderNormalized
			}
			res, err := chunks.Parse(root, parseOpts)
			if err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			if err := writeReport(out, res, opts.topN); err != nil {
				return err
			}
			if opts.reportDir == "" {
				return nil
			}
			path, err := saveCSVReport(res, opts.reportDir)
			if err != nil {
				return fmt.Errorf("save CSV report: %w", err)
			}
			fmt.Fprintf(out, "\nReport saved to: %s\n", path)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.reportDir, "output", "o", "", "Directory for a CSV report of every chunk")
	flags.IntVarP(&opts.topN, "top", "t", 10, "Number of property types to list in the histogram")
	flags.IntVar(&opts.codePage, "code-page", mapi.DefaultCodePage, "Code page for 8-bit strings when the message declares none")
	flags.IntVar(&opts.maxDepth, "max-depth", chunks.DefaultMaxDepth, "Maximum nesting of attached messages")
	flags.BoolVar(&opts.normalizeOrder, "normalize-order", false, "Sort recipients and attachments by index")
	return cmd
}

func groupLabel(g chunks.Group) string {
	if ig, ok := g.(chunks.Indexed); ok {
		return fmt.Sprintf("%s #%d", g.Kind(), ig.Index())
	}
	return g.Kind().String()
}

func tagLabel(res *chunks.Result, c chunks.Chunk) string {
	if !c.Named() {
		return fmt.Sprintf("0x%04X", c.Tag)
	}
	return fmt.Sprintf("0x%04X %s", c.Tag, res.Resolve(c.Tag))
}

func writeReport(w io.Writer, top *chunks.Result, topN int) error {
	types := make(map[string]int)
	var err error
	printf := func(format string, args ...any) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}

	top.Walk(func(res *chunks.Result) {
		printf("== %s (depth %d, code page %d)\n", res.Path, res.Depth, res.CodePage)
		for _, g := range res.Groups {
			set := g.Chunks()
			printf("%s: %d chunks\n", groupLabel(g), set.Len())
			for _, c := range set.All() {
				types[c.Type.String()]++
				if c.OK() {
					printf("  %s %s = %s\n", tagLabel(res, c), c.Type, c.Value)
				} else {
					printf("  %s %s ! %v\n", tagLabel(res, c), c.Type, c.Err)
				}
			}
			for _, o := range set.Overwrites() {
				printf("  overwritten 0x%04X from %s\n", o.Tag, o.Previous.Source)
			}
		}
		for _, u := range res.Unknown {
			printf("unknown %s %s: %s\n", u.Kind, entryPath(u), u.Reason)
		}
	})

	if n := top.Names.Len(); n > 0 {
		printf("\nNamed properties (%d):\n", n)
		for _, name := range top.Names.All() {
			printf("  0x%04X %s\n", name.Tag, name)
		}
	}

	printf("\nTop %d property types:\n", topN)
	if err != nil {
		return err
	}
	return stats.WriteTop(w, types, topN)
}

func entryPath(u chunks.UnknownEntry) string {
	return path.Join(u.Path, u.Name)
}

func saveCSVReport(top *chunks.Result, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	filePath := filepath.Join(dir, "report_chunks.csv")
	file, err := os.Create(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"Container", "Group", "Tag", "Type", "Name", "Value", "Error"}); err != nil {
		return "", err
	}

	top.Walk(func(res *chunks.Result) {
		for _, g := range res.Groups {
			for _, c := range g.Chunks().All() {
				record := []string{res.Path, groupLabel(g), fmt.Sprintf("0x%04X", c.Tag), c.Type.String(), "", "", ""}
				if c.Named() {
					record[4] = res.Resolve(c.Tag).String()
				}
				if c.OK() {
					record[5] = c.Value.String()
				} else {
					record[6] = c.Err.Error()
				}
				_ = writer.Write(record)
			}
		}
	})

	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", err
	}
	return filePath, file.Close()
}
