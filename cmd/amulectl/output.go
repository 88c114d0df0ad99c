package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/danmuck/amulectl/internal/client"
)

func printTree(w io.Writer, nodes []client.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, n := range nodes {
		if n.Value == "" {
			fmt.Fprintf(w, "%s%s\n", indent, n.Name)
		} else {
			fmt.Fprintf(w, "%s%s: %s\n", indent, n.Name, n.Value)
		}
		printTree(w, n.Children, depth+1)
	}
}

func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func printShared(w io.Writer, files []client.SharedFile) {
	tw := table(w)
	fmt.Fprintln(tw, "HASH\tSIZE\tXFER\tXFER ALL\tREQ\tACCEPT\tPRIO\tNAME")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
			f.Hash, f.Size, f.Transferred, f.TransferredTotal, f.RequestsTotal, f.AcceptedTotal, f.Priority, f.Name)
	}
	_ = tw.Flush()
}

func printDownloads(w io.Writer, downloads []client.Download) {
	tw := table(w)
	fmt.Fprintln(tw, "HASH\tDONE\tSIZE\tPROGRESS\tSOURCES\tSPEED\tCAT\tLAST COMPLETE\tNAME")
	for _, d := range downloads {
		seen := "never"
		if !d.LastSeenComplete.IsZero() {
			seen = d.LastSeenComplete.Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f%%\t%d\t%d\t%d\t%s\t%s\n",
			d.Hash, d.Done, d.Size, d.Progress(), d.Sources, d.Speed, d.Category, seen, d.Name)
	}
	_ = tw.Flush()
}

func printResults(w io.Writer, results []client.SearchResult) {
	tw := table(w)
	fmt.Fprintf(tw, "%d results\n", len(results))
	fmt.Fprintln(tw, "HASH\tSOURCES\tSIZE\tNAME")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", r.Hash, r.Sources, r.Size, r.Name)
	}
	_ = tw.Flush()
}

func printCategories(w io.Writer, cats []client.Category) {
	tw := table(w)
	fmt.Fprintln(tw, "ID\tTITLE\tPRIO\tCOLOR\tPATH\tCOMMENT")
	for _, c := range cats {
		fmt.Fprintf(tw, "%d\t%s\t%d\t#%06X\t%s\t%s\n", c.ID, c.Title, c.Priority, c.Color, c.Path, c.Comment)
	}
	_ = tw.Flush()
}
