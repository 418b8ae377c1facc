package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/koustreak/imgbed/internal/storage"
)

var stdout io.Writer = os.Stdout

func writeJSON(payload any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(stdout, format, args...)
	return err
}

func writeAssetList(assets []storage.ListedAsset) error {
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SHORT ID\tNAME\tSIZE\tCREATED\tURL")
	for _, a := range assets {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			a.ShortID, a.DisplayName, a.SizeBytes, a.CreatedAt.Format(time.RFC3339), a.URL)
	}
	return tw.Flush()
}

func writeStats(s storage.AggregateStats) error {
	names := make([]string, 0, len(s.PerDriver))
	for n := range s.PerDriver {
		names = append(names, n)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DRIVER\tCOUNT\tBYTES\tERROR")
	for _, n := range names {
		d := s.PerDriver[n]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", n, d.Count, d.SizeBytes, s.Failures[n].Message)
	}
	fmt.Fprintf(tw, "total\t%d\t%d\t\n", s.TotalCount, s.TotalSizeBytes)
	return tw.Flush()
}
