package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"bodega-go/internal/backup"
	"bodega-go/internal/bodega"
	"bodega-go/internal/model"

	"github.com/dustin/go-humanize"
)

const dateLayout = "2006-01-02 15:04"

// entryDate renders an entry date in UTC, the zone it is stored and
// searched in, so a printed day can be passed back to `search --by date`.
func entryDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

func printDevice(d *model.Device) {
	writeDevice(os.Stdout, d)
}

func writeDevice(w io.Writer, d *model.Device) {
	fmt.Fprintf(w, "ID:           %d\n", d.ID)
	fmt.Fprintf(w, "Plant:        %s (%s)\n", d.Plant, bodega.Plants[d.Plant])
	fmt.Fprintf(w, "Serial:       %s\n", d.SerialNo)
	fmt.Fprintf(w, "Type:         %s\n", d.Type)
	fmt.Fprintf(w, "Model:        %s\n", d.Model)
	fmt.Fprintf(w, "Failure:      %s\n", d.FailureType)
	fmt.Fprintf(w, "Entry date:   %s UTC\n", entryDate(d.EntryDate))
	if d.Observations != "" {
		fmt.Fprintf(w, "Observations: %s\n", d.Observations)
	}
}

func printResult(res *bodega.SearchResult) {
	writeResult(os.Stdout, res)
}

func writeResult(w io.Writer, res *bodega.SearchResult) {
	if res.Count() == 0 {
		fmt.Fprintln(w, "No devices found.")
		return
	}

	fmt.Fprintf(w, "%-5s  %-5s  %-16s  %-20s  %-20s  %-4s  %s\n", "ID", "PLANT", "SERIAL", "TYPE", "MODEL", "FAIL", "ENTRY (UTC)")
	for _, d := range res.Devices {
		fmt.Fprintf(w, "%-5d  %-5s  %-16s  %-20s  %-20s  %-4s  %s\n",
			d.ID, d.Plant, d.SerialNo, d.Type, d.Model,
			bodega.FailureCode(d.FailureType),
			entryDate(d.EntryDate),
		)
	}

	by := res.Scope.String()
	if res.Term != "" {
		by = fmt.Sprintf("%s %q", by, res.Term)
	}
	fmt.Fprintf(w, "%d device(s) found by %s\n", res.Count(), by)
}

func printArtifact(a backup.Artifact) {
	fmt.Printf("%s  %8s  %s (%s)\n",
		a.Name,
		humanize.Bytes(uint64(a.SizeBytes)),
		a.CreatedAt.Local().Format(dateLayout),
		humanize.Time(a.CreatedAt),
	)
}
