package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/gkatanacio/batch-downloader/download"
)

// PrintSummary writes the totals line followed by one line per failed URL.
func PrintSummary(w io.Writer, report *download.Report) {
	fmt.Fprintln(w, "\n=== SUMMARY ===")
	fmt.Fprintf(w, "Total: %d | OK: %d | FAIL: %d\n", len(report.Outcomes), report.Succeeded(), report.Failed())

	for _, o := range report.Failures() {
		fmt.Fprintf(w, "- FAIL: %s -> %s\n", o.URL, o.Error)
	}
}

// printOutcomes writes one line per outcome, successes included.
func printOutcomes(w io.Writer, report *download.Report) {
	for _, o := range report.Outcomes {
		if o.OK {
			fmt.Fprintf(w, "- OK:   %s -> %s (%s, sha256 %s, %d attempt(s))\n",
				o.URL, o.Path, humanize.Bytes(uint64(o.BytesWritten)), o.SHA256, o.Attempts)
			continue
		}
		fmt.Fprintf(w, "- FAIL: %s -> %s (%d attempt(s))\n", o.URL, o.Error, o.Attempts)
	}
}

// renderProgress redraws a one-line byte counter on w every interval until
// ctx is done, then draws the final state and ends the line.
func renderProgress(ctx context.Context, w io.Writer, progress *download.Progress, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	var last int64

	for {
		select {
		case <-ticker.C:
			current := progress.Total()
			speed := float64(current-last) / interval.Seconds()
			last = current

			fmt.Fprintf(w, "\rDownloading: %s | %s/s      ", humanize.Bytes(uint64(current)), humanize.Bytes(uint64(speed)))
		case <-ctx.Done():
			total := progress.Total()
			elapsed := time.Since(start)

			avg := float64(total)
			if s := elapsed.Seconds(); s > 0.1 {
				avg = float64(total) / s
			}

			fmt.Fprintf(w, "\rDownloaded: %s in %s | avg %s/s      \n",
				humanize.Bytes(uint64(total)), elapsed.Truncate(time.Millisecond), humanize.Bytes(uint64(avg)))
			return
		}
	}
}
