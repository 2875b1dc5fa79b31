// Annotates a captured serial log offline, without the queue or the emulator.
// Useful for checking what a kernel run would score.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/cutekitek/kernel-annotator/internal/annotator"
)

func main() {
	logPath := flag.String("log", "", "serial log file to annotate")
	reportPath := flag.String("report", "", "case report file, overrides the report embedded in the log")
	banner := flag.String("banner", "", "boot banner line to look for")
	flag.Parse()

	if *logPath == "" {
		flag.Usage()
		os.Exit(2)
	}
	data, err := os.ReadFile(*logPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	artifacts := annotator.CollectArtifacts(string(data))
	if *reportPath != "" {
		report, err := os.ReadFile(*reportPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		artifacts.Report = report
	}

	results := annotator.NewResultSet()
	pipeline := annotator.NewPipeline(
		annotator.NewCaseReportPass(results),
		annotator.NewMarkerPass(results),
		annotator.NewBootPass(results, *banner),
	)
	pipeline.Run(artifacts)

	for _, c := range results.Results() {
		fmt.Printf("%-24s %.2f\n", c.Name, c.Score)
	}
	fmt.Printf("total: %.2f over %d cases\n", results.Total(), results.Len())
}
