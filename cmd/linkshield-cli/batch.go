package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/use-agent/linkshield/app"
	"github.com/use-agent/linkshield/models"
	"github.com/use-agent/linkshield/scanner"
)

// batchReport is the document written by the batch command.
type batchReport struct {
	Tests   []*models.BatchItem `json:"tests"`
	Summary models.BatchSummary `json:"summary"`
}

func newBatchCmd() *cobra.Command {
	var (
		threads int
		output  string
	)
	cmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Scan every URL in a file and write a JSON report",
		Long: `batch reads one URL per line. Blank lines and lines starting with #
are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			urls, err := readURLs(f)
			f.Close()
			if err != nil {
				return err
			}
			if len(urls) == 0 {
				return fmt.Errorf("no URLs in %s", args[0])
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			rt, err := app.New(loadConfig())
			if err != nil {
				return err
			}
			defer rt.Close()

			out := cmd.OutOrStdout()
			report := runBatch(ctx, rt.Scanner, urls, threads, func(done int, item *models.BatchItem) {
				printProgress(out, done, len(urls), item)
			})

			fo, err := os.Create(output)
			if err != nil {
				return err
			}
			defer fo.Close()
			if err := writeJSON(fo, report); err != nil {
				return err
			}
			printSummary(out, report.Summary, output)
			return nil
		},
	}
	cmd.Flags().IntVarP(&threads, "threads", "t", 5, "Number of concurrent scans")
	cmd.Flags().StringVarP(&output, "output", "o", "batch_results.json", "Output file path")
	return cmd
}

// readURLs returns the non-empty, non-comment lines of r.
func readURLs(r io.Reader) ([]string, error) {
	var urls []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, sc.Err()
}

// runBatch scans urls with a bounded worker pool. Results keep input order.
func runBatch(ctx context.Context, sc *scanner.Scanner, urls []string, threads int, progress func(int, *models.BatchItem)) *batchReport {
	if threads <= 0 {
		threads = 1
	}
	items := make([]*models.BatchItem, len(urls))
	jobs := make(chan int)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)

	for w := 0; w < threads; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				item := &models.BatchItem{URL: urls[i]}
				res, err := sc.Scan(ctx, urls[i])
				if err != nil {
					var se *models.ScanError
					if errors.As(err, &se) {
						item.Error = se.ToDetail()
					} else {
						item.Error = &models.ErrorDetail{Code: models.ErrCodeInternal, Message: err.Error()}
					}
				} else {
					item.Result = res
				}
				items[i] = item

				mu.Lock()
				done++
				if progress != nil {
					progress(done, item)
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for i := range urls {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	report := &batchReport{Tests: make([]*models.BatchItem, 0, len(items))}
	for _, item := range items {
		if item == nil {
			continue
		}
		report.Tests = append(report.Tests, item)
		report.Summary.Add(item)
	}
	return report
}
