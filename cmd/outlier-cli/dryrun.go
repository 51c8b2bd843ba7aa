package main

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"gooutlier/adapters/memory"
	"gooutlier/app"
	"gooutlier/domain/outlier"
	"gooutlier/internal/registry"
	"gooutlier/internal/telemetry"
	"gooutlier/ports"

	"github.com/prometheus/client_golang/prometheus"
)

// dryRunSummary counts what each stage flagged
type dryRunSummary struct {
	Points    int
	Printed   int
	Sketchy   int
	Confirmed int
}

// dryRun replays a point source through both classifiers and writes the
// printed points, the streaming-severe points and the confirmed points as
// timestamp,value lines
type dryRun struct {
	detector *registry.Detector
	filter   map[string]string
	logger   *zap.Logger
	progress io.Writer
}

// filterMatch requires every filter key to be present with a value starting
// with the filter value, ignoring case
func (d *dryRun) filterMatch(dp outlier.DataPoint) bool {
	for k, prefix := range d.filter {
		v, ok := dp.Metadata[k]
		if !ok || !strings.HasPrefix(strings.ToLower(v), strings.ToLower(prefix)) {
			return false
		}
	}
	return true
}

func (d *dryRun) run(ctx context.Context, src ports.PointSource, ts, sketchy, real io.Writer) (dryRunSummary, error) {
	var summary dryRunSummary
	streaming, err := d.detector.NewStreaming()
	if err != nil {
		return summary, err
	}
	svc := app.NewOutlierService(streaming, d.detector.Batch, memory.NewStore(),
		telemetry.NewMetrics(prometheus.NewRegistry()), d.logger, app.ServiceOptions{
			GroupingKeys: d.detector.GroupingKeys,
			HeadStart:    d.detector.HeadStart,
		})

	tsOut, sketchyOut, realOut := bufio.NewWriter(ts), bufio.NewWriter(sketchy), bufio.NewWriter(real)
	for {
		dp, err := src.Next(ctx)
		if stderrors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return summary, err
		}
		summary.Points++
		if d.progress != nil && summary.Points%1000 == 0 {
			fmt.Fprintf(d.progress, "completed %d\n", summary.Points)
		}

		line := strconv.FormatInt(dp.Timestamp, 10) + "," + strconv.FormatFloat(dp.Value, 'g', -1, 64) + "\n"
		show := d.filterMatch(dp)
		if show {
			summary.Printed++
			tsOut.WriteString(line)
		}

		result, err := svc.Process(ctx, dp)
		if err != nil {
			return summary, err
		}
		if result.Streaming.Severity != outlier.SevereOutlier {
			continue
		}
		summary.Sketchy++
		if show {
			sketchyOut.WriteString(line)
		}
		if result.Published != nil {
			summary.Confirmed++
			if show {
				realOut.WriteString(line)
			}
		}
	}

	for _, w := range []*bufio.Writer{tsOut, sketchyOut, realOut} {
		if err := w.Flush(); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// runToFiles writes <output>.ts, <output>.sketchy and <output>.real
func (d *dryRun) runToFiles(ctx context.Context, src ports.PointSource, output string) (summary dryRunSummary, err error) {
	var files []io.Closer
	defer func() {
		if closeErr := closeOutputs(files...); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	writers := make([]io.Writer, 0, 3)
	for _, suffix := range []string{".ts", ".sketchy", ".real"} {
		f, err := os.Create(output + suffix)
		if err != nil {
			return dryRunSummary{}, fmt.Errorf("failed to create output file: %w", err)
		}
		files = append(files, f)
		writers = append(writers, f)
	}
	return d.run(ctx, src, writers[0], writers[1], writers[2])
}

// closeOutputs closes every output and reports all failures
func closeOutputs(closers ...io.Closer) error {
	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close output: %w", err))
		}
	}
	return stderrors.Join(errs...)
}
