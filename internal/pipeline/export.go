package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"path"
	"strconv"
	"strings"

	"denoise-bench/internal/metrics"
	"denoise-bench/internal/models"
)

var csvHeader = []string{"filter_name", "mse", "psnr"}

// storedResults loads the latest run of a session, failing with NoResults
// before the first successful process call
func (c *Coordinator) storedResults(ctx context.Context, id string) (*models.ResultSet, error) {
	sess, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Results.Len() == 0 {
		return nil, fmt.Errorf("%w: session %s", models.ErrNoResults, id)
	}
	return sess.Results, nil
}

// Export returns one row per successful filter of the latest run, in bank
// order. PSNR is raw and may be +Inf.
func (c *Coordinator) Export(ctx context.Context, id string) ([]models.ExportRow, error) {
	set, err := c.storedResults(ctx, id)
	if err != nil {
		return nil, err
	}

	rows := make([]models.ExportRow, len(set.Results))
	for i, r := range set.Results {
		rows[i] = models.ExportRow{
			FilterName: r.Name,
			MSE:        r.MSE,
			PSNR:       r.PSNR,
		}
	}

	return rows, nil
}

// WriteCSV writes the export table as CSV with four decimal places
func (c *Coordinator) WriteCSV(ctx context.Context, id string, w io.Writer) error {
	rows, err := c.Export(ctx, id)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{row.FilterName, FormatMetric(row.MSE), FormatMetric(row.PSNR)}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()

	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}

	c.logger.Debug(component, "results exported", map[string]interface{}{
		"session_id": id,
		"rows":       len(rows),
	})

	return nil
}

// ChartSeries derives the MSE, PSNR and MSE-vs-PSNR series from the stored
// run. PSNR values are capped.
func (c *Coordinator) ChartSeries(ctx context.Context, id string) (*models.ChartSeries, error) {
	set, err := c.storedResults(ctx, id)
	if err != nil {
		return nil, err
	}

	series := &models.ChartSeries{
		MSE:        make([]models.SeriesPoint, len(set.Results)),
		PSNR:       make([]models.SeriesPoint, len(set.Results)),
		Comparison: make([]models.ComparisonPoint, len(set.Results)),
	}

	for i, r := range set.Results {
		psnr := metrics.DisplayPSNR(r.PSNR, c.psnrCap)
		series.MSE[i] = models.SeriesPoint{Filter: r.Name, Value: r.MSE}
		series.PSNR[i] = models.SeriesPoint{Filter: r.Name, Value: psnr}
		series.Comparison[i] = models.ComparisonPoint{Filter: r.Name, MSE: r.MSE, PSNR: psnr}
	}

	return series, nil
}

// ExportFilename names the CSV download of a session after its uploaded
// file, falling back to the session id when the upload had no name
func (c *Coordinator) ExportFilename(ctx context.Context, id string) (string, error) {
	sess, err := c.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return csvFilename(sess.Filename, id), nil
}

func csvFilename(uploaded, id string) string {
	name := strings.ReplaceAll(uploaded, "\\", "/")
	name = path.Base(name)
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == '"' || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == "/" {
		name = id
	}
	return "resultados_" + name + ".csv"
}

// FormatMetric renders a metric with four decimals, or "inf" for an
// infinite PSNR
func FormatMetric(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}
