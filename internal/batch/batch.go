// Package batch runs the filter bank over a set of image files and writes
// per-image metric tables, an averaged table and the filtered images.
package batch

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"denoise-bench/internal/logger"
	"denoise-bench/internal/metrics"
	"denoise-bench/internal/models"
	"denoise-bench/internal/pipeline"
	"denoise-bench/internal/processing/filters"
	"denoise-bench/internal/session"
)

const (
	component = "BatchRunner"

	AverageCSV = "metricas_media.csv"
)

var averageHeader = []string{"filter_name", "mean_mse", "mean_psnr", "images"}

// Encoder turns an image into PNG bytes
type Encoder func(img *models.Image) ([]byte, error)

type Options struct {
	Store   session.Store
	Codec   pipeline.Codec
	Encode  Encoder
	Bank    *filters.Bank
	Logger  logger.Logger
	Sources pipeline.SourceFactory
	Workers int
}

// Runner drives the session pipeline once per input file
type Runner struct {
	store  session.Store
	coord  *pipeline.Coordinator
	encode Encoder
	logger logger.Logger
}

func NewRunner(opts Options) (*Runner, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if opts.Encode == nil {
		return nil, fmt.Errorf("image encoder is required")
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}

	coord, err := pipeline.NewCoordinator(pipeline.Options{
		Store:   opts.Store,
		Bank:    opts.Bank,
		Codec:   opts.Codec,
		Logger:  opts.Logger,
		Sources: opts.Sources,
		Workers: opts.Workers,
	})
	if err != nil {
		return nil, err
	}

	return &Runner{
		store:  opts.Store,
		coord:  coord,
		encode: opts.Encode,
		logger: opts.Logger,
	}, nil
}

// ImageReport describes the outputs written for one processed image
type ImageReport struct {
	Index    int
	Path     string
	Width    int
	Height   int
	CSVPath  string
	Dir      string
	Results  []models.ExportRow
	Failures []models.FilterFailure
}

// Average is the mean score of one filter over the images it ran on
type Average struct {
	Filter string
	MSE    float64
	PSNR   float64
	Images int
}

type Report struct {
	Images     []ImageReport
	Skipped    []string
	Averages   []Average
	Stats      models.SummaryStats
	AverageCSV string
}

// Best returns the filter with the lowest mean MSE
func (r *Report) Best() Average {
	for _, a := range r.Averages {
		if a.Filter == r.Stats.BestFilter {
			return a
		}
	}
	return Average{}
}

// Run processes every path with spec and writes the results under output.
// Files that cannot be read, decoded or filtered are skipped with a
// warning; the run fails only when none is left.
func (r *Runner) Run(ctx context.Context, paths []string, spec models.NoiseSpec, output string) (*Report, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no input images", models.ErrInvalidParameter)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(output, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	report := &Report{}
	var runs []*models.ResultSet

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		img, set, err := r.processFile(ctx, path, spec, output, len(report.Images)+1)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			r.logger.Warning(component, "image skipped", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
			report.Skipped = append(report.Skipped, path)
			continue
		}

		report.Images = append(report.Images, *img)
		runs = append(runs, set)
	}

	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: none of the %d images could be processed", models.ErrNoResults, len(paths))
	}

	report.Averages = averages(r.coord.FilterNames(), runs)

	scored := make([]models.FilterResult, len(report.Averages))
	for i, a := range report.Averages {
		scored[i] = models.FilterResult{Name: a.Filter, MSE: a.MSE, PSNR: a.PSNR}
	}
	stats, err := metrics.Summarize(scored)
	if err != nil {
		return nil, err
	}
	report.Stats = stats

	report.AverageCSV = filepath.Join(output, AverageCSV)
	if err := writeAverages(report.AverageCSV, report.Averages); err != nil {
		return nil, err
	}

	r.logger.Info(component, "batch completed", map[string]interface{}{
		"images":      len(report.Images),
		"skipped":     len(report.Skipped),
		"noise_type":  string(spec.Kind),
		"best_filter": stats.BestFilter,
		"best_mse":    stats.BestMSE,
		"output":      output,
	})

	return report, nil
}

// processFile runs one image through a throwaway session and writes its
// table and images. index numbers the outputs from 1.
func (r *Runner) processFile(ctx context.Context, path string, spec models.NoiseSpec, output string, index int) (*ImageReport, *models.ResultSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read image: %w", err)
	}

	uploaded, err := r.coord.Upload(ctx, filepath.Base(path), raw)
	if err != nil {
		return nil, nil, err
	}
	id := uploaded.SessionID
	defer func() {
		if err := r.store.Delete(context.Background(), id); err != nil {
			r.logger.Warning(component, "session cleanup failed", map[string]interface{}{
				"session_id": id,
				"error":      err.Error(),
			})
		}
	}()

	if _, err := r.coord.Process(ctx, id, spec); err != nil {
		return nil, nil, err
	}

	rows, err := r.coord.Export(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	csvPath := filepath.Join(output, fmt.Sprintf("metricas_imagem_%d.csv", index))
	if err := r.writeImageCSV(ctx, id, csvPath); err != nil {
		return nil, nil, err
	}

	sess, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	dir := filepath.Join(output, fmt.Sprintf("imagem_%d", index))
	if err := r.writeImages(dir, sess); err != nil {
		return nil, nil, err
	}

	r.logger.Info(component, "image processed", map[string]interface{}{
		"index":    index,
		"path":     path,
		"filters":  sess.Results.Len(),
		"failures": len(sess.Results.Failures),
	})

	return &ImageReport{
		Index:    index,
		Path:     path,
		Width:    uploaded.Width,
		Height:   uploaded.Height,
		CSVPath:  csvPath,
		Dir:      dir,
		Results:  rows,
		Failures: sess.Results.Failures,
	}, sess.Results, nil
}

func (r *Runner) writeImageCSV(ctx context.Context, id, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := r.coord.WriteCSV(ctx, id, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeImages saves the original, the noisy copy and every filtered output
func (r *Runner) writeImages(dir string, sess *models.Session) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	files := map[string]*models.Image{
		"original.png": sess.Original,
		"ruidosa.png":  sess.Noisy,
	}
	for _, res := range sess.Results.Results {
		files[ImageFileName(res.Name)] = res.Image
	}

	for name, img := range files {
		data, err := r.encode(img)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	return nil
}

// ImageFileName maps "Median 3x3" to "median_33.png"
func ImageFileName(filter string) string {
	name := strings.ToLower(filter)
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "x", "")
	return name + ".png"
}

// averages computes per-filter means in bank order. A filter that failed on
// an image is averaged over the images it did run on, and dropped when it
// ran on none.
func averages(names []string, runs []*models.ResultSet) []Average {
	var out []Average
	for _, name := range names {
		var mse, psnr []float64
		for _, set := range runs {
			if res, ok := set.Lookup(name); ok {
				mse = append(mse, res.MSE)
				psnr = append(psnr, res.PSNR)
			}
		}
		if len(mse) == 0 {
			continue
		}
		out = append(out, Average{
			Filter: name,
			MSE:    stat.Mean(mse, nil),
			PSNR:   stat.Mean(psnr, nil),
			Images: len(mse),
		})
	}
	return out
}

func writeAverages(path string, rows []Average) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(averageHeader); err != nil {
		return err
	}
	for _, a := range rows {
		record := []string{
			a.Filter,
			pipeline.FormatMetric(a.MSE),
			pipeline.FormatMetric(a.PSNR),
			strconv.Itoa(a.Images),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()

	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
