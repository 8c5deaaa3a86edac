package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"denoise-bench/internal/batch"
	"denoise-bench/internal/config"
	"denoise-bench/internal/logger"
	"denoise-bench/internal/models"
	"denoise-bench/internal/opencv/conversion"
	"denoise-bench/internal/pipeline"
	"denoise-bench/internal/processing/filters"
	"denoise-bench/internal/session"
	"denoise-bench/internal/shutdown"
)

// imageList collects repeated -images values
type imageList []string

func (l *imageList) String() string {
	return strings.Join(*l, ",")
}

func (l *imageList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	var images imageList
	flag.Var(&images, "images", "image to process; repeat the flag or list more paths after the flags")
	noiseType := flag.String("noise", string(models.NoiseSaltPepper), "noise model: salt_pepper or gaussian")
	output := flag.String("output", "results", "output directory")
	saltProb := flag.Float64("salt-prob", models.DefaultSaltProb, "salt probability for salt_pepper noise")
	pepperProb := flag.Float64("pepper-prob", models.DefaultPepperProb, "pepper probability for salt_pepper noise")
	sigma := flag.Float64("sigma", models.DefaultSigma, "standard deviation for gaussian noise")
	configPath := flag.String("config", "", "optional YAML configuration file")
	flag.Parse()

	images = append(images, flag.Args()...)
	if len(images) == 0 {
		fmt.Fprintln(os.Stderr, "at least one image is required")
		flag.Usage()
		os.Exit(2)
	}

	var spec models.NoiseSpec
	switch models.NoiseKind(*noiseType) {
	case models.NoiseSaltPepper:
		spec = models.SaltPepper(*saltProb, *pepperProb)
	case models.NoiseGaussian:
		spec = models.Gaussian(*sigma)
	default:
		log.Fatalf("Unknown noise type %q (want salt_pepper or gaussian)", *noiseType)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	store := session.NewMemoryStore(cfg.Session.TTL, session.WithLogger(appLogger))
	runner, err := batch.NewRunner(batch.Options{
		Store:   store,
		Codec:   conversion.Codec{Grayscale: cfg.Processing.Grayscale},
		Encode:  conversion.EncodePNG,
		Bank:    filters.DefaultBank(),
		Logger:  appLogger,
		Sources: pipeline.SeededSources(cfg.Processing.Seed),
		Workers: cfg.Processing.Workers,
	})
	if err != nil {
		log.Fatalf("Batch initialization failed: %v", err)
	}

	manager := shutdown.NewManager(appLogger, 5*time.Second)
	manager.Register("session store", store)
	manager.Listen()
	defer manager.Shutdown()

	report, err := runner.Run(manager.Context(), images, spec, *output)
	if err != nil {
		manager.Shutdown()
		log.Fatalf("Batch failed: %v", err)
	}

	printSummary(report, spec, *output)
}

func printSummary(report *batch.Report, spec models.NoiseSpec, output string) {
	fmt.Printf("Images processed: %d\n", len(report.Images))
	for _, path := range report.Skipped {
		fmt.Printf("  skipped: %s\n", path)
	}
	fmt.Printf("Noise: %s\n", spec.Kind)
	fmt.Printf("Filters scored: %d\n", len(report.Averages))

	best := report.Best()
	fmt.Printf("Best filter (mean over images): %s\n", best.Filter)
	fmt.Printf("  mean MSE:  %s\n", pipeline.FormatMetric(best.MSE))
	fmt.Printf("  mean PSNR: %s dB\n", pipeline.FormatMetric(best.PSNR))
	fmt.Printf("Results written to %s/\n", output)
}
