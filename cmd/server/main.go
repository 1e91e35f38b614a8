package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/amoffat/sifter/pkg/logger"
	"github.com/amoffat/sifter/pkg/sifter"
	"github.com/amoffat/sifter/pkg/utils"
)

var (
	port           int
	unhealthy      int
	dataDir        string
	dbPath         string
	tempDir        string
	allowedOrigins string
	generateMode   bool
	testMode       bool
	testMax        int
	singleThreaded bool
	workers        int
	bestMatches    int
	ratio          float64
	sigma          float64
	designURLBase  string
)

func init() {
	flag.IntVar(&port, "port", 8080, "HTTP port to listen on")
	flag.IntVar(&unhealthy, "unhealthy", 2, "Number of simultaneous matches at which the server reports unhealthy")
	flag.StringVar(&dataDir, "base", getEnvOrDefault("SIFTER_DATA_DIR", ""), "Base directory holding designs/, test_images/ and prod_mapping.yaml")
	flag.StringVar(&dbPath, "db", getEnvOrDefault("SIFTER_DB_PATH", ""), "Path to SQLite database (default <base>/sifter.sqlite3)")
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("SIFTER_TEMP_DIR", os.TempDir()), "Directory for uploaded images")
	flag.StringVar(&allowedOrigins, "origins", "*", "Comma-separated list of allowed CORS origins (use * for all)")
	flag.BoolVar(&generateMode, "generate", false, "Generate descriptors for every design and exit")
	flag.BoolVar(&testMode, "test", false, "Run time and accuracy tests against test_images/ and exit")
	flag.IntVar(&testMax, "max", 0, "Maximum number of test images (0 for all)")
	flag.BoolVar(&singleThreaded, "singlethreaded", false, "Don't parallelize matching")
	flag.IntVar(&workers, "workers", runtime.NumCPU(), "Number of first-pass matching workers")
	flag.IntVar(&bestMatches, "best", 80, "Number of first-pass candidates re-examined in the second pass")
	flag.Float64Var(&ratio, "ratio", 0.75, "Nearest/second-nearest distance ratio for a descriptor match")
	flag.Float64Var(&sigma, "sigma", 3.0, "Gaussian blur sigma applied before feature detection")
	flag.StringVar(&designURLBase, "design-url", getEnvOrDefault("SIFTER_DESIGN_URL", "http://www.threadless.com/product/"), "Prefix of the design URL, followed by the design id")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	flag.Parse()
	log := logger.GetLogger()

	if dataDir == "" {
		fmt.Fprintln(os.Stderr, "please specify a base directory with --base")
		os.Exit(1)
	}
	if !utils.Exists(dataDir) {
		fmt.Fprintf(os.Stderr, "base directory %s doesn't exist!\n", dataDir)
		os.Exit(1)
	}
	if dbPath == "" {
		dbPath = filepath.Join(dataDir, "sifter.sqlite3")
	}
	if err := utils.MakeDir(tempDir); err != nil {
		log.Fatalf("Failed to create temp dir: %v", err)
	}

	var origins []string
	if allowedOrigins == "*" {
		origins = []string{"*"}
	} else {
		origins = strings.Split(allowedOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	service, err := sifter.NewService(
		sifter.WithDBPath(dbPath),
		sifter.WithDataDir(dataDir),
		sifter.WithSingleThreaded(singleThreaded),
		sifter.WithWorkers(workers),
		sifter.WithNumBestMatches(bestMatches),
		sifter.WithRatioThreshold(ratio),
		sifter.WithSigma(sigma),
		sifter.WithDesignURLBase(designURLBase),
	)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	defer service.Close()

	catalog := filepath.Join(dataDir, "prod_mapping.yaml")
	if utils.Exists(catalog) {
		if _, err := service.LoadCatalog(catalog); err != nil {
			log.Fatalf("Failed to load catalog: %v", err)
		}
	} else {
		log.Warnf("No catalog at %s, matches will carry ids only", catalog)
	}

	if generateMode {
		report, err := service.Generate(ctx, filepath.Join(dataDir, "designs"), true)
		if err != nil {
			log.Fatalf("Generate failed: %v", err)
		}
		fmt.Printf("✅ %d indexed, %d skipped, %d failed\n", report.Indexed, report.Skipped, report.Failed)
		return
	}

	if _, err := service.Preload(ctx); err != nil {
		log.Fatalf("Failed to preload descriptors: %v", err)
	}

	if testMode {
		report, err := service.RunAccuracyTest(ctx, filepath.Join(dataDir, "test_images"), testMax)
		if err != nil {
			log.Fatalf("Accuracy test failed: %v", err)
		}
		printReport(report)
		return
	}

	server := NewServer(service, &ServerConfig{
		Port:               port,
		DataDir:            dataDir,
		DBPath:             dbPath,
		TempDir:            tempDir,
		DesignURLBase:      designURLBase,
		UnhealthyThreshold: int64(unhealthy),
		AllowedOrigins:     origins,
	})
	if err := server.Run(ctx); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
	log.Infof("Server stopped")
}

func printReport(r *sifter.AccuracyReport) {
	fmt.Printf("\n📊 Accuracy: %.1f%% (%d/%d)\n", r.Accuracy*100, r.Correct, r.Tested)
	fmt.Printf("   Average match time: %.3fs\n", r.AvgMatchSeconds)
	fmt.Printf("   Correct std-away:   %s\n", formatFloats(r.CorrectStdAway))
	fmt.Printf("   Incorrect std-away: %s\n", formatFloats(r.IncorrectStdAway))
	for _, g := range r.BadGuesses {
		fmt.Printf("   ❌ %d guessed as %d (%.2f std)\n", g.Expected, g.Got, g.StdAway)
	}
}

func formatFloats(vals []float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprintf("%.2f", v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
