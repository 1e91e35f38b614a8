package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/amoffat/sifter/internal/app"
	"github.com/amoffat/sifter/internal/scanner"
	"github.com/amoffat/sifter/pkg/client"
	"github.com/amoffat/sifter/pkg/logger"
	"github.com/amoffat/sifter/pkg/sifter"
)

// Global flags
var (
	dbPath  string
	dataDir string
	host    string
	port    int
)

func init() {
	// Global flags that can be used with any command
	flag.StringVar(&dbPath, "db", getEnvOrDefault("SIFTER_DB_PATH", "sifter.sqlite3"), "Path to the SQLite database file")
	flag.StringVar(&dataDir, "base", getEnvOrDefault("SIFTER_DATA_DIR", "."), "Base directory holding designs/ and test_images/")
	flag.StringVar(&host, "host", getEnvOrDefault("SIFTER_HOST", client.DefaultHost), "Matching server host")
	flag.IntVar(&port, "port", getEnvIntOrDefault("SIFTER_PORT", client.DefaultPort), "Matching server port")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

// createService creates a local engine service with configured options
func createService(opts ...sifter.Option) (sifter.Service, error) {
	return sifter.NewService(append([]sifter.Option{
		sifter.WithDBPath(dbPath),
		sifter.WithDataDir(dataDir),
	}, opts...)...)
}

// parseArgs parses fs from args, allowing flags after positional arguments,
// and returns the positionals.
func parseArgs(fs *flag.FlagSet, args []string) []string {
	var positional []string
	for {
		fs.Parse(args)
		args = fs.Args()
		if len(args) == 0 {
			return positional
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func mustService(opts ...sifter.Option) sifter.Service {
	svc, err := createService(opts...)
	if err != nil {
		fmt.Printf("❌ Failed to create service: %v\n", err)
		logger.GetLogger().Errorf("Service initialization failed: %v", err)
		os.Exit(1)
	}
	return svc
}

func main() {
	flag.Usage = printUsage
	flag.Parse()

	log := logger.GetLogger()

	printBanner()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]
	log.Debugf("Executing command: %s", command)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch command {
	case "scan":
		err = handleScan(ctx, args)
	case "results":
		err = handleResults(args)
	case "health":
		err = handleHealth(ctx)
	case "import-catalog":
		err = handleImportCatalog(args)
	case "index":
		err = handleIndex(ctx, args)
	case "generate":
		err = handleGenerate(ctx, args)
	case "match":
		err = handleMatch(ctx, args)
	case "test":
		err = handleTest(ctx, args)
	case "list":
		err = handleList()
	case "delete":
		err = handleDelete(args)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("\n❌ %v\n", err)
		log.Errorf("%s failed: %v", command, err)
		stop()
		os.Exit(1)
	}
}

// handleScan runs the phone flow from a frame on disk: crop under the tee
// guide, upload while sweeping, then show the result.
func handleScan(ctx context.Context, args []string) error {
	log := logger.GetLogger()

	scanCmd := flag.NewFlagSet("scan", flag.ExitOnError)
	cacheDir := scanCmd.String("cache", getEnvOrDefault("SIFTER_CACHE_DIR", os.TempDir()), "Directory for the results hand-off file")
	assetDir := scanCmd.String("assets", getEnvOrDefault("SIFTER_ASSET_DIR", "assets"), "Asset directory holding futura-bold.ttf")
	width := scanCmd.Int("width", app.DefaultScreenWidth, "Screen width in pixels")
	height := scanCmd.Int("height", app.DefaultScreenHeight, "Screen height in pixels")
	card := scanCmd.String("card", "", "Write a PNG result card to this path")
	timeout := scanCmd.Duration("timeout", 60*time.Second, "Upload timeout")
	accent := scanCmd.String("accent", scanner.Accent.Hex(), "Colour of the trailing scan lines")
	trail := scanCmd.Int("trail", scanner.DefaultTrailLines, "Number of trailing scan lines")
	pos := parseArgs(scanCmd, args)

	if len(pos) < 1 {
		return errors.New("usage: sifter scan <frame.jpg> [--cache dir] [--card out.png]")
	}
	framePath := pos[0]

	base := app.NewScreen(*width, *height, *assetDir, log)
	base.PrintLogo(os.Stdout)

	up := client.New(host, port, client.WithTimeout(*timeout))
	capture := app.NewCaptureScreen(base, up, *cacheDir)
	capture.Render = app.TerminalSweep(os.Stdout, 40)
	scanOpts := []scanner.Option{scanner.WithTrailLines(*trail)}
	if c, err := colorful.Hex(*accent); err == nil {
		scanOpts = append(scanOpts, scanner.WithAccent(c))
	} else {
		log.Warnf("Ignoring accent %q: %v", *accent, err)
	}
	capture.Scanner = scanner.New(scanOpts...)

	fmt.Printf("📸 Scanning %s via %s\n", framePath, up.BaseURL())
	jsonPath, err := capture.Shutter(ctx, framePath)
	fmt.Println()
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	screen := app.NewResultsScreen(base, os.Stdout)
	screen.CardPath = *card
	_, err = screen.Show(jsonPath)
	return err
}

// handleResults displays a saved match response, deleting it afterwards.
func handleResults(args []string) error {
	resultsCmd := flag.NewFlagSet("results", flag.ExitOnError)
	assetDir := resultsCmd.String("assets", getEnvOrDefault("SIFTER_ASSET_DIR", "assets"), "Asset directory holding futura-bold.ttf")
	width := resultsCmd.Int("width", app.DefaultScreenWidth, "Screen width in pixels")
	card := resultsCmd.String("card", "", "Write a PNG result card to this path")
	pos := parseArgs(resultsCmd, args)

	if len(pos) < 1 {
		return errors.New("usage: sifter results <match_results.json> [--card out.png]")
	}

	base := app.NewScreen(*width, 0, *assetDir, logger.GetLogger())
	screen := app.NewResultsScreen(base, os.Stdout)
	screen.CardPath = *card
	_, err := screen.Show(pos[0])
	return err
}

func handleHealth(ctx context.Context) error {
	up := client.New(host, port, client.WithTimeout(5*time.Second))
	ok, err := up.Health(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if !ok {
		fmt.Printf("⚠️  %s is busy\n", up.BaseURL())
		os.Exit(2)
	}
	fmt.Printf("✅ %s is healthy\n", up.BaseURL())
	return nil
}

func handleImportCatalog(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: sifter import-catalog <prod_mapping.yaml>")
	}

	svc := mustService()
	defer svc.Close()

	fmt.Println("📥 Importing catalog...")
	n, err := svc.LoadCatalog(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("✅ Imported %d design(s)\n", n)
	return nil
}

func handleIndex(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: sifter index <design_id.jpg>...")
	}

	svc := mustService()
	defer svc.Close()

	for _, path := range args {
		fmt.Printf("🎨 Indexing %s...\n", path)
		id, err := svc.IndexDesign(ctx, path)
		if err != nil {
			return err
		}
		fmt.Printf("✅ Design %d indexed\n", id)
	}
	return nil
}

func handleGenerate(ctx context.Context, args []string) error {
	genCmd := flag.NewFlagSet("generate", flag.ExitOnError)
	force := genCmd.Bool("force", false, "Recompute descriptors that already exist")
	pos := parseArgs(genCmd, args)

	designs := filepath.Join(dataDir, "designs")
	if len(pos) > 0 {
		designs = pos[0]
	}

	svc := mustService()
	defer svc.Close()

	fmt.Printf("🔧 Generating descriptors for %s\n", designs)
	fmt.Println("   This may take a while for a large catalog")

	start := time.Now()
	report, err := svc.Generate(ctx, designs, !*force)
	if err != nil {
		return err
	}
	fmt.Printf("\n✅ %d indexed, %d skipped, %d failed in %s\n",
		report.Indexed, report.Skipped, report.Failed, time.Since(start).Round(time.Millisecond))
	return nil
}

// handleMatch matches an image against the local database without a server.
func handleMatch(ctx context.Context, args []string) error {
	matchCmd := flag.NewFlagSet("match", flag.ExitOnError)
	single := matchCmd.Bool("singlethreaded", false, "Don't parallelize matching")
	pos := parseArgs(matchCmd, args)

	if len(pos) < 1 {
		return errors.New("usage: sifter match <image>")
	}

	svc := mustService(sifter.WithSingleThreaded(*single))
	defer svc.Close()

	fmt.Println("📚 Loading descriptors...")
	n, err := svc.Preload(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("   %d design(s) in memory\n", n)

	fmt.Println("🔍 Matching...")
	info, err := svc.Match(ctx, pos[0])
	if errors.Is(err, sifter.ErrNoMatch) {
		fmt.Println("\n❌ No match found")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("\n✅ Design %d: \"%s\" by %s\n", info.ID, info.Title, info.Artist)
	fmt.Printf("   Confidence: %.1f%% (%.2f std away)\n", info.Confidence*100, info.Match.StdAway)
	fmt.Printf("   Design:     %s\n", info.DesignURL)
	if info.ArtistURL != "" {
		fmt.Printf("   Artist:     %s\n", info.ArtistURL)
	}
	fmt.Printf("   Elapsed:    %.3fs\n", info.Elapsed)
	return nil
}

func handleTest(ctx context.Context, args []string) error {
	testCmd := flag.NewFlagSet("test", flag.ExitOnError)
	maxImages := testCmd.Int("max", 0, "Maximum number of test images (0 for all)")
	single := testCmd.Bool("singlethreaded", false, "Don't parallelize matching")
	pos := parseArgs(testCmd, args)

	dir := filepath.Join(dataDir, "test_images")
	if len(pos) > 0 {
		dir = pos[0]
	}

	svc := mustService(sifter.WithSingleThreaded(*single))
	defer svc.Close()

	if _, err := svc.Preload(ctx); err != nil {
		return err
	}

	fmt.Printf("🧪 Testing against %s\n", dir)
	r, err := svc.RunAccuracyTest(ctx, dir, *maxImages)
	if err != nil {
		return err
	}

	fmt.Printf("\n📊 Accuracy: %.1f%% (%d/%d)\n", r.Accuracy*100, r.Correct, r.Tested)
	fmt.Printf("   Average match time: %.3fs\n", r.AvgMatchSeconds)
	for _, g := range r.BadGuesses {
		fmt.Printf("   ❌ %d guessed as %d (%.2f std)\n", g.Expected, g.Got, g.StdAway)
	}
	return nil
}

func handleList() error {
	svc := mustService()
	defer svc.Close()

	designs, err := svc.ListDesigns()
	if err != nil {
		return fmt.Errorf("failed to list designs: %w", err)
	}

	if len(designs) == 0 {
		fmt.Println("\n📭 No designs in database")
		return nil
	}

	fmt.Printf("\n📚 Found %d design(s):\n\n", len(designs))
	for i, d := range designs {
		title := d.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%d. \"%s\" by %s (ID: %d)\n", i+1, title, d.Artist, d.ID)
		if d.Width > 0 {
			fmt.Printf("   Size:  %dx%d\n", d.Width, d.Height)
		}
		if fi, err := os.Stat(d.ImagePath); err == nil {
			fmt.Printf("   Image: %s (%s)\n", d.ImagePath, humanize.Bytes(uint64(fi.Size())))
		}
		fmt.Println()
	}

	if stats, err := svc.Stats(); err == nil {
		fmt.Printf("%s design(s), %s descriptor set(s)\n",
			humanize.Comma(stats.Designs), humanize.Comma(stats.DescriptorSets))
	}
	return nil
}

func handleDelete(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: sifter delete <design_id>")
	}

	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid design ID: %w", err)
	}

	svc := mustService()
	defer svc.Close()

	design, err := svc.GetDesign(id)
	if err != nil {
		return fmt.Errorf("design not found (ID: %d)", id)
	}

	if err := svc.DeleteDesign(id); err != nil {
		return fmt.Errorf("failed to delete design: %w", err)
	}

	fmt.Printf("\n✅ Successfully deleted design:\n")
	fmt.Printf("   ID:     %d\n", design.ID)
	fmt.Printf("   Title:  %s\n", design.Title)
	fmt.Printf("   Artist: %s\n", design.Artist)
	logger.GetLogger().Infof("Deleted design ID=%d ('%s' by '%s')", design.ID, design.Title, design.Artist)
	return nil
}

func printBanner() {
	banner := `
  ____  _  __ _
 / ___|(_)/ _| |_ ___ _ __
 \___ \| | |_| __/ _ \ '__|
  ___) | |  _| ||  __/ |
 |____/|_|_|  \__\___|_|

   Shirt Design Recognition
`
	fmt.Println(banner)
}

func printUsage() {
	fmt.Println("Sifter - shirt design recognition")
	fmt.Println("\nGlobal Options:")
	fmt.Println("  --db <path>      Path to SQLite database (env: SIFTER_DB_PATH, default: sifter.sqlite3)")
	fmt.Println("  --base <dir>     Data directory (env: SIFTER_DATA_DIR, default: .)")
	fmt.Println("  --host <host>    Matching server host (env: SIFTER_HOST, default: " + client.DefaultHost + ")")
	fmt.Println("  --port <port>    Matching server port (env: SIFTER_PORT, default: " + strconv.Itoa(client.DefaultPort) + ")")
	fmt.Println("\nClient:")
	fmt.Println("  sifter [global-options] scan <frame.jpg> [--cache dir] [--assets dir] [--card out.png]")
	fmt.Println("  sifter [global-options] results <match_results.json> [--card out.png]")
	fmt.Println("  sifter [global-options] health")
	fmt.Println("\nEngine:")
	fmt.Println("  sifter [global-options] import-catalog <prod_mapping.yaml>")
	fmt.Println("  sifter [global-options] index <design_id.jpg>...")
	fmt.Println("  sifter [global-options] generate [designs_dir] [--force]")
	fmt.Println("  sifter [global-options] match <image> [--singlethreaded]")
	fmt.Println("  sifter [global-options] test [test_dir] [--max n]")
	fmt.Println("  sifter [global-options] list")
	fmt.Println("  sifter [global-options] delete <design_id>")
	fmt.Println("\nExamples:")
	fmt.Println("  # Scan a photo against a server on the LAN")
	fmt.Println("  sifter --host 192.168.1.2 --port 8084 scan shirt.jpg --card result.png")
	fmt.Println()
	fmt.Println("  # Build the database")
	fmt.Println("  sifter --base data import-catalog data/prod_mapping.yaml")
	fmt.Println("  sifter --base data generate")
}
