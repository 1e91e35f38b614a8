package sifter

import (
	"runtime"

	"github.com/amoffat/sifter/pkg/sifter/features"
)

type Config struct {
	DBPath         string
	DataDir        string
	DesignURLBase  string
	NumBestMatches int
	RatioThreshold float64
	SingleThreaded bool
	Workers        int
	QueryParams    features.Params
	RefineParams   features.Params
	GenerateParams features.Params
	Logger         Logger
	Storage        Storage
}

type Option func(*Config)

func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

// WithDataDir sets the base directory holding designs/, test_images/ and
// prod_mapping.yaml.
func WithDataDir(dir string) Option {
	return func(c *Config) {
		c.DataDir = dir
	}
}

func WithDesignURLBase(base string) Option {
	return func(c *Config) {
		c.DesignURLBase = base
	}
}

func WithNumBestMatches(n int) Option {
	return func(c *Config) {
		c.NumBestMatches = n
	}
}

func WithRatioThreshold(ratio float64) Option {
	return func(c *Config) {
		c.RatioThreshold = ratio
	}
}

func WithSingleThreaded(single bool) Option {
	return func(c *Config) {
		c.SingleThreaded = single
	}
}

func WithWorkers(n int) Option {
	return func(c *Config) {
		c.Workers = n
	}
}

// WithSigma sets the blur sigma of all three detector configurations.
func WithSigma(sigma float64) Option {
	return func(c *Config) {
		c.QueryParams.Sigma = sigma
		c.RefineParams.Sigma = sigma
		c.GenerateParams.Sigma = sigma
	}
}

func WithFeatureParams(query, refine, generate features.Params) Option {
	return func(c *Config) {
		c.QueryParams = query
		c.RefineParams = refine
		c.GenerateParams = generate
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithStorage(storage Storage) Option {
	return func(c *Config) {
		c.Storage = storage
	}
}

func defaultConfig() *Config {
	return &Config{
		DBPath:         "sifter.sqlite3",
		DataDir:        ".",
		DesignURLBase:  "http://www.threadless.com/product/",
		NumBestMatches: 80,
		RatioThreshold: 0.75,
		Workers:        runtime.NumCPU(),
		QueryParams:    features.QueryParams(),
		RefineParams:   features.RefineParams(),
		GenerateParams: features.GenerateParams(),
	}
}
