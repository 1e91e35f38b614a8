package sifter

import (
	"context"

	"github.com/amoffat/sifter/pkg/sifter/features"
)

type Service interface {
	LoadCatalog(path string) (int, error)
	IndexDesign(ctx context.Context, imagePath string) (int, error)
	Generate(ctx context.Context, designsDir string, skipExisting bool) (*GenerateReport, error)
	Preload(ctx context.Context) (int, error)
	Match(ctx context.Context, imagePath string) (*MatchInfo, error)
	RunAccuracyTest(ctx context.Context, testDir string, max int) (*AccuracyReport, error)
	GetDesign(id int) (*Design, error)
	ListDesigns() ([]Design, error)
	DeleteDesign(id int) error
	Stats() (*Stats, error)
	Close() error
}

type Storage interface {
	UpsertDesign(d Design) error
	GetDesign(id int) (*Design, error)
	ListDesigns() ([]Design, error)
	DeleteDesign(id int) error
	StoreDescriptors(designID int, set *features.Set, params features.Params) error
	HasDescriptors(designID int) (bool, error)
	EachDescriptorSet(fn func(designID int, set *features.Set) error) error
	Counts() (designs int64, descriptorSets int64, err error)
	Close() error
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
