package sifter

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"github.com/amoffat/sifter/pkg/logger"
	"github.com/amoffat/sifter/pkg/sifter/features"
	"github.com/amoffat/sifter/pkg/utils"
)

// indexedSet is one preloaded design descriptor set.
type indexedSet struct {
	id  int
	set *features.Set
}

// sifterService is the default implementation of the Service interface.
type sifterService struct {
	storage Storage
	log     Logger
	config  *Config

	mu        sync.RWMutex
	preloaded bool
	index     []indexedSet
	position  map[int]int
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	var stor Storage
	var err error
	if cfg.Storage != nil {
		stor = cfg.Storage
	} else {
		stor, err = NewSQLiteStorage(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}
	}

	return &sifterService{
		storage:  stor,
		log:      cfg.Logger,
		config:   cfg,
		position: make(map[int]int),
	}, nil
}

// LoadCatalog merges the catalog at path into storage. Image paths and
// dimensions recorded by an earlier index run are kept.
func (s *sifterService) LoadCatalog(path string) (int, error) {
	designs, err := ReadCatalogFile(path)
	if err != nil {
		return 0, err
	}

	for _, d := range designs {
		if existing, err := s.storage.GetDesign(d.ID); err == nil {
			d.ImagePath = existing.ImagePath
			d.Width = existing.Width
			d.Height = existing.Height
		} else if !errors.Is(err, ErrDesignNotFound) {
			return 0, err
		}
		if err := s.storage.UpsertDesign(d); err != nil {
			return 0, err
		}
	}

	s.log.Infof("Loaded %d catalog entries from %s", len(designs), path)
	return len(designs), nil
}

// IndexDesign computes the descriptors of one design image and stores them.
// The design id is the file name stem.
func (s *sifterService) IndexDesign(ctx context.Context, imagePath string) (int, error) {
	id, err := utils.IDFromFilename(imagePath)
	if err != nil {
		return 0, fmt.Errorf("design id from %s: %w", imagePath, err)
	}
	if err := ctx.Err(); err != nil {
		return id, err
	}

	img, err := decodeImage(imagePath)
	if err != nil {
		return id, err
	}

	set, err := features.Extract(img, s.config.GenerateParams)
	if err != nil {
		return id, fmt.Errorf("extracting features of design %d: %w", id, err)
	}

	d := Design{ID: id}
	if existing, err := s.storage.GetDesign(id); err == nil {
		d = *existing
	} else if !errors.Is(err, ErrDesignNotFound) {
		return id, err
	}
	if abs, err := filepath.Abs(imagePath); err == nil {
		d.ImagePath = abs
	} else {
		d.ImagePath = imagePath
	}
	d.Width = img.Bounds().Dx()
	d.Height = img.Bounds().Dy()

	if err := s.storage.UpsertDesign(d); err != nil {
		return id, err
	}
	if err := s.storage.StoreDescriptors(id, set, s.config.GenerateParams); err != nil {
		return id, err
	}

	s.mu.Lock()
	if s.preloaded {
		s.putLocked(id, set)
	}
	s.mu.Unlock()

	s.log.Debugf("Indexed design %d with %d descriptors", id, set.Len())
	return id, nil
}

// Generate indexes every .jpg under designsDir.
func (s *sifterService) Generate(ctx context.Context, designsDir string, skipExisting bool) (*GenerateReport, error) {
	report := &GenerateReport{}
	n := 0
	err := utils.WalkImages(designsDir, 0, func(path string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		n++
		s.log.Debugf("processing %d %s", n, path)

		if skipExisting {
			if id, err := utils.IDFromFilename(path); err == nil {
				has, err := s.storage.HasDescriptors(id)
				if err != nil {
					return err
				}
				if has {
					s.log.Debugf("%s already indexed, skipping", path)
					report.Skipped++
					return nil
				}
			}
		}

		if _, err := s.IndexDesign(ctx, path); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			s.log.Warnf("Failed to index %s: %v", path, err)
			report.Failed++
			return nil
		}
		report.Indexed++
		return nil
	})
	if err != nil {
		return report, err
	}

	s.log.Infof("Generated descriptors: %d indexed, %d skipped, %d failed", report.Indexed, report.Skipped, report.Failed)
	return report, nil
}

// Preload reads every stored descriptor set into memory, replacing any
// previously loaded sets.
func (s *sifterService) Preload(ctx context.Context) (int, error) {
	var index []indexedSet
	position := make(map[int]int)

	err := s.storage.EachDescriptorSet(func(id int, set *features.Set) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		position[id] = len(index)
		index = append(index, indexedSet{id: id, set: set})
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("preloading descriptors: %w", err)
	}

	s.mu.Lock()
	s.index = index
	s.position = position
	s.preloaded = true
	s.mu.Unlock()

	s.log.Infof("Preloaded %d descriptor sets", len(index))
	return len(index), nil
}

// putLocked replaces the index with a copy holding set for id. Readers may
// still hold the previous slice, so it is never written in place.
func (s *sifterService) putLocked(id int, set *features.Set) {
	index := make([]indexedSet, len(s.index), len(s.index)+1)
	copy(index, s.index)
	if i, ok := s.position[id]; ok {
		index[i] = indexedSet{id: id, set: set}
		s.index = index
		return
	}

	position := make(map[int]int, len(s.position)+1)
	for k, v := range s.position {
		position[k] = v
	}
	position[id] = len(index)
	s.index = append(index, indexedSet{id: id, set: set})
	s.position = position
}

func (s *sifterService) lookup(id int) *features.Set {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i, ok := s.position[id]; ok {
		return s.index[i].set
	}
	return nil
}

func (s *sifterService) GetDesign(id int) (*Design, error) {
	return s.storage.GetDesign(id)
}

func (s *sifterService) ListDesigns() ([]Design, error) {
	return s.storage.ListDesigns()
}

func (s *sifterService) DeleteDesign(id int) error {
	if err := s.storage.DeleteDesign(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.position[id]; !ok {
		return nil
	}
	index := make([]indexedSet, 0, len(s.index)-1)
	position := make(map[int]int, len(s.index)-1)
	for _, entry := range s.index {
		if entry.id == id {
			continue
		}
		position[entry.id] = len(index)
		index = append(index, entry)
	}
	s.index = index
	s.position = position
	return nil
}

func (s *sifterService) Stats() (*Stats, error) {
	designs, sets, err := s.storage.Counts()
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	preloaded := len(s.index)
	s.mu.RUnlock()
	return &Stats{Designs: designs, DescriptorSets: sets, Preloaded: preloaded}, nil
}

func (s *sifterService) Close() error {
	return s.storage.Close()
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadImage, path, err)
	}
	return img, nil
}
