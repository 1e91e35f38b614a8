package sifter

import (
	"errors"
	"fmt"

	"github.com/amoffat/sifter/pkg/sifter/features"
	"github.com/amoffat/sifter/pkg/sifter/storage"
)

// storageAdapter adapts the storage.DBClient to implement the Storage interface.
type storageAdapter struct {
	db *storage.DBClient
}

// NewSQLiteStorage creates a new SQLite storage backend.
func NewSQLiteStorage(dbPath string) (Storage, error) {
	db, err := storage.NewDBClientWithPath(dbPath)
	if err != nil {
		return nil, err
	}
	return &storageAdapter{db: db}, nil
}

func (s *storageAdapter) UpsertDesign(d Design) error {
	return s.db.UpsertDesign(&storage.Design{
		ID:        d.ID,
		Title:     d.Title,
		Artist:    d.Artist,
		ArtistURL: d.ArtistURL,
		DateAdded: d.DateAdded,
		ImagePath: d.ImagePath,
		Width:     d.Width,
		Height:    d.Height,
	})
}

func (s *storageAdapter) GetDesign(id int) (*Design, error) {
	row, err := s.db.GetDesign(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("design %d: %w", id, ErrDesignNotFound)
		}
		return nil, err
	}
	d := fromRow(row)
	return &d, nil
}

func (s *storageAdapter) ListDesigns() ([]Design, error) {
	rows, err := s.db.ListDesigns()
	if err != nil {
		return nil, err
	}
	designs := make([]Design, len(rows))
	for i := range rows {
		designs[i] = fromRow(&rows[i])
	}
	return designs, nil
}

func (s *storageAdapter) DeleteDesign(id int) error {
	if err := s.db.DeleteDesign(id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("design %d: %w", id, ErrDesignNotFound)
		}
		return err
	}
	return nil
}

func (s *storageAdapter) StoreDescriptors(designID int, set *features.Set, params features.Params) error {
	data, err := features.Encode(set)
	if err != nil {
		return fmt.Errorf("encoding descriptors for design %d: %w", designID, err)
	}
	return s.db.StoreDescriptors(&storage.DescriptorSet{
		DesignID:    designID,
		Count:       set.Len(),
		MaxFeatures: params.MaxFeatures,
		Sigma:       params.Sigma,
		Data:        data,
	})
}

func (s *storageAdapter) HasDescriptors(designID int) (bool, error) {
	return s.db.HasDescriptors(designID)
}

func (s *storageAdapter) EachDescriptorSet(fn func(designID int, set *features.Set) error) error {
	return s.db.EachDescriptorSet(func(row *storage.DescriptorSet) error {
		set, err := features.Decode(row.Data)
		if err != nil {
			return fmt.Errorf("decoding descriptors for design %d: %w", row.DesignID, err)
		}
		return fn(row.DesignID, set)
	})
}

func (s *storageAdapter) Counts() (int64, int64, error) {
	designs, err := s.db.CountDesigns()
	if err != nil {
		return 0, 0, err
	}
	sets, err := s.db.CountDescriptorSets()
	if err != nil {
		return 0, 0, err
	}
	return designs, sets, nil
}

func (s *storageAdapter) Close() error {
	return s.db.Close()
}

func fromRow(row *storage.Design) Design {
	return Design{
		ID:        row.ID,
		Title:     row.Title,
		Artist:    row.Artist,
		ArtistURL: row.ArtistURL,
		DateAdded: row.DateAdded,
		ImagePath: row.ImagePath,
		Width:     row.Width,
		Height:    row.Height,
	}
}
