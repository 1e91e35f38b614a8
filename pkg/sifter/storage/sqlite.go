package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const DefaultDBFile = "sifter.sqlite3"
const errDBClientNil = "db client is nil"

var ErrNotFound = errors.New("record not found")

type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

type Design struct {
	ID        int    `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Title     string `gorm:"index:idx_design_meta,priority:1" json:"title"`
	Artist    string `gorm:"index:idx_design_meta,priority:2" json:"artist"`
	ArtistURL string `json:"artist_url"`
	DateAdded string `json:"added"`
	ImagePath string `json:"image_path"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DescriptorSet is the encoded feature set of one design.
type DescriptorSet struct {
	DesignID    int `gorm:"primaryKey;autoIncrement:false"`
	Count       int
	MaxFeatures int
	Sigma       float64
	Data        []byte
	UpdatedAt   time.Time
}

func NewDBClient() (*DBClient, error) {
	dbPath := os.Getenv("SIFTER_DB_PATH")
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	return NewDBClientWithPath(dbPath)
}

func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_pragma=foreign_keys(1)"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Design{}, &DescriptorSet{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// UpsertDesign inserts the design or overwrites every column of an existing
// row with the same id.
func (c *DBClient) UpsertDesign(d *Design) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	err := c.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "artist", "artist_url", "date_added", "image_path", "width", "height", "updated_at"}),
	}).Create(d).Error
	if err != nil {
		return fmt.Errorf("upserting design %d: %w", d.ID, err)
	}
	return nil
}

func (c *DBClient) GetDesign(id int) (*Design, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var d Design
	if err := c.DB.Where("id = ?", id).First(&d).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("design %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("querying design %d: %w", id, err)
	}
	return &d, nil
}

func (c *DBClient) ListDesigns() ([]Design, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var designs []Design
	if err := c.DB.Order("id").Find(&designs).Error; err != nil {
		return nil, fmt.Errorf("listing designs: %w", err)
	}
	return designs, nil
}

func (c *DBClient) CountDesigns() (int64, error) {
	if c == nil || c.DB == nil {
		return 0, errors.New(errDBClientNil)
	}
	var n int64
	if err := c.DB.Model(&Design{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (c *DBClient) StoreDescriptors(set *DescriptorSet) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	err := c.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "design_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"count", "max_features", "sigma", "data", "updated_at"}),
	}).Create(set).Error
	if err != nil {
		return fmt.Errorf("storing descriptors for design %d: %w", set.DesignID, err)
	}
	return nil
}

func (c *DBClient) HasDescriptors(designID int) (bool, error) {
	if c == nil || c.DB == nil {
		return false, errors.New(errDBClientNil)
	}
	var n int64
	if err := c.DB.Model(&DescriptorSet{}).Where("design_id = ?", designID).Count(&n).Error; err != nil {
		return false, fmt.Errorf("checking descriptors for design %d: %w", designID, err)
	}
	return n > 0, nil
}

func (c *DBClient) CountDescriptorSets() (int64, error) {
	if c == nil || c.DB == nil {
		return 0, errors.New(errDBClientNil)
	}
	var n int64
	if err := c.DB.Model(&DescriptorSet{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// EachDescriptorSet streams every stored set in design id order, a batch at
// a time, so preloading a large catalog never holds two copies of it.
func (c *DBClient) EachDescriptorSet(fn func(set *DescriptorSet) error) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	var batch []DescriptorSet
	res := c.DB.FindInBatches(&batch, 200, func(tx *gorm.DB, _ int) error {
		for i := range batch {
			if err := fn(&batch[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if res.Error != nil {
		return fmt.Errorf("loading descriptor sets: %w", res.Error)
	}
	return nil
}

// DeleteDesign removes a design and its descriptors.
func (c *DBClient) DeleteDesign(id int) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	return c.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("design_id = ?", id).Delete(&DescriptorSet{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&Design{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("design %d: %w", id, ErrNotFound)
		}
		return nil
	})
}
