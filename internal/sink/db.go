package sink

import (
	"context"
	"fmt"
	"log"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/neverlinked/package-tracking/internal/models"
	"github.com/neverlinked/package-tracking/internal/tracker"
)

// DbConfig selects and configures the relational store.
type DbConfig struct {
	Driver string `mapstructure:"driver"`
	Debug  bool   `mapstructure:"debug"`
	Mysql  struct {
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Host     string `mapstructure:"host"`
		Database string `mapstructure:"database"`
	} `mapstructure:"mysql"`
	Sqlite struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"sqlite"`
}

func getDbConn(cfg DbConfig) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	switch cfg.Driver {
	case "mysql":
		if cfg.Mysql.User == "" || cfg.Mysql.Host == "" || cfg.Mysql.Database == "" {
			return nil, fmt.Errorf("missing connection info")
		}

		dsn := fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.Mysql.User, cfg.Mysql.Password, cfg.Mysql.Host, cfg.Mysql.Database)
		db, err = gorm.Open(mysql.Open(dsn), gormCfg)
		if err != nil {
			return nil, err
		}

	case "sqlite":
		if cfg.Sqlite.Path == "" {
			return nil, fmt.Errorf("missing sqlite path")
		}

		db, err = gorm.Open(sqlite.Open(cfg.Sqlite.Path), gormCfg)
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unknown db driver %s", cfg.Driver)
	}

	if cfg.Debug {
		db.Logger = db.Logger.LogMode(logger.Info)
	}

	return db, err
}

// DbSink upserts the Boxes and Components tables.
type DbSink struct {
	dbConn *gorm.DB
}

var _ Sink = (*DbSink)(nil)

// NewDb opens the configured database and migrates the schema.
func NewDb(cfg DbConfig) (*DbSink, error) {
	dbConn, err := getDbConn(cfg)
	if err != nil {
		return nil, err
	}

	err = dbConn.AutoMigrate(&models.Box{}, &models.Component{})
	if err != nil {
		log.Printf("failed to automigrate database %v", err)
		return nil, err
	}

	return &DbSink{dbConn: dbConn}, nil
}

func (s *DbSink) Name() string {
	return "db"
}

// Write saves every row; existing rows for the same (run, id) are updated.
func (s *DbSink) Write(ctx context.Context, runId string, snap tracker.Snapshot) error {
	boxes, components := models.FromSnapshot(runId, snap)

	return s.dbConn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(boxes) > 0 {
			r := tx.Save(&boxes)
			if r.Error != nil {
				return fmt.Errorf("failed to save boxes: %w", r.Error)
			}
		}

		if len(components) > 0 {
			r := tx.Save(&components)
			if r.Error != nil {
				return fmt.Errorf("failed to save components: %w", r.Error)
			}
		}

		return nil
	})
}

// DB exposes the connection for readers such as the reconcile tool.
func (s *DbSink) DB() *gorm.DB {
	return s.dbConn
}

func (s *DbSink) Close() error {
	sqlDB, err := s.dbConn.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

// LoadRun reads back the persisted tables of one run.
func (s *DbSink) LoadRun(ctx context.Context, runId string) ([]models.Box, []models.Component, error) {
	boxes := make([]models.Box, 0)
	r := s.dbConn.WithContext(ctx).Where("run_id = ?", runId).Order("box_id").Find(&boxes)
	if r.Error != nil {
		return nil, nil, fmt.Errorf("failed to fetch boxes: %w", r.Error)
	}

	components := make([]models.Component, 0)
	r = s.dbConn.WithContext(ctx).Where("run_id = ?", runId).Order("component_id").Find(&components)
	if r.Error != nil {
		return nil, nil, fmt.Errorf("failed to fetch components: %w", r.Error)
	}

	return boxes, components, nil
}
