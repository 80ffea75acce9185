package service

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/jengzang/trackmap/internal/database"
	"github.com/jengzang/trackmap/internal/models"
	"github.com/jengzang/trackmap/internal/repository"
)

// Stores holds the open point database and one database per density tier
type Stores struct {
	Points  *repository.PointRepository
	Density map[models.Tier]*repository.DensityRepository

	dbs []*sql.DB
}

// OpenStores opens and migrates the point database at pointsPath and the
// density tier databases under densityDir
func OpenStores(pointsPath, densityDir string, maxOpenConns int, logger *zap.Logger) (*Stores, error) {
	s := &Stores{Density: make(map[models.Tier]*repository.DensityRepository, len(models.Tiers))}

	db, err := s.open(pointsPath, database.PointsMigrations, maxOpenConns, logger)
	if err != nil {
		return nil, err
	}
	s.Points = repository.NewPointRepository(db)

	for _, t := range models.Tiers {
		path := filepath.Join(densityDir, fmt.Sprintf("density_%s.db", t))
		db, err := s.open(path, database.DensityMigrations, maxOpenConns, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Density[t] = repository.NewDensityRepository(db, t.String(), t.Subdivisions())
	}
	return s, nil
}

func (s *Stores) open(path, set string, maxOpenConns int, logger *zap.Logger) (*sql.DB, error) {
	db, err := database.Open(database.Config{Path: path, MaxOpenConns: maxOpenConns}, logger)
	if err != nil {
		return nil, err
	}
	applied, err := database.NewMigrationManager(db, set, logger).RunMigrations()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate %s: %w", path, err)
	}
	if applied > 0 {
		logger.Info("migrations applied", zap.String("path", path), zap.Int("count", applied))
	}
	s.dbs = append(s.dbs, db)
	return db, nil
}

// Close closes every database
func (s *Stores) Close() error {
	var errs []error
	for _, db := range s.dbs {
		errs = append(errs, db.Close())
	}
	s.dbs = nil
	return errors.Join(errs...)
}
