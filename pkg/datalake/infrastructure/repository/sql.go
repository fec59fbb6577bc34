package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tigerroll/datalake-export/pkg/datalake/core/config"
	model "github.com/tigerroll/datalake-export/pkg/datalake/core/domain/model"
	"github.com/tigerroll/datalake-export/pkg/datalake/support/util/exception"
	"github.com/tigerroll/datalake-export/pkg/datalake/support/util/logger"
)

// exportRunEntity is the table row of an ExportRun.
type exportRunEntity struct {
	ID           string `gorm:"primaryKey;size:36"`
	BatchName    string `gorm:"size:255;not null;index:idx_export_runs_batch_date"`
	RunDate      string `gorm:"size:10;not null;index:idx_export_runs_batch_date"`
	BatchRunID   string `gorm:"size:255;not null"`
	Version      int    `gorm:"not null"`
	Attempt      int    `gorm:"not null"`
	Status       string `gorm:"size:20;not null"`
	RecordCount  int
	ChunkCount   int
	FailedChunks int
	ErrorMessage string `gorm:"type:text"`
	StartTime    time.Time
	EndTime      *time.Time
}

func (exportRunEntity) TableName() string {
	return "datalake_export_runs"
}

func toEntity(run *model.ExportRun) *exportRunEntity {
	e := &exportRunEntity{
		ID:           run.ID,
		BatchName:    run.BatchName,
		RunDate:      run.RunDate,
		BatchRunID:   run.BatchRunID,
		Version:      run.Version,
		Attempt:      run.Attempt,
		Status:       string(run.Status),
		RecordCount:  run.RecordCount,
		ChunkCount:   run.ChunkCount,
		FailedChunks: run.FailedChunks,
		ErrorMessage: run.ErrorMessage,
		StartTime:    run.StartTime.UTC(),
	}
	if !run.EndTime.IsZero() {
		end := run.EndTime.UTC()
		e.EndTime = &end
	}
	return e
}

func (e *exportRunEntity) toModel() *model.ExportRun {
	run := &model.ExportRun{
		ID:           e.ID,
		BatchName:    e.BatchName,
		RunDate:      e.RunDate,
		BatchRunID:   e.BatchRunID,
		Version:      e.Version,
		Attempt:      e.Attempt,
		Status:       model.ExportStatus(e.Status),
		RecordCount:  e.RecordCount,
		ChunkCount:   e.ChunkCount,
		FailedChunks: e.FailedChunks,
		ErrorMessage: e.ErrorMessage,
		StartTime:    e.StartTime.UTC(),
	}
	if e.EndTime != nil {
		run.EndTime = e.EndTime.UTC()
	}
	return run
}

// SQLRunRepository stores runs through GORM.
type SQLRunRepository struct {
	db *gorm.DB
}

// Open connects to the database of type dbType, applies the pool settings and migrates the schema.
func Open(dbType string, cfg config.DatabaseConfig) (*SQLRunRepository, error) {
	factory, err := GetDialectorFactory(dbType)
	if err != nil {
		return nil, exception.NewBatchError("repository", "unsupported repository type", err, false, false)
	}
	dialector, err := factory(cfg)
	if err != nil {
		return nil, exception.NewBatchError("repository", fmt.Sprintf("failed to create dialector for %s", dbType), err, false, false)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: NewGormLogger()})
	if err != nil {
		return nil, exception.NewBatchError("repository", "failed to open GORM connection", err, false, false)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, exception.NewBatchError("repository", "failed to get underlying sql.DB", err, false, false)
	}
	if cfg.Pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.Pool.MaxOpenConns)
	}
	if cfg.Pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.Pool.MaxIdleConns)
	}
	if cfg.Pool.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.Pool.ConnMaxLifetimeMinutes) * time.Minute)
	}

	if err := db.AutoMigrate(&exportRunEntity{}); err != nil {
		_ = sqlDB.Close()
		return nil, exception.NewBatchError("repository", "failed to migrate export run table", err, false, false)
	}
	logger.Infof("Opened %s run repository", dbType)
	return &SQLRunRepository{db: db}, nil
}

func (r *SQLRunRepository) SaveRun(ctx context.Context, run *model.ExportRun) error {
	if err := r.db.WithContext(ctx).Create(toEntity(run)).Error; err != nil {
		return exception.NewBatchError("repository", fmt.Sprintf("failed to save export run %s", run.ID), err, false, false)
	}
	return nil
}

func (r *SQLRunRepository) UpdateRun(ctx context.Context, run *model.ExportRun) error {
	res := r.db.WithContext(ctx).Select("*").Omit("id").
		Where("id = ?", run.ID).Updates(toEntity(run))
	if res.Error != nil {
		return exception.NewBatchError("repository", fmt.Sprintf("failed to update export run %s", run.ID), res.Error, false, false)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	// MySQL reports only changed rows.
	var count int64
	if err := r.db.WithContext(ctx).Model(&exportRunEntity{}).Where("id = ?", run.ID).Count(&count).Error; err != nil {
		return exception.NewBatchError("repository", fmt.Sprintf("failed to update export run %s", run.ID), err, false, false)
	}
	if count == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (r *SQLRunRepository) FindRuns(ctx context.Context, batchName, runDate string) ([]*model.ExportRun, error) {
	var entities []exportRunEntity
	err := r.db.WithContext(ctx).
		Where("batch_name = ? AND run_date = ?", batchName, runDate).
		Order("start_time, attempt").
		Find(&entities).Error
	if err != nil {
		return nil, exception.NewBatchError("repository", "failed to query export runs", err, false, false)
	}
	runs := make([]*model.ExportRun, len(entities))
	for i := range entities {
		runs[i] = entities[i].toModel()
	}
	return runs, nil
}

func (r *SQLRunRepository) LatestVersion(ctx context.Context, batchName, runDate string) (int, error) {
	var latest int
	err := r.db.WithContext(ctx).Model(&exportRunEntity{}).
		Select("COALESCE(MAX(version), 0)").
		Where("batch_name = ? AND run_date = ?", batchName, runDate).
		Scan(&latest).Error
	if err != nil {
		return 0, exception.NewBatchError("repository", "failed to query latest version", err, false, false)
	}
	return latest, nil
}

func (r *SQLRunRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ RunRepository = (*SQLRunRepository)(nil)
