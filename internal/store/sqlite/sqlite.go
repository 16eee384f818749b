// Package sqlite implements the store interfaces on an embedded SQLite
// database through GORM. It suits single-node deployments and local
// development where running PostgreSQL is not worth it.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hpcgateway/internal/store"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type userRecord struct {
	ID        string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	Email     string    `gorm:"column:email;uniqueIndex:idx_users_email;not null"`
	Name      string    `gorm:"column:name;not null"`
	Home      string    `gorm:"column:home;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (userRecord) TableName() string { return "users" }

type jobRecord struct {
	ID           string         `gorm:"primaryKey;column:id;type:varchar(36)"`
	UserID       string         `gorm:"column:user_id;index:idx_jobs_user_id;not null"`
	RemoteFolder string         `gorm:"column:remote_folder;uniqueIndex:idx_jobs_remote_folder;not null"`
	State        store.JobState `gorm:"column:state;not null;default:CREATED"`
	RemoteJobID  *string        `gorm:"column:remote_job_id"`
	CreatedAt    time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;not null"`
}

func (jobRecord) TableName() string { return "jobs" }

func (r *jobRecord) toJob() *store.Job {
	return &store.Job{
		ID:           r.ID,
		UserID:       r.UserID,
		RemoteFolder: r.RemoteFolder,
		State:        r.State,
		RemoteJobID:  r.RemoteJobID,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// Store provides GORM-backed implementations of the user and job stores.
type Store struct {
	db *gorm.DB
}

// New opens (creating if needed) the SQLite database at path and migrates
// the users and jobs tables.
func New(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	// SQLite allows a single writer; serialising on one connection avoids
	// SQLITE_BUSY under concurrent requests.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	sqlDB.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.AutoMigrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// AutoMigrate creates or updates the users and jobs tables.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&userRecord{}, &jobRecord{}); err != nil {
		return fmt.Errorf("migrate sqlite schema: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateUser inserts a user keyed by email, returning the stored record when
// one already exists.
func (s *Store) CreateUser(ctx context.Context, email, name, home string) (*store.User, error) {
	rec := userRecord{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      name,
		Home:      home,
		CreatedAt: time.Now().UTC(),
	}

	// FirstOrCreate only applies Attrs when no row matches the email.
	var got userRecord
	err := s.db.WithContext(ctx).
		Where(userRecord{Email: email}).
		Attrs(rec).
		FirstOrCreate(&got).Error
	if err != nil {
		// A concurrent insert may have won the unique index; read it back.
		if existing, getErr := s.GetUser(ctx, email); getErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("create user %s: %w", email, err)
	}

	return toUser(&got), nil
}

// GetUser returns the user registered with email.
func (s *Store) GetUser(ctx context.Context, email string) (*store.User, error) {
	var rec userRecord
	err := s.db.WithContext(ctx).First(&rec, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", email, err)
	}
	return toUser(&rec), nil
}

func toUser(r *userRecord) *store.User {
	return &store.User{
		ID:        r.ID,
		Email:     r.Email,
		Name:      r.Name,
		Home:      r.Home,
		CreatedAt: r.CreatedAt,
	}
}

// CreateJob inserts a new job in the CREATED state.
func (s *Store) CreateJob(ctx context.Context, userID, remoteFolder string) (*store.Job, error) {
	now := time.Now().UTC()
	rec := jobRecord{
		ID:           uuid.New().String(),
		UserID:       userID,
		RemoteFolder: remoteFolder,
		State:        store.JobStateCreated,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("remote folder %s already tracked: %w", remoteFolder, store.ErrStateConflict)
		}
		return nil, fmt.Errorf("create job: %w", err)
	}
	return rec.toJob(), nil
}

// GetJob returns a job by its ID.
func (s *Store) GetJob(ctx context.Context, id string) (*store.Job, error) {
	var rec jobRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return rec.toJob(), nil
}

// UpdateJob moves a CREATED job to ACTIVATED. The state predicate makes the
// update conditional, so only one of several concurrent launches succeeds.
func (s *Store) UpdateJob(ctx context.Context, id, remoteJobID string) (*store.Job, error) {
	result := s.db.WithContext(ctx).Model(&jobRecord{}).
		Where("id = ? AND state = ?", id, store.JobStateCreated).
		Updates(map[string]any{
			"state":         store.JobStateActivated,
			"remote_job_id": remoteJobID,
			"updated_at":    time.Now().UTC(),
		})
	if result.Error != nil {
		return nil, fmt.Errorf("update job %s: %w", id, result.Error)
	}

	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected == 0 {
		return nil, store.ErrStateConflict
	}
	return job, nil
}

// ListJobs returns every job owned by userID.
func (s *Store) ListJobs(ctx context.Context, userID string) ([]store.Job, error) {
	var recs []jobRecord
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	jobs := make([]store.Job, 0, len(recs))
	for i := range recs {
		jobs = append(jobs, *recs[i].toJob())
	}
	return jobs, nil
}

// DeleteJob removes the job record; a missing record is not an error.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&jobRecord{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

// CountJobsByState groups all job records by state.
func (s *Store) CountJobsByState(ctx context.Context) (map[store.JobState]int64, error) {
	var rows []struct {
		State store.JobState
		Count int64
	}
	err := s.db.WithContext(ctx).Model(&jobRecord{}).
		Select("state, COUNT(*) AS count").
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}

	counts := make(map[store.JobState]int64, len(rows))
	for _, r := range rows {
		counts[r.State] = r.Count
	}
	return counts, nil
}
