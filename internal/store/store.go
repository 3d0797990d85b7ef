// Package store persists brain snapshots — the array-encoded synapse graph
// produced by bridge.Bridge.SnapshotToArrays — across kernel restarts. This
// is the one persistence format spec.md's Non-goals explicitly allow (no new
// file formats, no synthesis); GORM/postgres model style is adapted from the
// teacher's internal/models package (gorm tags, soft-delete, explicit
// indices), generalized from per-user rows to per-instance snapshots.
package store

import (
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// BrainSnapshot is one point-in-time capture of a region's live synapse
// graph, keyed by the region's construction-time InstanceID.
type BrainSnapshot struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	InstanceID   string   `gorm:"index;not null" json:"instance_id"`
	SynapseCount int      `json:"synapse_count"`
	SourceIDs    []int32  `gorm:"serializer:json" json:"source_ids"`
	TargetIDs    []int32  `gorm:"serializer:json" json:"target_ids"`
	Weights      []uint32 `gorm:"serializer:json" json:"weights"`
	Jitters      []uint32 `gorm:"serializer:json" json:"jitters"`
}

// Store wraps a GORM connection over the brain_snapshots table.
type Store struct {
	db *gorm.DB
}

// New opens a postgres connection at dsn and migrates the brain_snapshots
// table.
func New(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&BrainSnapshot{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Save inserts a new snapshot row for instanceID. Snapshots are
// append-only; LoadLatest always resolves to the most recent row.
func (s *Store) Save(instanceID string, sourceIDs, targetIDs []int32, weights, jitters []uint32) (*BrainSnapshot, error) {
	snap := &BrainSnapshot{
		InstanceID:   instanceID,
		SynapseCount: len(sourceIDs),
		SourceIDs:    sourceIDs,
		TargetIDs:    targetIDs,
		Weights:      weights,
		Jitters:      jitters,
	}
	if err := s.db.Create(snap).Error; err != nil {
		return nil, err
	}
	return snap, nil
}

// LoadLatest returns the most recent snapshot for instanceID, or
// gorm.ErrRecordNotFound if none exists.
func (s *Store) LoadLatest(instanceID string) (*BrainSnapshot, error) {
	var snap BrainSnapshot
	err := s.db.Where("instance_id = ?", instanceID).Order("created_at desc").First(&snap).Error
	if err != nil {
		return nil, err
	}
	return &snap, nil
}
