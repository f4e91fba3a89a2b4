package models

import (
	"time"

	"github.com/google/uuid"
)

// ConfigSnapshot is a stored copy of the orchestrator routing configuration
type ConfigSnapshot struct {
	ID                 uuid.UUID `json:"id" db:"id"`
	EnabledProviders   []string  `json:"enabled_providers" db:"enabled_providers"`
	PreferredProviders []string  `json:"preferred_providers" db:"preferred_providers"`
	FallbackToFree     bool      `json:"fallback_to_free" db:"fallback_to_free"`
	UpdatedBy          string    `json:"updated_by" db:"updated_by"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table holding the live snapshot
func (ConfigSnapshot) TableName() string {
	return "ai_orchestrator_config"
}

// HistoryTableName returns the append-only change log table
func (ConfigSnapshot) HistoryTableName() string {
	return "ai_config_changes"
}

// NewConfigSnapshot creates a snapshot attributed to actor
func NewConfigSnapshot(enabled, preferred []string, fallbackToFree bool, actor string) *ConfigSnapshot {
	return &ConfigSnapshot{
		ID:                 uuid.New(),
		EnabledProviders:   enabled,
		PreferredProviders: preferred,
		FallbackToFree:     fallbackToFree,
		UpdatedBy:          actor,
		UpdatedAt:          time.Now(),
	}
}
