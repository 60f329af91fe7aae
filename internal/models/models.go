package models

import (
	"strings"
	"time"
)

// RoleName enumerates account roles.
type RoleName string

const (
	RoleAdmin RoleName = "admin"
	RoleUser  RoleName = "user"
)

// User represents an authenticated account with plan and usage state.
type User struct {
	ID             string `gorm:"type:uuid;primaryKey"`
	Username       string `gorm:"uniqueIndex"`
	PasswordHash   string
	Role           RoleName `gorm:"type:varchar(16)"`
	PlanID         string   `gorm:"type:uuid;index"`
	StorageUsed    int64
	UsageSeconds   int64
	LastUsageReset string `gorm:"type:varchar(10)"` // YYYY-MM-DD of the last daily reset
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Plan defines the per-account limits applied by the stream engine and upload handlers.
type Plan struct {
	ID               string `gorm:"type:uuid;primaryKey"`
	Name             string `gorm:"uniqueIndex"`
	MaxStorageMB     int64
	AllowedTypes     string `gorm:"type:varchar(64)"` // comma separated: audio,image,video
	MaxActiveStreams int
	DailyLimitHours  int
	PriceText        string
	FeaturesText     string `gorm:"type:text"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DailyLimitSeconds converts the plan's daily allowance into seconds.
func (p Plan) DailyLimitSeconds() int64 {
	return int64(p.DailyLimitHours) * 3600
}

// AllowsType reports whether the plan permits uploading the given media kind.
func (p Plan) AllowsType(kind MediaKind) bool {
	if p.AllowedTypes == "" {
		return false
	}
	// Images are always allowed alongside audio so covers can be uploaded.
	if kind == MediaImage {
		return true
	}
	for _, t := range strings.Split(p.AllowedTypes, ",") {
		if strings.TrimSpace(t) == string(kind) {
			return true
		}
	}
	return false
}

// Destination is one outbound RTMP publish target owned by a user.
type Destination struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	UserID    string `gorm:"type:uuid;index"`
	Name      string
	Platform  string `gorm:"type:varchar(32)"`
	RTMPURL   string
	StreamKey string
	IsActive  bool `gorm:"default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PublishURL joins the base RTMP URL and the stream key into the full publish target.
func (d Destination) PublishURL() string {
	return d.RTMPURL + d.StreamKey
}

// MediaKind distinguishes library entries.
type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// MediaItem is one uploaded file in a user's library.
type MediaItem struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	UserID    string `gorm:"type:uuid;index"`
	Filename  string
	Path      string
	Size      int64
	Kind      MediaKind `gorm:"type:varchar(16);default:audio"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Setting is a simple key/value row for instance level settings.
type Setting struct {
	Key       string `gorm:"primaryKey"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}
