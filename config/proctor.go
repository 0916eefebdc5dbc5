package config

import (
	"time"

	"github.com/yoockh/yooproctor/internal/api/middleware"
)

type ProctorSettings struct {
	RedirectDelay  time.Duration
	CommandTimeout time.Duration
	MarkerTTL      time.Duration
	AllowedOrigins []string
	PlaybackTTL    time.Duration

	// ArchiveChunks mirrors every recorder chunk to the Redis stream so the
	// worker pool can persist it to Mongo.
	ArchiveChunks  bool
	ArchiveWorkers int
	ArchiveTTL     time.Duration
}

func LoadProctorSettings() ProctorSettings {
	return ProctorSettings{
		RedirectDelay:  envDuration("PROCTOR_REDIRECT_DELAY", 3*time.Second),
		CommandTimeout: envDuration("PROCTOR_COMMAND_TIMEOUT", 30*time.Second),
		MarkerTTL:      envDuration("PROCTOR_MARKER_TTL", 24*time.Hour),
		AllowedOrigins: envList("PROCTOR_ALLOWED_ORIGINS"),
		PlaybackTTL:    envDuration("RECORDING_PLAYBACK_TTL", 15*time.Minute),
		ArchiveChunks:  envBool("RECORDING_ARCHIVE_CHUNKS", false),
		ArchiveWorkers: envInt("RECORDING_ARCHIVE_WORKERS", 4),
		ArchiveTTL:     envDuration("RECORDING_ARCHIVE_TTL", 7*24*time.Hour),
	}
}

func LoadAuth() middleware.JWTConfig {
	return middleware.JWTConfig{
		Secret:   envString("SUPABASE_JWT_SECRET", ""),
		Issuer:   envString("SUPABASE_JWT_ISSUER", ""),
		Audience: envString("SUPABASE_JWT_AUDIENCE", ""),
	}
}
