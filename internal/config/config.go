// Package config holds the coaching pipeline's in-memory, hot-read-only
// configuration surface. Components read a *Config snapshot at
// construction; UpdateConfig-style callers replace the pointer rather
// than mutating fields in place.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config collects every recognized configuration key (see spec §6.6) plus
// the remote-adapter and cache knobs the coaching pipeline needs beyond
// the distilled key list.
type Config struct {
	TelemetryPollHz      float64       `json:"telemetry_poll_hz"`
	SessionPollS         float64       `json:"session_poll_s"`
	BufferDurationS      float64       `json:"buffer_duration_s"`
	SectorBoundaries     []float64     `json:"sector_boundaries"`
	PerTrackSectors      map[string][]float64 `json:"per_track_sectors"`
	MessageCooldownS     float64       `json:"message_cooldown_s"`
	CombinationWindowS   float64       `json:"combination_window_s"`
	MaxMessages          int           `json:"max_messages"`
	RateLimitPerMinRemote int          `json:"rate_limit_per_min_remote"`
	CoachingMode         string        `json:"coaching_mode"`
	PersistenceDir       string        `json:"persistence_dir"`
	DedupWindowFrontendS float64       `json:"dedup_window_frontend_s"`
	DedupWindowBackendS  float64       `json:"dedup_window_backend_s"`

	// Remote NL Coach Adapter (Gemini) configuration.
	GeminiAPIKey     string        `json:"-"`
	GeminiModel      string        `json:"gemini_model"`
	GeminiMaxTokens  int           `json:"gemini_max_tokens"`
	GeminiTemperature float64      `json:"gemini_temperature"`
	RequestTimeout   time.Duration `json:"request_timeout"`
	RemoteBurstLimit int           `json:"remote_burst_limit"`

	// Track Metadata Store cache configuration.
	TrackCacheTTL     time.Duration `json:"track_cache_ttl"`
	TrackCacheMaxSize int           `json:"track_cache_max_size"`

	// Message queue dispatch rate (§4.14: default 1 msg/2s, burst 3).
	DispatchPerWindow int           `json:"dispatch_per_window"`
	DispatchBurst     int           `json:"dispatch_burst"`
	DispatchWindow    time.Duration `json:"dispatch_window"`
	QueueCapacity     int           `json:"queue_capacity"`
	HistoryRingSize   int           `json:"history_ring_size"`

	// Mistake tracker bounds.
	MistakeEventLogCap int `json:"mistake_event_log_cap"`
}

// Default returns the specification's documented defaults.
func Default() *Config {
	return &Config{
		TelemetryPollHz:      60,
		SessionPollS:         5,
		BufferDurationS:      30,
		SectorBoundaries:     []float64{0.0, 0.33, 0.66},
		PerTrackSectors:      map[string][]float64{},
		MessageCooldownS:     8,
		CombinationWindowS:   3,
		MaxMessages:          4,
		RateLimitPerMinRemote: 5,
		CoachingMode:         "intermediate",
		PersistenceDir:       "./data",
		DedupWindowFrontendS: 12,
		DedupWindowBackendS:  8,

		GeminiModel:       "gemini-2.0-flash",
		GeminiMaxTokens:   8192,
		GeminiTemperature: 0.7,
		RequestTimeout:    5 * time.Second,
		RemoteBurstLimit:  2,

		TrackCacheTTL:     24 * time.Hour,
		TrackCacheMaxSize: 64,

		DispatchPerWindow: 1,
		DispatchBurst:     3,
		DispatchWindow:    2 * time.Second,
		QueueCapacity:     64,
		HistoryRingSize:   100,

		MistakeEventLogCap: 10000,
	}
}

// LoadFromEnv applies environment-sourced overrides (currently just the
// Gemini API key, following the teacher's GOOGLE_API_KEY/GEMINI_API_KEY
// lookup order) on top of Default().
func LoadFromEnv() (*Config, error) {
	c := Default()

	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	c.GeminiAPIKey = apiKey // empty is valid: remote enrichment degrades to local-only

	return c, nil
}

// Validate checks internal consistency of the configuration.
func (c *Config) Validate() error {
	if c.TelemetryPollHz <= 0 {
		return fmt.Errorf("telemetry_poll_hz must be positive")
	}
	if len(c.SectorBoundaries) == 0 {
		return fmt.Errorf("sector_boundaries must be non-empty")
	}
	for _, b := range c.SectorBoundaries {
		if b < 0 || b >= 1 {
			return fmt.Errorf("sector_boundaries entries must be in [0,1)")
		}
	}
	if c.MaxMessages <= 0 {
		return fmt.Errorf("max_messages must be positive")
	}
	if c.RateLimitPerMinRemote <= 0 {
		return fmt.Errorf("rate_limit_per_min_remote must be positive")
	}
	validModes := map[string]bool{"beginner": true, "intermediate": true, "advanced": true, "race": true}
	if !validModes[c.CoachingMode] {
		return fmt.Errorf("coaching_mode must be one of beginner, intermediate, advanced, race")
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("queue_capacity must be positive")
	}
	return nil
}

// SectorBoundariesFor resolves the per-track override if configured,
// otherwise the global default, per the specification's resolved open
// question.
func (c *Config) SectorBoundariesFor(track string) []float64 {
	if b, ok := c.PerTrackSectors[track]; ok && len(b) > 0 {
		return b
	}
	return c.SectorBoundaries
}

// Clone deep-copies the configuration so updates never alias a
// previously handed-out snapshot.
func (c *Config) Clone() *Config {
	clone := *c
	clone.SectorBoundaries = append([]float64(nil), c.SectorBoundaries...)
	clone.PerTrackSectors = make(map[string][]float64, len(c.PerTrackSectors))
	for k, v := range c.PerTrackSectors {
		clone.PerTrackSectors[k] = append([]float64(nil), v...)
	}
	return &clone
}

func (c *Config) ToJSON() ([]byte, error) { return json.Marshal(c) }

func (c *Config) FromJSON(data []byte) error { return json.Unmarshal(data, c) }
