// Package history implements the Session History Exporter (§4.17):
// detects session end, writes a session record, and best-effort uploads
// it to a remote blob store without blocking shutdown. Grounded on the
// teacher's backgroundCleanup best-effort-failure pattern.
package history

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/psybedev/coachtrace/internal/mistaketracker"
	"github.com/psybedev/coachtrace/internal/model"
	"github.com/rs/zerolog"
)

// NoSampleTimeout is the §4.17 60s no-samples session-end detector.
const NoSampleTimeout = 60 * time.Second

// Uploader is the optional remote blob-store sink; failures are logged,
// never propagated.
type Uploader interface {
	Upload(ctx context.Context, sessionID string, record Record) error
}

// Record is the on-disk/uploaded session export.
type Record struct {
	SessionID      string                     `json:"session_id"`
	Session        model.SessionDescriptor    `json:"session"`
	Laps           []model.LapRecord          `json:"laps"`
	References     map[string]model.ReferenceLap `json:"references"`
	MistakeSummary mistaketracker.SessionSummary `json:"mistake_summary"`
	EndedAt        time.Time                  `json:"ended_at"`
}

// Exporter writes and optionally uploads session records.
type Exporter struct {
	dir      string
	uploader Uploader
	log      zerolog.Logger

	lastSampleAt time.Time
}

func New(dir string, uploader Uploader, log zerolog.Logger) *Exporter {
	return &Exporter{dir: dir, uploader: uploader, log: log.With().Str("component", "history").Logger()}
}

// NoteSample marks that telemetry is still flowing, for the no-samples
// session-end detector.
func (e *Exporter) NoteSample(at time.Time) { e.lastSampleAt = at }

// Idle reports whether more than NoSampleTimeout has elapsed since the
// last NoteSample call.
func (e *Exporter) Idle(now time.Time) bool {
	return !e.lastSampleAt.IsZero() && now.Sub(e.lastSampleAt) > NoSampleTimeout
}

// Export writes rec to disk and, if an uploader is configured, attempts
// a best-effort remote upload. Upload failures are logged but never
// returned — shutdown must not block on them.
func (e *Exporter) Export(ctx context.Context, rec Record) error {
	if err := e.writeLocal(rec); err != nil {
		return err
	}
	if e.uploader != nil {
		go func() {
			uploadCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := e.uploader.Upload(uploadCtx, rec.SessionID, rec); err != nil {
				e.log.Warn().Err(err).Str("session_id", rec.SessionID).Msg("remote session upload failed")
			}
		}()
	}
	return nil
}

func (e *Exporter) writeLocal(rec Record) error {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(e.dir, rec.SessionID+".json")
	tmp, err := os.CreateTemp(e.dir, ".history-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	tmp.Close()
	return os.Rename(tmpName, path)
}
