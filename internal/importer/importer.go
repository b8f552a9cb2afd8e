package importer

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/soundprint/soundprint/internal/db"
)

// chunkSize is the number of events written per insert.
const chunkSize = 1000

// Validation errors surfaced to the uploader.
var (
	// ErrUnsupportedFile is returned for uploads that are neither .zip nor .json.
	ErrUnsupportedFile = errors.New("unsupported file type, expected .zip or .json")

	// ErrInvalidArchive is returned when a .zip upload cannot be opened.
	ErrInvalidArchive = errors.New("invalid zip archive")

	// ErrNoHistoryFound is returned when the upload contains no parseable
	// history records at all.
	ErrNoHistoryFound = errors.New("no streaming history found in upload")

	// ErrNoQualifyingTracks is returned when records were found but none
	// qualified (only podcasts or sub-30s plays).
	ErrNoQualifyingTracks = errors.New("found history data but no qualifying music tracks")
)

// EventStore persists normalized play events.
type EventStore interface {
	InsertBatch(ctx context.Context, events []db.PlayEvent) error
}

// Importer handles bulk history uploads: archive extraction, per-file
// parsing, normalization and chunked persistence.
type Importer struct {
	store  EventStore
	logger *zap.Logger
}

// New creates an Importer writing to the given store.
func New(store EventStore, logger *zap.Logger) *Importer {
	return &Importer{store: store, logger: logger}
}

// Result reports how many events an import persisted.
type Result struct {
	Inserted int
}

// Import processes an uploaded archive or single JSON document for the
// given user. Events are written in sequential chunks; a chunk failure
// after at least one successful chunk preserves the partial import and
// reports what was inserted, while a first-chunk failure fails the whole
// import. The user's listening-time accumulator is not touched: imported
// history only becomes visible through the read path's live recompute.
func (imp *Importer) Import(ctx context.Context, userID uuid.UUID, filename string, data []byte) (*Result, error) {
	var (
		records []json.RawMessage
		err     error
	)

	name := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(name, ".zip"):
		records, err = imp.collectArchive(data)
		if err != nil {
			return nil, err
		}
	case strings.HasSuffix(name, ".json"):
		records = imp.collectFile(data, filename)
	default:
		return nil, ErrUnsupportedFile
	}

	if len(records) == 0 {
		return nil, ErrNoHistoryFound
	}

	events := Normalize(userID, records)
	if len(events) == 0 {
		return nil, ErrNoQualifyingTracks
	}

	inserted := 0
	for i := 0; i < len(events); i += chunkSize {
		end := min(i+chunkSize, len(events))
		if err := imp.store.InsertBatch(ctx, events[i:end]); err != nil {
			if inserted == 0 {
				return nil, fmt.Errorf("inserting first chunk: %w", err)
			}
			// Partial success: keep what landed, report the shortfall.
			imp.logger.Warn("chunk insert failed, keeping partial import",
				zap.Int("inserted", inserted),
				zap.Int("total", len(events)),
				zap.Error(err))
			break
		}
		inserted += end - i
	}

	imp.logger.Info("history import complete",
		zap.String("user_id", userID.String()),
		zap.Int("records", len(records)),
		zap.Int("inserted", inserted))

	return &Result{Inserted: inserted}, nil
}

// collectArchive gathers raw records from every .json entry of a zip
// archive. A malformed entry is logged and skipped, never fatal.
func (imp *Importer) collectArchive(data []byte) ([]json.RawMessage, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}

	var records []json.RawMessage
	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name), ".json") {
			continue
		}

		rc, err := entry.Open()
		if err != nil {
			imp.logger.Warn("skipping unreadable archive entry", zap.String("entry", entry.Name), zap.Error(err))
			continue
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			imp.logger.Warn("skipping unreadable archive entry", zap.String("entry", entry.Name), zap.Error(err))
			continue
		}

		records = append(records, imp.collectFile(content, entry.Name)...)
	}
	return records, nil
}

// collectFile parses one JSON document into raw records. Malformed JSON
// or a non-array top level skips the file with a warning.
func (imp *Importer) collectFile(content []byte, filename string) []json.RawMessage {
	var records []json.RawMessage
	if err := json.Unmarshal(content, &records); err != nil {
		imp.logger.Warn("skipping file with malformed or non-array JSON",
			zap.String("file", filename),
			zap.Error(err))
		return nil
	}
	return records
}
