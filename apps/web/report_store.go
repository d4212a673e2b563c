package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	reportsStorageKey      = "reports"
	maxDescriptionLength   = 500
	reportCreatedAtLayout  = "2006-01-02T15:04:05.000Z07:00"
	storeScopeDevice       = "device"
	storeScopeShared       = "shared"
	deviceStorageKeyPrefix = reportsStorageKey + ":"
)

var ErrInvalidCoordinates = errors.New("invalid coordinates")

// Report is one fallen-tree observation. JSON names match the persisted
// collection format.
type Report struct {
	ID          int64   `json:"id"`
	Latitude    float64 `json:"x"`
	Longitude   float64 `json:"y"`
	Description *string `json:"description"`
	CreatedAt   string  `json:"createdAt"`
}

// KeyValueStore persists whole string values under a key. Only a single Get
// or Set is atomic; callers doing read-modify-write get last-writer-wins.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Ping(ctx context.Context) error
}

// ReportAppender and ReportDeleter are the two mutations the views need.
type ReportAppender interface {
	Append(ctx context.Context, report Report) (Report, error)
}

type ReportDeleter interface {
	Delete(ctx context.Context, id int64) error
}

// ReportStore is the flat report collection stored as one JSON array under
// a single key. Every mutation rewrites the whole collection.
type ReportStore struct {
	kv    KeyValueStore
	key   string
	clock clockwork.Clock
	log   *slog.Logger
}

func NewReportStore(kv KeyValueStore, key string, clock clockwork.Clock, logger *slog.Logger) *ReportStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(key) == "" {
		key = reportsStorageKey
	}
	return &ReportStore{kv: kv, key: key, clock: clock, log: logger}
}

// reportStorageKey names the entry holding a device's collection.
func reportStorageKey(scope, deviceID string) string {
	if scope == storeScopeShared || strings.TrimSpace(deviceID) == "" {
		return reportsStorageKey
	}
	return deviceStorageKeyPrefix + deviceID
}

// List never fails: a missing, unreadable or malformed collection is empty.
func (s *ReportStore) List(ctx context.Context) []Report {
	reports, err := s.load(ctx)
	if err != nil {
		s.log.Warn("report collection unreadable, treating as empty", "key", s.key, "err", err)
		return []Report{}
	}
	return reports
}

func (s *ReportStore) Append(ctx context.Context, report Report) (Report, error) {
	if !isFinite(report.Latitude) || !isFinite(report.Longitude) {
		return Report{}, ErrInvalidCoordinates
	}

	reports, err := s.loadForWrite(ctx)
	if err != nil {
		return Report{}, err
	}

	now := s.clock.Now()
	report.ID = nextReportID(reports, report.ID, now)
	if strings.TrimSpace(report.CreatedAt) == "" {
		report.CreatedAt = formatReportTimestamp(now)
	}
	report.CreatedAt = validUTF8(report.CreatedAt)
	if report.Description != nil {
		description := validUTF8(*report.Description)
		report.Description = &description
	}

	reports = append(reports, report)
	if err := s.save(ctx, reports); err != nil {
		return Report{}, err
	}
	return report, nil
}

func (s *ReportStore) Delete(ctx context.Context, id int64) error {
	reports, err := s.loadForWrite(ctx)
	if err != nil {
		return err
	}

	kept := make([]Report, 0, len(reports))
	for _, report := range reports {
		if report.ID != id {
			kept = append(kept, report)
		}
	}
	if len(kept) == len(reports) {
		return nil
	}
	return s.save(ctx, kept)
}

func (s *ReportStore) load(ctx context.Context) ([]Report, error) {
	raw, found, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.key, err)
	}
	if !found || strings.TrimSpace(raw) == "" {
		return []Report{}, nil
	}
	var reports []Report
	if err := json.Unmarshal([]byte(raw), &reports); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.key, err)
	}
	if reports == nil {
		reports = []Report{}
	}
	return reports, nil
}

// loadForWrite surfaces backend failures but starts over from an empty
// collection when the stored value is corrupt, so the device is not stuck.
func (s *ReportStore) loadForWrite(ctx context.Context) ([]Report, error) {
	raw, found, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.key, err)
	}
	if !found || strings.TrimSpace(raw) == "" {
		return []Report{}, nil
	}
	var reports []Report
	if err := json.Unmarshal([]byte(raw), &reports); err != nil {
		s.log.Warn("overwriting malformed report collection", "key", s.key, "err", err)
		return []Report{}, nil
	}
	return reports, nil
}

func (s *ReportStore) save(ctx context.Context, reports []Report) error {
	encoded, err := json.Marshal(reports)
	if err != nil {
		return fmt.Errorf("encode %s: %w", s.key, err)
	}
	if err := s.kv.Set(ctx, s.key, string(encoded)); err != nil {
		return fmt.Errorf("write %s: %w", s.key, err)
	}
	return nil
}

// nextReportID keeps a requested or wall-clock millisecond id unless it is
// already taken in the collection, then moves past the largest id.
func nextReportID(reports []Report, requested int64, now time.Time) int64 {
	candidate := requested
	if candidate <= 0 {
		candidate = now.UnixMilli()
	}
	var maxID int64
	taken := false
	for _, report := range reports {
		if report.ID == candidate {
			taken = true
		}
		if report.ID > maxID {
			maxID = report.ID
		}
	}
	if !taken {
		return candidate
	}
	return maxID + 1
}

func formatReportTimestamp(t time.Time) string {
	return t.UTC().Format(reportCreatedAtLayout)
}

// validUTF8 applies the replacement json.Marshal would, so the returned
// record equals the stored one.
func validUTF8(value string) string {
	return strings.ToValidUTF8(value, "\uFFFD")
}

func normalizeDescription(value string) *string {
	trimmed := strings.TrimSpace(validUTF8(value))
	if trimmed == "" {
		return nil
	}
	runes := []rune(trimmed)
	if len(runes) > maxDescriptionLength {
		trimmed = strings.TrimSpace(string(runes[:maxDescriptionLength]))
	}
	return &trimmed
}

func isFinite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}
