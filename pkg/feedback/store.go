package feedback

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/valentinpelus/attackref/pkg/types"
)

// Header is the first line of every feedback file, in column order
var Header = []string{"ID", "Technique", "STRIDE", "CIA", "Feedback Type", "SID", "Comment", "Timestamp"}

// legacy files carry naive local timestamps without an offset
var timestampLayouts = []string{
	types.TimestampLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
}

// Store is an append-only CSV log of feedback records.
// Writes are serialized by mu; reads share it.
type Store struct {
	filePath string
	logger   *zap.Logger
	mu       sync.RWMutex
	ids      *idIssuer
	now      func() time.Time
	last     time.Time
}

// NewStore creates a feedback store backed by filePath. The file is created lazily.
func NewStore(filePath string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		filePath: filePath,
		logger:   logger,
		ids:      newIDIssuer(),
		now:      time.Now,
	}
}

// Path returns the backing file path
func (s *Store) Path() string {
	return s.filePath
}

// Exists reports whether the backing file has been created
func (s *Store) Exists() bool {
	_, err := os.Stat(s.filePath)
	return err == nil
}

// Append persists one feedback record and returns it with its generated id and timestamp
func (s *Store) Append(sub types.FeedbackSubmission) (types.FeedbackRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.appendLocked(sub)
	s.logFeedback("SUBMIT", sub.Technique, sub.FeedbackType, err)
	if err != nil {
		return types.FeedbackRecord{}, err
	}
	return record, nil
}

// List returns every stored record, oldest first. A missing file yields an empty list.
func (s *Store) List() ([]types.FeedbackRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := s.readAll()
	s.logFeedback("GET", "ALL", fmt.Sprintf("%d items", len(records)), err)
	return records, err
}

// Clear resets the store to a header-only file
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.reset()
	s.logFeedback("CLEAR", "ALL", "N/A", err)
	return err
}

// Export copies the raw backing file to w
func (s *Store) Export(w io.Writer) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(s.filePath)
	if err != nil {
		return 0, persistErr("export", s.filePath, err)
	}
	defer f.Close()

	n, err := io.Copy(w, f)
	if err != nil {
		return n, persistErr("export", s.filePath, err)
	}
	return n, nil
}

// Stats returns feedback statistics
func (s *Store) Stats() (types.FeedbackStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := types.FeedbackStats{ByTechnique: map[string]int{}}
	records, err := s.readAll()
	if err != nil {
		return stats, err
	}

	stats.Total = len(records)
	for _, r := range records {
		switch r.FeedbackType {
		case types.FeedbackThumbsUp:
			stats.ThumbsUp++
		case types.FeedbackThumbsDown:
			stats.ThumbsDown++
		default:
			stats.Other++
		}
		stats.ByTechnique[r.Technique]++
	}
	return stats, nil
}

func (s *Store) appendLocked(sub types.FeedbackSubmission) (types.FeedbackRecord, error) {
	now := s.now().Truncate(time.Microsecond)
	if now.Before(s.last) {
		now = s.last
	}
	s.last = now

	record := types.FeedbackRecord{
		ID:           s.ids.next(now),
		Technique:    sub.Technique,
		STRIDE:       sub.STRIDE,
		CIA:          sub.CIA,
		FeedbackType: sub.FeedbackType,
		SID:          sub.SID,
		Comment:      sub.Comment,
		CreatedAt:    now,
	}

	row, err := encodeRows(recordRow(record))
	if err != nil {
		return types.FeedbackRecord{}, persistErr("append", s.filePath, err)
	}

	f, err := s.openForAppend()
	if err != nil {
		return types.FeedbackRecord{}, err
	}

	// one Write call so a record lands in a single append
	if _, err := f.Write(row); err != nil {
		f.Close()
		return types.FeedbackRecord{}, persistErr("append", s.filePath, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return types.FeedbackRecord{}, persistErr("append", s.filePath, err)
	}
	if err := f.Close(); err != nil {
		return types.FeedbackRecord{}, persistErr("append", s.filePath, err)
	}

	return record, nil
}

// openForAppend opens the backing file positioned for appending, writing the
// header into a new or empty file and dropping a torn trailing row.
func (s *Store) openForAppend() (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return nil, persistErr("create", s.filePath, err)
	}

	f, err := os.OpenFile(s.filePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, persistErr("open", s.filePath, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, persistErr("open", s.filePath, err)
	}

	size := info.Size()
	if size > 0 {
		kept, err := trimTornTail(f, size)
		if err != nil {
			f.Close()
			return nil, persistErr("repair", s.filePath, err)
		}
		if kept != size {
			s.logger.Warn("dropped torn trailing row from feedback file",
				zap.Int64("bytes_dropped", size-kept))
		}
		size = kept
	}

	if size == 0 {
		header, err := encodeRows(Header)
		if err != nil {
			f.Close()
			return nil, persistErr("create", s.filePath, err)
		}
		if _, err := f.Write(header); err != nil {
			f.Close()
			return nil, persistErr("create", s.filePath, err)
		}
	}

	return f, nil
}

// trimTornTail truncates f after its last complete CSV row and returns the
// new size. A newline inside an unterminated quoted field is not a row end.
func trimTornTail(f *os.File, size int64) (int64, error) {
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}
	endsInNewline := last[0] == '\n'

	reader := csv.NewReader(io.NewSectionReader(f, 0, size))
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	var keep int64
	for {
		_, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				return 0, err
			}
			continue
		}
		if off := reader.InputOffset(); off < size || endsInNewline {
			keep = off
		}
	}

	if keep == size {
		return size, nil
	}
	return keep, f.Truncate(keep)
}

// reset atomically replaces the backing file with a header-only file
func (s *Store) reset() error {
	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return persistErr("clear", s.filePath, err)
	}

	header, err := encodeRows(Header)
	if err != nil {
		return persistErr("clear", s.filePath, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.filePath)+".tmp-*")
	if err != nil {
		return persistErr("clear", s.filePath, err)
	}
	tmpName := tmp.Name()
	cleanup := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return persistErr("clear", s.filePath, err)
	}

	if _, err := tmp.Write(header); err != nil {
		return cleanup(err)
	}
	if err := tmp.Chmod(0644); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return persistErr("clear", s.filePath, err)
	}

	if err := os.Rename(tmpName, s.filePath); err != nil {
		os.Remove(tmpName)
		var linkErr *os.LinkError
		if errors.As(err, &linkErr) {
			err = linkErr.Err
		}
		return persistErr("clear", s.filePath, fmt.Errorf("replace file: %w", err))
	}
	return nil
}

func (s *Store) readAll() ([]types.FeedbackRecord, error) {
	f, err := os.Open(s.filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return []types.FeedbackRecord{}, nil
	}
	if err != nil {
		return nil, persistErr("read", s.filePath, err)
	}
	defer f.Close()

	return s.decode(f)
}

func (s *Store) decode(r io.Reader) ([]types.FeedbackRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	records := []types.FeedbackRecord{}

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return records, nil
	}
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return nil, persistErr("read", s.filePath, fmt.Errorf("%w: %v", ErrCorruptHeader, err))
		}
		return nil, persistErr("read", s.filePath, err)
	}
	if !slices.Equal(header, Header) {
		return nil, persistErr("read", s.filePath, ErrCorruptHeader)
	}

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				return nil, persistErr("read", s.filePath, err)
			}
			s.logger.Warn("skipping malformed feedback row",
				zap.Int("line", parseErr.StartLine), zap.Error(err))
			continue
		}

		record, err := parseRow(row)
		if err != nil {
			line, _ := reader.FieldPos(0)
			s.logger.Warn("skipping malformed feedback row", zap.Int("line", line), zap.Error(err))
			continue
		}
		records = append(records, record)
	}

	return records, nil
}

func (s *Store) logFeedback(action, technique, feedbackType string, err error) {
	// log sink failures are ignored
	defer func() { _ = recover() }()

	fields := []zap.Field{
		zap.String("action", action),
		zap.String("technique", technique),
		zap.String("feedback_type", feedbackType),
		zap.Bool("success", err == nil),
	}
	if err != nil {
		s.logger.Error("feedback operation failed", append(fields, zap.Error(err))...)
		return
	}
	s.logger.Info("feedback operation", fields...)
}

func recordRow(r types.FeedbackRecord) []string {
	return []string{r.ID, r.Technique, r.STRIDE, r.CIA, r.FeedbackType, r.SID, r.Comment, r.Timestamp()}
}

func parseRow(row []string) (types.FeedbackRecord, error) {
	if len(row) != len(Header) {
		return types.FeedbackRecord{}, fmt.Errorf("expected %d fields, got %d", len(Header), len(row))
	}
	if row[0] == "" {
		return types.FeedbackRecord{}, errors.New("empty id")
	}

	createdAt, err := parseTimestamp(row[7])
	if err != nil {
		return types.FeedbackRecord{}, err
	}

	return types.FeedbackRecord{
		ID:           row[0],
		Technique:    row[1],
		STRIDE:       row[2],
		CIA:          row[3],
		FeedbackType: row[4],
		SID:          row[5],
		Comment:      row[6],
		CreatedAt:    createdAt,
	}, nil
}

func parseTimestamp(value string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", value)
}

func encodeRows(rows ...[]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
