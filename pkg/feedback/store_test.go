package feedback

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/valentinpelus/attackref/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var idPattern = regexp.MustCompile(`^fb_\d+_[0-9a-f]{12}$`)

const headerLine = "ID,Technique,STRIDE,CIA,Feedback Type,SID,Comment,Timestamp\n"

func newTestStore(t *testing.T) (*Store, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	path := filepath.Join(t.TempDir(), "feedback.csv")
	return NewStore(path, zap.New(core)), logs
}

func sampleSubmission() types.FeedbackSubmission {
	return types.FeedbackSubmission{
		Technique:    "T1059",
		STRIDE:       "Spoofing",
		CIA:          "Integrity",
		FeedbackType: types.FeedbackThumbsDown,
		SID:          "S-1-5-21",
		Comment:      "seems wrong",
	}
}

func TestAppendThenList(t *testing.T) {
	store, _ := newTestStore(t)

	record, err := store.Append(sampleSubmission())
	require.NoError(t, err)

	assert.Equal(t, "T1059", record.Technique)
	assert.Equal(t, "thumbs_down", record.FeedbackType)
	assert.Regexp(t, idPattern, record.ID)
	assert.True(t, strings.HasPrefix(record.ID, "fb_"))

	_, err = time.Parse(types.TimestampLayout, record.Timestamp())
	require.NoError(t, err)

	records, err := store.List()
	require.NoError(t, err)
	require.Len(t, records, 1)

	got := records[0]
	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, "T1059", got.Technique)
	assert.Equal(t, "Spoofing", got.STRIDE)
	assert.Equal(t, "Integrity", got.CIA)
	assert.Equal(t, "thumbs_down", got.FeedbackType)
	assert.Equal(t, "S-1-5-21", got.SID)
	assert.Equal(t, "seems wrong", got.Comment)
	assert.True(t, record.CreatedAt.Equal(got.CreatedAt), "timestamps differ: %v vs %v", record.CreatedAt, got.CreatedAt)
}

func TestAppendWritesHeaderOnce(t *testing.T) {
	store, _ := newTestStore(t)

	for i := 0; i < 3; i++ {
		_, err := store.Append(sampleSubmission())
		require.NoError(t, err)
	}

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), headerLine))
	assert.Equal(t, 1, strings.Count(string(data), "ID,Technique"))
	assert.Equal(t, 4, strings.Count(string(data), "\n"))
}

func TestAppendCreatesMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "feedback.csv")
	store := NewStore(path, nil)

	_, err := store.Append(sampleSubmission())
	require.NoError(t, err)
	assert.True(t, store.Exists())
}

func TestListMissingFile(t *testing.T) {
	store, _ := newTestStore(t)

	records, err := store.List()
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
	assert.False(t, store.Exists())
}

func TestListEmptyFile(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, os.WriteFile(store.Path(), nil, 0644))

	records, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestListPreservesAppendOrder(t *testing.T) {
	store, _ := newTestStore(t)

	for i := 0; i < 5; i++ {
		sub := sampleSubmission()
		sub.Technique = fmt.Sprintf("T100%d", i)
		_, err := store.Append(sub)
		require.NoError(t, err)
	}

	records, err := store.List()
	require.NoError(t, err)
	require.Len(t, records, 5)
	for i, r := range records {
		assert.Equal(t, fmt.Sprintf("T100%d", i), r.Technique)
	}
}

func TestClearRemovesRecords(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Append(sampleSubmission())
	require.NoError(t, err)
	_, err = store.Append(sampleSubmission())
	require.NoError(t, err)

	require.NoError(t, store.Clear())

	records, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, records)

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Equal(t, headerLine, string(data))
}

func TestClearIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.Clear())
	first, err := os.ReadFile(store.Path())
	require.NoError(t, err)

	require.NoError(t, store.Clear())
	second, err := os.ReadFile(store.Path())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, headerLine, string(second))

	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestAppendAfterClear(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Append(sampleSubmission())
	require.NoError(t, err)
	require.NoError(t, store.Clear())

	record, err := store.Append(sampleSubmission())
	require.NoError(t, err)

	records, err := store.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, record.ID, records[0].ID)
}

func TestConcurrentAppends(t *testing.T) {
	store, _ := newTestStore(t)

	const n = 64
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sub := sampleSubmission()
			sub.Comment = fmt.Sprintf("comment %d", i)
			if _, err := store.Append(sub); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("append failed: %v", err)
	}

	records, err := store.List()
	require.NoError(t, err)
	require.Len(t, records, n)

	ids := make(map[string]struct{}, n)
	comments := make(map[string]struct{}, n)
	for _, r := range records {
		ids[r.ID] = struct{}{}
		comments[r.Comment] = struct{}{}
	}
	assert.Len(t, ids, n)
	assert.Len(t, comments, n)
}

func TestConcurrentAppendAndClear(t *testing.T) {
	store, _ := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := store.Append(sampleSubmission())
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := store.List()
			assert.NoError(t, err)
		}()
		if i%5 == 0 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, store.Clear())
			}()
		}
	}
	wg.Wait()

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "ID,Technique"))

	_, err = store.List()
	require.NoError(t, err)
}

func TestSpecialCharactersRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)

	sub := sampleSubmission()
	sub.Technique = "Command and Scripting Interpreter: PowerShell"
	sub.Comment = "has, a comma\nand a \"quoted\" word\nover lines"
	sub.SID = `S-1-5,"21"`

	_, err := store.Append(sub)
	require.NoError(t, err)
	_, err = store.Append(sampleSubmission())
	require.NoError(t, err)

	records, err := store.List()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, sub.Technique, records[0].Technique)
	assert.Equal(t, sub.Comment, records[0].Comment)
	assert.Equal(t, sub.SID, records[0].SID)
	assert.Equal(t, "seems wrong", records[1].Comment)
}

func TestOptionalFieldsDefaultEmpty(t *testing.T) {
	store, _ := newTestStore(t)

	record, err := store.Append(types.FeedbackSubmission{
		Technique:    "T1566",
		STRIDE:       "Spoofing",
		CIA:          "Confidentiality",
		FeedbackType: types.FeedbackThumbsUp,
	})
	require.NoError(t, err)
	assert.Empty(t, record.SID)
	assert.Empty(t, record.Comment)

	records, err := store.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Empty(t, records[0].SID)
	assert.Empty(t, records[0].Comment)
}

func TestListSkipsMalformedRows(t *testing.T) {
	store, logs := newTestStore(t)

	content := headerLine +
		"fb_1_aaaaaaaaaaaa,T1003,Elevation,Confidentiality,thumbs_up,,,2024-05-01T10:00:00.000000Z\n" +
		"not,enough,fields\n" +
		"fb_2_bbbbbbbbbbbb,T1003,Elevation,Confidentiality,thumbs_up,,,yesterday\n" +
		"fb_3_cccccccccccc,T1110,Spoofing,Integrity,thumbs_down,,\"unterminated"
	require.NoError(t, os.WriteFile(store.Path(), []byte(content), 0644))

	records, err := store.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "fb_1_aaaaaaaaaaaa", records[0].ID)

	assert.GreaterOrEqual(t, logs.FilterMessage("skipping malformed feedback row").Len(), 3)
}

func TestListAcceptsNaiveTimestamps(t *testing.T) {
	store, _ := newTestStore(t)

	content := headerLine + "fb_1700000000_1a2b3c4d,T1059,Spoofing,Integrity,thumbs_up,,,2023-11-14T22:13:20.123456\n"
	require.NoError(t, os.WriteFile(store.Path(), []byte(content), 0644))

	records, err := store.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 2023, records[0].CreatedAt.Year())
	assert.Equal(t, 123456000, records[0].CreatedAt.Nanosecond())
}

func TestAppendDropsTornTail(t *testing.T) {
	store, _ := newTestStore(t)

	content := headerLine +
		"fb_1_aaaaaaaaaaaa,T1003,Elevation,Confidentiality,thumbs_up,,,2024-05-01T10:00:00.000000Z\n" +
		"fb_2_bbbbbbbbbbbb,T1003,Elev,\"half a quo"
	require.NoError(t, os.WriteFile(store.Path(), []byte(content), 0644))

	record, err := store.Append(sampleSubmission())
	require.NoError(t, err)

	records, err := store.List()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "fb_1_aaaaaaaaaaaa", records[0].ID)
	assert.Equal(t, record.ID, records[1].ID)
}

func TestAppendDropsTornQuotedRowEndingInNewline(t *testing.T) {
	store, logs := newTestStore(t)

	first, err := store.Append(sampleSubmission())
	require.NoError(t, err)

	f, err := os.OpenFile(store.Path(), os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("fb_1_aaaaaaaaaaaa,T1,S,C,thumbs_up,,\"line one\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	second, err := store.Append(sampleSubmission())
	require.NoError(t, err)

	records, err := store.List()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, first.ID, records[0].ID)
	assert.Equal(t, second.ID, records[1].ID)
	assert.Equal(t, 1, logs.FilterMessage("dropped torn trailing row from feedback file").Len())
}

func TestAppendKeepsCompleteMultilineRows(t *testing.T) {
	store, logs := newTestStore(t)

	sub := sampleSubmission()
	sub.Comment = "line one\nline two\n"
	first, err := store.Append(sub)
	require.NoError(t, err)
	second, err := store.Append(sampleSubmission())
	require.NoError(t, err)

	records, err := store.List()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, first.ID, records[0].ID)
	assert.Equal(t, "line one\nline two\n", records[0].Comment)
	assert.Equal(t, second.ID, records[1].ID)
	assert.Zero(t, logs.FilterMessage("dropped torn trailing row from feedback file").Len())
}

func TestAppendRepairsTornHeader(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, os.WriteFile(store.Path(), []byte("ID,Techn"), 0644))

	_, err := store.Append(sampleSubmission())
	require.NoError(t, err)

	records, err := store.List()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestListCorruptHeader(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, os.WriteFile(store.Path(), []byte("id,name\n1,x\n"), 0644))

	_, err := store.List()
	require.Error(t, err)

	var persistErr *PersistenceError
	require.True(t, errors.As(err, &persistErr))
	assert.ErrorIs(t, err, ErrCorruptHeader)
}

func TestAppendUnwritablePath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	core, logs := observer.New(zapcore.DebugLevel)
	path := filepath.Join(blocker, "feedback.csv")
	store := NewStore(path, zap.New(core))

	_, err := store.Append(sampleSubmission())
	require.Error(t, err)

	var persistErr *PersistenceError
	require.True(t, errors.As(err, &persistErr))
	assert.Equal(t, path, persistErr.Path)
	assert.NotContains(t, err.Error(), blocker)

	failed := logs.FilterMessage("feedback operation failed").All()
	require.Len(t, failed, 1)
	fields := failed[0].ContextMap()
	assert.Equal(t, "SUBMIT", fields["action"])
	assert.Equal(t, "T1059", fields["technique"])
	assert.Equal(t, "thumbs_down", fields["feedback_type"])
	assert.Equal(t, false, fields["success"])

	assert.Error(t, store.Clear())
}

func TestAppendLogsOneEvent(t *testing.T) {
	store, logs := newTestStore(t)

	_, err := store.Append(sampleSubmission())
	require.NoError(t, err)

	entries := logs.FilterField(zap.String("action", "SUBMIT")).All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "T1059", fields["technique"])
	assert.Equal(t, "thumbs_down", fields["feedback_type"])
	assert.Equal(t, true, fields["success"])
}

func TestPanickingLoggerDoesNotFailAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedback.csv")
	logger := zap.New(zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(panicWriter{}),
		zapcore.DebugLevel,
	))
	store := NewStore(path, logger)

	_, err := store.Append(sampleSubmission())
	require.NoError(t, err)

	records, err := store.List()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

type panicWriter struct{}

func (panicWriter) Write([]byte) (int, error) { panic("log sink down") }

func TestTimestampsNeverGoBackwards(t *testing.T) {
	store, _ := newTestStore(t)

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	times := []time.Time{base, base.Add(-time.Minute), base.Add(time.Second)}
	i := 0
	store.now = func() time.Time {
		ts := times[i]
		i++
		return ts
	}

	var got []time.Time
	for range times {
		record, err := store.Append(sampleSubmission())
		require.NoError(t, err)
		got = append(got, record.CreatedAt)
	}

	assert.True(t, got[1].Equal(got[0]))
	assert.True(t, got[2].After(got[1]))
}

func TestIDIssuerRetriesClashes(t *testing.T) {
	g := newIDIssuer()
	suffixes := []string{"aaaaaaaaaaaa", "aaaaaaaaaaaa", "bbbbbbbbbbbb"}
	i := 0
	g.random = func() string {
		s := suffixes[i]
		i++
		return s
	}

	now := time.Unix(1700000000, 0)
	first := g.next(now)
	second := g.next(now)

	assert.Equal(t, "fb_1700000000_aaaaaaaaaaaa", first)
	assert.Equal(t, "fb_1700000000_bbbbbbbbbbbb", second)
}

func TestStats(t *testing.T) {
	store, _ := newTestStore(t)

	up := sampleSubmission()
	up.FeedbackType = types.FeedbackThumbsUp
	other := sampleSubmission()
	other.Technique = "T1003"
	other.FeedbackType = "meh"

	for _, sub := range []types.FeedbackSubmission{up, up, sampleSubmission(), other} {
		_, err := store.Append(sub)
		require.NoError(t, err)
	}

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.ThumbsUp)
	assert.Equal(t, 1, stats.ThumbsDown)
	assert.Equal(t, 1, stats.Other)
	assert.Equal(t, map[string]int{"T1059": 3, "T1003": 1}, stats.ByTechnique)
}

func TestExport(t *testing.T) {
	store, _ := newTestStore(t)

	var missing strings.Builder
	_, err := store.Export(&missing)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = store.Append(sampleSubmission())
	require.NoError(t, err)

	var out strings.Builder
	n, err := store.Export(&out)
	require.NoError(t, err)
	assert.Equal(t, int64(out.Len()), n)
	assert.True(t, strings.HasPrefix(out.String(), headerLine))
	assert.Contains(t, out.String(), "seems wrong")
}

func TestRecordFields(t *testing.T) {
	store, _ := newTestStore(t)

	record, err := store.Append(sampleSubmission())
	require.NoError(t, err)

	fields := record.Fields()
	assert.Len(t, fields, len(Header))
	for _, name := range Header {
		assert.Contains(t, fields, name)
	}
	assert.Equal(t, record.ID, fields["ID"])
	assert.Equal(t, "thumbs_down", fields["Feedback Type"])
	assert.Equal(t, record.Timestamp(), fields["Timestamp"])
}
