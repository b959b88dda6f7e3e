package seed

import (
	"bytes"
	"context"
	"errors"
	"io"
	"reflect"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/tabletalk/tabletalk/internal/storage"
)

type memoryStore struct {
	objects   map[string][]byte
	statErr   error
	deleteErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}}
}

func (m *memoryStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ storage.PutOptions) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	m.objects[key] = data
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStore) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	if m.statErr != nil {
		return storage.ObjectInfo{}, m.statErr
	}
	data, ok := m.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.objects, key)
	return nil
}

func (m *memoryStore) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	var out []storage.ObjectInfo
	for key, data := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, storage.ObjectInfo{Key: key, Size: int64(len(data))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func fixedGenerator(seed int64) *Generator {
	g := NewGenerator(seed, 10)
	g.now = func() time.Time { return time.Date(2026, 2, 19, 7, 30, 0, 0, time.UTC) }
	return g
}

func TestGeneratorDeterministicForSeed(t *testing.T) {
	g1, g2 := fixedGenerator(42), fixedGenerator(42)
	for i := 0; i < 5; i++ {
		r1, r2 := g1.Next(), g2.Next()
		if !reflect.DeepEqual(r1, r2) {
			t.Fatalf("record %d differs: %#v vs %#v", i, r1, r2)
		}
	}
}

func TestGeneratorSequenceAndTimeOrder(t *testing.T) {
	events := fixedGenerator(99).Batch(50)
	for i, event := range events {
		if event.EventID != int64(i+1) {
			t.Fatalf("event_id = %d, want %d", event.EventID, i+1)
		}
		if i > 0 && !event.OccurredAt.Before(events[i-1].OccurredAt) {
			t.Fatalf("event %d is not older than its predecessor", i)
		}
		if event.EventType == "page_view" && event.Amount != 0 {
			t.Fatalf("page_view amount = %v", event.Amount)
		}
	}
}

func TestEncodeEventsRoundTrip(t *testing.T) {
	events := fixedGenerator(7).Batch(20)
	encoded, err := EncodeEvents(events)
	if err != nil {
		t.Fatalf("EncodeEvents() error = %v", err)
	}
	if encoded.RecordCount != 20 {
		t.Fatalf("RecordCount = %d", encoded.RecordCount)
	}
	if !encoded.MinEventTime.Equal(events[19].OccurredAt) || !encoded.MaxEventTime.Equal(events[0].OccurredAt) {
		t.Fatalf("time range = %v..%v", encoded.MinEventTime, encoded.MaxEventTime)
	}

	decoded, err := parquet.Read[Event](bytes.NewReader(encoded.Data), int64(len(encoded.Data)))
	if err != nil {
		t.Fatalf("parquet.Read() error = %v", err)
	}
	if len(decoded) != 20 || decoded[3].UserID != events[3].UserID || decoded[3].EventID != events[3].EventID {
		t.Fatalf("decoded = %#v", decoded[:1])
	}

	if _, err := EncodeEvents(nil); err == nil {
		t.Fatal("expected error for empty events")
	}
}

func TestSeederWritesParts(t *testing.T) {
	store := newMemoryStore()
	seeder, err := NewSeeder(Config{TableName: "events", Rows: 25, RowsPerFile: 10, UserCardinality: 5, Seed: 1}, store, nil)
	if err != nil {
		t.Fatalf("NewSeeder() error = %v", err)
	}

	result, err := seeder.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := []string{"events/part-00000.parquet", "events/part-00001.parquet", "events/part-00002.parquet"}
	if !reflect.DeepEqual(result.Written, want) {
		t.Fatalf("Written = %#v", result.Written)
	}
	if result.Rows != 25 {
		t.Fatalf("Rows = %d", result.Rows)
	}
	last := store.objects["events/part-00002.parquet"]
	rows, err := parquet.Read[Event](bytes.NewReader(last), int64(len(last)))
	if err != nil || len(rows) != 5 {
		t.Fatalf("last part rows = %d, err = %v", len(rows), err)
	}
	if rows[0].EventID != 21 {
		t.Fatalf("last part starts at event %d", rows[0].EventID)
	}
}

func TestSeederSkipsExistingUnlessOverwrite(t *testing.T) {
	store := newMemoryStore()
	store.objects["events/part-00000.parquet"] = []byte("keep")

	seeder, _ := NewSeeder(Config{TableName: "events", Rows: 20, RowsPerFile: 10, UserCardinality: 5, Seed: 1}, store, nil)
	result, err := seeder.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Skipped) != 1 || len(result.Written) != 1 || result.Rows != 10 {
		t.Fatalf("result = %#v", result)
	}
	if string(store.objects["events/part-00000.parquet"]) != "keep" {
		t.Fatal("existing file was replaced")
	}

	overwrite, _ := NewSeeder(Config{TableName: "events", Rows: 20, RowsPerFile: 10, UserCardinality: 5, Seed: 1, Overwrite: true}, store, nil)
	result, err = overwrite.Run(context.Background())
	if err != nil || len(result.Written) != 2 {
		t.Fatalf("overwrite result = %#v err = %v", result, err)
	}
}

func TestOverwriteRemovesStaleParts(t *testing.T) {
	store := newMemoryStore()
	first, _ := NewSeeder(Config{TableName: "events", Rows: 40, RowsPerFile: 10, UserCardinality: 5, Seed: 1}, store, nil)
	if _, err := first.Run(context.Background()); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	store.objects["events/notes.parquet"] = []byte("manual")
	store.objects["orders/part-00003.parquet"] = []byte("other table")

	smaller, _ := NewSeeder(Config{TableName: "events", Rows: 20, RowsPerFile: 10, UserCardinality: 5, Seed: 1, Overwrite: true}, store, nil)
	result, err := smaller.Run(context.Background())
	if err != nil {
		t.Fatalf("overwrite Run() error = %v", err)
	}
	wantRemoved := []string{"events/part-00002.parquet", "events/part-00003.parquet"}
	if !reflect.DeepEqual(result.Removed, wantRemoved) {
		t.Fatalf("Removed = %#v", result.Removed)
	}
	for _, key := range wantRemoved {
		if _, ok := store.objects[key]; ok {
			t.Fatalf("%s still present", key)
		}
	}
	for _, key := range []string{"events/part-00000.parquet", "events/part-00001.parquet", "events/notes.parquet", "orders/part-00003.parquet"} {
		if _, ok := store.objects[key]; !ok {
			t.Fatalf("%s was removed", key)
		}
	}
}

func TestSkipModeKeepsExtraParts(t *testing.T) {
	store := newMemoryStore()
	store.objects["events/part-00009.parquet"] = []byte("old")
	seeder, _ := NewSeeder(Config{TableName: "events", Rows: 10, RowsPerFile: 10, UserCardinality: 5, Seed: 1}, store, nil)
	result, err := seeder.Run(context.Background())
	if err != nil || len(result.Removed) != 0 {
		t.Fatalf("Run() = %#v, %v", result, err)
	}
	if _, ok := store.objects["events/part-00009.parquet"]; !ok {
		t.Fatal("extra part removed without overwrite")
	}
}

func TestOverwriteSurfacesDeleteFailure(t *testing.T) {
	store := newMemoryStore()
	store.objects["events/part-00005.parquet"] = []byte("old")
	store.deleteErr = errors.New("access denied")
	seeder, _ := NewSeeder(Config{TableName: "events", Rows: 10, RowsPerFile: 10, UserCardinality: 5, Seed: 1, Overwrite: true}, store, nil)
	if _, err := seeder.Run(context.Background()); err == nil || !strings.Contains(err.Error(), "access denied") {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestSeederStatFailure(t *testing.T) {
	store := newMemoryStore()
	store.statErr = errors.New("bucket unreachable")
	seeder, _ := NewSeeder(Config{TableName: "events", Rows: 1, RowsPerFile: 1, UserCardinality: 1}, store, nil)
	if _, err := seeder.Run(context.Background()); err == nil {
		t.Fatal("expected stat error")
	}
}

func TestNewSeederValidates(t *testing.T) {
	if _, err := NewSeeder(Config{TableName: "bad-name", Rows: 1, RowsPerFile: 1, UserCardinality: 1}, newMemoryStore(), nil); err == nil {
		t.Fatal("expected table name error")
	}
	if _, err := NewSeeder(Config{TableName: "events", Rows: 1, RowsPerFile: 1, UserCardinality: 1}, nil, nil); err == nil {
		t.Fatal("expected store error")
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	cfg, err := LoadConfigFromEnv(mapLookup(map[string]string{
		"TABLETALK_SEED_TABLE":            "orders",
		"TABLETALK_SEED_ROWS":             "40",
		"TABLETALK_SEED_ROWS_PER_FILE":    "8",
		"TABLETALK_SEED_USER_CARDINALITY": "3",
		"TABLETALK_SEED_SEED":             "12345",
		"TABLETALK_SEED_OVERWRITE":        "true",
	}))
	if err != nil {
		t.Fatalf("LoadConfigFromEnv() error = %v", err)
	}
	want := Config{TableName: "orders", Rows: 40, RowsPerFile: 8, UserCardinality: 3, Seed: 12345, Overwrite: true}
	if cfg != want {
		t.Fatalf("cfg = %#v", cfg)
	}

	defaults, err := LoadConfigFromEnv(mapLookup(map[string]string{}))
	if err != nil || defaults.TableName != "events" || defaults.Rows != 1000 {
		t.Fatalf("defaults = %#v err = %v", defaults, err)
	}
}

func TestLoadConfigFromEnvErrors(t *testing.T) {
	for key, value := range map[string]string{
		"TABLETALK_SEED_TABLE":         "../escape",
		"TABLETALK_SEED_ROWS":          "0",
		"TABLETALK_SEED_ROWS_PER_FILE": "nope",
		"TABLETALK_SEED_OVERWRITE":     "maybe",
	} {
		if _, err := LoadConfigFromEnv(mapLookup(map[string]string{key: value})); err == nil {
			t.Fatalf("%s=%s: expected error", key, value)
		}
	}
	if _, err := LoadConfigFromEnv(nil); err == nil {
		t.Fatal("expected lookup error")
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
