package filecontext

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRow struct {
	scanFunc func(dest ...any) error
}

func (r *fakeRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

// memDB fakes db.DBTX with an in-memory key/value map, enough to exercise
// the replace/read/clear contract.
type memDB struct {
	store map[string][]byte
	times map[string]time.Time
}

func newMemDB() *memDB {
	return &memDB{store: map[string][]byte{}, times: map[string]time.Time{}}
}

func (d *memDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	switch {
	case len(args) == 2: // upsert
		key := args[0].(string)
		d.store[key] = args[1].([]byte)
		d.times[key] = time.Now()
		return pgconn.NewCommandTag("INSERT 1"), nil
	case len(args) == 1:
		if key, ok := args[0].(string); ok { // delete by key
			if _, exists := d.store[key]; exists {
				delete(d.store, key)
				delete(d.times, key)
				return pgconn.NewCommandTag("DELETE 1"), nil
			}
			return pgconn.NewCommandTag("DELETE 0"), nil
		}
		cutoff := args[0].(time.Time) // prune
		n := 0
		for key, at := range d.times {
			if at.Before(cutoff) {
				delete(d.store, key)
				delete(d.times, key)
				n++
			}
		}
		return pgconn.NewCommandTag(fmt.Sprintf("DELETE %d", n)), nil
	}
	return pgconn.CommandTag{}, errors.New("unexpected exec")
}

func (d *memDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (d *memDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	key := args[0].(string)
	data, ok := d.store[key]
	return &fakeRow{scanFunc: func(dest ...any) error {
		if !ok {
			return pgx.ErrNoRows
		}
		*dest[0].(*[]byte) = data
		return nil
	}}
}

func TestWriteReadRoundTrip(t *testing.T) {
	t.Parallel()
	svc := NewService(nil, newMemDB())
	ctx := context.Background()

	refs := []UploadedFileRef{{Path: "uploads/report.pdf", FileName: "report.pdf", FileType: "application/pdf", FileSize: 1024}}
	if err := svc.Write(ctx, "conv-1", refs); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got, err := svc.Read(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(got) != 1 || got[0].FileName != "report.pdf" {
		t.Errorf("Read() = %+v, want stored refs unchanged", got)
	}
}

func TestWriteReplacesNotMerges(t *testing.T) {
	t.Parallel()
	svc := NewService(nil, newMemDB())
	ctx := context.Background()

	first := []UploadedFileRef{{FileName: "a.pdf"}, {FileName: "b.pdf"}}
	second := []UploadedFileRef{{FileName: "c.csv"}}
	if err := svc.Write(ctx, "conv-1", first); err != nil {
		t.Fatal(err)
	}
	if err := svc.Write(ctx, "conv-1", second); err != nil {
		t.Fatal(err)
	}
	got, err := svc.Read(ctx, "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].FileName != "c.csv" {
		t.Errorf("Read() after second write = %+v, want replacement", got)
	}
}

func TestReadMissingReturnsEmpty(t *testing.T) {
	t.Parallel()
	svc := NewService(nil, newMemDB())
	got, err := svc.Read(context.Background(), "conv-unknown")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Read() = %v, want empty non-nil slice", got)
	}
}

func TestClearRemovesContext(t *testing.T) {
	t.Parallel()
	svc := NewService(nil, newMemDB())
	ctx := context.Background()

	if err := svc.Write(ctx, "conv-1", []UploadedFileRef{{FileName: "a.pdf"}}); err != nil {
		t.Fatal(err)
	}
	if err := svc.Clear(ctx, "conv-1"); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	got, err := svc.Read(ctx, "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("Read() after Clear = %v, want empty", got)
	}
}

func TestPruneExpired(t *testing.T) {
	t.Parallel()
	db := newMemDB()
	svc := NewService(nil, db)
	ctx := context.Background()

	if err := svc.Write(ctx, "conv-old", []UploadedFileRef{{FileName: "old.pdf"}}); err != nil {
		t.Fatal(err)
	}
	db.times[Key("conv-old")] = time.Now().Add(-48 * time.Hour)

	n, err := svc.PruneExpired(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("PruneExpired() error = %v", err)
	}
	if n != 1 {
		t.Errorf("pruned = %d, want 1", n)
	}
}

func TestKeyFormat(t *testing.T) {
	t.Parallel()
	if Key("abc") != "conversation_files_abc" {
		t.Errorf("Key() = %q", Key("abc"))
	}
}

func TestNilRefsStoredAsEmptyArray(t *testing.T) {
	t.Parallel()
	db := newMemDB()
	svc := NewService(nil, db)
	if err := svc.Write(context.Background(), "conv-1", nil); err != nil {
		t.Fatal(err)
	}
	var stored []UploadedFileRef
	if err := json.Unmarshal(db.store[Key("conv-1")], &stored); err != nil {
		t.Fatalf("stored value is not valid JSON: %v", err)
	}
	if stored == nil {
		t.Error("stored nil, want []")
	}
}
