package events

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fluxorio/tasklist/pkg/core"
)

func openTestJournal(t *testing.T, path string) *Journal {
	t.Helper()
	j, err := OpenJournal(JournalConfig{Path: path})
	if err != nil {
		t.Fatalf("OpenJournal(%s) error = %v", path, err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestJournal_PublishAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.journal")
	j := openTestJournal(t, path)

	ctx := core.WithRequestID(context.Background(), "req-9")
	for i, typ := range []string{TaskCreated, TaskUpdated, TaskDeleted} {
		if err := j.Publish(ctx, Event{Type: typ, TaskID: int64(i + 1)}); err != nil {
			t.Fatalf("Publish(%s) error = %v", typ, err)
		}
	}
	if got := j.LastOffset(); got != 3 {
		t.Errorf("LastOffset() = %d, want 3", got)
	}

	records, err := ReadJournal(path, 2, 10)
	if err != nil {
		t.Fatalf("ReadJournal() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if records[0].Offset != 2 || records[0].Event.Type != TaskUpdated || records[0].Event.TaskID != 2 {
		t.Errorf("records[0] = %+v, want offset 2 task.updated id 2", records[0])
	}
	if records[1].Event.RequestID != "req-9" {
		t.Errorf("RequestID = %q, want req-9", records[1].Event.RequestID)
	}
	if records[1].Event.OccurredAt.IsZero() {
		t.Error("OccurredAt should default to now")
	}

	limited, err := ReadJournal(path, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 || limited[0].Offset != 1 {
		t.Errorf("limited read = %+v, want only offset 1", limited)
	}
}

func TestJournal_RejectsEmptyType(t *testing.T) {
	j := openTestJournal(t, filepath.Join(t.TempDir(), "events.journal"))

	err := j.Publish(context.Background(), Event{TaskID: 1})
	var coreErr *core.Error
	if !errors.As(err, &coreErr) || coreErr.Code != "INVALID_INPUT" {
		t.Fatalf("Publish() error = %v, want INVALID_INPUT", err)
	}
	if j.LastOffset() != 0 {
		t.Errorf("LastOffset() = %d, want 0", j.LastOffset())
	}
}

func TestJournal_ReopenContinuesOffsets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.journal")

	first, err := OpenJournal(JournalConfig{Path: path, Fsync: true})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := first.Publish(context.Background(), Event{Type: TaskCreated, TaskID: int64(i)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := first.Close(); err != nil {
		t.Errorf("second Close() error = %v, want nil", err)
	}
	if err := first.Publish(context.Background(), Event{Type: TaskCreated}); !errors.Is(err, ErrJournalClosed) {
		t.Errorf("Publish after Close error = %v, want ErrJournalClosed", err)
	}

	second := openTestJournal(t, path)
	if got := second.LastOffset(); got != 2 {
		t.Fatalf("LastOffset() after reopen = %d, want 2", got)
	}
	if err := second.Publish(context.Background(), Event{Type: TaskDeleted, TaskID: 1}); err != nil {
		t.Fatal(err)
	}

	records, err := ReadJournal(path, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 || records[2].Offset != 3 || records[2].Event.Type != TaskDeleted {
		t.Errorf("records = %+v, want three with offset 3 task.deleted last", records)
	}
}

func TestJournal_TruncatesTornTail(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(t *testing.T, path string, size int64)
	}{
		{
			name: "partial record",
			corrupt: func(t *testing.T, path string, size int64) {
				f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
				if err != nil {
					t.Fatal(err)
				}
				defer f.Close()
				if _, err := f.Write([]byte{3, 0, 0, 0, 0, 0, 0, 0, 50, 0}); err != nil {
					t.Fatal(err)
				}
			},
		},
		{
			name: "checksum mismatch",
			corrupt: func(t *testing.T, path string, size int64) {
				f, err := os.OpenFile(path, os.O_WRONLY, 0)
				if err != nil {
					t.Fatal(err)
				}
				defer f.Close()
				if _, err := f.WriteAt([]byte{'#'}, size-2); err != nil {
					t.Fatal(err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "events.journal")
			j, err := OpenJournal(JournalConfig{Path: path})
			if err != nil {
				t.Fatal(err)
			}
			for i := 0; i < 2; i++ {
				if err := j.Publish(context.Background(), Event{Type: TaskCreated, TaskID: int64(i)}); err != nil {
					t.Fatal(err)
				}
			}
			if err := j.Close(); err != nil {
				t.Fatal(err)
			}
			info, err := os.Stat(path)
			if err != nil {
				t.Fatal(err)
			}

			tt.corrupt(t, path, info.Size())

			reopened := openTestJournal(t, path)
			want := uint64(2)
			if tt.name == "checksum mismatch" {
				want = 1
			}
			if got := reopened.LastOffset(); got != want {
				t.Fatalf("LastOffset() = %d, want %d", got, want)
			}
			if err := reopened.Publish(context.Background(), Event{Type: TaskUpdated, TaskID: 9}); err != nil {
				t.Fatal(err)
			}
			records, err := ReadJournal(path, 0, 10)
			if err != nil {
				t.Fatal(err)
			}
			if len(records) != int(want)+1 || records[len(records)-1].Event.TaskID != 9 {
				t.Errorf("records = %+v, want %d intact plus the new one", records, want)
			}
		})
	}
}

// shortWriteFile writes half of the next failWrites buffers, then reports an error
type shortWriteFile struct {
	journalFile
	failWrites int
}

func (f *shortWriteFile) Write(p []byte) (int, error) {
	if f.failWrites > 0 {
		f.failWrites--
		n, _ := f.journalFile.Write(p[:len(p)/2])
		return n, errors.New("no space left on device")
	}
	return f.journalFile.Write(p)
}

func TestJournal_FailedWriteIsRolledBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.journal")
	j := openTestJournal(t, path)
	ctx := context.Background()

	if err := j.Publish(ctx, Event{Type: TaskCreated, TaskID: 1}); err != nil {
		t.Fatal(err)
	}
	intact, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}

	flaky := &shortWriteFile{journalFile: j.file, failWrites: 1}
	j.file = flaky
	j.w.Reset(flaky)

	if err := j.Publish(ctx, Event{Type: TaskUpdated, TaskID: 1}); err == nil {
		t.Fatal("Publish() with a failing disk should fail")
	}
	if got := j.LastOffset(); got != 1 {
		t.Errorf("LastOffset() after failed write = %d, want 1", got)
	}
	after, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if after.Size() != intact.Size() {
		t.Errorf("size after failed write = %d, want %d", after.Size(), intact.Size())
	}

	if err := j.Publish(ctx, Event{Type: TaskDeleted, TaskID: 1}); err != nil {
		t.Fatalf("Publish() after recovery error = %v", err)
	}
	records, err := ReadJournal(path, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || records[1].Offset != 2 || records[1].Event.Type != TaskDeleted {
		t.Errorf("records = %+v, want task.created then task.deleted at offset 2", records)
	}
}

func TestOpenJournal_EmptyPath(t *testing.T) {
	if _, err := OpenJournal(JournalConfig{}); err == nil {
		t.Fatal("OpenJournal() with empty path should fail")
	}
}

type stubPublisher struct {
	events   []Event
	err      error
	closeErr error
	closed   int
}

func (s *stubPublisher) Publish(_ context.Context, event Event) error {
	s.events = append(s.events, event)
	return s.err
}

func (s *stubPublisher) Close() error {
	s.closed++
	return s.closeErr
}

func TestMulti(t *testing.T) {
	if _, ok := Multi().(NopPublisher); !ok {
		t.Error("Multi() with no publishers should be a NopPublisher")
	}
	single := &stubPublisher{}
	if Multi(single) != Publisher(single) {
		t.Error("Multi(p) should return p")
	}

	errBroker := errors.New("broker down")
	errDisk := errors.New("disk full")
	a := &stubPublisher{err: errBroker}
	b := &stubPublisher{closeErr: errDisk}
	m := Multi(a, b)

	err := m.Publish(context.Background(), Event{Type: TaskCreated, TaskID: 1})
	if !errors.Is(err, errBroker) {
		t.Errorf("Publish() error = %v, want broker error", err)
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("fan-out counts = %d, %d, want 1, 1", len(a.events), len(b.events))
	}

	if err := m.Close(); !errors.Is(err, errDisk) {
		t.Errorf("Close() error = %v, want disk error", err)
	}
	if a.closed != 1 || b.closed != 1 {
		t.Errorf("closed counts = %d, %d, want 1, 1", a.closed, b.closed)
	}
}
