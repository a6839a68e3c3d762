package events

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fluxorio/tasklist/pkg/core"
)

// ErrJournalClosed is returned by Publish after Close
var ErrJournalClosed = errors.New("event journal is closed")

// maxRecordSize bounds a single journal record; larger length headers mean corruption
const maxRecordSize = 1 << 20

// Record layout (little endian): [offset u64][len u32][crc32 u32][data]
const recordHeaderSize = 16

// JournalConfig configures a file-backed event journal
type JournalConfig struct {
	// Path of the journal file; created when missing
	Path string

	// Fsync syncs the file after every record
	Fsync bool
}

// JournalRecord is one stored event with its position in the journal
type JournalRecord struct {
	Offset uint64
	Event  Event
}

// journalFile is the subset of *os.File the journal writes through
type journalFile interface {
	io.Writer
	io.Seeker
	Truncate(size int64) error
	Sync() error
	Close() error
}

// Journal appends events to a local file. Offsets start at 1 and increase by one per record.
// A torn record at the tail (from a crash mid-write) is truncated on open; a failed write
// is truncated away immediately so later appends start from the last intact record.
type Journal struct {
	mu     sync.Mutex
	file   journalFile
	w      *bufio.Writer
	next   uint64
	end    int64
	fsync  bool
	closed bool
}

// OpenJournal opens or creates the journal at config.Path
func OpenJournal(config JournalConfig) (*Journal, error) {
	if config.Path == "" {
		return nil, &core.Error{Code: "INVALID_CONFIG", Message: "journal path cannot be empty"}
	}

	file, err := os.OpenFile(config.Path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	last, end, err := scanJournal(file, 0, func(uint64, []byte) bool { return true })
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("recover journal: %w", err)
	}
	if err := file.Truncate(end); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("truncate journal tail: %w", err)
	}
	if _, err := file.Seek(end, io.SeekStart); err != nil {
		_ = file.Close()
		return nil, err
	}

	return &Journal{
		file:  file,
		w:     bufio.NewWriter(file),
		next:  last + 1,
		end:   end,
		fsync: config.Fsync,
	}, nil
}

// Publish appends event and returns once it is written to the file
func (j *Journal) Publish(ctx context.Context, event Event) error {
	if event.Type == "" {
		return &core.Error{Code: "INVALID_INPUT", Message: "event type cannot be empty"}
	}
	if event.RequestID == "" && ctx != nil {
		event.RequestID = core.GetRequestID(ctx)
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	data, err := core.JSONEncode(event)
	if err != nil {
		return err
	}
	if len(data) > maxRecordSize {
		return &core.Error{Code: "INVALID_INPUT", Message: "event exceeds journal record size"}
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrJournalClosed
	}

	var hdr [recordHeaderSize]byte
	binary.LittleEndian.PutUint64(hdr[0:8], j.next)
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(len(data)))
	binary.LittleEndian.PutUint32(hdr[12:16], crc32.ChecksumIEEE(data))

	if err := j.write(hdr[:], data); err != nil {
		return j.rollback(err)
	}
	j.next++
	j.end += int64(recordHeaderSize) + int64(len(data))
	return nil
}

func (j *Journal) write(hdr, data []byte) error {
	if _, err := j.w.Write(hdr); err != nil {
		return err
	}
	if _, err := j.w.Write(data); err != nil {
		return err
	}
	if err := j.w.Flush(); err != nil {
		return err
	}
	if j.fsync {
		return j.file.Sync()
	}
	return nil
}

// rollback drops buffered bytes and cuts the file back to the last intact record
func (j *Journal) rollback(cause error) error {
	j.w.Reset(j.file)
	if err := j.file.Truncate(j.end); err != nil {
		return errors.Join(cause, fmt.Errorf("truncate journal: %w", err))
	}
	if _, err := j.file.Seek(j.end, io.SeekStart); err != nil {
		return errors.Join(cause, fmt.Errorf("seek journal: %w", err))
	}
	return cause
}

// LastOffset returns the offset of the newest record, or 0 when empty
func (j *Journal) LastOffset() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.next - 1
}

// Close flushes and closes the file; later calls are no-ops
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	err := j.w.Flush()
	if syncErr := j.file.Sync(); err == nil {
		err = syncErr
	}
	if closeErr := j.file.Close(); err == nil {
		err = closeErr
	}
	return err
}

// ReadJournal returns up to limit records with offset >= from from the journal at path
func ReadJournal(path string, from uint64, limit int) ([]JournalRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records := make([]JournalRecord, 0, min(limit, 128))
	var decodeErr error
	_, _, err = scanJournal(file, from, func(offset uint64, data []byte) bool {
		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			decodeErr = fmt.Errorf("decode record %d: %w", offset, err)
			return false
		}
		records = append(records, JournalRecord{Offset: offset, Event: event})
		return len(records) < limit
	})
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return records, nil
}

// scanJournal walks intact records from the start of r, calling fn for those with
// offset >= from until fn returns false. It returns the last intact offset and the
// byte position just past it; anything after that position is a torn or corrupt tail.
func scanJournal(r io.ReadSeeker, from uint64, fn func(offset uint64, data []byte) bool) (uint64, int64, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return 0, 0, err
	}
	br := bufio.NewReader(r)

	var (
		last uint64
		end  int64
		hdr  [recordHeaderSize]byte
	)
	for {
		if _, err := io.ReadFull(br, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return last, end, nil
			}
			return 0, 0, err
		}
		offset := binary.LittleEndian.Uint64(hdr[0:8])
		n := binary.LittleEndian.Uint32(hdr[8:12])
		sum := binary.LittleEndian.Uint32(hdr[12:16])
		if n > maxRecordSize || offset != last+1 {
			return last, end, nil
		}

		data := make([]byte, n)
		if _, err := io.ReadFull(br, data); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return last, end, nil
			}
			return 0, 0, err
		}
		if crc32.ChecksumIEEE(data) != sum {
			return last, end, nil
		}

		last = offset
		end += int64(recordHeaderSize) + int64(n)
		if offset >= from && !fn(offset, data) {
			return last, end, nil
		}
	}
}
