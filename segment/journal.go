package segment

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/google/uuid"
	"github.com/hupe1980/vecseg/blobstore"
	"github.com/hupe1980/vecseg/internal/compress"
	"github.com/hupe1980/vecseg/model"
)

// Prefix returns the blob prefix holding a segment's persisted state.
func Prefix(segmentID uuid.UUID) string {
	return path.Join("segments", segmentID.String()) + "/"
}

// Purge removes every persisted blob of a segment. It does not require a
// live instance.
func Purge(ctx context.Context, store blobstore.BlobStore, segmentID uuid.UUID) error {
	return blobstore.DeletePrefix(ctx, store, Prefix(segmentID))
}

// Journal persists a segment as a snapshot plus a log of applied batches.
type Journal struct {
	env    Env
	prefix string

	entries int // journaled batches since the last snapshot
}

// NewJournal returns the journal of segmentID.
func NewJournal(env Env, segmentID uuid.UUID) *Journal {
	return &Journal{env: env, prefix: Prefix(segmentID)}
}

func (j *Journal) snapshotName() string { return j.prefix + "snapshot" }
func (j *Journal) journalPrefix() string { return j.prefix + "journal/" }

func (j *Journal) entryName(last model.SeqID) string {
	return j.journalPrefix() + last.String()
}

// Entries returns the number of batches appended since the last snapshot.
func (j *Journal) Entries() int { return j.entries }

// Append journals a batch under the SeqID of its last record. The batch must
// be non-empty and ordered.
func (j *Journal) Append(ctx context.Context, batch []model.LogRecord) error {
	if len(batch) == 0 {
		return nil
	}
	data, err := j.encode(batch, compress.None)
	if err != nil {
		return err
	}
	if err := j.env.Store.Put(ctx, j.entryName(batch[len(batch)-1].SeqID), data); err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	j.entries++
	return nil
}

// Replay calls fn for each journaled batch whose last SeqID is greater than
// after, in SeqID order. Records at or below after are filtered out.
func (j *Journal) Replay(ctx context.Context, after model.SeqID, fn func([]model.LogRecord) error) error {
	names, err := j.env.Store.List(ctx, j.journalPrefix())
	if err != nil {
		return fmt.Errorf("list journal: %w", err)
	}

	j.entries = 0
	for _, name := range names {
		last, err := model.ParseSeqID(path.Base(name))
		if err != nil {
			return fmt.Errorf("journal entry %s: %w: %v", name, model.ErrCorrupt, err)
		}
		if last <= after {
			continue
		}

		data, err := j.get(ctx, name)
		if err != nil {
			return err
		}
		var batch []model.LogRecord
		if err := j.decode(name, data, &batch); err != nil {
			return err
		}

		pending := batch[:0]
		for _, r := range batch {
			if r.SeqID > after {
				pending = append(pending, r)
			}
		}
		if len(pending) == 0 {
			continue
		}
		if err := fn(pending); err != nil {
			return err
		}
		j.entries++
	}
	return nil
}

// LoadSnapshot decodes the snapshot into v. It returns false when the segment
// has no snapshot yet.
func (j *Journal) LoadSnapshot(ctx context.Context, v any) (bool, error) {
	data, err := j.get(ctx, j.snapshotName())
	if errors.Is(err, blobstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := j.decode(j.snapshotName(), data, v); err != nil {
		return false, err
	}
	return true, nil
}

// SaveSnapshot writes v as the new snapshot and deletes journal entries
// covered by upTo. It returns the size of the written blob.
func (j *Journal) SaveSnapshot(ctx context.Context, v any, upTo model.SeqID) (int, error) {
	data, err := j.encode(v, j.env.Compression)
	if err != nil {
		return 0, err
	}
	if err := j.env.Resources.AcquireIO(ctx, len(data)); err != nil {
		return 0, err
	}
	if err := j.env.Store.Put(ctx, j.snapshotName(), data); err != nil {
		return 0, fmt.Errorf("write snapshot: %w", err)
	}

	names, err := j.env.Store.List(ctx, j.journalPrefix())
	if err != nil {
		return len(data), fmt.Errorf("list journal: %w", err)
	}
	for _, name := range names {
		last, err := model.ParseSeqID(path.Base(name))
		if err != nil || last > upTo {
			continue
		}
		if err := j.env.Store.Delete(ctx, name); err != nil {
			return len(data), fmt.Errorf("truncate journal: %w", err)
		}
	}
	j.entries = 0
	return len(data), nil
}

func (j *Journal) get(ctx context.Context, name string) ([]byte, error) {
	data, err := j.env.Store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := j.env.Resources.AcquireIO(ctx, len(data)); err != nil {
		return nil, err
	}
	return data, nil
}

func (j *Journal) encode(v any, t compress.Type) ([]byte, error) {
	raw, err := j.env.Codec.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return compress.Encode(raw, t)
}

func (j *Journal) decode(name string, data []byte, v any) error {
	raw, err := compress.Decode(data)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", name, model.ErrCorrupt, err)
	}
	if err := j.env.Codec.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%s: %w: %v", name, model.ErrCorrupt, err)
	}
	return nil
}
