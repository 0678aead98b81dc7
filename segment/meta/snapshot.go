package meta

import (
	"fmt"

	"github.com/hupe1980/vecseg/model"
)

// snapshot is the persisted form of a metadata segment: every live record
// in id order.
type snapshot struct {
	MaxSeqID model.SeqID                     `json:"max_seq_id"`
	Records  []model.MetadataEmbeddingRecord `json:"records"`
}

// Snapshot implements segment.State.
func (st *state) Snapshot() (any, error) {
	snap := &snapshot{
		MaxSeqID: st.seq,
		Records:  make([]model.MetadataEmbeddingRecord, len(st.order)),
	}
	for i, ord := range st.order {
		snap.Records[i] = model.MetadataEmbeddingRecord{
			ID:       st.ids[ord],
			SeqID:    st.seqs[ord],
			Metadata: st.docs[ord],
			Document: st.texts[ord],
		}
	}
	return snap, nil
}

// restore replaces the state with snap and returns its MaxSeqID.
func (st *state) restore(snap *snapshot) (model.SeqID, error) {
	for i, rec := range snap.Records {
		if rec.ID == "" {
			return 0, fmt.Errorf("%w: record %d has an empty id", model.ErrCorrupt, i)
		}
		if i > 0 && snap.Records[i-1].ID >= rec.ID {
			return 0, fmt.Errorf("%w: records out of order at %q", model.ErrCorrupt, rec.ID)
		}
		if err := rec.Metadata.Validate(); err != nil {
			return 0, fmt.Errorf("%w: record %q: %v", model.ErrCorrupt, rec.ID, err)
		}
	}

	*st = *newState()
	st.load(snap.Records)
	st.seq = snap.MaxSeqID
	return snap.MaxSeqID, nil
}
