package vector

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/vecseg/model"
)

// snapshot is the persisted form of a vector segment. Vectors are packed
// little-endian float32 so a reload is bit-exact.
type snapshot struct {
	MaxSeqID  model.SeqID    `json:"max_seq_id"`
	Dimension int            `json:"dimension"`
	Metric    string         `json:"metric"`
	IDs       []string       `json:"ids"`
	SeqIDs    []model.SeqID  `json:"seq_ids"`
	Vectors   []byte         `json:"vectors"`
	Live      []byte         `json:"live"`
	Graph     *graphSnapshot `json:"graph,omitempty"`
}

func encodeVectors(data []float32) []byte {
	buf := make([]byte, 0, len(data)*4)
	for _, v := range data {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	return buf
}

func decodeVectors(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("%w: vector data of %d bytes is not float32 aligned", model.ErrCorrupt, len(buf))
	}
	data := make([]float32, len(buf)/4)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return data, nil
}

func (s *state) snapshot() (*snapshot, error) {
	live, err := s.st.live.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("encode live set: %w", err)
	}
	return &snapshot{
		MaxSeqID:  s.seq,
		Dimension: s.st.dim,
		Metric:    s.metric.String(),
		IDs:       s.st.ids,
		SeqIDs:    s.st.seqs,
		Vectors:   encodeVectors(s.st.data),
		Live:      live,
		Graph:     s.backend.snapshot(),
	}, nil
}

// restore replaces the state with snap and returns its MaxSeqID.
func (s *state) restore(snap *snapshot) (model.SeqID, error) {
	if snap.Dimension != s.st.dim {
		return 0, fmt.Errorf("%w: snapshot dimension %d, collection %d", model.ErrCorrupt, snap.Dimension, s.st.dim)
	}

	data, err := decodeVectors(snap.Vectors)
	if err != nil {
		return 0, err
	}

	live := roaring.New()
	if len(snap.Live) > 0 {
		if err := live.UnmarshalBinary(snap.Live); err != nil {
			return 0, fmt.Errorf("%w: live set: %v", model.ErrCorrupt, err)
		}
	}

	st := newStorage(snap.Dimension)
	st.ids = snap.IDs
	st.seqs = snap.SeqIDs
	st.data = data
	st.live = live

	it := live.Iterator()
	for it.HasNext() {
		ord := it.Next()
		if int(ord) >= len(st.ids) {
			return 0, fmt.Errorf("%w: live set references missing slot %d", model.ErrCorrupt, ord)
		}
		st.byID[st.ids[ord]] = ord
	}
	if reason := st.verify(); reason != "" {
		return 0, fmt.Errorf("%w: %s", model.ErrCorrupt, reason)
	}

	if err := s.backend.restore(st, snap.Graph); err != nil {
		return 0, err
	}
	s.st = st
	s.seq = snap.MaxSeqID
	return snap.MaxSeqID, nil
}
