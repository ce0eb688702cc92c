package hnsw

import (
	"bytes"
	"encoding/gob"

	"github.com/hupe1980/vecdb/distance"
)

// gobNode mirrors node for encoding; the arena keeps nil entries for free
// slots, which gob round-trips as nil pointers.
type gobNode struct {
	ID     uint64
	Vector []float32
	Layer  int
	Conns  [][]uint32
}

// gobState is the complete serialized graph state. A decoded graph answers
// every search identically to the graph at encode time.
type gobState struct {
	Options  Options
	Nodes    []*gobNode
	Free     []uint32
	EP       uint32
	HasEP    bool
	MaxLevel int
}

// GobEncode implements gob.GobEncoder.
func (h *HNSW) GobEncode() ([]byte, error) {
	st := gobState{
		Options:  h.opts,
		Nodes:    make([]*gobNode, len(h.nodes)),
		Free:     h.free,
		EP:       h.ep,
		HasEP:    h.hasEP,
		MaxLevel: h.maxLevel,
	}
	for i, n := range h.nodes {
		if n == nil {
			continue
		}
		st.Nodes[i] = &gobNode{ID: n.id, Vector: n.vector, Layer: n.layer, Conns: n.conns}
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(st); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (h *HNSW) GobDecode(data []byte) error {
	var st gobState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return err
	}

	// Validate before touching h; options were normalized at encode time.
	if _, err := New(func(o *Options) { *o = st.Options }); err != nil {
		return err
	}

	distanceFunc, err := distance.Provider(st.Options.Metric)
	if err != nil {
		return err
	}

	h.opts = st.Options
	h.distanceFunc = distanceFunc
	h.ml = 1 / logM(st.Options.M)
	h.slots = make(map[uint64]uint32)
	if h.rng == nil {
		if seed := st.Options.RandomSeed; seed != nil {
			h.rng = newRand(*seed)
		} else {
			h.rng = newClockRand()
		}
	}
	h.initPools()

	h.nodes = make([]*node, len(st.Nodes))
	for i, gn := range st.Nodes {
		if gn == nil {
			continue
		}
		h.nodes[i] = &node{id: gn.ID, vector: gn.Vector, layer: gn.Layer, conns: gn.Conns}
		h.slots[gn.ID] = uint32(i)
	}
	h.free = st.Free
	h.ep = st.EP
	h.hasEP = st.HasEP
	h.maxLevel = st.MaxLevel

	return nil
}
