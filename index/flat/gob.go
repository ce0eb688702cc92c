package flat

import (
	"bytes"
	"encoding/gob"

	"github.com/hupe1980/vecdb/distance"
)

type gobEntry struct {
	ID     uint64
	Vector []float32
}

type gobState struct {
	Options Options
	Entries []*gobEntry
	Free    []uint32
}

// GobEncode implements gob.GobEncoder.
func (f *Flat) GobEncode() ([]byte, error) {
	st := gobState{
		Options: f.opts,
		Entries: make([]*gobEntry, len(f.entries)),
		Free:    f.free,
	}
	for i, e := range f.entries {
		if e == nil {
			continue
		}
		st.Entries[i] = &gobEntry{ID: e.id, Vector: e.vector}
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(st); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (f *Flat) GobDecode(data []byte) error {
	var st gobState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return err
	}

	distanceFunc, err := distance.Provider(st.Options.Metric)
	if err != nil {
		return err
	}

	f.opts = st.Options
	f.distanceFunc = distanceFunc
	f.entries = make([]*entry, len(st.Entries))
	f.slots = make(map[uint64]uint32)
	for i, ge := range st.Entries {
		if ge == nil {
			continue
		}
		f.entries[i] = &entry{id: ge.ID, vector: ge.Vector}
		f.slots[ge.ID] = uint32(i)
	}
	f.free = st.Free

	return nil
}
