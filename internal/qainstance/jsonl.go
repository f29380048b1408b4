package qainstance

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/giantswarm/qa-environment/internal/schema"
)

// WriteJSONL writes one instance per line.
func WriteJSONL(w io.Writer, instances []*schema.QAInstance) error {
	enc := json.NewEncoder(w)
	for _, inst := range instances {
		if err := enc.Encode(inst); err != nil {
			return fmt.Errorf("failed to encode instance %q: %w", inst.ID, err)
		}
	}
	return nil
}

// ReadJSONL reads instances written by WriteJSONL. Decoding yields fresh
// pointers, so a qr_best that was one of the pairs is re-linked to that pair.
func ReadJSONL(r io.Reader) ([]*schema.QAInstance, error) {
	dec := json.NewDecoder(r)
	var out []*schema.QAInstance
	for {
		var inst schema.QAInstance
		err := dec.Decode(&inst)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode instance %d: %w", len(out)+1, err)
		}
		relinkBest(&inst)
		out = append(out, &inst)
	}
}

func relinkBest(inst *schema.QAInstance) {
	if inst.QRBest == nil {
		return
	}
	want, err := json.Marshal(inst.QRBest)
	if err != nil {
		return
	}
	for _, p := range inst.Pairs() {
		got, err := json.Marshal(p)
		if err == nil && string(got) == string(want) {
			inst.QRBest = p
			return
		}
	}
}
