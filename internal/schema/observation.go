package schema

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Observation is one unit of environment output: an answer, a snippet, or a
// named side result.
//
// Extensions is the open extension slot. Keys are caller-defined tags and
// values are opaque typed payloads; components must pass unknown extensions
// through untouched.
type Observation struct {
	Text       string                     `json:"text,omitempty"`
	Scores     map[string]float64         `json:"scores,omitempty"`
	Extensions map[string]*structpb.Value `json:"-"`
}

// Score returns the named score and whether it is present.
func (o *Observation) Score(name string) (float64, bool) {
	if o == nil {
		return 0, false
	}
	v, ok := o.Scores[name]
	return v, ok
}

// SetExtension stores a Go value (nil, bool, number, string, []any,
// map[string]any) under key.
func (o *Observation) SetExtension(key string, value any) error {
	v, err := structpb.NewValue(value)
	if err != nil {
		return fmt.Errorf("extension %q: %w", key, err)
	}
	if o.Extensions == nil {
		o.Extensions = make(map[string]*structpb.Value)
	}
	o.Extensions[key] = v
	return nil
}

// Extension returns the payload stored under key as a plain Go value.
func (o *Observation) Extension(key string) (any, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.Extensions[key]
	if !ok || v == nil {
		return nil, ok
	}
	return v.AsInterface(), true
}

type observationJSON struct {
	Text       string                     `json:"text,omitempty"`
	Scores     map[string]float64         `json:"scores,omitempty"`
	Extensions map[string]json.RawMessage `json:"extensions,omitempty"`
}

// MarshalJSON encodes extensions with protojson so typed payloads keep their
// canonical JSON form.
func (o Observation) MarshalJSON() ([]byte, error) {
	out := observationJSON{Text: o.Text, Scores: o.Scores}
	if len(o.Extensions) > 0 {
		out.Extensions = make(map[string]json.RawMessage, len(o.Extensions))
		for k, v := range o.Extensions {
			if v == nil {
				out.Extensions[k] = json.RawMessage("null")
				continue
			}
			b, err := protojson.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal extension %q: %w", k, err)
			}
			out.Extensions[k] = b
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes an observation, keeping every extension payload.
func (o *Observation) UnmarshalJSON(data []byte) error {
	var in observationJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	o.Text = in.Text
	o.Scores = in.Scores
	o.Extensions = nil
	if len(in.Extensions) > 0 {
		o.Extensions = make(map[string]*structpb.Value, len(in.Extensions))
		for k, raw := range in.Extensions {
			v := &structpb.Value{}
			if err := protojson.Unmarshal(raw, v); err != nil {
				return fmt.Errorf("failed to unmarshal extension %q: %w", k, err)
			}
			o.Extensions[k] = v
		}
	}
	return nil
}
