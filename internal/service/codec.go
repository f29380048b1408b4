package service

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// JSONCodecName is the gRPC content-subtype used by the environment service.
const JSONCodecName = "json"

// jsonCodec carries schema messages as JSON over gRPC, using the same
// snake_case encoding as the HTTP endpoint.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return JSONCodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
