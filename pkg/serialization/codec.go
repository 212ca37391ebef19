package serialization

import (
	"reflect"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/meftunca/podsync/pkg/config"
	podsyncjson "github.com/meftunca/podsync/pkg/json"
	"github.com/meftunca/podsync/pkg/types"
)

// Codec defines the interface for envelope serialization/deserialization.
// The same codec encodes coordination messages, the leadership lease record
// and pod heartbeats.
type Codec interface {
	// Marshal serializes a value to bytes
	Marshal(v any) ([]byte, error)

	// Unmarshal deserializes bytes into v
	Unmarshal(data []byte, v any) error

	// Name returns the codec name
	Name() string

	// ContentType returns the MIME content type
	ContentType() string
}

// CodecFactory creates codecs based on configuration
type CodecFactory struct {
	codecs map[config.SerializationType]Codec
	mutex  sync.RWMutex
}

// NewCodecFactory creates a new codec factory
func NewCodecFactory() *CodecFactory {
	return &CodecFactory{
		codecs: make(map[config.SerializationType]Codec),
	}
}

// RegisterCodec registers a codec for a serialization type
func (f *CodecFactory) RegisterCodec(serType config.SerializationType, codec Codec) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.codecs[serType] = codec
}

// GetCodec returns a codec for the specified serialization type
func (f *CodecFactory) GetCodec(serType config.SerializationType) (Codec, error) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	codec, exists := f.codecs[serType]
	if !exists {
		return nil, types.NewCoordError(types.ErrCodeSerializationError, "unsupported serialization type").
			WithDetail("type", serType)
	}

	return codec, nil
}

// InitializeDefaultCodecs initializes all default codecs
func (f *CodecFactory) InitializeDefaultCodecs(cfg config.SerializationConfig) error {
	cborCodec, err := NewCBORCodec()
	if err != nil {
		return err
	}
	f.RegisterCodec(config.SerializationCBOR, cborCodec)

	f.RegisterCodec(config.SerializationJSON, NewJSONCodec(cfg.JSONConfig))
	f.RegisterCodec(config.SerializationMsgPack, NewMsgPackCodec())

	return nil
}

// NewCodec builds the codec selected by the configuration.
func NewCodec(cfg config.SerializationConfig) (Codec, error) {
	factory := NewCodecFactory()
	if err := factory.InitializeDefaultCodecs(cfg); err != nil {
		return nil, err
	}
	return factory.GetCodec(cfg.Type)
}

// CBORCodec implements CBOR serialization
type CBORCodec struct {
	encMode cbor.EncMode
	decMode cbor.DecMode
}

// NewCBORCodec creates a new CBOR codec
func NewCBORCodec() (*CBORCodec, error) {
	encOpts := cbor.EncOptions{
		Time:        cbor.TimeUnixMicro,
		TimeTag:     cbor.EncTagNone,
		IndefLength: cbor.IndefLengthForbidden,
		Sort:        cbor.SortNone,
	}

	decOpts := cbor.DecOptions{
		TimeTag:     cbor.DecTagIgnored,
		IndefLength: cbor.IndefLengthForbidden,
		// Untyped payload values decode as string-keyed maps so handlers can
		// index them without key-type assertions.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}

	encMode, err := encOpts.EncMode()
	if err != nil {
		return nil, types.ErrSerialization("cbor", err)
	}

	decMode, err := decOpts.DecMode()
	if err != nil {
		return nil, types.ErrSerialization("cbor", err)
	}

	return &CBORCodec{encMode: encMode, decMode: decMode}, nil
}

// Marshal serializes a value using CBOR
func (c *CBORCodec) Marshal(v any) ([]byte, error) {
	data, err := c.encMode.Marshal(v)
	if err != nil {
		return nil, types.ErrSerialization("cbor", err)
	}
	return data, nil
}

// Unmarshal deserializes CBOR data into v
func (c *CBORCodec) Unmarshal(data []byte, v any) error {
	if err := c.decMode.Unmarshal(data, v); err != nil {
		return types.ErrDeserialization("cbor", err)
	}
	return nil
}

// Name returns the codec name
func (c *CBORCodec) Name() string {
	return "cbor"
}

// ContentType returns the MIME content type
func (c *CBORCodec) ContentType() string {
	return "application/cbor"
}

// JSONCodec implements JSON serialization via the configured JSON library
type JSONCodec struct {
	encoder podsyncjson.Encoder
}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec(cfg podsyncjson.Config) *JSONCodec {
	return &JSONCodec{encoder: podsyncjson.NewEncoder(cfg)}
}

// Marshal serializes a value using JSON
func (j *JSONCodec) Marshal(v any) ([]byte, error) {
	data, err := j.encoder.Marshal(v)
	if err != nil {
		return nil, types.ErrSerialization("json", err)
	}
	return data, nil
}

// Unmarshal deserializes JSON data into v
func (j *JSONCodec) Unmarshal(data []byte, v any) error {
	if err := j.encoder.Unmarshal(data, v); err != nil {
		return types.ErrDeserialization("json", err)
	}
	return nil
}

// Name returns the codec name
func (j *JSONCodec) Name() string {
	return "json"
}

// ContentType returns the MIME content type
func (j *JSONCodec) ContentType() string {
	return "application/json"
}

// MsgPackCodec implements MessagePack serialization
type MsgPackCodec struct{}

// NewMsgPackCodec creates a new MessagePack codec
func NewMsgPackCodec() *MsgPackCodec {
	return &MsgPackCodec{}
}

// Marshal serializes a value using MessagePack
func (m *MsgPackCodec) Marshal(v any) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, types.ErrSerialization("msgpack", err)
	}
	return data, nil
}

// Unmarshal deserializes MessagePack data into v
func (m *MsgPackCodec) Unmarshal(data []byte, v any) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return types.ErrDeserialization("msgpack", err)
	}
	return nil
}

// Name returns the codec name
func (m *MsgPackCodec) Name() string {
	return "msgpack"
}

// ContentType returns the MIME content type
func (m *MsgPackCodec) ContentType() string {
	return "application/msgpack"
}
