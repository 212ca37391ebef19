package serialization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meftunca/podsync/pkg/config"
	"github.com/meftunca/podsync/pkg/types"
)

func TestNewCodecSelectsConfiguredType(t *testing.T) {
	cfg := config.DefaultConfig().Serialization

	cfg.Type = config.SerializationMsgPack
	codec, err := NewCodec(cfg)
	require.NoError(t, err)
	assert.Equal(t, "msgpack", codec.Name())

	cfg.Type = "protobuf"
	_, err = NewCodec(cfg)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeSerializationError))
}

func TestMessageRoundTrip(t *testing.T) {
	msg := types.NewMessage(types.TypeCacheInvalidate, map[string]any{
		"keys": []string{"user:42", "user:43"},
	}, "pod-a-1234", types.PriorityHigh)

	for _, serType := range []config.SerializationType{
		config.SerializationCBOR,
		config.SerializationJSON,
		config.SerializationMsgPack,
	} {
		t.Run(string(serType), func(t *testing.T) {
			cfg := config.DefaultConfig().Serialization
			cfg.Type = serType
			codec, err := NewCodec(cfg)
			require.NoError(t, err)

			data, err := codec.Marshal(msg)
			require.NoError(t, err)

			var decoded types.CoordinationMessage
			require.NoError(t, codec.Unmarshal(data, &decoded))

			assert.Equal(t, msg.ID, decoded.ID)
			assert.Equal(t, msg.Type, decoded.Type)
			assert.Equal(t, msg.SourcePod, decoded.SourcePod)
			assert.Equal(t, msg.Priority, decoded.Priority)
			assert.Equal(t, msg.Timestamp, decoded.Timestamp)
			assert.Len(t, decoded.Payload["keys"], 2)
		})
	}
}

func TestMalformedDataReturnsDeserializationError(t *testing.T) {
	codec, err := NewCodec(config.DefaultConfig().Serialization)
	require.NoError(t, err)

	var msg types.CoordinationMessage
	err = codec.Unmarshal([]byte{0xff, 0x00, 0x13, 0x37}, &msg)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeDeserializationError))
}

func TestLeaderRecordRoundTrip(t *testing.T) {
	codec, err := NewCodec(config.DefaultConfig().Serialization)
	require.NoError(t, err)

	record := &types.LeaderRecord{
		LeaderID:      "pod-b-9999",
		Term:          7,
		LastHeartbeat: 1700000000000000000,
	}

	data, err := codec.Marshal(record)
	require.NoError(t, err)

	var decoded types.LeaderRecord
	require.NoError(t, codec.Unmarshal(data, &decoded))
	assert.Equal(t, *record, decoded)
}
