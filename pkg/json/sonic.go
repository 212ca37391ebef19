package json

import (
	"github.com/bytedance/sonic"
)

// sonicEncoder implements Encoder using bytedance/sonic
type sonicEncoder struct {
	api sonic.API
}

func newSonicEncoder(config Config) *sonicEncoder {
	apiConfig := sonic.Config{
		EscapeHTML: config.EscapeHTML,
	}
	return &sonicEncoder{api: apiConfig.Froze()}
}

// Marshal encodes v as JSON using Sonic
func (e *sonicEncoder) Marshal(v any) ([]byte, error) {
	return e.api.Marshal(v)
}

// Unmarshal decodes JSON data into v using Sonic
func (e *sonicEncoder) Unmarshal(data []byte, v any) error {
	return e.api.Unmarshal(data, v)
}
