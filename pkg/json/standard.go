package json

import (
	"bytes"
	"encoding/json"
)

// standardEncoder implements Encoder using Go's standard encoding/json
type standardEncoder struct {
	config Config
}

func newStandardEncoder(config Config) *standardEncoder {
	return &standardEncoder{config: config}
}

// Marshal encodes v as JSON
func (e *standardEncoder) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(e.config.EscapeHTML)

	if err := encoder.Encode(v); err != nil {
		return nil, err
	}

	// Remove trailing newline added by Encode
	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}

	return data, nil
}

// Unmarshal decodes JSON data into v
func (e *standardEncoder) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
