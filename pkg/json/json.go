package json

// JSONLibrary defines which JSON library to use
type JSONLibrary string

const (
	JSONLibraryStandard JSONLibrary = "standard" // encoding/json
	JSONLibrarySonic    JSONLibrary = "sonic"    // bytedance/sonic
)

// Encoder interface for JSON encoding
type Encoder interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Config holds JSON configuration
type Config struct {
	Library    JSONLibrary `mapstructure:"library" yaml:"library" json:"library"`
	EscapeHTML bool        `mapstructure:"escape_html" yaml:"escape_html" json:"escape_html"`
}

// DefaultConfig returns default JSON configuration
func DefaultConfig() Config {
	return Config{
		Library:    JSONLibraryStandard,
		EscapeHTML: false,
	}
}

// NewEncoder builds the encoder selected by config. Unknown library names
// fall back to the standard library.
func NewEncoder(config Config) Encoder {
	switch config.Library {
	case JSONLibrarySonic:
		return newSonicEncoder(config)
	default:
		return newStandardEncoder(config)
	}
}
