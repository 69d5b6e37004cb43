package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/bantx/internal/flagx"
	"github.com/dmitrijs2005/bantx/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Empty fields
// leave the current value untouched.
type JsonConfig struct {
	ServerURL      string         `json:"server_url"`
	RequestTimeout timex.Duration `json:"request_timeout"`
	KeysDir        string         `json:"keys_dir"`
}

// parseJson overlays Config with values loaded from the JSON file named by
// -c or -config, if any.
func parseJson(cfg *Config) error {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return nil
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		return err
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return err
	}

	jc.apply(cfg)
	return nil
}

func (jc JsonConfig) apply(cfg *Config) {
	if jc.ServerURL != "" {
		cfg.ServerURL = jc.ServerURL
	}
	if jc.RequestTimeout.Duration > 0 {
		cfg.RequestTimeout = time.Duration(jc.RequestTimeout.Duration)
	}
	if jc.KeysDir != "" {
		cfg.KeysDir = jc.KeysDir
	}
}
