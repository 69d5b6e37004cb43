package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v6"
	"github.com/dmitrijs2005/bantx/internal/flagx"
	"github.com/joho/godotenv"
)

// parseEnv overlays variables from the process environment. A dotenv file
// (-env-file, or ./.env when present) is loaded first; variables already set
// in the environment win over the file. Unset variables leave the field as is.
func parseEnv(config *Config) error {
	path := flagx.EnvFileFlag()
	if path == "" {
		if _, err := os.Stat(".env"); err == nil {
			path = ".env"
		}
	}
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return env.Parse(config)
}
