package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"endpoint_addr_http":              "www.example:9000",
		"store_driver":                    "postgres",
		"database_dsn":                    "postgres://db",
		"jwt_private_key_path":            "/keys/private.pem",
		"access_token_validity_duration":  "1m",
		"refresh_token_validity_duration": 180000000000,
		"cookie_secure":                   true,
		"rate_limit_requests":             0,
		"cors_allowed_origins":            []string{"https://bantx.com"},
		"mail_transport":                  "queue",
		"s3_bucket":                       "bucket",
	})

	t.Run("loads from json", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", pathFlag}

		cfg := &Config{}
		cfg.LoadDefaults()
		require.NoError(t, parseJson(cfg))

		assert.Equal(t, "www.example:9000", cfg.EndpointAddrHTTP)
		assert.Equal(t, "postgres", cfg.StoreDriver)
		assert.Equal(t, "postgres://db", cfg.DatabaseDSN)
		assert.Equal(t, "/keys/private.pem", cfg.JWTPrivateKeyPath)
		assert.Equal(t, 1*time.Minute, cfg.AccessTokenValidityDuration)
		assert.Equal(t, 3*time.Minute, cfg.RefreshTokenValidityDuration)
		assert.True(t, cfg.CookieSecure)
		assert.Equal(t, 0, cfg.RateLimitRequests, "explicit zero disables the limiter")
		assert.Equal(t, []string{"https://bantx.com"}, cfg.CORSAllowedOrigins)
		assert.Equal(t, MailTransportQueue, cfg.MailTransport)
		assert.Equal(t, "bucket", cfg.S3Bucket)

		assert.Equal(t, time.Hour, cfg.ResetTokenValidityDuration, "absent keys keep defaults")
		assert.Equal(t, "bantx", cfg.MongoDatabase)
	})

	t.Run("short flag", func(t *testing.T) {
		os.Args = []string{"testbin", "-c=" + pathFlag}

		cfg := &Config{}
		require.NoError(t, parseJson(cfg))
		assert.Equal(t, "www.example:9000", cfg.EndpointAddrHTTP)
	})

	t.Run("no CONFIG and no flags → no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{}
		cfg.LoadDefaults()
		before := *cfg
		require.NoError(t, parseJson(cfg))
		assert.Equal(t, before, *cfg)
	})

	t.Run("missing file", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", filepath.Join(dir, "nope.json")}
		assert.Error(t, parseJson(&Config{}))
	})

	t.Run("malformed json", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
		os.Args = []string{"testbin", "-c", bad}
		assert.Error(t, parseJson(&Config{}))
	})
}
