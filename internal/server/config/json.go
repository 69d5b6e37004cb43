package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/bantx/internal/flagx"
	"github.com/dmitrijs2005/bantx/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations are
// timex.Duration so "15m" and nanosecond integers both work. Pointer and
// zero-checked fields are only applied when present in the file.
type JsonConfig struct {
	Mode                         string         `json:"mode"`
	EndpointAddrHTTP             string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC             string         `json:"endpoint_addr_grpc"`
	StoreDriver                  string         `json:"store_driver"`
	DatabaseDSN                  string         `json:"database_dsn"`
	MongoURI                     string         `json:"mongo_uri"`
	MongoDatabase                string         `json:"mongo_database"`
	JWTPrivateKeyPath            string         `json:"jwt_private_key_path"`
	JWTPublicKeyPath             string         `json:"jwt_public_key_path"`
	JWTIssuer                    string         `json:"jwt_issuer"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	ResetTokenValidityDuration   timex.Duration `json:"reset_token_validity_duration"`
	AdminSecret                  string         `json:"admin_secret"`
	FrontendURL                  string         `json:"frontend_url"`
	CookieSecure                 *bool          `json:"cookie_secure"`
	CORSAllowedOrigins           []string       `json:"cors_allowed_origins"`
	RateLimitRequests            *int           `json:"rate_limit_requests"`
	RateLimitWindow              timex.Duration `json:"rate_limit_window"`
	MailTransport                string         `json:"mail_transport"`
	MailFrom                     string         `json:"mail_from"`
	SMTPHost                     string         `json:"smtp_host"`
	SMTPPort                     int            `json:"smtp_port"`
	SMTPUser                     string         `json:"smtp_user"`
	SMTPPassword                 string         `json:"smtp_password"`
	SMTPTLS                      *bool          `json:"smtp_tls"`
	RabbitMQURL                  string         `json:"rabbitmq_url"`
	MailQueueName                string         `json:"mail_queue_name"`
	S3RootUser                   string         `json:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket"`
	S3Region                     string         `json:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint"`
	LogLevel                     string         `json:"log_level"`
	LogFormat                    string         `json:"log_format"`
	ShutdownTimeout              timex.Duration `json:"shutdown_timeout"`
}

// parseJson loads the file named by -c/-config, if any, over config.
func parseJson(config *Config) error {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return nil
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		return err
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return err
	}

	c.apply(config)
	return nil
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.Mode, c.Mode)
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.StoreDriver, c.StoreDriver)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.MongoURI, c.MongoURI)
	setString(&config.MongoDatabase, c.MongoDatabase)
	setString(&config.JWTPrivateKeyPath, c.JWTPrivateKeyPath)
	setString(&config.JWTPublicKeyPath, c.JWTPublicKeyPath)
	setString(&config.JWTIssuer, c.JWTIssuer)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setDuration(&config.ResetTokenValidityDuration, c.ResetTokenValidityDuration)
	setString(&config.AdminSecret, c.AdminSecret)
	setString(&config.FrontendURL, c.FrontendURL)
	if c.CookieSecure != nil {
		config.CookieSecure = *c.CookieSecure
	}
	if c.CORSAllowedOrigins != nil {
		config.CORSAllowedOrigins = c.CORSAllowedOrigins
	}
	if c.RateLimitRequests != nil {
		config.RateLimitRequests = *c.RateLimitRequests
	}
	setDuration(&config.RateLimitWindow, c.RateLimitWindow)
	setString(&config.MailTransport, c.MailTransport)
	setString(&config.MailFrom, c.MailFrom)
	setString(&config.SMTPHost, c.SMTPHost)
	if c.SMTPPort != 0 {
		config.SMTPPort = c.SMTPPort
	}
	setString(&config.SMTPUser, c.SMTPUser)
	setString(&config.SMTPPassword, c.SMTPPassword)
	if c.SMTPTLS != nil {
		config.SMTPTLS = *c.SMTPTLS
	}
	setString(&config.RabbitMQURL, c.RabbitMQURL)
	setString(&config.MailQueueName, c.MailQueueName)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)
	setDuration(&config.ShutdownTimeout, c.ShutdownTimeout)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
