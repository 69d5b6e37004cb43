package config

import (
	"flag"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/bantx/internal/flagx"
)

var ownFlags = []string{
	"-mode", "-a", "-grpc", "-store", "-d", "-mongo", "-mongo-db",
	"-jwt-private", "-jwt-public", "-t", "-r", "-admin-secret", "-frontend",
	"-cors", "-mail", "-u", "-p", "-b", "-g", "-e", "-log-level", "-log-format",
}

// parseFlags populates selected Config fields from command-line flags.
//
// Short forms kept from the original server flags:
//
//	-a string   HTTP bind address (e.g. ":5000")
//	-d string   PostgreSQL DSN
//	-t int      access token validity, minutes
//	-r int      refresh token validity, minutes
//	-u/-p       S3 root user / password
//	-b/-g/-e    S3 bucket / region / base endpoint
//
// The remaining flags use long names (-mode, -store, -mongo, -jwt-private...).
// Only these flags are picked out of os.Args so -c and -env-file handled by
// other layers do not collide.
func parseFlags(config *Config) error {
	args := flagx.FilterArgs(os.Args[1:], ownFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.Mode, "mode", config.Mode, "run mode: server or mailer")
	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port")
	fs.StringVar(&config.EndpointAddrGRPC, "grpc", config.EndpointAddrGRPC, "gRPC ops address and port")
	fs.StringVar(&config.StoreDriver, "store", config.StoreDriver, "store driver: mongo, postgres or memory")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "PostgreSQL DSN")
	fs.StringVar(&config.MongoURI, "mongo", config.MongoURI, "MongoDB URI")
	fs.StringVar(&config.MongoDatabase, "mongo-db", config.MongoDatabase, "MongoDB database")
	fs.StringVar(&config.JWTPrivateKeyPath, "jwt-private", config.JWTPrivateKeyPath, "RS256 private key PEM file")
	fs.StringVar(&config.JWTPublicKeyPath, "jwt-public", config.JWTPublicKeyPath, "RS256 public key PEM file")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	refreshTokenValidityDuration := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh token validity (in minutes)")

	fs.StringVar(&config.AdminSecret, "admin-secret", config.AdminSecret, "admin provisioning secret")
	fs.StringVar(&config.FrontendURL, "frontend", config.FrontendURL, "frontend base URL for reset links")
	cors := fs.String("cors", strings.Join(config.CORSAllowedOrigins, ","), "comma separated CORS origins")
	fs.StringVar(&config.MailTransport, "mail", config.MailTransport, "mail transport: log, smtp or queue")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "log level")
	fs.StringVar(&config.LogFormat, "log-format", config.LogFormat, "log format: json or text")

	if err := fs.Parse(args); err != nil {
		return err
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refreshTokenValidityDuration) * time.Minute
	config.CORSAllowedOrigins = splitList(*cors)
	return nil
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
