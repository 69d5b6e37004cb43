// Package config loads runtime configuration for the BANTX CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the BANTX HTTP API
//	-t int      request timeout (seconds)
//	-k string   directory the keygen command writes to
//
// # JSON schema
//
//	{
//	  "server_url": "http://127.0.0.1:5000",
//	  "request_timeout": "10s",
//	  "keys_dir": "keys"
//	}
package config
