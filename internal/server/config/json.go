package config

import (
	"encoding/json"
	"os"
)

// JsonConfig is the on-disk shape of the optional JSON config file.
// Durations accept "1m" style strings or integer nanoseconds.
type JsonConfig struct {
	HTTPAddr              string   `json:"http_addr"`
	GRPCHealthAddr        *string  `json:"grpc_health_addr"`
	APIPrefix             *string  `json:"api_prefix"`
	DatabaseDSN           string   `json:"database_dsn"`
	SecretKey             string   `json:"secret_key"`
	TokenValidityDuration Duration `json:"token_validity_duration"`
	SyncSecret            string   `json:"sync_secret"`
	LeaseTTL              Duration `json:"lease_ttl"`
	QuotaTick             Duration `json:"quota_tick"`
	LogLevel              string   `json:"log_level"`
	S3RootUser            string   `json:"s3_root_user"`
	S3RootPassword        string   `json:"s3_root_password"`
	S3Bucket              string   `json:"s3_bucket"`
	S3Region              string   `json:"s3_region"`
	S3BaseEndpoint        string   `json:"s3_base_endpoint"`
	AdminUsername         string   `json:"admin_username"`
	AdminPassword         string   `json:"admin_password"`
}

// parseJson overlays values from the JSON file named by -c/-config onto
// config. Keys that are absent (or zero) keep their current value; the
// pointer fields exist so an explicit "" can switch a feature off.
// An unreadable file or invalid JSON panics, as with bad flags.
func parseJson(config *Config, args []string) {
	path := configPath(args)
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	if c.GRPCHealthAddr != nil {
		config.GRPCHealthAddr = *c.GRPCHealthAddr
	}
	if c.APIPrefix != nil {
		config.APIPrefix = *c.APIPrefix
	}
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	if c.TokenValidityDuration.Duration > 0 {
		config.TokenValidityDuration = c.TokenValidityDuration.Duration
	}
	setString(&config.SyncSecret, c.SyncSecret)
	if c.LeaseTTL.Duration > 0 {
		config.LeaseTTL = c.LeaseTTL.Duration
	}
	if c.QuotaTick.Duration > 0 {
		config.QuotaTick = c.QuotaTick.Duration
	}
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.AdminUsername, c.AdminUsername)
	setString(&config.AdminPassword, c.AdminPassword)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
