package config

import (
	"strconv"
	"time"
)

// parseEnv overlays the environment variables the deployment scripts set.
// lookup is os.LookupEnv in production.
//
//	DATABASE_URL      PostgreSQL DSN
//	JWT_SECRET        token signing secret
//	JWT_EXPIRY_HOURS  token validity, hours
//	SYNC_SECRET       XOR key of the sync document
//	PORT              HTTP port (binds all interfaces)
//	LOG_LEVEL         debug|info|warn|error
//	S3_BUCKET         archive bucket
//	ADMIN_USERNAME, ADMIN_PASSWORD  bootstrap admin
func parseEnv(config *Config, lookup func(string) (string, bool)) {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}

	str("DATABASE_URL", &config.DatabaseDSN)
	str("JWT_SECRET", &config.SecretKey)
	str("SYNC_SECRET", &config.SyncSecret)
	str("LOG_LEVEL", &config.LogLevel)
	str("S3_BUCKET", &config.S3Bucket)
	str("ADMIN_USERNAME", &config.AdminUsername)
	str("ADMIN_PASSWORD", &config.AdminPassword)

	if v, ok := lookup("PORT"); ok && v != "" {
		config.HTTPAddr = ":" + v
	}
	if v, ok := lookup("JWT_EXPIRY_HOURS"); ok {
		if hours, err := strconv.Atoi(v); err == nil && hours > 0 {
			config.TokenValidityDuration = time.Duration(hours) * time.Hour
		}
	}
}
