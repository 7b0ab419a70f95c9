package config

import (
	"flag"
	"time"
)

// parseFlags populates Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8899")
//	-g string   gRPC health bind address ("" disables)
//	-x string   API path prefix (e.g., "/api")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-t int      token validity, minutes
//	-k string   sync document XOR secret
//	-l int      lease TTL, seconds
//	-q int      quota tick per heartbeat, seconds
//	-v string   log level
//	-b string   S3 archive bucket
//	-e string   S3 base endpoint
//	-u string   S3 root user
//	-p string   S3 root password
//	-r string   S3 region
//
// args are filtered first so that -c/-config, handled by the JSON layer,
// do not make parsing fail. Invalid values panic.
func parseFlags(config *Config, args []string) {
	args = filterArgs(args, []string{"-a", "-g", "-x", "-d", "-s", "-t", "-k", "-l", "-q", "-v", "-b", "-e", "-u", "-p", "-r"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run the HTTP API")
	fs.StringVar(&config.GRPCHealthAddr, "g", config.GRPCHealthAddr, "address and port of the gRPC health endpoint")
	fs.StringVar(&config.APIPrefix, "x", config.APIPrefix, "API path prefix")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	tokenValidity := fs.Int("t", int(config.TokenValidityDuration.Minutes()), "token validity (in minutes)")

	fs.StringVar(&config.SyncSecret, "k", config.SyncSecret, "sync document secret")

	leaseTTL := fs.Int("l", int(config.LeaseTTL.Seconds()), "lease TTL (in seconds)")
	quotaTick := fs.Int("q", int(config.QuotaTick.Seconds()), "quota charged per heartbeat (in seconds)")

	fs.StringVar(&config.LogLevel, "v", config.LogLevel, "log level")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 archive bucket")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Region, "r", config.S3Region, "S3 region")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.TokenValidityDuration = time.Duration(*tokenValidity) * time.Minute
	config.LeaseTTL = time.Duration(*leaseTTL) * time.Second
	config.QuotaTick = time.Duration(*quotaTick) * time.Second
}
