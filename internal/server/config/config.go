// Package config handles configuration for the server component,
// including defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the posterd server.
//
// Fields:
//   - EndpointAddrHTTP: bind address for the public HTTP endpoint.
//   - DatabaseDSN: PostgreSQL DSN (pgx). Empty disables persistence.
//   - SecretKey: HMAC secret for signing session tokens (HS256).
//   - AllowedEmailDomains: domains accepted at signup.
//   - VerificationTTL: lifetime of a verification code.
//   - TokenExpireDays: default token lifetime for new accounts, 0 = never.
//   - SweepInterval: period of the background expiry sweep, 0 disables it.
//   - SMTPAddr / SMTPFrom / SMTPUser / SMTPPassword: mail relay settings.
//     Empty SMTPAddr routes codes to the log instead.
//   - S3RootUser / S3RootPassword: credentials for the S3-compatible backend.
//   - S3Bucket / S3Region / S3BaseEndpoint: object storage settings.
//     Empty S3BaseEndpoint keeps image blobs in memory.
type Config struct {
	EndpointAddrHTTP    string
	DatabaseDSN         string
	SecretKey           string
	AllowedEmailDomains []string
	VerificationTTL     time.Duration
	TokenExpireDays     uint16
	SweepInterval       time.Duration
	SMTPAddr            string
	SMTPFrom            string
	SMTPUser            string
	SMTPPassword        string
	S3RootUser          string
	S3RootPassword      string
	S3Bucket            string
	S3Region            string
	S3BaseEndpoint      string
}

// LoadDefaults populates Config with sensible development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.EndpointAddrHTTP = ":8080"
	c.DatabaseDSN = ""
	c.SecretKey = "secretKey"
	c.AllowedEmailDomains = []string{"org.edu"}
	c.VerificationTTL = 15 * time.Minute
	c.TokenExpireDays = 5
	c.SweepInterval = 0
	c.SMTPFrom = "noreply@org.edu"
	c.S3RootUser = "admin"
	c.S3RootPassword = "secretpassword"
	c.S3Bucket = "posters"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = ""
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
