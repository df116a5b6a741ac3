package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, c.EndpointAddrHTTP, ":8080")
	assert.Equal(t, c.DatabaseDSN, "")
	assert.Equal(t, c.SecretKey, "secretKey")
	assert.Equal(t, c.AllowedEmailDomains, []string{"org.edu"})
	assert.Equal(t, c.VerificationTTL, 15*time.Minute)
	assert.Equal(t, c.TokenExpireDays, uint16(5))
	assert.Equal(t, c.SweepInterval, time.Duration(0))
	assert.Equal(t, c.SMTPFrom, "noreply@org.edu")
	assert.Equal(t, c.S3RootUser, "admin")
	assert.Equal(t, c.S3RootPassword, "secretpassword")
	assert.Equal(t, c.S3Bucket, "posters")
	assert.Equal(t, c.S3Region, "us-east-1")
	assert.Equal(t, c.S3BaseEndpoint, "")
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	c := LoadConfig()

	require.NotNil(t, c, "LoadConfig must not return nil")

	assert.Equal(t, c.EndpointAddrHTTP, ":8080")
	assert.Equal(t, c.SecretKey, "secretKey")
	assert.Equal(t, c.AllowedEmailDomains, []string{"org.edu"})
	assert.Equal(t, c.TokenExpireDays, uint16(5))
}

func TestSplitDomains(t *testing.T) {
	assert.Equal(t, []string{"a.edu", "b.edu"}, splitDomains("a.edu, b.edu"))
	assert.Equal(t, []string{"a.edu"}, splitDomains("a.edu,"))
	assert.Nil(t, splitDomains(""))
}
