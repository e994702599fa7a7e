package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "full", cfg.LifecycleProfile)
	require.Equal(t, 4, cfg.DispatchWorkers)
	require.Equal(t, 64, cfg.ClientSendBuffer)
	require.Equal(t, 5.0, cfg.SocketMessagesPerSecond)
}

func TestLoad_InvalidProfile(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("LIFECYCLE_PROFILE", "three-state")

	_, err := Load()
	require.ErrorContains(t, err, "LIFECYCLE_PROFILE")
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("APP_PORT", "9000")
	t.Setenv("LIFECYCLE_PROFILE", "basic")
	t.Setenv("DISPATCH_WORKERS", "8")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "9000", cfg.Port)
	require.Equal(t, "basic", cfg.LifecycleProfile)
	require.Equal(t, 8, cfg.DispatchWorkers)
	require.Equal(t, "8002", cfg.WSPort)
	require.Equal(t, time.Minute, cfg.RateWindow())
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.ErrorContains(t, err, "JWT_SECRET")
}

func TestConfig_DatabaseURL(t *testing.T) {
	cfg := &Config{DBUser: "u", DBPassword: "p", DBHost: "h", DBPort: "5432", DBName: "d"}
	require.Equal(t, "postgres://u:p@h:5432/d?sslmode=disable", cfg.DatabaseURL())
}

func TestConfig_APNSConfigured(t *testing.T) {
	cfg := &Config{APNSAuthKeyPath: "#/keys/auth.p8", APNSKeyID: "k", APNSTeamID: "t"}
	require.False(t, cfg.APNSConfigured())

	cfg.APNSAuthKeyPath = "/keys/auth.p8"
	require.True(t, cfg.APNSConfigured())
}
