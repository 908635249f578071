package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"api": { "serverUrl": "http://10.0.0.1:5000" },
		"db": { "host": "10.0.0.1", "port": "5433" }
	}`)

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, "http://10.0.0.1:5000", viper.GetString("api.serverUrl"))
	assert.Equal(t, "10.0.0.1", viper.GetString("db.host"))
	assert.Equal(t, "5433", viper.GetString("db.port"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./cablemaplogs", viper.GetString("logsDir"))
	assert.Equal(t, "http://localhost:5000", viper.GetString("api.serverUrl"))
	assert.Equal(t, "", viper.GetString("api.apiKey"))
	assert.Equal(t, 2*time.Second, GetDuration("poll.interval"))
	assert.Equal(t, ":8080", viper.GetString("server.listen"))
	assert.Equal(t, 300*time.Millisecond, GetDuration("server.popupCloseDelay"))
	assert.Equal(t, "localhost", viper.GetString("db.host"))
	assert.Equal(t, "5432", viper.GetString("db.port"))
	assert.Equal(t, "cablemap", viper.GetString("db.database"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
	assert.Equal(t, "memory", viper.GetString("storage.type"))
	assert.Equal(t, "3m", viper.GetString("storage.sqlite.dumpInterval"))
	assert.Equal(t, false, viper.GetBool("otel.enabled"))
	assert.Equal(t, "cablemap", viper.GetString("otel.serviceName"))
	assert.Equal(t, time.Minute, GetDuration("statusInterval"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestGetters(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	viper.Set("testInt", 42)
	viper.Set("testBool", true)
	viper.Set("testDur", "150ms")

	assert.Equal(t, "testValue", GetString("testKey"))
	assert.Equal(t, 42, GetInt("testInt"))
	assert.Equal(t, true, GetBool("testBool"))
	assert.Equal(t, 150*time.Millisecond, GetDuration("testDur"))
}

func TestGetStorageConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetStorageConfig()
	assert.Equal(t, "memory", cfg.Type)
	assert.Equal(t, "", cfg.Memory.SnapshotPath)
	assert.Equal(t, 3*time.Minute, cfg.SQLite.DumpInterval)
	assert.Equal(t, "./cablemap_faults.db", cfg.SQLite.DumpPath)
	assert.Equal(t, "postgres", cfg.DB.Username)
}

func TestGetStorageConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"storage": {
			"type": "sqlite",
			"memory": { "snapshotPath": "/tmp/faults.json" },
			"sqlite": { "dumpInterval": "10m", "dumpPath": "/tmp/f.db" }
		}
	}`)))

	sc := GetStorageConfig()
	assert.Equal(t, "sqlite", sc.Type)
	assert.Equal(t, "/tmp/faults.json", sc.Memory.SnapshotPath)
	assert.Equal(t, 10*time.Minute, sc.SQLite.DumpInterval)
	assert.Equal(t, "/tmp/f.db", sc.SQLite.DumpPath)
}

func TestGetOTelConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"otel": {
			"enabled": true,
			"serviceName": "my-service",
			"batchTimeout": "30s",
			"endpoint": "localhost:4318",
			"insecure": false
		}
	}`)))

	oc := GetOTelConfig()
	assert.Equal(t, true, oc.Enabled)
	assert.Equal(t, "my-service", oc.ServiceName)
	assert.Equal(t, 30*time.Second, oc.BatchTimeout)
	assert.Equal(t, "localhost:4318", oc.Endpoint)
	assert.Equal(t, false, oc.Insecure)
}

func TestGetInfluxConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{"influx": {"enabled": true, "host": "influx"}}`)))

	ic := GetInfluxConfig()
	assert.True(t, ic.Enabled)
	assert.Equal(t, "http://influx:8086", ic.URL())
	assert.Equal(t, "faults", ic.Bucket)
	assert.Equal(t, "./cablemap_influx_backup.lp.gz", ic.BackupPath)
}

func TestGetSegments(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"segments": [
			{ "cableSystem": "sjc2", "segmentId": "s1", "rejectZeroSentinel": true },
			{ "cableSystem": "tgnia", "segmentId": "s3", "hasBounds": true, "minKm": 100, "maxKm": 480.5,
			  "maxExclusive": true, "landmarkPrefixes": ["BU"] }
		]
	}`)))

	segs, err := GetSegments()
	require.NoError(t, err)
	require.Len(t, segs, 2)

	assert.Equal(t, "sjc2/s1", segs[0].Key())
	assert.True(t, segs[0].RejectZeroSentinel)
	assert.Equal(t, "/sjc2-rpl-s1", segs[0].Path())

	b := segs[1].ConfiguredBounds()
	require.NotNil(t, b)
	assert.Equal(t, 100.0, b.MinKm)
	assert.Equal(t, 480.5, b.MaxKm)
	assert.True(t, b.MaxExclusive)
	assert.Equal(t, []string{"BU"}, segs[1].LandmarkPrefixes)
}

func TestGetSegments_Empty(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	_, err := GetSegments()
	assert.Error(t, err)
}

func TestGetSegments_Invalid(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{"segments": [{"cableSystem": "sjc2"}]}`)))

	_, err := GetSegments()
	assert.Error(t, err)
}
