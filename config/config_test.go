package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := Defaults()

	assert.Equal(t, "8080", c.AppPort)
	assert.Equal(t, filepath.Join("data", "links.json"), c.LinksFile)
	assert.Equal(t, filepath.Join("data", "uploads"), c.UploadsRoot)
	assert.Equal(t, 10, c.MaxFilesPerRequest)
	assert.Equal(t, int64(15*1024*1024), c.MaxFileBytes())
	assert.ElementsMatch(t, DefaultMimeTypes, c.AllowedMimeTypes)
	assert.NoError(t, c.Validate())
}

func TestValidateRejectsNonPositiveCeilings(t *testing.T) {
	c := Defaults()
	c.MaxFileSizeMB = -1
	c.MaxFilesPerRequest = -3

	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MaxFileSizeMB")
	assert.Contains(t, err.Error(), "MaxFilesPerRequest")
}

func TestKafkaSettings(t *testing.T) {
	assert.Empty(t, Defaults().KafkaBrokers)
	assert.Equal(t, "docintake.intake-received", Defaults().KafkaTopic)

	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	var c AppConfig
	applyEnvOverrides(&c)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.KafkaBrokers)
}

func TestLoadJSONConfigGroupedSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"app": {"AppPort": "9090", "PublicBaseURL": "https://x.test", "AllowedOrigins": ["https://a.test"]},
		"storage": {"DataDir": "/srv/intake"},
		"upload": {"MaxFileSizeMB": 5, "MaxFilesPerRequest": 4, "AllowedMimeTypes": ["application/pdf"]},
		"smtp": {"SMTPHost": "mail.test", "SMTPPort": 2525, "SMTPTLS": true, "NotifyTo": "ops@x.test"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	var c AppConfig
	require.NoError(t, loadJSONConfig(path, &c))
	applyDefaults(&c)

	assert.Equal(t, "9090", c.AppPort)
	assert.Equal(t, "https://x.test", c.PublicBaseURL)
	assert.Equal(t, []string{"https://a.test"}, c.AllowedOrigins)
	assert.Equal(t, filepath.Join("/srv/intake", "links.json"), c.LinksFile)
	assert.Equal(t, 5, c.MaxFileSizeMB)
	assert.Equal(t, 4, c.MaxFilesPerRequest)
	assert.Equal(t, []string{"application/pdf"}, c.AllowedMimeTypes)
	assert.Equal(t, 2525, c.SMTPPort)
	assert.True(t, c.SMTPTLS)
	assert.Equal(t, "ops@x.test", c.NotifyTo)
}

func TestLoadJSONConfigMissingFileIsIgnored(t *testing.T) {
	var c AppConfig
	assert.NoError(t, loadJSONConfig(filepath.Join(t.TempDir(), "absent.json"), &c))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DATA_DIR", "/var/lib/intake")
	t.Setenv("MAX_FILES_PER_REQUEST", "3")
	t.Setenv("ALLOWED_MIME_TYPES", "image/png, application/pdf")
	t.Setenv("TO_EMAIL", "desk@example.com")

	var c AppConfig
	applyEnvOverrides(&c)
	applyDefaults(&c)

	assert.Equal(t, filepath.Join("/var/lib/intake", "uploads"), c.UploadsRoot)
	assert.Equal(t, 3, c.MaxFilesPerRequest)
	assert.Equal(t, []string{"image/png", "application/pdf"}, c.AllowedMimeTypes)
	assert.Equal(t, "desk@example.com", c.NotifyTo)
}
