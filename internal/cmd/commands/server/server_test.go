package server

import (
	"context"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labelforge/labelforge/internal/config"
	"github.com/labelforge/labelforge/pkg/avatars"
	"github.com/labelforge/labelforge/pkg/notifications"
	"github.com/labelforge/labelforge/pkg/notifications/backends"
)

func TestNewDispatcher(t *testing.T) {
	log := hclog.NewNullLogger()

	t.Run("Log", func(t *testing.T) {
		cfg := config.Default()
		d, closeFn, err := NewDispatcher(cfg, log)
		require.NoError(t, err)
		defer closeFn()

		registry, ok := d.(*backends.Registry)
		require.True(t, ok)
		assert.Equal(t, []string{"audit"}, registry.GetBackendNames())
	})

	t.Run("SMTP", func(t *testing.T) {
		cfg := config.Default()
		cfg.Email.Backend = "smtp"
		cfg.Email.SMTP = &config.SMTP{Host: "smtp.example.com", Port: "2525"}

		d, closeFn, err := NewDispatcher(cfg, log)
		require.NoError(t, err)
		defer closeFn()

		registry, ok := d.(*backends.Registry)
		require.True(t, ok)
		assert.Equal(t, []string{"audit", "mail"}, registry.GetBackendNames())
	})

	t.Run("SMTPWithoutBlock", func(t *testing.T) {
		cfg := config.Default()
		cfg.Email.Backend = "smtp"
		_, _, err := NewDispatcher(cfg, log)
		assert.Error(t, err)
	})

	t.Run("Queue", func(t *testing.T) {
		cfg := config.Default()
		cfg.Email.Backend = "queue"
		cfg.Notifications.Brokers = []string{"localhost:9092"}

		d, closeFn, err := NewDispatcher(cfg, log)
		require.NoError(t, err)
		defer closeFn()

		_, ok := d.(*notifications.Publisher)
		assert.True(t, ok)
	})

	t.Run("Unsupported", func(t *testing.T) {
		cfg := config.Default()
		cfg.Email.Backend = "pigeon"
		_, _, err := NewDispatcher(cfg, log)
		assert.Error(t, err)
	})
}

func TestNewAvatarStore(t *testing.T) {
	log := hclog.NewNullLogger()

	t.Run("Local", func(t *testing.T) {
		cfg := config.Default()
		cfg.Server.BaseURL = "https://labels.example.com"
		fs := afero.NewMemMapFs()

		store, err := NewAvatarStore(context.Background(), cfg, fs, log)
		require.NoError(t, err)

		local, ok := store.(*avatars.LocalStore)
		require.True(t, ok)
		assert.Equal(t, "https://labels.example.com/data/avatars/", local.URLPrefix())

		exists, err := afero.DirExists(fs, config.DefaultAvatarPath)
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("S3", func(t *testing.T) {
		cfg := config.Default()
		cfg.Avatars.Storage = "s3"
		cfg.Avatars.S3 = &config.S3{
			Bucket:          "avatars",
			Region:          "eu-west-1",
			AccessKeyID:     "AKIDEXAMPLE",
			SecretAccessKey: "secret",
		}

		store, err := NewAvatarStore(context.Background(), cfg, afero.NewMemMapFs(), log)
		require.NoError(t, err)
		_, ok := store.(*avatars.S3Store)
		assert.True(t, ok)
	})

	t.Run("S3WithoutBlock", func(t *testing.T) {
		cfg := config.Default()
		cfg.Avatars.Storage = "s3"
		_, err := NewAvatarStore(context.Background(), cfg, afero.NewMemMapFs(), log)
		assert.Error(t, err)
	})
}
