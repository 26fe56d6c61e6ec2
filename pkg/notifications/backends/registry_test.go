package backends

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labelforge/labelforge/pkg/notifications"
)

func TestNewRegistry(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		r, err := NewRegistry(nil, nil)
		require.NoError(t, err)
		assert.Empty(t, r.GetBackendNames())
	})

	t.Run("audit and mail", func(t *testing.T) {
		r, err := NewRegistry(&Config{
			Audit: &AuditConfig{Enabled: true},
			Mail: &MailConfig{
				Enabled:     true,
				SMTPHost:    "smtp.example.com",
				FromAddress: "noreply@example.com",
			},
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"audit", "mail"}, r.GetBackendNames())

		mail, ok := r.GetBackend("mail")
		require.True(t, ok)
		assert.Equal(t, "587", mail.(*MailBackend).smtpPort)
	})

	t.Run("disabled blocks are skipped", func(t *testing.T) {
		r, err := NewRegistry(&Config{
			Audit: &AuditConfig{},
			Mail:  &MailConfig{SMTPHost: "smtp.example.com"},
		}, nil)
		require.NoError(t, err)
		assert.Empty(t, r.GetAll())
	})

	t.Run("mail requires host", func(t *testing.T) {
		_, err := NewRegistry(&Config{Mail: &MailConfig{Enabled: true}}, nil)
		assert.Error(t, err)
	})
}

func TestRegistry_Dispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("routes to targeted backends", func(t *testing.T) {
		r, err := NewRegistry(nil, nil)
		require.NoError(t, err)
		mail := NewRecorderBackend("mail")
		other := NewRecorderBackend("slack")
		r.Register(mail)
		r.Register(other)

		msg := notifications.NewEmail(1, "ann@example.com", "", "s", "b")
		require.NoError(t, r.Dispatch(ctx, msg))

		require.Len(t, mail.Messages(), 1)
		assert.Equal(t, msg.ID, mail.Messages()[0].ID)
		assert.Empty(t, other.Messages())
	})

	t.Run("no matching backend", func(t *testing.T) {
		r, err := NewRegistry(nil, nil)
		require.NoError(t, err)
		r.Register(NewRecorderBackend("slack"))

		msg := notifications.NewEmail(1, "ann@example.com", "", "s", "b")
		assert.Error(t, r.Dispatch(ctx, msg))
		assert.False(t, r.Supports(msg))
	})

	t.Run("collects failures", func(t *testing.T) {
		r, err := NewRegistry(nil, nil)
		require.NoError(t, err)
		mail := NewRecorderBackend("mail")
		mail.FailWith(NewBackendError("mail", "send", true, errors.New("timeout")))
		audit := NewRecorderBackend("audit")
		audit.FailWith(errors.New("disk full"))
		r.Register(mail)
		r.Register(audit)

		msg := notifications.NewEmail(1, "ann@example.com", "", "s", "b")
		err = r.Dispatch(ctx, msg)
		require.Error(t, err)

		var multi *MultiBackendError
		require.True(t, errors.As(err, &multi))
		assert.ElementsMatch(t, []string{"mail", "audit"}, multi.FailedBackends())
		assert.True(t, multi.HasRetryableErrors())
		assert.True(t, IsRetryable(err))
	})

	t.Run("partial failure still delivers elsewhere", func(t *testing.T) {
		r, err := NewRegistry(nil, nil)
		require.NoError(t, err)
		mail := NewRecorderBackend("mail")
		mail.FailWith(errors.New("rejected"))
		audit := NewRecorderBackend("audit")
		r.Register(mail)
		r.Register(audit)

		msg := notifications.NewEmail(1, "ann@example.com", "", "s", "b")
		err = r.Dispatch(ctx, msg)
		require.Error(t, err)
		assert.False(t, IsRetryable(err))
		assert.Len(t, audit.Messages(), 1)
	})
}
