package notify

import (
	"context"
	"errors"
	"net/smtp"
	"testing"
	"time"

	"github.com/navikt/roomwait/internal/config"
	"github.com/navikt/roomwait/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMailConfig() config.MailConfig {
	return config.MailConfig{
		Host:          "smtp.example.com",
		Port:          "587",
		From:          "rooms.alert@example.com",
		Password:      "secret",
		CancelBaseURL: "http://localhost:3000/api",
	}
}

func TestMailerNotifySendsRenderedMessage(t *testing.T) {
	mailer := NewMailer(testMailConfig(), 30*time.Minute)

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	mailer.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		assert.NotNil(t, a, "password configured, PlainAuth expected")
		return nil
	}

	room := &models.Room{ID: 7, Name: "A101"}
	err := mailer.Notify(context.Background(), "eve@example.com", room)
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "rooms.alert@example.com", gotFrom)
	assert.Equal(t, []string{"eve@example.com"}, gotTo)

	msg := string(gotMsg)
	assert.Contains(t, msg, "Subject: Your room is free")
	assert.Contains(t, msg, "To: eve@example.com")
	assert.Contains(t, msg, "The A101 is free for reservation")
	assert.Contains(t, msg, "You have 30 minutes to reserve it")
	assert.Contains(t, msg, "http://localhost:3000/api/cancel/7")
}

func TestMailerNotifyPropagatesSendFailure(t *testing.T) {
	mailer := NewMailer(testMailConfig(), 30*time.Minute)
	sendErr := errors.New("connection refused")
	mailer.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		return sendErr
	}

	err := mailer.Notify(context.Background(), "eve@example.com", &models.Room{ID: 1, Name: "A101"})
	assert.ErrorIs(t, err, sendErr)
}

func TestMailerNotifyHonorsCancelledContext(t *testing.T) {
	mailer := NewMailer(testMailConfig(), 30*time.Minute)
	called := false
	mailer.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		called = true
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := mailer.Notify(ctx, "eve@example.com", &models.Room{ID: 1, Name: "A101"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestMailerMessageUsesConfiguredGraceWindow(t *testing.T) {
	mailer := NewMailer(testMailConfig(), 15*time.Minute)
	msg := string(mailer.Message("eve@example.com", &models.Room{ID: 2, Name: "B202"}))
	assert.Contains(t, msg, "You have 15 minutes to reserve it")
}
