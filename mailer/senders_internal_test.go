package mailer

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPSender_Send(t *testing.T) {
	var (
		gotAddr string
		gotAuth smtp.Auth
		gotFrom string
		gotTo   []string
		gotMsg  []byte
	)

	s := NewSMTPSender(SMTPConfig{
		Host:     "smtp.example.com",
		Username: "mailer",
		Password: "pw",
		From:     "SafeBite <no-reply@safebite.app>",
	})
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo, gotMsg = addr, a, from, to, msg
		return nil
	}

	err := s.Send(context.Background(), Message{
		To:      "maria@example.com",
		Subject: "Redefinição de senha",
		HTML:    "<p>hi</p>",
	})
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, "no-reply@safebite.app", gotFrom)
	assert.Equal(t, []string{"maria@example.com"}, gotTo)

	raw := string(gotMsg)
	assert.Contains(t, raw, "From: SafeBite <no-reply@safebite.app>\r\n")
	assert.Contains(t, raw, "To: maria@example.com\r\n")
	assert.Contains(t, raw, "Subject: =?utf-8?q?")
	assert.Contains(t, raw, "Content-Type: text/html; charset=\"utf-8\"\r\n")
	assert.True(t, strings.HasSuffix(raw, "\r\n\r\n<p>hi</p>"))
}

func TestSMTPSender_Errors(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 2525, From: "a@b.c"})

	t.Run("no auth without a username", func(t *testing.T) {
		s.sendMail = func(addr string, a smtp.Auth, _ string, _ []string, _ []byte) error {
			assert.Equal(t, "smtp.example.com:2525", addr)
			assert.Nil(t, a)
			return nil
		}
		assert.NoError(t, s.Send(context.Background(), Message{To: "x@y.z"}))
	})

	t.Run("relay failure is wrapped", func(t *testing.T) {
		boom := errors.New("421 try later")
		s.sendMail = func(string, smtp.Auth, string, []string, []byte) error { return boom }
		assert.ErrorIs(t, s.Send(context.Background(), Message{To: "x@y.z"}), boom)
	})

	t.Run("cancelled context skips delivery", func(t *testing.T) {
		called := false
		s.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
			called = true
			return nil
		}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.Error(t, s.Send(ctx, Message{To: "x@y.z"}))
		assert.False(t, called)
	})
}

func TestEnvelopeAddress(t *testing.T) {
	assert.Equal(t, "no-reply@x.io", envelopeAddress("SafeBite <no-reply@x.io>"))
	assert.Equal(t, "no-reply@x.io", envelopeAddress(" no-reply@x.io "))
}
