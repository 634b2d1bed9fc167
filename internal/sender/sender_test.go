package sender

import (
	"context"
	"testing"

	"github.com/ignite/campaign-dispatch/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogSenderRecordsMessages(t *testing.T) {
	s := NewLogSender()

	res, err := s.Send(context.Background(), &Message{
		To:      "pat@example.com",
		Subject: "hello",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "log", res.Provider)
	assert.Equal(t, "log-1", res.MessageID)

	sent := s.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "pat@example.com", sent[0].To)
}

func TestNewFallsBackToLogSender(t *testing.T) {
	cases := []config.SenderConfig{
		{Provider: "log"},
		{Provider: ""},
		{Provider: "carrier-pigeon"},
		{Provider: "ses"}, // no credentials
	}
	for _, c := range cases {
		_, ok := New(c).(*LogSender)
		assert.True(t, ok, "provider %q should yield LogSender", c.Provider)
	}
}

func TestNewBuildsSES(t *testing.T) {
	s := New(config.SenderConfig{
		Provider:  "ses",
		AccessKey: "AKIA_TEST",
		SecretKey: "secret",
		Region:    "eu-west-1",
	})
	_, ok := s.(*SESSender)
	assert.True(t, ok)
}

func TestSESSenderWithoutClientErrors(t *testing.T) {
	s := &SESSender{}
	_, err := s.Send(context.Background(), &Message{To: "x@example.com"})
	assert.Error(t, err)
}
