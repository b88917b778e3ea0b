package mq

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProducer_SendCheckResult_NilProducer(t *testing.T) {
	t.Run("nil producer returns nil", func(t *testing.T) {
		var p *Producer
		msg := &CheckResultMessage{
			BatchID:   "batch-1",
			SourceURL: "http://163cn.tv/abc",
			Category:  "gift_card",
			Outcome:   "success",
			Status:    "available",
			CheckedAt: time.Now(),
		}

		err := p.SendCheckResult(context.Background(), msg)
		assert.NoError(t, err)
	})
}

func TestProducer_Close(t *testing.T) {
	t.Run("nil producer close returns nil", func(t *testing.T) {
		var p *Producer
		err := p.Close()
		assert.NoError(t, err)
	})
}

func TestCheckResultMessage(t *testing.T) {
	t.Run("marshal and unmarshal", func(t *testing.T) {
		now := time.Now()
		msg := &CheckResultMessage{
			BatchID:     "batch-1",
			SourceURL:   "http://163cn.tv/abc",
			RedirectURL: "https://y.music.163.com/g/gift-receive?d=X",
			Category:    "gift_card",
			Outcome:     "success",
			Status:      "available",
			Message:     "",
			CheckedAt:   now,
		}

		data, err := json.Marshal(msg)
		assert.NoError(t, err)
		assert.NotEmpty(t, data)

		var unmarshaled CheckResultMessage
		err = json.Unmarshal(data, &unmarshaled)
		assert.NoError(t, err)
		assert.Equal(t, msg.BatchID, unmarshaled.BatchID)
		assert.Equal(t, msg.SourceURL, unmarshaled.SourceURL)
		assert.Equal(t, msg.Category, unmarshaled.Category)
		assert.Equal(t, msg.Outcome, unmarshaled.Outcome)
		assert.Equal(t, msg.Status, unmarshaled.Status)
	})

	t.Run("empty message", func(t *testing.T) {
		msg := &CheckResultMessage{}
		data, err := json.Marshal(msg)
		assert.NoError(t, err)
		assert.NotEmpty(t, data)
	})
}
