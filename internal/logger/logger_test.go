package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestTruncateForLog(t *testing.T) {
	assert.Equal(t, "", TruncateForLog("abc", 0))
	assert.Equal(t, "abc", TruncateForLog("  abc  ", 5))
	assert.Equal(t, "ab...", TruncateForLog("abcdef", 2))
	assert.Equal(t, "面试...", TruncateForLog("面试评估", 2))
}

func TestSessionFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := Session(zap.New(core), "s-1", "technical_probe")
	l.Info("hello")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		ctx := entries[0].ContextMap()
		assert.Equal(t, "s-1", ctx[FieldSessionID])
		assert.Equal(t, "technical_probe", ctx[FieldStage])
	}
}

func TestSessionToleratesNilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		Session(nil, "", "").Info("noop")
	})
}
