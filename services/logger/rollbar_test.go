package logsvc

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/rollbar/rollbar-go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/madrasa/backend/core"
	"github.com/madrasa/backend/core/principal"
)

func newObservedLogger(t *testing.T) (*RollbarLogger, *observer.ObservedLogs) {
	zc, logs := observer.New(zapcore.DebugLevel)
	l := NewRollbarLogger(zap.New(zc), testConfig())
	l.Enable(false)
	t.Cleanup(func() { rollbar.SetEnabled(true) })
	return l, logs
}

func testConfig() *core.Config {
	return core.NewTestConfig()
}

func TestRollbarLogger_prepare(t *testing.T) {
	l, _ := newObservedLogger(t)
	p := principal.Principal{ID: "p1", Name: "Amal", Email: "amal@test.eg", Role: principal.RoleStudent}
	err := errors.New("boom")
	fields := map[string]interface{}{"course_id": "c1"}

	got := l.prepare("msg", []interface{}{err, p, fields, p})
	assert.Equal(t, []interface{}{"msg", err, fields}, got)
}

func TestRollbarLogger_fields(t *testing.T) {
	l, logs := newObservedLogger(t)
	p := principal.Principal{ID: "p1", Role: principal.RoleAdmin}

	l.Error("enrollment failed", errors.New("boom"), p, map[string]interface{}{"payment_id": "pay1"})

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		ctx := entries[0].ContextMap()
		assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
		assert.Equal(t, "enrollment failed", entries[0].Message)
		assert.Equal(t, "boom", ctx["error"])
		assert.Equal(t, "p1", ctx["principal_id"])
		assert.Equal(t, "ADMIN", ctx["principal_role"])
		assert.Equal(t, "pay1", ctx["payment_id"])
	}
}
