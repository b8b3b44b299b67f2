package core_test

import (
	"testing"

	"github.com/kat-co/vala"
	"github.com/stretchr/testify/assert"

	"github.com/madrasa/backend/core"
)

func TestNopMetrics(t *testing.T) {
	m := core.NopMetrics()
	assert.NotPanics(t, func() {
		vala.BeginValidation().Validate(
			vala.IsNotNil(m, "metrics"),
		).CheckAndPanic()
	})
	assert.NotPanics(t, func() {
		m.AccessDecision("ENROLLED")
		m.EnrollmentCreated("FREE_ENROLLMENT")
		m.FulfillmentFailure()
	})
}
