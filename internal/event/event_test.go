package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryHandsOutFreshCodes(t *testing.T) {
	r := NewRegistry()

	first := r.RegisterID()
	second := r.RegisterID()

	assert.Equal(t, CodeLast, first)
	assert.Equal(t, CodeLast+1, second)
}

func TestRegistriesAreIndependent(t *testing.T) {
	a := NewRegistry()
	b := NewRegistry()
	a.RegisterID()

	assert.Equal(t, CodeLast, b.RegisterID())
}

func TestEventStop(t *testing.T) {
	e := &Event{Code: CodeDelete}
	assert.False(t, e.Stopped())
	e.Stop()
	assert.True(t, e.Stopped())
}

func TestCodeString(t *testing.T) {
	assert.Equal(t, "delete", CodeDelete.String())
	assert.Equal(t, "custom(42)", Code(42).String())
}
