package service_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/service"
)

func TestDirectory(t *testing.T) {
	hash, err := service.HashSecret("s3cret")
	require.NoError(t, err)

	d, err := service.NewDirectory([]service.OperatorSpec{
		{ID: "a", Capabilities: []string{"register", "CLEAR_BOARD"}, SecretHash: hash},
		{ID: "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, d.IDs())

	a, err := d.Lookup("a")
	require.NoError(t, err)
	assert.True(t, a.Can(service.CapClearBoard))
	assert.False(t, a.Can(service.CapDelete))
	assert.Equal(t, "a", a.Name)

	_, err = d.Lookup("zzz")
	require.ErrorIs(t, err, service.ErrUnknownOperator)

	require.NoError(t, d.VerifySecret("a", "s3cret"))
	require.ErrorIs(t, d.VerifySecret("a", "nope"), service.ErrBadSecret)
	require.ErrorIs(t, d.VerifySecret("b", ""), service.ErrBadSecret, "no hash configured")
}

func TestNewDirectory_Rejects(t *testing.T) {
	cases := map[string][]service.OperatorSpec{
		"empty id":      {{ID: " "}},
		"duplicate":     {{ID: "a"}, {ID: "a"}},
		"unknown cap":   {{ID: "a", Capabilities: []string{"fly"}}},
		"bad hash text": {{ID: "a", SecretHash: "plaintext"}},
	}
	for name, specs := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := service.NewDirectory(specs)
			assert.Error(t, err)
		})
	}
}

func TestAuthorize(t *testing.T) {
	op := service.Operator{ID: "x", Capabilities: map[service.Capability]bool{service.CapReport: true}}
	assert.NoError(t, service.Authorize(op, service.CapReport))
	assert.ErrorIs(t, service.Authorize(op, service.CapDelete), service.ErrForbidden)
	assert.ErrorIs(t, service.Authorize(service.Operator{}, service.CapReport), service.ErrForbidden)
}
