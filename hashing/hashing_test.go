package hashing_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerid/core/hashing"
)

func TestBcryptHashAndVerify(t *testing.T) {
	h := hashing.NewBcrypt()
	blob, err := h.Hash("correct horse battery staple")
	require.NoError(t, err)
	require.NotEmpty(t, blob)

	require.NoError(t, h.Verify("correct horse battery staple", blob))
	require.Error(t, h.Verify("wrong password", blob))
}
