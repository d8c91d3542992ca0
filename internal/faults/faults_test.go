package faults

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapNil(t *testing.T) {
	require.NoError(t, Configuration(nil))
	require.NoError(t, Acquisition(nil))
	require.NoError(t, Persistence(nil))
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	base := errors.New("disk full")
	err := fmt.Errorf("run cnj: %w", Persistence(fmt.Errorf("save baseline: %w", base)))

	require.True(t, IsPersistence(err))
	require.False(t, IsAcquisition(err))
	require.ErrorIs(t, err, base)
	require.Equal(t, KindPersistence, KindOf(err))
}

func TestJoinedErrors(t *testing.T) {
	err := errors.Join(Acquisition(errors.New("timeout")), errors.New("plain"))
	require.True(t, IsAcquisition(err))
	require.False(t, IsConfiguration(err))
}

func TestNoDoubleWrap(t *testing.T) {
	err := Configuration(Configuration(errors.New("key_columns empty")))
	require.Equal(t, "configuration: key_columns empty", err.Error())
}
