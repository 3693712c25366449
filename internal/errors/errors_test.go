package errors_test

import (
	stderrors "errors"
	"testing"

	"github.com/jrsteele09/go-agent-auth/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestWrapf(t *testing.T) {
	require.NoError(t, errors.Wrapf(nil, "ignored"))

	wrapped := errors.Wrapf(errors.ErrUnknownStoreBackend, "[buildStore] %q", "etcd")
	require.EqualError(t, wrapped, `[buildStore] "etcd": unknown store backend`)
	require.True(t, errors.Is(wrapped, errors.ErrUnknownStoreBackend))
	require.False(t, errors.Is(wrapped, stderrors.New("unknown store backend")))
}
