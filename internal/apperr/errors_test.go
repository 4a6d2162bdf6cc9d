package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOfWrapped(t *testing.T) {
	base := PriceMismatch("total mismatch").WithDetail("expected", "100.00")
	wrapped := fmt.Errorf("create order: %w", base)

	require.Equal(t, KindPriceMismatch, KindOf(wrapped))

	e, ok := As(wrapped)
	require.True(t, ok)
	require.Equal(t, "100.00", e.Details["expected"])
}

func TestUnclassifiedIsInternal(t *testing.T) {
	require.Equal(t, KindInternal, KindOf(errors.New("boom")))
	require.False(t, Is(nil, KindInternal))
}

func TestInternalUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := Internal("insert order", cause)

	require.ErrorIs(t, err, cause)
	require.Equal(t, "insert order: connection reset", err.Error())
	require.Equal(t, "internal_error", err.Code)
}

func TestDefaultCode(t *testing.T) {
	require.Equal(t, "validation", Validation("", "bad").Code)
	require.Equal(t, "quantity_invalid", Validation("quantity_invalid", "bad").Code)
}
