package cxerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Message(t *testing.T) {
	err := New(ErrorTypePoolBuild, "cannot create pool")
	assert.Equal(t, "pool_build: cannot create pool", err.Error())

	wrapped := Wrap(fmt.Errorf("dial tcp: refused"), ErrorTypePoolBuild, "cannot create pool")
	assert.Equal(t, "pool_build: cannot create pool: dial tcp: refused", wrapped.Error())
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeInternal, "ignored"))
}

func TestIsType(t *testing.T) {
	err := New(ErrorTypeConversion, "bad cell")
	assert.True(t, IsType(err, ErrorTypeConversion))
	assert.False(t, IsType(err, ErrorTypeQueryExecution))
	assert.False(t, IsType(errors.New("plain"), ErrorTypeConversion))

	// Wrapping preserves type detection through the chain.
	outer := fmt.Errorf("context: %w", err)
	assert.True(t, IsType(outer, ErrorTypeConversion))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(cause, ErrorTypeQueryExecution, "query failed")
	assert.ErrorIs(t, err, cause)
}

func TestPartitionTagging(t *testing.T) {
	t.Run("structured error", func(t *testing.T) {
		err := WithPartition(New(ErrorTypeQueryExecution, "query failed"), 3)
		part, ok := Partition(err)
		require.True(t, ok)
		assert.Equal(t, 3, part)
	})

	t.Run("plain error gets wrapped", func(t *testing.T) {
		err := WithPartition(errors.New("plain"), 7)
		part, ok := Partition(err)
		require.True(t, ok)
		assert.Equal(t, 7, part)
	})

	t.Run("untagged error", func(t *testing.T) {
		_, ok := Partition(New(ErrorTypeQueryExecution, "query failed"))
		assert.False(t, ok)
	})

	t.Run("tag found through the cause chain", func(t *testing.T) {
		inner := WithPartition(New(ErrorTypeConversion, "bad cell"), 2)
		outer := Wrap(inner, ErrorTypeQueryExecution, "partition failed")
		part, ok := Partition(outer)
		require.True(t, ok)
		assert.Equal(t, 2, part)
	})

	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, WithPartition(nil, 1))
	})
}

func TestStackCapture(t *testing.T) {
	err := New(ErrorTypeInternal, "boom")
	assert.NotEmpty(t, err.Stack)
}
