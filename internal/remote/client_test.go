package remote

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransientErrorUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("push: %w", &TransientError{Op: "upsert", Entity: "products", Err: cause})

	assert.True(t, IsTransient(err))
	assert.False(t, IsRejection(err))
	assert.ErrorIs(t, err, cause)
}

func TestRejectionErrorClassification(t *testing.T) {
	err := fmt.Errorf("push: %w", &RejectionError{Entity: "products", RemoteID: "uuid-1", Status: 400})

	assert.True(t, IsRejection(err))
	assert.False(t, IsTransient(err))
	assert.Contains(t, err.Error(), "uuid-1")
}

func TestClassificationOfPlainError(t *testing.T) {
	err := errors.New("nope")
	assert.False(t, IsTransient(err))
	assert.False(t, IsRejection(err))
}
