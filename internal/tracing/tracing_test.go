package tracing

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kunal123thakur/job-matching/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeAttributeValue_MasksPII(t *testing.T) {
	assert.Equal(t, "st***************om", SafeAttributeValue("candidate.email", "student@example.com", DefaultMaxLength))
	assert.Equal(t, "Data Analyst Intern", SafeAttributeValue("internship.title", "Data Analyst Intern", DefaultMaxLength))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))
	assert.Equal(t, "abc...xyz", TruncateString("abcdefghijklmnopqrstuvwxyz", 9))
	assert.Equal(t, "ab", TruncateString("abcdef", 2))
}

func TestClassifyError(t *testing.T) {
	timeout := fmt.Errorf("embed: %w", types.NewTimeoutError("x", "embed", ""))
	assert.Equal(t, ErrorTypeTimeout, ClassifyError(timeout, ErrorTypeInternal))
	assert.Equal(t, ErrorTypeTimeout, ClassifyError(context.DeadlineExceeded, ErrorTypeInternal))
	assert.Equal(t, ErrorTypeValidation, ClassifyError(types.NewValidationError("x", "upsert", "empty id"), ErrorTypeDB))
	assert.Equal(t, ErrorTypeDB, ClassifyError(errors.New("boom"), ErrorTypeDB))
}

func TestInitProvider_Disabled(t *testing.T) {
	shutdown, err := InitProvider(context.Background(), ProviderConfig{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}
