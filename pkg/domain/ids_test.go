package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "rollguard/pkg/domain-errors"
)

// TestParseUUID_Invariants validates that IDs accepted at trust boundaries
// are valid, non-empty, non-nil UUIDs.
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseVoterID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseBatchID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseTaskID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseVoterID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, VoterID(validUUID), id)
		assert.Equal(t, validUUID.String(), id.String())
	})
}

func TestTypeDistinction(t *testing.T) {
	voterID := VoterID(uuid.New())
	batchID := BatchID(uuid.New())

	// var _ VoterID = batchID // compile error
	assert.NotEqual(t, uuid.UUID(voterID), uuid.UUID(batchID))
	assert.True(t, VoterID{}.IsNil())
}

func TestJSONEncoding(t *testing.T) {
	flagID := ClusterFlagID(uuid.New())
	raw, err := json.Marshal(struct {
		ID ClusterFlagID `json:"id"`
	}{flagID})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"`+flagID.String()+`"}`, string(raw))

	var decoded struct {
		ID ClusterFlagID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, flagID, decoded.ID)
}
