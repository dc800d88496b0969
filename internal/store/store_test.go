package store

import (
	"context"
	"testing"
	"time"

	"tradeproof/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwnedByRejectsEmptyScope(t *testing.T) {
	_, err := ownedBy(types.NewScope("  "))
	require.ErrorIs(t, err, types.ErrMissingScope)
	assert.Equal(t, types.KindUnauthorized, types.KindOf(err))
}

func TestScopedQueriesFilterByOwner(t *testing.T) {
	scope := types.NewScope("user-1")

	query, args, err := jobQuery(scope, "job-1")
	require.NoError(t, err)
	assert.Contains(t, query, "user_id = $1")
	assert.Contains(t, query, "id = $2")
	assert.Equal(t, []any{"user-1", "job-1"}, args)

	query, args, err = evidenceByJobQuery(scope, "job-1")
	require.NoError(t, err)
	assert.Contains(t, query, "FROM tradeproof.evidence")
	assert.Contains(t, query, "ORDER BY created_at ASC, id ASC")
	assert.Equal(t, []any{"user-1", "job-1"}, args)

	_, _, err = evidenceByJobQuery(types.Scope{}, "job-1")
	require.ErrorIs(t, err, types.ErrMissingScope)
}

func TestSetTimestampIsConditional(t *testing.T) {
	query, args, err := setTimestampUpdate(types.NewScope("user-1"), "ev-1", "ots:abc", time.Unix(0, 0))
	require.NoError(t, err)

	assert.Contains(t, query, "UPDATE tradeproof.evidence SET blockchain_timestamp = $1, anchored_at = $2")
	assert.Contains(t, query, "blockchain_timestamp IS NULL")
	assert.Contains(t, args, "ots:abc")
	assert.Contains(t, args, "user-1")
}

func TestCleanupCandidateQuery(t *testing.T) {
	cutoff := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	query, args, err := oldestWithFilesQuery(types.NewScope("user-1"), cutoff, 10)
	require.NoError(t, err)

	assert.Contains(t, query, "file_path IS NOT NULL")
	assert.Contains(t, query, "created_at < $2")
	assert.Contains(t, query, "ORDER BY created_at ASC LIMIT 10")
	assert.Equal(t, []any{"user-1", cutoff}, args)
}

func TestProtectionStatusUpdateRequiresScope(t *testing.T) {
	_, _, err := protectionStatusUpdate(types.Scope{}, "job-1", 40, time.Now())
	require.ErrorIs(t, err, types.ErrMissingScope)
}

func TestMemoryHidesOtherOwnersJobs(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	owner := types.NewScope("owner")

	job := &types.Job{ClientName: "A. Client", JobType: types.JobTypeKitchen}
	require.NoError(t, m.CreateJob(ctx, owner, job))

	_, err := m.Job(ctx, types.NewScope("intruder"), job.ID)
	require.ErrorIs(t, err, types.ErrJobNotFound)

	got, err := m.Job(ctx, owner, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "A. Client", got.ClientName)

	_, err = m.Job(ctx, types.Scope{}, job.ID)
	require.ErrorIs(t, err, types.ErrMissingScope)
}

func TestMemoryBlockchainTimestampFirstWriteWins(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	scope := types.NewScope("owner")

	hash := "ab"
	item := &types.EvidenceItem{JobID: "job", EvidenceType: types.EvidenceBefore, Description: "x", FileHash: &hash}
	require.NoError(t, m.CreateEvidence(ctx, scope, item))

	won, err := m.SetBlockchainTimestamp(ctx, scope, item.ID, "ots:first")
	require.NoError(t, err)
	assert.True(t, won)

	won, err = m.SetBlockchainTimestamp(ctx, scope, item.ID, "ots:second")
	require.NoError(t, err)
	assert.False(t, won)

	got, err := m.Evidence(ctx, scope, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "ots:first", *got.BlockchainTimestamp)
	assert.NotNil(t, got.AnchoredAt)
}
