package badger

import (
	"context"
	"testing"

	"github.com/poiesic/lexis/core"
	"github.com/poiesic/lexis/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointRepository(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	cp, err := repos.Checkpoints.LoadCheckpoint(ctx, "ingest")
	require.NoError(t, err)
	assert.Nil(t, cp)

	require.NoError(t, repos.Checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{
		Worker:     "ingest",
		RunId:      "run-1",
		Processed:  3,
		Successful: 2,
		Failed:     1,
	}))
	require.NoError(t, repos.Checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{
		Worker:     "ingest",
		RunId:      "run-2",
		Processed:  1,
		Successful: 1,
	}))

	cp, err = repos.Checkpoints.LoadCheckpoint(ctx, "ingest")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, "run-2", cp.RunId)
	assert.Equal(t, 1, cp.Processed)
	assert.False(t, cp.UpdatedAt.IsZero())

	err = repos.Checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{})
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}
