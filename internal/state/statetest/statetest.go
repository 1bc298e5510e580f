// Package statetest holds the behaviour every state.Store must share.
package statetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stackwire "github.com/schedulegen/stackwire-go"
	"github.com/schedulegen/stackwire-go/internal/state"
)

// Run exercises a fresh store from newStore.
func Run(t *testing.T, newStore func(t *testing.T) state.Store) {
	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), "nope")
		assert.ErrorIs(t, err, state.ErrNotFound)
	})

	t.Run("save and get", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		rec := sample()
		require.NoError(t, s.Save(ctx, rec))

		got, err := s.Get(ctx, "GeneratorStack")
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, "memory", got.Backend)
		assert.Equal(t, state.StatusDeployed, got.Status)
		assert.Equal(t, `{"Resources":{}}`, string(got.Template))
		require.Contains(t, got.Resources, "GeneratorBucket")
		bucket := got.Resources["GeneratorBucket"]
		assert.Equal(t, stackwire.KindStorage, bucket.Kind)
		assert.Equal(t, "uvic-schedule-generator-bucket", bucket.PhysicalID)
		assert.Equal(t, true, bucket.Properties["Versioned"])
		assert.True(t, bucket.Retain)
		assert.Equal(t, "uvic-schedule-generator-bucket", got.Outputs()["GeneratorBucket.BucketName"])
	})

	t.Run("save replaces and keeps identity", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		rec := sample()
		require.NoError(t, s.Save(ctx, rec))

		next := sample()
		next.Status = state.StatusRetained
		delete(next.Resources, "GeneratorBucket")
		require.NoError(t, s.Save(ctx, next))

		got, err := s.Get(ctx, "GeneratorStack")
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, state.StatusRetained, got.Status)
		assert.Empty(t, got.Resources)
	})

	t.Run("list sorted", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		for _, name := range []string{"b", "a", "c"} {
			require.NoError(t, s.Save(ctx, state.NewRecord(name, "memory")))
		}
		list, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "a", list[0].Name)
		assert.Equal(t, "c", list[2].Name)
	})

	t.Run("delete", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Save(ctx, sample()))
		require.NoError(t, s.Delete(ctx, "GeneratorStack"))

		_, err := s.Get(ctx, "GeneratorStack")
		assert.ErrorIs(t, err, state.ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, "GeneratorStack"), state.ErrNotFound)
	})

	t.Run("save requires name", func(t *testing.T) {
		s := newStore(t)
		assert.Error(t, s.Save(context.Background(), &state.StackRecord{}))
	})
}

func sample() *state.StackRecord {
	rec := state.NewRecord("GeneratorStack", "memory")
	rec.Template = []byte(`{"Resources":{}}`)
	rec.Resources["GeneratorBucket"] = state.ResourceRecord{
		ID:         "GeneratorBucket",
		Kind:       stackwire.KindStorage,
		Type:       "AWS::S3::Bucket",
		PhysicalID: "uvic-schedule-generator-bucket",
		Properties: map[string]any{"Versioned": true},
		Outputs:    map[string]string{"BucketName": "uvic-schedule-generator-bucket"},
		Retain:     true,
	}
	return rec
}
