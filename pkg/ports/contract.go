package ports

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/mobility/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunFactRepositoryContract runs a suite of tests to verify that a FactRepository
// implementation adheres to the defined interface contract.
func RunFactRepositoryContract(t *testing.T, repo FactRepository) {
	ctx := context.Background()
	owner := domain.AgentID("contract-" + time.Now().Format("20060102150405"))
	id := func(seq int64) domain.UID { return domain.UID{Owner: owner, Seq: seq} }

	t.Run("Save and Load", func(t *testing.T) {
		rec := Record{Kind: domain.FactProc, ID: id(1), Data: []byte(`{"script_index":3}`)}
		require.NoError(t, repo.Save(ctx, rec), "Save should not return error")

		loaded, err := repo.Load(ctx, domain.FactProc, id(1))
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, rec.Kind, loaded.Kind)
		assert.Equal(t, rec.ID, loaded.ID)
		assert.JSONEq(t, string(rec.Data), string(loaded.Data))
	})

	t.Run("Save Replaces", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, Record{Kind: domain.FactProc, ID: id(2), Data: []byte(`{"v":1}`)}))
		require.NoError(t, repo.Save(ctx, Record{Kind: domain.FactProc, ID: id(2), Data: []byte(`{"v":2}`)}))

		loaded, err := repo.Load(ctx, domain.FactProc, id(2))
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":2}`, string(loaded.Data))
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := repo.Load(ctx, domain.FactStep, id(999))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Kinds Are Separate", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, Record{Kind: domain.FactScript, ID: id(3), Data: []byte(`{}`)}))
		_, err := repo.Load(ctx, domain.FactStep, id(3))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, Record{Kind: domain.FactStep, ID: id(4), Data: []byte(`{}`)}))
		require.NoError(t, repo.Delete(ctx, domain.FactStep, id(4)), "Delete should not return error")

		_, err := repo.Load(ctx, domain.FactStep, id(4))
		assert.ErrorIs(t, err, domain.ErrNotFound, "Load after Delete should return ErrNotFound")

		assert.NoError(t, repo.Delete(ctx, domain.FactStep, id(4)), "Delete is idempotent")
	})

	t.Run("List", func(t *testing.T) {
		for _, seq := range []int64{12, 10, 11} {
			require.NoError(t, repo.Save(ctx, Record{
				Kind: domain.FactRequest,
				ID:   id(seq),
				Data: []byte(fmt.Sprintf(`{"seq":%d}`, seq)),
			}))
		}
		defer func() {
			for _, seq := range []int64{10, 11, 12} {
				_ = repo.Delete(ctx, domain.FactRequest, id(seq))
			}
		}()

		recs, err := repo.List(ctx, domain.FactRequest)
		require.NoError(t, err)

		var mine []domain.UID
		for _, r := range recs {
			assert.Equal(t, domain.FactRequest, r.Kind)
			if r.ID.Owner == owner {
				mine = append(mine, r.ID)
			}
		}
		assert.Equal(t, []domain.UID{id(10), id(11), id(12)}, mine, "List is ordered by ID")
	})
}
