package resolver

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dyluth/tally/internal/testutil"
	"github.com/dyluth/tally/pkg/ledger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLocation(t *testing.T) {
	env := testutil.Setup(t)
	a1 := env.AddLocation("A1", true)
	b2 := env.AddLocation("B2", false)

	t.Run("by name", func(t *testing.T) {
		loc, err := ResolveLocation(env.Ctx, env.Ledger, "B2")
		require.NoError(t, err)
		assert.Equal(t, b2.ID, loc.ID)
		assert.False(t, loc.IsActive)
	})

	t.Run("by full id", func(t *testing.T) {
		loc, err := ResolveLocation(env.Ctx, env.Ledger, a1.ID)
		require.NoError(t, err)
		assert.Equal(t, "A1", loc.Name)
	})

	t.Run("by short id", func(t *testing.T) {
		loc, err := ResolveLocation(env.Ctx, env.Ledger, a1.ID[:8])
		require.NoError(t, err)
		assert.Equal(t, a1.ID, loc.ID)
	})

	t.Run("unknown full id", func(t *testing.T) {
		_, err := ResolveLocation(env.Ctx, env.Ledger, "00000000-0000-4000-8000-000000000000")
		var nf *NotFoundError
		assert.True(t, errors.As(err, &nf))
	})

	t.Run("short unknown name", func(t *testing.T) {
		_, err := ResolveLocation(env.Ctx, env.Ledger, "Z9")
		var nf *NotFoundError
		assert.True(t, errors.As(err, &nf))
	})

	t.Run("empty", func(t *testing.T) {
		_, err := ResolveLocation(env.Ctx, env.Ledger, "")
		assert.Error(t, err)
	})
}

// fixedLocations serves a static list with colliding ID prefixes.
type fixedLocations []*ledger.Location

func (f fixedLocations) GetLocation(_ context.Context, id string) (*ledger.Location, error) {
	for _, l := range f {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, fmt.Errorf("missing: %w", errNil)
}

func (f fixedLocations) FindLocationByName(_ context.Context, name string) (*ledger.Location, error) {
	for _, l := range f {
		if l.Name == name {
			return l, nil
		}
	}
	return nil, errNil
}

func (f fixedLocations) ListLocations(context.Context) ([]*ledger.Location, error) {
	return f, nil
}

var errNil = redis.Nil

func TestResolveLocationAmbiguous(t *testing.T) {
	var locs fixedLocations
	for i := 0; i < 12; i++ {
		locs = append(locs, &ledger.Location{
			ID:       fmt.Sprintf("abcdef%02d-0000-4000-8000-000000000000", i),
			Name:     fmt.Sprintf("L%d", i),
			IsActive: true,
		})
	}

	_, err := ResolveLocation(context.Background(), locs, "abcdef")
	var amb *AmbiguousError
	require.True(t, errors.As(err, &amb))
	assert.Len(t, amb.Matches, 12)

	msg := FormatAmbiguousError(amb)
	assert.Contains(t, msg, "matches 12 locations")
	assert.Contains(t, msg, "...and 2 more")

	loc, err := ResolveLocation(context.Background(), locs, "abcdef03")
	require.NoError(t, err)
	assert.Equal(t, "L3", loc.Name)
}
