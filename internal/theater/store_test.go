package theater

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/crud-e2e/internal/auth"
	"github.com/kuitang/crud-e2e/internal/errs"
)

func sampleFields() Fields {
	return Fields{
		Title:       "Random title",
		Date:        "Random date",
		Author:      "Random author",
		Description: "Random description",
		ImageURL:    "/images/Moulin-Rouge!-The-Musical.jpg",
	}
}

func TestFields_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, sampleFields().Validate())

	err := Fields{Title: "x", Date: "  "}.Validate()
	require.Error(t, err)
	assert.Equal(t, errs.InvalidArgument, errs.CodeOf(err))
	assert.Equal(t, "missing fields: date, author, description, imageUrl", errs.MessageOf(err))
}

func TestFields_ValidateAnyBlankFieldRejected(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		f := sampleFields()
		blank := rapid.StringMatching(`[ \t]{0,3}`).Draw(t, "blank")
		switch rapid.IntRange(0, 4).Draw(t, "field") {
		case 0:
			f.Title = blank
		case 1:
			f.Date = blank
		case 2:
			f.Author = blank
		case 3:
			f.Description = blank
		case 4:
			f.ImageURL = blank
		}
		if err := f.Validate(); errs.CodeOf(err) != errs.InvalidArgument {
			t.Fatalf("Validate(%+v) = %v, want invalid_argument", f, err)
		}
	})
}

func TestStore_CRUD(t *testing.T) {
	database, err := OpenDB("")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	ctx := context.Background()
	users := auth.NewUserService(database, auth.FakeInsecureHasher{})
	alice, err := users.Register(ctx, "abv1@abv.bg", "123456", "123456")
	require.NoError(t, err)
	bob, err := users.Register(ctx, "abv2@abv.bg", "123456", "123456")
	require.NoError(t, err)

	store := NewStore(database)
	base := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	first, err := store.Create(ctx, alice.ID, sampleFields())
	require.NoError(t, err)
	second, err := store.Create(ctx, alice.ID, sampleFields())
	require.NoError(t, err)
	other, err := store.Create(ctx, bob.ID, sampleFields())
	require.NoError(t, err)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, other.ID, all[0].ID, "newest first")

	mine, err := store.List(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID)
	assert.Equal(t, first.ID, mine[1].ID)

	none, err := store.List(ctx, "no-such-owner")
	require.NoError(t, err)
	assert.NotNil(t, none, "empty list encodes as []")
	assert.Empty(t, none)

	edited := sampleFields()
	edited.Title = "Random edited_title"
	updated, err := store.Update(ctx, first.ID, edited)
	require.NoError(t, err)
	assert.Equal(t, "Random edited_title", updated.Title)
	assert.Equal(t, first.CreatedOn, updated.CreatedOn)
	assert.Equal(t, alice.ID, updated.OwnerID)

	deletedOn, err := store.Delete(ctx, first.ID)
	require.NoError(t, err)
	assert.Greater(t, deletedOn, first.CreatedOn)

	_, err = store.Get(ctx, first.ID)
	assert.Equal(t, errs.NotFound, errs.CodeOf(err))
	_, err = store.Delete(ctx, first.ID)
	assert.Equal(t, errs.NotFound, errs.CodeOf(err))
	_, err = store.Update(ctx, first.ID, edited)
	assert.Equal(t, errs.NotFound, errs.CodeOf(err))
}
