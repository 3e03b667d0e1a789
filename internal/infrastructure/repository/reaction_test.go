package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totegamma/spamguard/internal/domain"
)

func TestCreateModerationReactionIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	repo := NewReactionRepository(db)
	r := domain.Reaction{
		UserID:    1,
		Reactable: domain.ArticleRef(10),
		Category:  domain.CategoryVomit,
		Status:    domain.StatusValid,
	}

	first, created, err := repo.CreateModerationReaction(context.Background(), r)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, first.ID)

	second, created, err := repo.CreateModerationReaction(context.Background(), r)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, domain.ArticleRef(10), second.Reactable)

	var count int64
	require.NoError(t, db.Table("reactions").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCountSpamReactions(t *testing.T) {
	db := newTestDB(t)
	seedArticle(t, db, 10, 7)
	seedArticle(t, db, 11, 7)
	seedArticle(t, db, 12, 8)
	seedComment(t, db, 20, 7)

	at := baseTime
	seedReaction(t, db, 1, "Article", 10, "vomit", "valid", at)
	seedReaction(t, db, 2, "Article", 11, "vomit", "confirmed", at)
	seedReaction(t, db, 3, "Article", 11, "vomit", "invalid", at)
	seedReaction(t, db, 1, "Article", 11, "like", "valid", at)
	seedReaction(t, db, 1, "Article", 12, "vomit", "valid", at)
	seedReaction(t, db, 1, "Comment", 20, "vomit", "valid", at)
	seedReaction(t, db, 1, "User", 7, "vomit", "valid", at)
	repo := NewReactionRepository(db)
	ctx := context.Background()

	n, err := repo.CountSpamReactions(ctx, 7, domain.KindArticle, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.CountSpamReactions(ctx, 7, domain.KindArticle, true)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = repo.CountSpamReactions(ctx, 7, domain.KindComment, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.CountSpamReactions(ctx, 7, domain.KindUser, false)
	assert.Error(t, err)
}

func seedOrganicFixture(t *testing.T) *ReactionRepository {
	db := newTestDB(t)
	seedArticle(t, db, 10, 1)
	seedArticle(t, db, 11, 2)
	seedArticle(t, db, 12, 5)
	seedComment(t, db, 20, 1)

	recent := baseTime.Add(-time.Hour)
	old := baseTime.AddDate(-1, 0, 0)
	// user 5 reacts to author 1 twice, author 2 once and themself once
	seedReaction(t, db, 5, "Article", 10, "like", "valid", recent)
	seedReaction(t, db, 5, "Comment", 20, "fire", "confirmed", recent)
	seedReaction(t, db, 5, "Article", 11, "unicorn", "valid", recent)
	seedReaction(t, db, 5, "Article", 12, "like", "valid", recent)
	// excluded: moderation category, invalid status, too old, user reactable
	seedReaction(t, db, 5, "Article", 11, "vomit", "valid", recent)
	seedReaction(t, db, 5, "Article", 10, "raised_hands", "invalid", recent)
	seedReaction(t, db, 5, "Article", 11, "fire", "valid", old)
	seedReaction(t, db, 5, "User", 1, "like", "valid", recent)
	// user 6 reacts to author 2
	seedReaction(t, db, 6, "Article", 11, "like", "valid", recent)
	return NewReactionRepository(db)
}

func TestOrganicReactionQueries(t *testing.T) {
	repo := seedOrganicFixture(t)
	ctx := context.Background()
	since := baseTime.AddDate(0, -3, 0)

	n, err := repo.CountOrganicReactions(ctx, 5, since)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	facts, err := repo.ReactionFactsByUser(ctx, 5, since)
	require.NoError(t, err)
	perAuthor := map[int64]int{}
	for _, f := range facts {
		assert.Equal(t, int64(5), f.ReactorID)
		perAuthor[f.AuthorID]++
	}
	assert.Equal(t, map[int64]int{1: 2, 2: 1, 5: 1}, perAuthor)

	onAuthors, err := repo.ReactionFactsOnAuthors(ctx, []int64{2}, since)
	require.NoError(t, err)
	reactors := map[int64]int{}
	for _, f := range onAuthors {
		assert.Equal(t, int64(2), f.AuthorID)
		assert.Equal(t, domain.ArticleRef(11), f.Reactable)
		reactors[f.ReactorID]++
	}
	assert.Equal(t, map[int64]int{5: 1, 6: 1}, reactors)

	totals, err := repo.ReactionTotals(ctx, []int64{5, 6, 9}, since)
	require.NoError(t, err)
	assert.Equal(t, domain.ReactionTotals{Total: 4, Self: 1}, totals[5])
	assert.Equal(t, domain.ReactionTotals{Total: 1}, totals[6])
	assert.NotContains(t, totals, int64(9))

	active, err := repo.ActiveReactors(ctx, since, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, active)

	active, err = repo.ActiveReactors(ctx, since, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 6}, active)
}
