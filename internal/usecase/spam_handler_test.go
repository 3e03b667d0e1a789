package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/totegamma/spamguard/internal/domain"
)

const mascotID = 1

type handlerFixture struct {
	users      *mockUserRepo
	content    *mockContentRepo
	reactions  *mockReactionRepo
	moderation *mockModerationRepo
	classifier *mockClassifier
	flags      mockFlags
	signal     *mockSignal
	config     domain.SpamConfig
}

func newHandlerFixture() *handlerFixture {
	f := &handlerFixture{
		users: newMockUserRepo(
			domain.User{ID: 7, Name: "Spammy", Username: "spammy", Email: "s@spam.io"},
			domain.User{ID: 8, Name: "Veteran", BadgeAchievementsCount: 7},
			domain.User{ID: 9, Name: "Supporter", Roles: []domain.Role{domain.RoleSubscriber}},
		),
		content: &mockContentRepo{
			articles: map[int64]domain.Article{
				100: {ID: 100, UserID: 7, Title: "Buy cheap pills", BodyMarkdown: "limited offer", ProcessedHTML: "<p>limited offer</p>"},
				101: {ID: 101, UserID: 7, Title: "Hello", BodyMarkdown: "an honest post"},
				102: {ID: 102, UserID: 8, Title: "Buy cheap pills", BodyMarkdown: "trusted"},
				103: {ID: 103, UserID: 9, Title: "Buy cheap pills", BodyMarkdown: "subscriber"},
			},
			comments: map[int64]domain.Comment{
				200: {ID: 200, UserID: 7, BodyMarkdown: "cheap pills here"},
				201: {ID: 201, UserID: 7, BodyMarkdown: "nice article"},
			},
		},
		reactions:  newMockReactionRepo(),
		classifier: &mockClassifier{},
		flags:      mockFlags{},
		signal:     &mockSignal{},
		config:     domain.DefaultSpamConfig(),
	}
	f.config.MascotUserID = mascotID
	f.config.AIAPIKeyPresent = true
	f.config.AITimeout = 50 * time.Millisecond
	f.moderation = newMockModerationRepo(f.users)
	for id, a := range f.content.articles {
		f.reactions.owners[domain.ArticleRef(id)] = a.UserID
	}
	for id, c := range f.content.comments {
		f.reactions.owners[domain.CommentRef(id)] = c.UserID
	}
	return f
}

func (f *handlerFixture) handler() *SpamHandler {
	classifiers := map[domain.ContentKind]ContentClassifier{
		domain.KindArticle: f.classifier,
		domain.KindComment: f.classifier,
		domain.KindUser:    f.classifier,
	}
	h := NewSpamHandler(
		f.users, f.content, f.reactions, f.moderation,
		&mockTrigger{terms: []string{"cheap pills"}},
		classifiers, f.flags, f.signal, f.config, zap.NewNop(),
	)
	h.now = func() time.Time { return fixedNow }
	return h
}

// seedVomit adds prior moderation reactions on the given content.
func (f *handlerFixture) seedVomit(authorID int64, refs ...domain.Ref) {
	for _, ref := range refs {
		f.reactions.owners[ref] = authorID
		f.reactions.reactions = append(f.reactions.reactions, domain.Reaction{
			UserID:    mascotID,
			Reactable: ref,
			Category:  domain.CategoryVomit,
			Status:    domain.StatusValid,
		})
	}
}

func TestHandleArticleKeywordFlagsArticle(t *testing.T) {
	f := newHandlerFixture()
	outcome, err := f.handler().HandleArticle(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFlagged, outcome)

	require.Len(t, f.reactions.reactions, 1)
	r := f.reactions.reactions[0]
	assert.Equal(t, int64(mascotID), r.UserID)
	assert.Equal(t, domain.ArticleRef(100), r.Reactable)
	assert.Equal(t, domain.CategoryVomit, r.Category)
	assert.Equal(t, domain.StatusValid, r.Status)

	assert.Zero(t, f.classifier.calls, "keyword hit should short-circuit the classifier")
	assert.False(t, f.users.users[7].Suspended())
	assert.Equal(t, []domain.SignalType{domain.SignalSpamFlagged}, f.signal.types())
}

func TestHandleArticleIsIdempotent(t *testing.T) {
	f := newHandlerFixture()
	h := f.handler()
	for i := 0; i < 2; i++ {
		outcome, err := h.HandleArticle(context.Background(), 100)
		require.NoError(t, err)
		assert.Equal(t, OutcomeFlagged, outcome)
	}
	assert.Len(t, f.reactions.reactions, 1)
	assert.Len(t, f.signal.signals, 1)
}

func TestHandleArticleTrustedAuthors(t *testing.T) {
	f := newHandlerFixture()
	h := f.handler()
	for _, id := range []int64{102, 103} {
		outcome, err := h.HandleArticle(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, OutcomeNotSpam, outcome)
	}
	assert.Empty(t, f.reactions.reactions)
	assert.Zero(t, f.classifier.calls)
}

func TestHandleArticleBadgeThresholdIsStrict(t *testing.T) {
	f := newHandlerFixture()
	f.users.users[7] = domain.User{ID: 7, BadgeAchievementsCount: 6}
	outcome, err := f.handler().HandleArticle(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFlagged, outcome)
}

func TestHandleArticleClassifier(t *testing.T) {
	t.Run("spam verdict flags", func(t *testing.T) {
		f := newHandlerFixture()
		f.classifier.spam = true
		outcome, err := f.handler().HandleArticle(context.Background(), 101)
		require.NoError(t, err)
		assert.Equal(t, OutcomeFlagged, outcome)
		require.Len(t, f.classifier.seen, 1)
		assert.Equal(t, domain.KindArticle, f.classifier.seen[0].Kind)
		assert.Equal(t, "Hello", f.classifier.seen[0].Title)
		assert.Equal(t, "an honest post", f.classifier.seen[0].Body)
	})

	t.Run("error is not spam", func(t *testing.T) {
		f := newHandlerFixture()
		f.classifier.err = errors.New("quota exceeded")
		outcome, err := f.handler().HandleArticle(context.Background(), 101)
		require.NoError(t, err)
		assert.Equal(t, OutcomeNotSpam, outcome)
		assert.Empty(t, f.reactions.reactions)
	})

	t.Run("timeout is not spam", func(t *testing.T) {
		f := newHandlerFixture()
		f.classifier.block = true
		outcome, err := f.handler().HandleArticle(context.Background(), 101)
		require.NoError(t, err)
		assert.Equal(t, OutcomeNotSpam, outcome)
	})

	t.Run("skipped without api key", func(t *testing.T) {
		f := newHandlerFixture()
		f.config.AIAPIKeyPresent = false
		f.classifier.spam = true
		outcome, err := f.handler().HandleArticle(context.Background(), 101)
		require.NoError(t, err)
		assert.Equal(t, OutcomeNotSpam, outcome)
		assert.Zero(t, f.classifier.calls)
	})
}

func TestHandleArticleRepeatOffenderIsSuspended(t *testing.T) {
	f := newHandlerFixture()
	f.seedVomit(7, domain.ArticleRef(90), domain.ArticleRef(91))

	outcome, err := f.handler().HandleArticle(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuspended, outcome)

	assert.True(t, f.users.users[7].Suspended())
	require.Len(t, f.moderation.notes, 1)
	note := f.moderation.notes[0]
	assert.Equal(t, domain.ReasonAutomaticSuspend, note.Reason)
	assert.Equal(t, int64(mascotID), note.AuthorID)
	assert.Equal(t, domain.UserRef(7), note.Noteable)
	assert.Equal(t, "User suspended for too many spammy articles, triggered by autovomit.", note.Content)

	require.Len(t, f.moderation.suspensions, 1)
	assert.False(t, f.moderation.suspensions[0].UnpublishArticles)
	assert.Equal(t,
		[]domain.SignalType{domain.SignalSpamFlagged, domain.SignalAutoSuspended},
		f.signal.types(),
	)
}

func TestHandleArticleZeroThresholds(t *testing.T) {
	f := newHandlerFixture()
	f.config.SpammyReactionThreshold = 0
	f.config.ArticleBadgeTrustThreshold = 0
	f.users.users[7] = domain.User{ID: 7, Name: "Spammy", BadgeAchievementsCount: 0}

	outcome, err := f.handler().HandleArticle(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuspended, outcome)
	assert.True(t, f.users.users[7].Suspended())

	// a single badge is enough trust with a zero badge threshold
	f = newHandlerFixture()
	f.config.ArticleBadgeTrustThreshold = 0
	f.users.users[7] = domain.User{ID: 7, Name: "Spammy", BadgeAchievementsCount: 1}
	outcome, err = f.handler().HandleArticle(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotSpam, outcome)
}

func TestHandleArticleIgnoresInvalidAndOtherKindReactions(t *testing.T) {
	f := newHandlerFixture()
	f.seedVomit(7, domain.CommentRef(90), domain.CommentRef(91))
	f.reactions.owners[domain.ArticleRef(92)] = 7
	f.reactions.reactions = append(f.reactions.reactions, domain.Reaction{
		UserID: 5, Reactable: domain.ArticleRef(92), Category: domain.CategoryVomit, Status: domain.StatusInvalid,
	})

	outcome, err := f.handler().HandleArticle(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFlagged, outcome)
	assert.False(t, f.users.users[7].Suspended())
}

func TestHandleArticleUnpublishesWhenFlagEnabled(t *testing.T) {
	f := newHandlerFixture()
	f.flags[domain.FlagUnpublishOnAutoSuspend] = true
	f.seedVomit(7, domain.ArticleRef(90), domain.ArticleRef(91))

	outcome, err := f.handler().HandleArticle(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuspended, outcome)
	require.Len(t, f.moderation.suspensions, 1)
	assert.True(t, f.moderation.suspensions[0].UnpublishArticles)
}

func TestHandleArticleAlreadySuspendedAuthor(t *testing.T) {
	f := newHandlerFixture()
	u := f.users.users[7]
	u.Roles = []domain.Role{domain.RoleSuspended}
	f.users.users[7] = u
	f.seedVomit(7, domain.ArticleRef(90), domain.ArticleRef(91))

	outcome, err := f.handler().HandleArticle(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuspended, outcome)
	assert.Empty(t, f.moderation.notes)
}

func TestHandleArticleNotFound(t *testing.T) {
	f := newHandlerFixture()
	outcome, err := f.handler().HandleArticle(context.Background(), 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, OutcomeNotSpam, outcome)
}

func TestHandleArticlePersistenceError(t *testing.T) {
	f := newHandlerFixture()
	f.reactions.err = errors.New("deadlock")
	_, err := f.handler().HandleArticle(context.Background(), 100)
	assert.Error(t, err)
}

func TestHandleComment(t *testing.T) {
	t.Run("clean comment", func(t *testing.T) {
		f := newHandlerFixture()
		outcome, err := f.handler().HandleComment(context.Background(), 201)
		require.NoError(t, err)
		assert.Equal(t, OutcomeNotSpam, outcome)
		require.Len(t, f.classifier.seen, 1)
		assert.Equal(t, domain.KindComment, f.classifier.seen[0].Kind)
	})

	t.Run("keyword flags", func(t *testing.T) {
		f := newHandlerFixture()
		outcome, err := f.handler().HandleComment(context.Background(), 200)
		require.NoError(t, err)
		assert.Equal(t, OutcomeFlagged, outcome)
		require.Len(t, f.reactions.reactions, 1)
		assert.Equal(t, domain.CommentRef(200), f.reactions.reactions[0].Reactable)
	})

	t.Run("repeat offender counts comments only", func(t *testing.T) {
		f := newHandlerFixture()
		f.flags[domain.FlagUnpublishOnAutoSuspend] = true
		f.seedVomit(7, domain.CommentRef(90), domain.CommentRef(91))
		outcome, err := f.handler().HandleComment(context.Background(), 200)
		require.NoError(t, err)
		assert.Equal(t, OutcomeSuspended, outcome)
		require.Len(t, f.moderation.notes, 1)
		assert.Equal(t, "User suspended for too many spammy comments, triggered by autovomit.", f.moderation.notes[0].Content)
	})
}

func TestHandleUser(t *testing.T) {
	t.Run("flag disabled", func(t *testing.T) {
		f := newHandlerFixture()
		u := f.users.users[7]
		u.Summary = "cheap pills"
		f.users.users[7] = u
		outcome, err := f.handler().HandleUser(context.Background(), 7, HandleUserOptions{})
		require.NoError(t, err)
		assert.Equal(t, OutcomeNotSpam, outcome)
		assert.Empty(t, f.reactions.reactions)
	})

	t.Run("rigorous option flags profile", func(t *testing.T) {
		f := newHandlerFixture()
		u := f.users.users[7]
		u.Summary = "cheap pills"
		f.users.users[7] = u
		outcome, err := f.handler().HandleUser(context.Background(), 7, HandleUserOptions{Rigorous: true})
		require.NoError(t, err)
		assert.Equal(t, OutcomeFlagged, outcome)
		require.Len(t, f.reactions.reactions, 1)
		assert.Equal(t, domain.UserRef(7), f.reactions.reactions[0].Reactable)
	})

	t.Run("subscriber is trusted", func(t *testing.T) {
		f := newHandlerFixture()
		f.flags[domain.FlagMoreRigorousProfileChecking] = true
		f.classifier.spam = true
		outcome, err := f.handler().HandleUser(context.Background(), 9, HandleUserOptions{})
		require.NoError(t, err)
		assert.Equal(t, OutcomeNotSpam, outcome)
	})

	t.Run("profile and articles count together", func(t *testing.T) {
		f := newHandlerFixture()
		f.flags[domain.FlagMoreRigorousProfileChecking] = true
		f.flags[domain.FlagUnpublishOnAutoSuspend] = true
		f.classifier.spam = true
		f.seedVomit(7, domain.ArticleRef(90), domain.ArticleRef(91))

		outcome, err := f.handler().HandleUser(context.Background(), 7, HandleUserOptions{})
		require.NoError(t, err)
		assert.Equal(t, OutcomeSuspended, outcome)
		require.Len(t, f.moderation.suspensions, 1)
		assert.False(t, f.moderation.suspensions[0].UnpublishArticles)
		assert.Equal(t,
			"User suspended for too many spammy articles and profile content, triggered by autovomit.",
			f.moderation.suspensions[0].Content,
		)
	})
}
