package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/totegamma/spamguard/internal/domain"
	"github.com/totegamma/spamguard/internal/infrastructure/database/models"
)

var contentTables = map[domain.ContentKind]string{
	domain.KindArticle: "articles",
	domain.KindComment: "comments",
}

type ReactionRepository struct {
	db *gorm.DB
}

func NewReactionRepository(db *gorm.DB) *ReactionRepository {
	return &ReactionRepository{db: db}
}

func (r *ReactionRepository) CreateModerationReaction(ctx context.Context, reaction domain.Reaction) (domain.Reaction, bool, error) {
	db := r.db.WithContext(ctx)
	row := models.Reaction{
		UserID:        reaction.UserID,
		ReactableID:   reaction.Reactable.ID,
		ReactableType: string(reaction.Reactable.Kind),
		Category:      string(reaction.Category),
		Status:        string(reaction.Status),
		Points:        1,
	}
	result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if result.Error != nil {
		return domain.Reaction{}, false, result.Error
	}
	if result.RowsAffected > 0 {
		return reactionFromModel(row), true, nil
	}

	var existing models.Reaction
	err := db.Where(
		"user_id = ? AND reactable_id = ? AND reactable_type = ? AND category = ?",
		row.UserID, row.ReactableID, row.ReactableType, row.Category,
	).First(&existing).Error
	if err != nil {
		return domain.Reaction{}, false, err
	}
	return reactionFromModel(existing), false, nil
}

func (r *ReactionRepository) CountSpamReactions(ctx context.Context, authorID int64, kind domain.ContentKind, includeProfile bool) (int64, error) {
	table, ok := contentTables[kind]
	if !ok {
		return 0, fmt.Errorf("unsupported content kind %q", kind)
	}
	db := r.db.WithContext(ctx)

	owned := db.Table(table).Select("id").Where("user_id = ?", authorID)
	target := db.Where("reactable_type = ? AND reactable_id IN (?)", string(kind), owned)
	if includeProfile {
		target = target.Or("reactable_type = ? AND reactable_id = ?", string(domain.KindUser), authorID)
	}

	var count int64
	err := db.Model(&models.Reaction{}).
		Where("category = ?", string(domain.CategoryVomit)).
		Where("status IN ?", []string{string(domain.StatusValid), string(domain.StatusConfirmed)}).
		Where(target).
		Count(&count).Error
	return count, err
}

// organic restricts a reactions query to the reactions ring detection counts.
func organic(db *gorm.DB, since time.Time) *gorm.DB {
	return db.
		Where("reactions.category IN ?", organicCategories()).
		Where("reactions.status <> ?", string(domain.StatusInvalid)).
		Where("reactions.reactable_type IN ?", organicReactableTypes).
		Where("reactions.created_at >= ?", since)
}

func (r *ReactionRepository) CountOrganicReactions(ctx context.Context, userID int64, since time.Time) (int64, error) {
	var count int64
	err := organic(r.db.WithContext(ctx).Model(&models.Reaction{}), since).
		Where("reactions.user_id = ?", userID).
		Count(&count).Error
	return count, err
}

type factRow struct {
	ReactorID     int64
	AuthorID      int64
	ReactableID   int64
	ReactableType string
	CreatedAt     time.Time
}

// facts resolves organic reactions to content authors, one query per
// content table.
func (r *ReactionRepository) facts(ctx context.Context, since time.Time, scope func(db *gorm.DB, table string) *gorm.DB) ([]domain.ReactionFact, error) {
	var out []domain.ReactionFact
	for _, kind := range []domain.ContentKind{domain.KindArticle, domain.KindComment} {
		table := contentTables[kind]
		q := r.db.WithContext(ctx).Table("reactions").
			Select(fmt.Sprintf(
				"reactions.user_id AS reactor_id, %s.user_id AS author_id, reactions.reactable_id AS reactable_id, reactions.reactable_type AS reactable_type, reactions.created_at AS created_at",
				table,
			)).
			Joins(fmt.Sprintf("JOIN %s ON %s.id = reactions.reactable_id", table, table)).
			Where("reactions.reactable_type = ?", string(kind))
		q = scope(organic(q, since), table)

		var rows []factRow
		if err := q.Scan(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			out = append(out, domain.ReactionFact{
				ReactorID: row.ReactorID,
				AuthorID:  row.AuthorID,
				Reactable: domain.Ref{Kind: domain.ContentKind(row.ReactableType), ID: row.ReactableID},
				CreatedAt: row.CreatedAt,
			})
		}
	}
	return out, nil
}

func (r *ReactionRepository) ReactionFactsByUser(ctx context.Context, userID int64, since time.Time) ([]domain.ReactionFact, error) {
	return r.facts(ctx, since, func(db *gorm.DB, _ string) *gorm.DB {
		return db.Where("reactions.user_id = ?", userID)
	})
}

func (r *ReactionRepository) ReactionFactsOnAuthors(ctx context.Context, authorIDs []int64, since time.Time) ([]domain.ReactionFact, error) {
	if len(authorIDs) == 0 {
		return nil, nil
	}
	return r.facts(ctx, since, func(db *gorm.DB, table string) *gorm.DB {
		return db.Where(table+".user_id IN ?", authorIDs)
	})
}

type totalRow struct {
	UserID    int64
	Total     int64
	SelfCount int64
}

func (r *ReactionRepository) ReactionTotals(ctx context.Context, userIDs []int64, since time.Time) (map[int64]domain.ReactionTotals, error) {
	totals := make(map[int64]domain.ReactionTotals, len(userIDs))
	if len(userIDs) == 0 {
		return totals, nil
	}
	for _, kind := range []domain.ContentKind{domain.KindArticle, domain.KindComment} {
		table := contentTables[kind]
		q := r.db.WithContext(ctx).Table("reactions").
			Select(fmt.Sprintf(
				"reactions.user_id AS user_id, COUNT(*) AS total, SUM(CASE WHEN %s.user_id = reactions.user_id THEN 1 ELSE 0 END) AS self_count",
				table,
			)).
			Joins(fmt.Sprintf("JOIN %s ON %s.id = reactions.reactable_id", table, table)).
			Where("reactions.reactable_type = ?", string(kind)).
			Where("reactions.user_id IN ?", userIDs)

		var rows []totalRow
		if err := organic(q, since).Group("reactions.user_id").Scan(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			t := totals[row.UserID]
			t.Total += row.Total
			t.Self += row.SelfCount
			totals[row.UserID] = t
		}
	}
	return totals, nil
}

func (r *ReactionRepository) ActiveReactors(ctx context.Context, since time.Time, minReactions int64) ([]int64, error) {
	var ids []int64
	err := organic(r.db.WithContext(ctx).Model(&models.Reaction{}), since).
		Group("reactions.user_id").
		Having("COUNT(*) >= ?", minReactions).
		Order("reactions.user_id").
		Pluck("reactions.user_id", &ids).Error
	return ids, err
}
