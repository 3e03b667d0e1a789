package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/totegamma/spamguard/internal/domain"
	"github.com/totegamma/spamguard/internal/infrastructure/database/models"
)

type ContentRepository struct {
	db *gorm.DB
}

func NewContentRepository(db *gorm.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

func (r *ContentRepository) GetArticle(ctx context.Context, id int64) (domain.Article, error) {
	var article models.Article
	if err := r.db.WithContext(ctx).First(&article, "id = ?", id).Error; err != nil {
		return domain.Article{}, notFound(err, "article")
	}
	return domain.Article{
		ID:            article.ID,
		UserID:        article.UserID,
		Title:         article.Title,
		BodyMarkdown:  article.BodyMarkdown,
		ProcessedHTML: article.ProcessedHTML,
		Published:     article.Published,
		CreatedAt:     article.CreatedAt,
	}, nil
}

func (r *ContentRepository) GetComment(ctx context.Context, id int64) (domain.Comment, error) {
	var comment models.Comment
	if err := r.db.WithContext(ctx).First(&comment, "id = ?", id).Error; err != nil {
		return domain.Comment{}, notFound(err, "comment")
	}
	return domain.Comment{
		ID:            comment.ID,
		UserID:        comment.UserID,
		BodyMarkdown:  comment.BodyMarkdown,
		ProcessedHTML: comment.ProcessedHTML,
		CreatedAt:     comment.CreatedAt,
	}, nil
}
