package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/totegamma/spamguard/internal/domain"
	"github.com/totegamma/spamguard/internal/infrastructure/database/models"
	"github.com/totegamma/spamguard/internal/usecase"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Get(ctx context.Context, id int64) (domain.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Preload("Roles").First(&user, "id = ?", id).Error
	if err != nil {
		return domain.User{}, notFound(err, "user")
	}
	return userFromModel(user), nil
}

// ListByEmailDomain returns every user whose email belongs to emailDomain,
// compared case-insensitively.
func (r *UserRepository) ListByEmailDomain(ctx context.Context, emailDomain string) ([]domain.User, error) {
	emailDomain = strings.ToLower(emailDomain)
	var rows []models.User
	err := r.db.WithContext(ctx).
		Preload("Roles").
		Where("LOWER(email) LIKE ?", "%@"+emailDomain).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	users := make([]domain.User, 0, len(rows))
	for _, row := range rows {
		// LIKE treats "_" as a wildcard
		if usecase.ExtractDomain(row.Email) != emailDomain {
			continue
		}
		users = append(users, userFromModel(row))
	}
	return users, nil
}
