package repository

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/totegamma/spamguard/internal/domain"
	"github.com/totegamma/spamguard/internal/infrastructure/database/models"
)

// organicReactableTypes are the reactables ring detection looks at.
var organicReactableTypes = []string{string(domain.KindArticle), string(domain.KindComment)}

func organicCategories() []string {
	out := make([]string, 0, len(domain.OrganicCategories))
	for _, c := range domain.OrganicCategories {
		out = append(out, string(c))
	}
	return out
}

func roleNames(roles []domain.Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, string(r))
	}
	return out
}

// notFound converts gorm's record-not-found into the domain error.
func notFound(err error, resource string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NewNotFound(resource)
	}
	return err
}

func userFromModel(m models.User) domain.User {
	roles := make([]domain.Role, 0, len(m.Roles))
	for _, r := range m.Roles {
		roles = append(roles, domain.Role(r.Name))
	}
	return domain.User{
		ID:                     m.ID,
		Name:                   m.Name,
		Username:               m.Username,
		Email:                  m.Email,
		Summary:                m.Summary,
		WebsiteURL:             m.WebsiteURL,
		ReputationModifier:     m.ReputationModifier,
		BadgeAchievementsCount: m.BadgeAchievementsCount,
		Roles:                  roles,
		CreatedAt:              m.CreatedAt,
		UpdatedAt:              m.UpdatedAt,
	}
}

func reactionFromModel(m models.Reaction) domain.Reaction {
	return domain.Reaction{
		ID:        m.ID,
		UserID:    m.UserID,
		Reactable: domain.Ref{Kind: domain.ContentKind(m.ReactableType), ID: m.ReactableID},
		Category:  domain.ReactionCategory(m.Category),
		Status:    domain.ReactionStatus(m.Status),
		CreatedAt: m.CreatedAt,
	}
}

func noteModel(authorID int64, subject domain.Ref, reason, content string) models.Note {
	return models.Note{
		AuthorID:     authorID,
		NoteableID:   subject.ID,
		NoteableType: string(subject.Kind),
		Reason:       reason,
		Content:      content,
	}
}
