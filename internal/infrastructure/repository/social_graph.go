package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/totegamma/spamguard/internal/domain"
	"github.com/totegamma/spamguard/internal/infrastructure/database/models"
)

type SocialGraphRepository struct {
	db *gorm.DB
}

func NewSocialGraphRepository(db *gorm.DB) *SocialGraphRepository {
	return &SocialGraphRepository{db: db}
}

func toSet(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// SharedOrganizationMembers reports which candidates belong to at least one
// organization the user belongs to.
func (r *SocialGraphRepository) SharedOrganizationMembers(ctx context.Context, userID int64, candidateIDs []int64) (map[int64]bool, error) {
	if len(candidateIDs) == 0 {
		return map[int64]bool{}, nil
	}
	db := r.db.WithContext(ctx)
	orgs := db.Model(&models.OrganizationMembership{}).Select("organization_id").Where("user_id = ?", userID)

	var ids []int64
	err := db.Model(&models.OrganizationMembership{}).
		Where("organization_id IN (?)", orgs).
		Where("user_id IN ?", candidateIDs).
		Distinct().
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return toSet(ids), nil
}

// FollowConnected reports which candidates follow the user or are followed
// by them.
func (r *SocialGraphRepository) FollowConnected(ctx context.Context, userID int64, candidateIDs []int64) (map[int64]bool, error) {
	if len(candidateIDs) == 0 {
		return map[int64]bool{}, nil
	}
	db := r.db.WithContext(ctx)

	var follows []models.Follow
	err := db.Where("followable_type = ?", string(domain.KindUser)).
		Where(db.Where("follower_id = ? AND followable_id IN ?", userID, candidateIDs).
			Or("followable_id = ? AND follower_id IN ?", userID, candidateIDs)).
		Find(&follows).Error
	if err != nil {
		return nil, err
	}

	connected := make(map[int64]bool)
	for _, f := range follows {
		if f.FollowerID == userID {
			connected[f.FollowableID] = true
		} else {
			connected[f.FollowerID] = true
		}
	}
	return connected, nil
}

func (r *SocialGraphRepository) UsersWithRoles(ctx context.Context, userIDs []int64, roles ...domain.Role) (map[int64]bool, error) {
	if len(userIDs) == 0 || len(roles) == 0 {
		return map[int64]bool{}, nil
	}
	var ids []int64
	err := r.db.WithContext(ctx).Model(&models.UserRole{}).
		Where("user_id IN ? AND name IN ?", userIDs, roleNames(roles)).
		Distinct().
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return toSet(ids), nil
}
