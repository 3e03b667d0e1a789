package repository

import (
	"context"
	"strings"

	"github.com/bradfitz/gomemcache/memcache"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/totegamma/spamguard/internal/domain"
	"github.com/totegamma/spamguard/internal/infrastructure/database/models"
	"github.com/totegamma/spamguard/internal/usecase"
)

const blockedDomainCachePrefix = "spamguard:blocked_domain:"

type ModerationRepository struct {
	db *gorm.DB
	mc *memcache.Client
}

// NewModerationRepository returns a repository caching blocked domains in
// memcached. mc may be nil.
func NewModerationRepository(db *gorm.DB, mc *memcache.Client) *ModerationRepository {
	return &ModerationRepository{db: db, mc: mc}
}

func (r *ModerationRepository) IsDomainBlocked(ctx context.Context, emailDomain string) (bool, error) {
	emailDomain = strings.ToLower(emailDomain)
	if r.mc != nil {
		// a cache miss or an unreachable memcached both fall through to the db
		if _, err := r.mc.Get(blockedDomainCachePrefix + emailDomain); err == nil {
			return true, nil
		}
	}

	var count int64
	err := r.db.WithContext(ctx).Model(&models.BlockedEmailDomain{}).
		Where("domain = ?", emailDomain).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	if count > 0 {
		r.cacheBlocked(emailDomain)
	}
	return count > 0, nil
}

func (r *ModerationRepository) cacheBlocked(emailDomain string) {
	if r.mc == nil {
		return
	}
	_ = r.mc.Set(&memcache.Item{
		Key:        blockedDomainCachePrefix + emailDomain,
		Value:      []byte("1"),
		Expiration: 24 * 60 * 60,
	})
}

// suspend adds the suspended role inside tx and reports whether the user
// was not suspended before.
func suspend(tx *gorm.DB, userID int64) (bool, error) {
	result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.UserRole{
		UserID: userID,
		Name:   string(domain.RoleSuspended),
	})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *ModerationRepository) BlockDomainAndSuspend(ctx context.Context, block usecase.DomainBlock) (usecase.DomainBlockResult, error) {
	emailDomain := strings.ToLower(block.Domain)
	var result usecase.DomainBlockResult

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.BlockedEmailDomain{Domain: emailDomain})
		if inserted.Error != nil {
			return inserted.Error
		}
		if inserted.RowsAffected == 0 {
			return nil
		}

		var users []models.User
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("LOWER(email) LIKE ?", "%@"+emailDomain).
			Order("id").
			Find(&users).Error
		if err != nil {
			return err
		}

		var notes []models.Note
		var suspended []int64
		for _, u := range users {
			if usecase.ExtractDomain(u.Email) != emailDomain {
				continue
			}
			applied, err := suspend(tx, u.ID)
			if err != nil {
				return err
			}
			if !applied {
				continue
			}
			suspended = append(suspended, u.ID)
			notes = append(notes, noteModel(block.AuthorID, domain.UserRef(u.ID), block.Reason, block.Content))
		}
		if len(notes) > 0 {
			if err := tx.Create(&notes).Error; err != nil {
				return err
			}
		}

		result = usecase.DomainBlockResult{Blocked: true, Suspended: suspended}
		return nil
	})
	if err != nil {
		return usecase.DomainBlockResult{}, err
	}
	if result.Blocked {
		r.cacheBlocked(emailDomain)
	}
	return result, nil
}

func (r *ModerationRepository) AutoSuspend(ctx context.Context, s usecase.AutoSuspension) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, "id = ?", s.UserID).Error
		if err != nil {
			return notFound(err, "user")
		}

		ok, err := suspend(tx, user.ID)
		if err != nil || !ok {
			return err
		}

		note := noteModel(s.AuthorID, domain.UserRef(user.ID), s.Reason, s.Content)
		if err := tx.Create(&note).Error; err != nil {
			return err
		}

		if s.UnpublishArticles {
			err := tx.Model(&models.Article{}).
				Where("user_id = ? AND published = ?", user.ID, true).
				Update("published", false).Error
			if err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// ApplyRingPenalty multiplies the modifier of every member not already
// noted for the penalty in one statement, so concurrent penalties compose.
// Member rows stay locked until the notes are written, which keeps two
// scans of the same ring from both applying it.
func (r *ModerationRepository) ApplyRingPenalty(ctx context.Context, p usecase.RingPenalty) ([]int64, error) {
	if len(p.MemberIDs) == 0 {
		return nil, nil
	}
	var applied []int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var members []int64
		err := tx.Model(&models.User{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id IN ?", p.MemberIDs).
			Order("id").
			Pluck("id", &members).Error
		if err != nil {
			return err
		}
		if len(members) == 0 {
			return nil
		}

		var noted []int64
		err = tx.Model(&models.Note{}).
			Where("noteable_type = ? AND noteable_id IN ?", string(domain.KindUser), members).
			Where("reason = ? AND created_at >= ?", p.Reason, p.Since).
			Distinct().
			Pluck("noteable_id", &noted).Error
		if err != nil {
			return err
		}
		already := make(map[int64]bool, len(noted))
		for _, id := range noted {
			already[id] = true
		}

		fresh := make([]int64, 0, len(members))
		for _, id := range members {
			if !already[id] {
				fresh = append(fresh, id)
			}
		}
		if len(fresh) == 0 {
			return nil
		}

		err = tx.Model(&models.User{}).
			Where("id IN ?", fresh).
			Update("reputation_modifier", gorm.Expr("reputation_modifier * ?", p.Factor)).Error
		if err != nil {
			return err
		}

		notes := make([]models.Note, 0, len(fresh))
		for _, id := range fresh {
			notes = append(notes, noteModel(p.AuthorID, domain.UserRef(id), p.Reason, p.Content))
		}
		if err := tx.Create(&notes).Error; err != nil {
			return err
		}
		applied = fresh
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

// BlockedDomains lists every blocked domain, newest first.
func (r *ModerationRepository) BlockedDomains(ctx context.Context) ([]domain.BlockedEmailDomain, error) {
	var rows []models.BlockedEmailDomain
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.BlockedEmailDomain, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.BlockedEmailDomain{ID: row.ID, Domain: row.Domain, CreatedAt: row.CreatedAt})
	}
	return out, nil
}

// NotesFor returns the notes attached to subject, oldest first.
func (r *ModerationRepository) NotesFor(ctx context.Context, subject domain.Ref) ([]domain.Note, error) {
	var rows []models.Note
	err := r.db.WithContext(ctx).
		Where("noteable_type = ? AND noteable_id = ?", string(subject.Kind), subject.ID).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Note, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.Note{
			ID:        row.ID,
			AuthorID:  row.AuthorID,
			Noteable:  domain.Ref{Kind: domain.ContentKind(row.NoteableType), ID: row.NoteableID},
			Reason:    row.Reason,
			Content:   row.Content,
			CreatedAt: row.CreatedAt,
		})
	}
	return out, nil
}
