// Package engine enforces the at-most-one reaction and at-most-one view per
// actor per announcement. All counts are recomputed by query after every
// mutation rather than cached.
package engine

import (
	"errors"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/sujalbistaa/classhub/internal/identity"
	"github.com/sujalbistaa/classhub/internal/models"
)

var (
	// ErrNotFound means the target announcement does not exist.
	ErrNotFound = errors.New("announcement not found")
	// ErrReactionsDisabled means the announcement exists but does not accept
	// reactions.
	ErrReactionsDisabled = errors.New("reactions are disabled for this announcement")
)

// ReactionCount is the per-type aggregate for one announcement.
type ReactionCount struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

// Viewer describes one view record for the admin viewer list. ID and Name
// are nil for views that were never attributed to a user.
type Viewer struct {
	ID       *uint     `json:"id"`
	Name     *string   `json:"name"`
	ViewedAt time.Time `json:"viewedAt"`
}

// Engine is the reaction/view deduplication engine.
type Engine struct {
	db    *gorm.DB
	locks *lockTable
}

// New creates an Engine on top of db.
func New(db *gorm.DB) *Engine {
	return &Engine{db: db, locks: newLockTable()}
}

// AddReaction records identity's reaction to an announcement. A repeat
// reaction from the same actor replaces the stored type; it never adds a
// second record. Returns the record and the recomputed per-type counts.
func (e *Engine) AddReaction(announcementID, reactionType string, id identity.Resolved) (*models.Reaction, []ReactionCount, error) {
	var ann models.Announcement
	if err := e.db.First(&ann, "id = ?", announcementID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	if !ann.EnableReactions {
		return nil, nil, ErrReactionsDisabled
	}

	unlock := e.locks.lock("r|" + announcementID + "|" + id.Key())
	defer unlock()

	rec, err := e.upsertReaction(announcementID, reactionType, id)
	if err != nil {
		return nil, nil, err
	}

	counts, err := e.ReactionCounts(announcementID)
	if err != nil {
		return nil, nil, err
	}

	log.Printf("Reaction %q on announcement %s by %s identity", reactionType, announcementID, id.Type)
	return rec, counts, nil
}

func (e *Engine) upsertReaction(announcementID, reactionType string, id identity.Resolved) (*models.Reaction, error) {
	existing, err := findByIdentity[models.Reaction](e.db, announcementID, id)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		updates := map[string]any{"reaction_type": reactionType}
		// Identity upgrade path: add correlation keys the record lacks,
		// never overwrite populated ones.
		if id.UserID != nil && existing.UserID == nil {
			updates["user_id"] = *id.UserID
			existing.UserID = id.UserID
		}
		if id.VisitorID != nil && existing.VisitorID == nil {
			updates["visitor_id"] = *id.VisitorID
			existing.VisitorID = id.VisitorID
		}
		if err := e.db.Model(existing).Updates(updates).Error; err != nil {
			return nil, err
		}
		existing.ReactionType = reactionType
		return existing, nil
	}

	rec := models.Reaction{
		AnnouncementID:  announcementID,
		ReactionType:    reactionType,
		IdentityKey:     id.Key(),
		UserID:          id.UserID,
		VisitorID:       id.VisitorID,
		FingerprintHash: ptr(id.FingerprintHash),
		IPAddress:       ptr(id.IPAddress),
		UserAgent:       ptr(id.UserAgent),
	}
	if err := e.db.Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Another process won the insert race; treat its row as the
			// existing record and replace the type on it.
			return e.upsertReaction(announcementID, reactionType, id)
		}
		return nil, err
	}
	return &rec, nil
}

// RemoveReaction deletes the authenticated user's reaction. Removal is
// user-keyed only; visitors and anonymous actors cannot remove. A missing
// record is a no-op, and counts are returned either way.
func (e *Engine) RemoveReaction(announcementID string, userID uint) ([]ReactionCount, error) {
	res := e.db.Where("announcement_id = ? AND user_id = ?", announcementID, userID).Delete(&models.Reaction{})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected > 0 {
		log.Printf("User %d removed reaction from announcement %s", userID, announcementID)
	}
	return e.ReactionCounts(announcementID)
}

// RecordView records that identity saw the announcement. Only the first view
// per actor counts; later calls may backfill the user id onto the existing
// record but never increment. Returns whether this was a new view and the
// current counter.
func (e *Engine) RecordView(announcementID string, id identity.Resolved) (bool, int, error) {
	var ann models.Announcement
	if err := e.db.First(&ann, "id = ?", announcementID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, 0, ErrNotFound
		}
		return false, 0, err
	}
	if !ann.EnableViews {
		return false, ann.ViewCount, nil
	}

	unlock := e.locks.lock("v|" + announcementID + "|" + id.Key())
	defer unlock()

	existing, err := findByIdentity[models.View](e.db, announcementID, id)
	if err != nil {
		return false, 0, err
	}
	if existing != nil {
		if id.UserID != nil && existing.UserID == nil {
			if err := e.db.Model(existing).Update("user_id", *id.UserID).Error; err != nil {
				return false, 0, err
			}
		}
		return false, ann.ViewCount, nil
	}

	err = e.db.Transaction(func(tx *gorm.DB) error {
		view := models.View{
			AnnouncementID:  announcementID,
			IdentityKey:     id.Key(),
			UserID:          id.UserID,
			VisitorID:       id.VisitorID,
			FingerprintHash: ptr(id.FingerprintHash),
			IPAddress:       ptr(id.IPAddress),
			UserAgent:       ptr(id.UserAgent),
		}
		if err := tx.Create(&view).Error; err != nil {
			return err
		}
		// Single atomic increment against storage, never read-modify-write.
		return tx.Model(&models.Announcement{}).
			Where("id = ?", announcementID).
			UpdateColumn("view_count", gorm.Expr("view_count + ?", 1)).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost a cross-process race: the view exists, so not new.
			return false, ann.ViewCount, nil
		}
		return false, 0, err
	}

	return true, ann.ViewCount + 1, nil
}

// ReactionCounts groups reactions by type for one announcement.
func (e *Engine) ReactionCounts(announcementID string) ([]ReactionCount, error) {
	counts := []ReactionCount{}
	err := e.db.Model(&models.Reaction{}).
		Select("reaction_type AS type, COUNT(*) AS count").
		Where("announcement_id = ?", announcementID).
		Group("reaction_type").
		Order("reaction_type").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// UserReaction returns the reaction type a user has on an announcement, or
// "" when they have none.
func (e *Engine) UserReaction(announcementID string, userID uint) (string, error) {
	var rec models.Reaction
	err := e.db.Where("announcement_id = ? AND user_id = ?", announcementID, userID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return rec.ReactionType, nil
}

// Viewers lists view records newest first, with user attribution where known.
func (e *Engine) Viewers(announcementID string) ([]Viewer, error) {
	var views []models.View
	err := e.db.Preload("User").
		Where("announcement_id = ?", announcementID).
		Order("viewed_at DESC").
		Find(&views).Error
	if err != nil {
		return nil, err
	}

	viewers := make([]Viewer, 0, len(views))
	for _, v := range views {
		viewer := Viewer{ViewedAt: v.ViewedAt}
		if v.User != nil {
			viewer.ID = &v.User.ID
			viewer.Name = &v.User.Name
		}
		viewers = append(viewers, viewer)
	}
	return viewers, nil
}

// findByIdentity looks up the actor's record for an announcement in key
// priority order: userID, then visitorID, then fingerprint. Older records
// written under a weaker key still match after an identity upgrade.
func findByIdentity[T any](db *gorm.DB, announcementID string, id identity.Resolved) (*T, error) {
	type lookup struct {
		column string
		value  any
	}
	lookups := []lookup{}
	if id.UserID != nil {
		lookups = append(lookups, lookup{"user_id", *id.UserID})
	}
	if id.VisitorID != nil {
		lookups = append(lookups, lookup{"visitor_id", *id.VisitorID})
	}
	if id.FingerprintHash != "" {
		lookups = append(lookups, lookup{"fingerprint_hash", id.FingerprintHash})
	}

	for _, l := range lookups {
		var rec T
		err := db.Where("announcement_id = ? AND "+l.column+" = ?", announcementID, l.value).First(&rec).Error
		if err == nil {
			return &rec, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

func ptr[T any](v T) *T { return &v }
