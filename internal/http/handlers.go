package http

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/sujalbistaa/classhub/internal/auth"
	"github.com/sujalbistaa/classhub/internal/engine"
	"github.com/sujalbistaa/classhub/internal/identity"
	"github.com/sujalbistaa/classhub/internal/media"
	"github.com/sujalbistaa/classhub/internal/models"
	"github.com/sujalbistaa/classhub/internal/ws"
)

// Env holds the handler dependencies.
type Env struct {
	DB       *gorm.DB
	Engine   *engine.Engine
	Auth     *auth.Service
	Resolver *identity.Resolver
	Gateway  *ws.Gateway
	Uploader media.Uploader
}

// --- Structs for request binding ---

type CreateAnnouncementInput struct {
	Title           string     `json:"title" binding:"required,min=1,max=250"`
	Content         string     `json:"content" binding:"required"`
	Priority        string     `json:"priority" binding:"omitempty,oneof=low medium high urgent"`
	IsPinned        *bool      `json:"isPinned"`
	EnableViews     *bool      `json:"enableViews"`
	EnableReactions *bool      `json:"enableReactions"`
	ExpiresAt       *time.Time `json:"expiresAt"`
}

type UpdateAnnouncementInput struct {
	Title           *string    `json:"title" binding:"omitempty,min=1,max=250"`
	Content         *string    `json:"content"`
	Priority        *string    `json:"priority" binding:"omitempty,oneof=low medium high urgent"`
	IsActive        *bool      `json:"isActive"`
	IsPinned        *bool      `json:"isPinned"`
	EnableViews     *bool      `json:"enableViews"`
	EnableReactions *bool      `json:"enableReactions"`
	ExpiresAt       *time.Time `json:"expiresAt"`
}

type ReactionInput struct {
	ReactionType string `json:"reactionType" binding:"required,oneof=like love haha wow sad angry"`
}

// AuthorInfo is the public slice of a user attached to responses.
type AuthorInfo struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// AnnouncementResponse is an announcement with its derived stats.
type AnnouncementResponse struct {
	models.Announcement
	Author         *AuthorInfo            `json:"author"`
	Reactions      []engine.ReactionCount `json:"reactions"`
	TotalReactions int64                  `json:"totalReactions"`
	UserReaction   string                 `json:"userReaction,omitempty"`
}

// resolveIdentity computes the request identity, minting the visitor cookie
// as a side effect when absent.
func (e *Env) resolveIdentity(c *gin.Context) identity.Resolved {
	var userID *uint
	if claims, ok := auth.CurrentUser(c); ok {
		userID = &claims.UserID
	}
	return e.Resolver.Resolve(c.Writer, c.Request, c.ClientIP(), userID)
}

func (e *Env) toResponse(ann models.Announcement, userID *uint) (AnnouncementResponse, error) {
	counts, err := e.Engine.ReactionCounts(ann.ID)
	if err != nil {
		return AnnouncementResponse{}, err
	}
	var total int64
	for _, rc := range counts {
		total += rc.Count
	}

	resp := AnnouncementResponse{
		Announcement:   ann,
		Reactions:      counts,
		TotalReactions: total,
	}
	if ann.AuthorID != nil {
		var author models.User
		if err := e.DB.Select("id", "name").First(&author, *ann.AuthorID).Error; err == nil {
			resp.Author = &AuthorInfo{ID: author.ID, Name: author.Name}
		}
	}
	if userID != nil {
		reaction, err := e.Engine.UserReaction(ann.ID, *userID)
		if err != nil {
			return AnnouncementResponse{}, err
		}
		resp.UserReaction = reaction
	}
	return resp, nil
}

func (e *Env) toResponses(anns []models.Announcement, userID *uint) ([]AnnouncementResponse, error) {
	out := make([]AnnouncementResponse, 0, len(anns))
	for _, ann := range anns {
		resp, err := e.toResponse(ann, userID)
		if err != nil {
			return nil, err
		}
		out = append(out, resp)
	}
	return out, nil
}

func currentUserID(c *gin.Context) *uint {
	if claims, ok := auth.CurrentUser(c); ok {
		return &claims.UserID
	}
	return nil
}

// --- Announcement handlers ---

func (e *Env) GetAnnouncements(c *gin.Context) {
	var anns []models.Announcement
	err := e.DB.
		Where("is_active = ?", true).
		Where("expires_at IS NULL OR expires_at > ?", time.Now()).
		Order("is_pinned DESC, created_at DESC").
		Find(&anns).Error
	if err != nil {
		log.Printf("Error fetching announcements: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch announcements"})
		return
	}

	resp, err := e.toResponses(anns, currentUserID(c))
	if err != nil {
		log.Printf("Error building announcement responses: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch announcements"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (e *Env) GetAllAnnouncements(c *gin.Context) {
	var anns []models.Announcement
	if err := e.DB.Order("is_pinned DESC, created_at DESC").Find(&anns).Error; err != nil {
		log.Printf("Error fetching announcements: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch announcements"})
		return
	}

	resp, err := e.toResponses(anns, currentUserID(c))
	if err != nil {
		log.Printf("Error building announcement responses: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch announcements"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (e *Env) GetAnnouncement(c *gin.Context) {
	var ann models.Announcement
	if err := e.DB.First(&ann, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Announcement not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch announcement"})
		return
	}

	resp, err := e.toResponse(ann, currentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch announcement"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (e *Env) CreateAnnouncement(c *gin.Context) {
	var input CreateAnnouncementInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	claims, _ := auth.CurrentUser(c)

	ann := models.Announcement{
		Title:           input.Title,
		Content:         input.Content,
		Priority:        models.PriorityMedium,
		IsActive:        true,
		EnableViews:     true,
		EnableReactions: true,
		ExpiresAt:       input.ExpiresAt,
		AuthorID:        &claims.UserID,
	}
	if input.Priority != "" {
		ann.Priority = input.Priority
	}
	if input.EnableViews != nil {
		ann.EnableViews = *input.EnableViews
	}
	if input.EnableReactions != nil {
		ann.EnableReactions = *input.EnableReactions
	}
	if input.IsPinned != nil && *input.IsPinned {
		now := time.Now()
		ann.IsPinned = true
		ann.PinnedAt = &now
	}

	if err := e.DB.Create(&ann).Error; err != nil {
		log.Printf("Error creating announcement: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create announcement"})
		return
	}
	log.Printf("Announcement %s created by user %d", ann.ID, claims.UserID)

	resp, err := e.toResponse(ann, &claims.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create announcement"})
		return
	}

	e.Gateway.Hub().EmitGlobal(ws.EventNew, resp)
	c.JSON(http.StatusCreated, resp)
}

func (e *Env) UpdateAnnouncement(c *gin.Context) {
	var input UpdateAnnouncementInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	var ann models.Announcement
	if err := e.DB.First(&ann, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Announcement not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update announcement"})
		return
	}

	if input.Title != nil {
		ann.Title = *input.Title
	}
	if input.Content != nil {
		ann.Content = *input.Content
	}
	if input.Priority != nil {
		ann.Priority = *input.Priority
	}
	if input.IsActive != nil {
		ann.IsActive = *input.IsActive
	}
	if input.EnableViews != nil {
		ann.EnableViews = *input.EnableViews
	}
	if input.EnableReactions != nil {
		ann.EnableReactions = *input.EnableReactions
	}
	if input.ExpiresAt != nil {
		ann.ExpiresAt = input.ExpiresAt
	}
	if input.IsPinned != nil && *input.IsPinned != ann.IsPinned {
		ann.IsPinned = *input.IsPinned
		if ann.IsPinned {
			now := time.Now()
			ann.PinnedAt = &now
		} else {
			ann.PinnedAt = nil
		}
	}

	if err := e.DB.Save(&ann).Error; err != nil {
		log.Printf("Error updating announcement: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update announcement"})
		return
	}

	resp, err := e.toResponse(ann, currentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update announcement"})
		return
	}

	e.Gateway.Hub().EmitGlobal(ws.EventUpdate, resp)
	e.Gateway.Hub().EmitRoom(ann.ID, ws.EventUpdate, resp)
	c.JSON(http.StatusOK, resp)
}

func (e *Env) DeleteAnnouncement(c *gin.Context) {
	id := c.Param("id")

	err := e.DB.Transaction(func(tx *gorm.DB) error {
		var ann models.Announcement
		if err := tx.First(&ann, "id = ?", id).Error; err != nil {
			return err
		}
		// Reactions and views go with the announcement.
		if err := tx.Where("announcement_id = ?", id).Delete(&models.Reaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("announcement_id = ?", id).Delete(&models.View{}).Error; err != nil {
			return err
		}
		return tx.Delete(&ann).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Announcement not found"})
			return
		}
		log.Printf("Error deleting announcement: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete announcement"})
		return
	}
	log.Printf("Announcement %s removed", id)

	e.Gateway.Hub().EmitGlobal(ws.EventDelete, gin.H{"id": id})
	c.JSON(http.StatusOK, gin.H{"message": "Announcement deleted"})
}

func (e *Env) TogglePin(c *gin.Context) {
	var ann models.Announcement
	if err := e.DB.First(&ann, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Announcement not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to pin announcement"})
		return
	}

	ann.IsPinned = !ann.IsPinned
	if ann.IsPinned {
		now := time.Now()
		ann.PinnedAt = &now
	} else {
		ann.PinnedAt = nil
	}
	if err := e.DB.Save(&ann).Error; err != nil {
		log.Printf("Error pinning announcement: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to pin announcement"})
		return
	}

	e.Gateway.Hub().EmitGlobal(ws.EventPin, ws.PinEvent{ID: ann.ID, IsPinned: ann.IsPinned})

	resp, err := e.toResponse(ann, currentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to pin announcement"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// --- Reaction and view handlers ---

func (e *Env) AddReaction(c *gin.Context) {
	var input ReactionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	id := e.resolveIdentity(c)
	announcementID := c.Param("id")

	reaction, counts, err := e.Engine.AddReaction(announcementID, input.ReactionType, id)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Announcement not found"})
		case errors.Is(err, engine.ErrReactionsDisabled):
			c.JSON(http.StatusConflict, gin.H{"error": "Reactions are disabled for this announcement"})
		default:
			log.Printf("Error adding reaction: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add reaction"})
		}
		return
	}

	e.Gateway.Hub().EmitReaction(ws.ReactionEvent{
		AnnouncementID: announcementID,
		Reactions:      counts,
		TotalReactions: sumCounts(counts),
		Action:         "add",
		ReactionType:   input.ReactionType,
	})
	c.JSON(http.StatusOK, gin.H{"reaction": reaction, "counts": counts})
}

func (e *Env) RemoveReaction(c *gin.Context) {
	claims, _ := auth.CurrentUser(c)
	announcementID := c.Param("id")

	counts, err := e.Engine.RemoveReaction(announcementID, claims.UserID)
	if err != nil {
		log.Printf("Error removing reaction: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove reaction"})
		return
	}

	e.Gateway.Hub().EmitReaction(ws.ReactionEvent{
		AnnouncementID: announcementID,
		Reactions:      counts,
		TotalReactions: sumCounts(counts),
		Action:         "remove",
	})
	c.JSON(http.StatusOK, gin.H{"counts": counts})
}

func (e *Env) RecordView(c *gin.Context) {
	id := e.resolveIdentity(c)
	announcementID := c.Param("id")

	isNew, viewCount, err := e.Engine.RecordView(announcementID, id)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Announcement not found"})
			return
		}
		log.Printf("Error recording view: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record view"})
		return
	}

	if isNew {
		e.Gateway.Hub().EmitView(ws.ViewEvent{AnnouncementID: announcementID, ViewCount: viewCount})
	}
	c.JSON(http.StatusOK, gin.H{"isNewView": isNew, "viewCount": viewCount})
}

func (e *Env) GetViewers(c *gin.Context) {
	announcementID := c.Param("id")

	var ann models.Announcement
	if err := e.DB.First(&ann, "id = ?", announcementID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Announcement not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch viewers"})
		return
	}

	viewers, err := e.Engine.Viewers(announcementID)
	if err != nil {
		log.Printf("Error fetching viewers: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch viewers"})
		return
	}
	c.JSON(http.StatusOK, viewers)
}

func sumCounts(counts []engine.ReactionCount) int64 {
	var total int64
	for _, rc := range counts {
		total += rc.Count
	}
	return total
}
