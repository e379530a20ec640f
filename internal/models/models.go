package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User roles.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Registration lifecycle of a user account. New registrations sit in
// "pending" until an admin approves or rejects them.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Announcement priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// ReactionTypes lists the reactions a client may pick. A record holds exactly
// one; re-reacting replaces the old value.
var ReactionTypes = []string{"like", "love", "haha", "wow", "sad", "angry"}

// Gallery item kinds.
const (
	GalleryImage = "image"
	GalleryVideo = "video"
)

// User is a class member account.
type User struct {
	ID                 uint       `gorm:"primarykey" json:"id"`
	Name               string     `gorm:"size:100;not null" json:"name"`
	Email              string     `gorm:"size:250;not null;uniqueIndex" json:"email"`
	Password           string     `gorm:"not null" json:"-"`
	Role               string     `gorm:"size:20;not null;default:member" json:"role"`
	RegistrationStatus string     `gorm:"size:20;not null;default:pending;index" json:"registrationStatus"`
	RegistrationToken  *string    `gorm:"size:36;index" json:"-"`
	RejectionReason    *string    `gorm:"type:text" json:"-"`
	ApprovedAt         *time.Time `json:"approvedAt,omitempty"`
	LastLoginAt        *time.Time `json:"lastLoginAt,omitempty"`
	LastLoginIP        *string    `gorm:"size:64" json:"-"`
	IsActive           bool       `gorm:"not null;default:true" json:"isActive"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// Announcement is a class-wide post. Reactions and views hang off it and are
// removed with it.
type Announcement struct {
	ID              string     `gorm:"primarykey;size:36" json:"id"`
	Title           string     `gorm:"size:250;not null" json:"title"`
	Content         string     `gorm:"type:text;not null" json:"content"`
	Priority        string     `gorm:"size:20;not null;default:medium;index" json:"priority"`
	IsActive        bool       `gorm:"not null;default:true" json:"isActive"`
	IsPinned        bool       `gorm:"not null;default:false" json:"isPinned"`
	PinnedAt        *time.Time `json:"pinnedAt,omitempty"`
	EnableViews     bool       `gorm:"not null;default:true" json:"enableViews"`
	EnableReactions bool       `gorm:"not null;default:true" json:"enableReactions"`
	ViewCount       int        `gorm:"not null;default:0" json:"viewCount"`
	ExpiresAt       *time.Time `gorm:"index" json:"expiresAt"`
	AuthorID        *uint      `json:"authorId,omitempty"`
	Author          *User      `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`

	Reactions []Reaction `gorm:"foreignKey:AnnouncementID;constraint:OnDelete:CASCADE" json:"-"`
	Views     []View     `gorm:"foreignKey:AnnouncementID;constraint:OnDelete:CASCADE" json:"-"`
}

// BeforeCreate assigns a UUID primary key when none was supplied.
func (a *Announcement) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// Reaction is one actor's reaction to one announcement. Exactly one of
// UserID/VisitorID/FingerprintHash was authoritative when the row was
// written; the others may be backfilled later but never overwritten.
// IdentityKey holds the authoritative key and carries the uniqueness
// constraint that stops duplicate inserts racing past the lookup.
type Reaction struct {
	ID              uint      `gorm:"primarykey" json:"id"`
	AnnouncementID  string    `gorm:"size:36;not null;index;uniqueIndex:uq_reaction_identity" json:"announcementId"`
	ReactionType    string    `gorm:"size:20;not null;index" json:"reactionType"`
	IdentityKey     string    `gorm:"size:80;not null;uniqueIndex:uq_reaction_identity" json:"-"`
	UserID          *uint     `gorm:"index" json:"userId,omitempty"`
	User            *User     `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	VisitorID       *string   `gorm:"size:36;index" json:"-"`
	FingerprintHash *string   `gorm:"size:64;index" json:"-"`
	IPAddress       *string   `gorm:"size:64" json:"-"`
	UserAgent       *string   `gorm:"type:text" json:"-"`
	ReactedAt       time.Time `gorm:"autoCreateTime" json:"reactedAt"`
}

// View is the at-most-one per actor per announcement view record. Never
// deleted except by announcement cascade; UserID may be backfilled when an
// anonymous viewer later authenticates.
type View struct {
	ID              uint      `gorm:"primarykey" json:"id"`
	AnnouncementID  string    `gorm:"size:36;not null;index;uniqueIndex:uq_view_identity" json:"announcementId"`
	IdentityKey     string    `gorm:"size:80;not null;uniqueIndex:uq_view_identity" json:"-"`
	UserID          *uint     `gorm:"index" json:"userId,omitempty"`
	User            *User     `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	VisitorID       *string   `gorm:"size:36;index" json:"-"`
	FingerprintHash *string   `gorm:"size:64;index" json:"-"`
	IPAddress       *string   `gorm:"size:64" json:"-"`
	UserAgent       *string   `gorm:"type:text" json:"-"`
	ViewedAt        time.Time `gorm:"autoCreateTime" json:"viewedAt"`
}

// GalleryItem is a photo or a linked YouTube video in the class gallery.
type GalleryItem struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	Title          string    `gorm:"size:250;not null" json:"title"`
	Description    *string   `gorm:"type:text" json:"description,omitempty"`
	Type           string    `gorm:"size:10;not null;default:image;index" json:"type"`
	StorageRef     *string   `gorm:"size:250" json:"-"`
	ImageURL       *string   `gorm:"size:500" json:"imageUrl,omitempty"`
	ThumbnailURL   *string   `gorm:"size:500" json:"thumbnailUrl,omitempty"`
	Width          *int      `json:"width,omitempty"`
	Height         *int      `json:"height,omitempty"`
	YouTubeVideoID *string   `gorm:"size:20" json:"youtubeVideoId,omitempty"`
	Category       *string   `gorm:"size:100;index" json:"category,omitempty"`
	IsPublished    bool      `gorm:"not null;default:true" json:"isPublished"`
	SortOrder      int       `gorm:"not null;default:0" json:"sortOrder"`
	UploadedByID   *uint     `json:"uploadedById,omitempty"`
	UploadedBy     *User     `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
}

// All lists every model for AutoMigrate.
func All() []any {
	return []any{&User{}, &Announcement{}, &Reaction{}, &View{}, &GalleryItem{}}
}
