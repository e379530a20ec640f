package http

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/sujalbistaa/classhub/internal/auth"
	"github.com/sujalbistaa/classhub/internal/models"
)

const galleryPageLimit = 50

type CreateVideoInput struct {
	Title          string  `json:"title" binding:"required,min=1,max=250"`
	Description    *string `json:"description"`
	YouTubeVideoID string  `json:"youtubeVideoId" binding:"required,min=5,max=20"`
	Category       *string `json:"category" binding:"omitempty,max=100"`
}

type UpdateGalleryInput struct {
	Title       *string `json:"title" binding:"omitempty,min=1,max=250"`
	Description *string `json:"description"`
	Category    *string `json:"category" binding:"omitempty,max=100"`
	IsPublished *bool   `json:"isPublished"`
}

type ReorderGalleryInput struct {
	Items []struct {
		ID        uint `json:"id" binding:"required"`
		SortOrder int  `json:"sortOrder"`
	} `json:"items" binding:"required,min=1,dive"`
}

func (e *Env) GetGallery(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit < 1 || limit > galleryPageLimit {
		limit = galleryPageLimit
	}

	q := e.DB.Model(&models.GalleryItem{}).Where("is_published = ?", true)
	if t := c.Query("type"); t != "" {
		q = q.Where("type = ?", t)
	}
	if cat := c.Query("category"); cat != "" {
		q = q.Where("category = ?", cat)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		log.Printf("Error counting gallery items: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch gallery"})
		return
	}

	var items []models.GalleryItem
	err := q.Order("sort_order ASC, created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&items).Error
	if err != nil {
		log.Printf("Error fetching gallery items: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch gallery"})
		return
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	c.JSON(http.StatusOK, gin.H{
		"data":       items,
		"total":      total,
		"page":       page,
		"totalPages": totalPages,
	})
}

func (e *Env) CreateGalleryImage(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Image file required"})
		return
	}
	title := c.PostForm("title")
	if title == "" || len(title) > 250 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title required (max 250 chars)"})
		return
	}

	result, err := e.Uploader.UploadImage(file)
	if err != nil {
		log.Printf("Error uploading image: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not process image upload"})
		return
	}

	claims, _ := auth.CurrentUser(c)
	item := models.GalleryItem{
		Title:        title,
		Type:         models.GalleryImage,
		StorageRef:   &result.Ref,
		ImageURL:     &result.URL,
		ThumbnailURL: &result.ThumbnailURL,
		Width:        &result.Width,
		Height:       &result.Height,
		IsPublished:  true,
		UploadedByID: &claims.UserID,
	}
	if desc := c.PostForm("description"); desc != "" {
		item.Description = &desc
	}
	if cat := c.PostForm("category"); cat != "" {
		item.Category = &cat
	}

	if err := e.DB.Create(&item).Error; err != nil {
		log.Printf("Error creating gallery item: %v", err)
		e.Uploader.Delete(result.Ref)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create gallery item"})
		return
	}
	log.Printf("Gallery image %d uploaded by user %d", item.ID, claims.UserID)

	c.JSON(http.StatusCreated, item)
}

func (e *Env) CreateGalleryVideo(c *gin.Context) {
	var input CreateVideoInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	claims, _ := auth.CurrentUser(c)
	thumbnail := fmt.Sprintf("https://img.youtube.com/vi/%s/maxresdefault.jpg", input.YouTubeVideoID)
	item := models.GalleryItem{
		Title:          input.Title,
		Description:    input.Description,
		Type:           models.GalleryVideo,
		ThumbnailURL:   &thumbnail,
		YouTubeVideoID: &input.YouTubeVideoID,
		Category:       input.Category,
		IsPublished:    true,
		UploadedByID:   &claims.UserID,
	}

	if err := e.DB.Create(&item).Error; err != nil {
		log.Printf("Error creating gallery video: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create gallery item"})
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (e *Env) UpdateGalleryItem(c *gin.Context) {
	itemID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid gallery item ID"})
		return
	}
	var input UpdateGalleryInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	var item models.GalleryItem
	if err := e.DB.First(&item, itemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Gallery item not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update gallery item"})
		return
	}

	if input.Title != nil {
		item.Title = *input.Title
	}
	if input.Description != nil {
		item.Description = input.Description
	}
	if input.Category != nil {
		item.Category = input.Category
	}
	if input.IsPublished != nil {
		item.IsPublished = *input.IsPublished
	}

	if err := e.DB.Save(&item).Error; err != nil {
		log.Printf("Error updating gallery item: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update gallery item"})
		return
	}
	c.JSON(http.StatusOK, item)
}

func (e *Env) ReorderGallery(c *gin.Context) {
	var input ReorderGalleryInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	ids := make([]uint, 0, len(input.Items))
	for _, it := range input.Items {
		ids = append(ids, it.ID)
	}

	err := e.DB.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.GalleryItem{}).Where("id IN ?", ids).Count(&count).Error; err != nil {
			return err
		}
		if count != int64(len(ids)) {
			return gorm.ErrRecordNotFound
		}
		for _, it := range input.Items {
			if err := tx.Model(&models.GalleryItem{}).Where("id = ?", it.ID).
				Update("sort_order", it.SortOrder).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "One or more gallery items not found"})
			return
		}
		log.Printf("Error reordering gallery: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reorder gallery"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": len(input.Items)})
}

func (e *Env) DeleteGalleryItem(c *gin.Context) {
	itemID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid gallery item ID"})
		return
	}

	var item models.GalleryItem
	if err := e.DB.First(&item, itemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Gallery item not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete gallery item"})
		return
	}

	if err := e.DB.Delete(&item).Error; err != nil {
		log.Printf("Error deleting gallery item: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete gallery item"})
		return
	}

	// Stored files are cleaned up best-effort after the row is gone.
	if item.Type == models.GalleryImage && item.StorageRef != nil {
		if err := e.Uploader.Delete(*item.StorageRef); err != nil {
			log.Printf("Failed to delete stored files for gallery item %d: %v", item.ID, err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "Gallery item deleted"})
}
