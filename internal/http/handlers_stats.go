package http

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sujalbistaa/classhub/internal/models"
)

func (e *Env) GetStats(c *gin.Context) {
	var announcements int64
	err := e.DB.Model(&models.Announcement{}).
		Where("is_active = ?", true).
		Where("expires_at IS NULL OR expires_at > ?", time.Now()).
		Count(&announcements).Error
	if err != nil {
		log.Printf("Error counting announcements: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stats"})
		return
	}

	var gallery int64
	if err := e.DB.Model(&models.GalleryItem{}).Where("is_published = ?", true).Count(&gallery).Error; err != nil {
		log.Printf("Error counting gallery items: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"announcements": announcements,
		"gallery":       gallery,
		"online":        e.Gateway.Hub().ClientCount(),
	})
}
