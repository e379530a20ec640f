package http

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sujalbistaa/classhub/internal/auth"
)

type LoginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (e *Env) Register(c *gin.Context) {
	var input auth.RegisterInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	user, err := e.Auth.Register(input)
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "Email already in use"})
			return
		}
		log.Printf("Error registering user: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Registration received, awaiting approval",
		"user":    user,
	})
}

func (e *Env) Login(c *gin.Context) {
	var input LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	token, user, err := e.Auth.Login(input.Email, input.Password, c.ClientIP())
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		case errors.Is(err, auth.ErrNotApproved):
			c.JSON(http.StatusForbidden, gin.H{"error": "Registration not approved yet"})
		default:
			log.Printf("Error logging in: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to log in"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accessToken": token,
		"user": gin.H{
			"id":    user.ID,
			"name":  user.Name,
			"email": user.Email,
			"role":  user.Role,
		},
	})
}

func (e *Env) Me(c *gin.Context) {
	claims, _ := auth.CurrentUser(c)
	user, err := e.Auth.User(claims.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch user"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (e *Env) ApproveRegistration(c *gin.Context) {
	user, err := e.Auth.Approve(c.Param("token"))
	if err != nil {
		if errors.Is(err, auth.ErrTokenNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Registration token not found"})
			return
		}
		log.Printf("Error approving registration: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to approve registration"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Registration approved", "user": user})
}

func (e *Env) RejectRegistration(c *gin.Context) {
	reason := c.Query("reason")
	if reason == "" {
		reason = "Not specified"
	}

	user, err := e.Auth.Reject(c.Param("token"), reason)
	if err != nil {
		if errors.Is(err, auth.ErrTokenNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Registration token not found"})
			return
		}
		log.Printf("Error rejecting registration: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reject registration"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Registration rejected", "user": user})
}
