package controllers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/marketplacekit/ghl-adapter/internal/models"
	"gorm.io/gorm"
)

type ProfileController struct {
	db *gorm.DB
}

// NewProfileController creates the controller persisting profile documents
// pushed from the platform's custom pages.
func NewProfileController(db *gorm.DB) *ProfileController {
	return &ProfileController{db: db}
}

// SaveProfile godoc
// @Summary Store a user profile document
// @Description Persist the profile payload pushed by the platform custom page
// @Tags Profiles
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} models.APIError
// @Failure 500 {object} map[string]interface{}
// @Router /api/user/profile [post]
func (pc *ProfileController) SaveProfile(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil || len(body) == 0 || !json.Valid(body) {
		c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrBadRequest, "profile payload must be valid JSON"))
		return
	}

	profile := &models.UserProfile{
		ID:      "cc360_" + uuid.New().String(),
		Payload: string(body),
	}
	if err := pc.db.Create(profile).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to save profile",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "Profile saved successfully",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"profileId": profile.ID,
	})
}
