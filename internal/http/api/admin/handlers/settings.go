package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tubekit/tubekit-server/internal/models"
	internalsettings "github.com/tubekit/tubekit-server/internal/settings"
	"gorm.io/gorm"
)

// SettingHandler manages admin CRUD for settings values.
type SettingHandler struct {
	db *gorm.DB // Database handle for settings.
}

// NewSettingHandler constructs a settings handler.
func NewSettingHandler(db *gorm.DB) *SettingHandler {
	return &SettingHandler{db: db}
}

// createSettingRequest captures the payload for creating a setting.
type createSettingRequest struct {
	Key   string          `json:"key"`   // Setting key.
	Value json.RawMessage `json:"value"` // JSON value payload.
}

var positiveIntSettingKeys = map[string]struct{}{
	internalsettings.AnonRateLimitWindowSecondsKey: {},
	internalsettings.ReconcileIntervalSecondsKey:   {},
}

var nonNegativeIntSettingKeys = map[string]struct{}{
	internalsettings.DefaultFreeLimitKey: {},
	internalsettings.AnonRateLimitKey:    {},
	internalsettings.UserRateLimitKey:    {},
	internalsettings.RateLimitRedisDBKey: {},
}

var boolSettingKeys = map[string]struct{}{
	internalsettings.RateLimitRedisEnabledKey: {},
}

var (
	errPositiveIntegerValue    = errors.New("value must be a positive integer")
	errNonNegativeIntegerValue = errors.New("value must be a non-negative integer")
	errBoolValue               = errors.New("value must be a boolean")
	errMissingValue            = errors.New("value is required")
)

// Create validates and inserts a setting, then refreshes the snapshot.
func (h *SettingHandler) Create(c *gin.Context) {
	var body createSettingRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	key := strings.TrimSpace(body.Key)
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}
	if errValidate := validateSettingValue(key, body.Value); errValidate != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errValidate.Error()})
		return
	}

	var existing models.Setting
	if errFind := h.db.WithContext(c.Request.Context()).Where("key = ?", key).First(&existing).Error; errFind == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "key already exists"})
		return
	}

	setting := models.Setting{Key: key, Value: string(body.Value)}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&setting).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create setting failed"})
		return
	}
	if errRefresh := internalsettings.Refresh(c.Request.Context(), h.db); errRefresh != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh settings snapshot failed"})
		return
	}
	c.JSON(http.StatusCreated, formatSetting(&setting))
}

// List returns all settings sorted by key.
func (h *SettingHandler) List(c *gin.Context) {
	var rows []models.Setting
	if errFind := h.db.WithContext(c.Request.Context()).Order("key ASC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list settings failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, formatSetting(&row))
	}
	c.JSON(http.StatusOK, gin.H{"settings": out})
}

// Get returns a setting by key.
func (h *SettingHandler) Get(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid key"})
		return
	}
	var setting models.Setting
	if errFind := h.db.WithContext(c.Request.Context()).Where("key = ?", key).First(&setting).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, formatSetting(&setting))
}

// updateSettingRequest captures the payload for updating a setting.
type updateSettingRequest struct {
	Value json.RawMessage `json:"value"` // New JSON value.
}

// Update writes a setting value, creating the row when absent, and refreshes the snapshot.
func (h *SettingHandler) Update(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid key"})
		return
	}
	var body updateSettingRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if errValidate := validateSettingValue(key, body.Value); errValidate != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errValidate.Error()})
		return
	}

	ctx := c.Request.Context()
	res := h.db.WithContext(ctx).Model(&models.Setting{}).Where("key = ?", key).
		Update("value", string(body.Value))
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	if res.RowsAffected == 0 {
		if errCreate := h.db.WithContext(ctx).Create(&models.Setting{Key: key, Value: string(body.Value)}).Error; errCreate != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
			return
		}
	}
	if errRefresh := internalsettings.Refresh(ctx, h.db); errRefresh != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh settings snapshot failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete removes a setting and refreshes the snapshot.
func (h *SettingHandler) Delete(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid key"})
		return
	}
	res := h.db.WithContext(c.Request.Context()).Where("key = ?", key).Delete(&models.Setting{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if errRefresh := internalsettings.Refresh(c.Request.Context(), h.db); errRefresh != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh settings snapshot failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func validateSettingValue(key string, value json.RawMessage) error {
	if len(strings.TrimSpace(string(value))) == 0 {
		return errMissingValue
	}
	if _, ok := positiveIntSettingKeys[key]; ok {
		if parsed, okParse := internalsettings.ParseNonNegativeInt(value); !okParse || parsed == 0 {
			return errPositiveIntegerValue
		}
		return nil
	}
	if _, ok := nonNegativeIntSettingKeys[key]; ok {
		if _, okParse := internalsettings.ParseNonNegativeInt(value); !okParse {
			return errNonNegativeIntegerValue
		}
		return nil
	}
	if _, ok := boolSettingKeys[key]; ok {
		if _, okParse := internalsettings.ParseBool(value); !okParse {
			return errBoolValue
		}
		return nil
	}
	if !json.Valid(value) {
		return errors.New("value must be valid json")
	}
	return nil
}

// formatSetting formats a setting row into response JSON.
func formatSetting(s *models.Setting) gin.H {
	return gin.H{
		"key":        s.Key,
		"value":      s.RawValue(),
		"updated_at": s.UpdatedAt,
	}
}
