package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/luke-wagner/PlantCare-Monitor/config"
	"github.com/luke-wagner/PlantCare-Monitor/internal/apiresp"
	"github.com/luke-wagner/PlantCare-Monitor/internal/logger"
	"github.com/luke-wagner/PlantCare-Monitor/utils"
)

// AdminUser only account of the admin UI
const AdminUser = "admin"

const minPasswordLen = 6

// masked placeholder Redacted puts in place of secrets
const masked = "********"

func (s *Server) handleLogin(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apiresp.Fail(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	s.cfgMu.RLock()
	hash := s.config.Auth.PasswordHash
	deviceID := s.config.Device.ID
	s.cfgMu.RUnlock()

	if hash == "" {
		apiresp.Fail(c, http.StatusForbidden, "setup required: POST /api/v1/config/init first")
		return
	}
	if req.Username != AdminUser || !utils.VerifyPassword(req.Password, hash) {
		apiresp.Fail(c, http.StatusUnauthorized, "invalid username or password")
		return
	}

	token, err := utils.GenerateJWT(deviceID)
	if err != nil {
		apiresp.Fail(c, http.StatusInternalServerError, "issue token: "+err.Error())
		return
	}
	apiresp.OK(c, gin.H{
		"token":      token,
		"expires_in": int(utils.TokenTTL.Seconds()),
	})
}

func (s *Server) handleChangePassword(c *gin.Context) {
	var req struct {
		OldPassword     string `json:"old_password" binding:"required"`
		NewPassword     string `json:"new_password" binding:"required"`
		ConfirmPassword string `json:"confirm_password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apiresp.Fail(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		apiresp.Fail(c, http.StatusBadRequest, "new password and confirmation differ")
		return
	}
	if len(req.NewPassword) < minPasswordLen {
		apiresp.Fail(c, http.StatusBadRequest, "password too short")
		return
	}

	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()

	if !utils.VerifyPassword(req.OldPassword, s.config.Auth.PasswordHash) {
		apiresp.Fail(c, http.StatusBadRequest, "old password is wrong")
		return
	}
	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		apiresp.Fail(c, http.StatusInternalServerError, "hash password failed")
		return
	}
	prev := s.config.Auth.PasswordHash
	s.config.Auth.PasswordHash = hash
	if err := s.config.Save(); err != nil {
		s.config.Auth.PasswordHash = prev
		apiresp.Fail(c, http.StatusInternalServerError, "save config failed")
		return
	}
	logger.Info("admin password changed")
	apiresp.OK(c, nil)
}

func (s *Server) handleConfigInitStatus(c *gin.Context) {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	apiresp.OK(c, gin.H{
		"initialized":   s.config.Initialized,
		"greg_username": s.config.Greg.Username,
	})
}

// handleConfigInit first-run setup: admin password plus the greg.app account
func (s *Server) handleConfigInit(c *gin.Context) {
	var req struct {
		AdminPassword string  `json:"admin_password" binding:"required"`
		GregUsername  string  `json:"greg_username"`
		DeviceName    string  `json:"device_name"`
		DisplayKey    *string `json:"display_key"`
		GeminiAPIKey  string  `json:"gemini_api_key"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apiresp.Fail(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if len(req.AdminPassword) < minPasswordLen {
		apiresp.Fail(c, http.StatusBadRequest, "password too short")
		return
	}

	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()

	if s.config.Initialized {
		apiresp.Fail(c, http.StatusConflict, "already initialized")
		return
	}

	hash, err := utils.HashPassword(req.AdminPassword)
	if err != nil {
		apiresp.Fail(c, http.StatusInternalServerError, "hash password failed")
		return
	}

	next := *s.config
	next.Auth.PasswordHash = hash
	if v := strings.TrimSpace(req.GregUsername); v != "" {
		next.Greg.Username = v
	}
	if v := strings.TrimSpace(req.DeviceName); v != "" {
		next.Device.Name = v
	}
	if req.DisplayKey != nil {
		next.Auth.DisplayKey = strings.TrimSpace(*req.DisplayKey)
	}
	if v := strings.TrimSpace(req.GeminiAPIKey); v != "" {
		next.Gemini.APIKey = v
	}
	next.Initialized = true

	if err := next.Validate(); err != nil {
		apiresp.Fail(c, http.StatusBadRequest, "invalid config: "+err.Error())
		return
	}
	if err := next.Save(); err != nil {
		apiresp.Fail(c, http.StatusInternalServerError, "save config failed")
		return
	}
	*s.config = next
	logger.Info("setup completed for greg user %q", next.Greg.Username)

	queued := false
	if s.collector != nil && next.Greg.Username != "" {
		s.collector.SetUsername(next.Greg.Username)
		queued = s.collector.Trigger()
	}
	restart := []string{}
	if strings.TrimSpace(req.GeminiAPIKey) != "" {
		restart = append(restart, "gemini")
	}
	apiresp.OK(c, gin.H{
		"greg_username":        next.Greg.Username,
		"collect_queued":       queued,
		"restart_required_for": restart,
	})
}

func (s *Server) handleConfigGet(c *gin.Context) {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	apiresp.OK(c, gin.H{
		"config":               s.config.Redacted(),
		"display_key_set":      s.config.Auth.DisplayKey != "",
		"config_path":          s.config.Path(),
		"restart_required_for": []string{"greg", "collector", "gemini", "mqtt", "server", "database"},
	})
}

// handleConfigUpdate merges the posted sections into the current config; auth
// settings other than the display key are never written here
func (s *Server) handleConfigUpdate(c *gin.Context) {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()

	next := *s.config
	geminiKey, mqttPassword, level := next.Gemini.APIKey, next.MQTT.Password, next.Log.Level
	req := struct {
		Device     *config.DeviceConfig    `json:"device"`
		Greg       *config.GregConfig      `json:"greg"`
		Collector  *config.CollectorConfig `json:"collector"`
		Gemini     *config.GeminiConfig    `json:"gemini"`
		MQTT       *config.MQTTConfig      `json:"mqtt"`
		Server     *config.ServerConfig    `json:"server"`
		Database   *config.DatabaseConfig  `json:"database"`
		Log        *config.LogConfig       `json:"log"`
		DisplayKey *string                 `json:"display_key"`
	}{
		Device:    &next.Device,
		Greg:      &next.Greg,
		Collector: &next.Collector,
		Gemini:    &next.Gemini,
		MQTT:      &next.MQTT,
		Server:    &next.Server,
		Database:  &next.Database,
		Log:       &next.Log,
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apiresp.Fail(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	if next.Gemini.APIKey == masked {
		next.Gemini.APIKey = geminiKey
	}
	if next.MQTT.Password == masked {
		next.MQTT.Password = mqttPassword
	}
	if req.DisplayKey != nil {
		next.Auth.DisplayKey = strings.TrimSpace(*req.DisplayKey)
	}
	if err := next.Validate(); err != nil {
		apiresp.Fail(c, http.StatusBadRequest, "invalid config: "+err.Error())
		return
	}
	if err := next.Save(); err != nil {
		apiresp.Fail(c, http.StatusInternalServerError, "save config failed: "+err.Error())
		return
	}
	*s.config = next
	if s.collector != nil && next.Greg.Username != s.collector.Username() {
		s.collector.SetUsername(next.Greg.Username)
	}
	if next.Log.Level != level {
		if err := logger.SetLevel(next.Log.Level); err != nil {
			logger.Warn("apply log level: %v", err)
		}
	}
	apiresp.OK(c, next.Redacted())
}
