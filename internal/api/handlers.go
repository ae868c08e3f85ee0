package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/luke-wagner/PlantCare-Monitor/internal/apiresp"
	"github.com/luke-wagner/PlantCare-Monitor/internal/collector"
	"github.com/luke-wagner/PlantCare-Monitor/internal/database"
	"github.com/luke-wagner/PlantCare-Monitor/internal/gemini"
	"github.com/luke-wagner/PlantCare-Monitor/internal/logger"
)

// failErr maps package errors onto HTTP statuses
func failErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		apiresp.Fail(c, http.StatusNotFound, "not found")
	case errors.Is(err, gemini.ErrNoAPIKey):
		apiresp.Fail(c, http.StatusServiceUnavailable, "gemini api key not configured")
	case errors.Is(err, collector.ErrRunInProgress):
		apiresp.Fail(c, http.StatusConflict, err.Error())
	default:
		logger.Error("%s %s: %v", c.Request.Method, c.FullPath(), err)
		apiresp.Fail(c, http.StatusInternalServerError, err.Error())
	}
}

func queryLimit(c *gin.Context, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(c.Query("limit")))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
