package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/luke-wagner/PlantCare-Monitor/internal/apiresp"
	"github.com/luke-wagner/PlantCare-Monitor/internal/database"
	"github.com/luke-wagner/PlantCare-Monitor/internal/export"
	"github.com/luke-wagner/PlantCare-Monitor/internal/gemini"
	"github.com/luke-wagner/PlantCare-Monitor/internal/logger"
	"github.com/luke-wagner/PlantCare-Monitor/models"
)

func (s *Server) handleDisplay(c *gin.Context) {
	payload, err := s.collector.Display(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	apiresp.OK(c, payload)
}

func (s *Server) handleDisplayPlant(c *gin.Context) {
	entry, err := s.collector.PlantDisplay(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	apiresp.OK(c, entry)
}

type plantView struct {
	models.Plant
	Display models.DisplayEntry `json:"display"`
}

func (s *Server) handlePlantsList(c *gin.Context) {
	plants, err := s.store.ListPlants()
	if err != nil {
		failErr(c, err)
		return
	}
	out := make([]plantView, 0, len(plants))
	for _, p := range plants {
		entry, err := s.collector.PlantDisplay(c.Request.Context(), p.ID)
		if err != nil {
			failErr(c, err)
			return
		}
		out = append(out, plantView{Plant: p, Display: entry})
	}
	apiresp.OK(c, gin.H{"plants": out, "total": len(out)})
}

func (s *Server) handlePlantDetail(c *gin.Context) {
	id := c.Param("id")
	p, err := s.store.GetPlant(id)
	if err != nil {
		failErr(c, err)
		return
	}
	entry, err := s.collector.PlantDisplay(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}

	resp := gin.H{"plant": p, "display": entry, "latest_snapshot": nil, "latest_insight": nil}
	if snap, err := s.store.LatestSnapshot(id); err == nil {
		resp["latest_snapshot"] = snap
	} else if !errors.Is(err, database.ErrNotFound) {
		failErr(c, err)
		return
	}
	if in, err := s.store.LatestInsight(id); err == nil {
		resp["latest_insight"] = in
	} else if !errors.Is(err, database.ErrNotFound) {
		failErr(c, err)
		return
	}
	apiresp.OK(c, resp)
}

func (s *Server) handlePlantHistory(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.store.GetPlant(id); err != nil {
		failErr(c, err)
		return
	}
	snaps, err := s.store.ListSnapshots(id, queryLimit(c, 50))
	if err != nil {
		failErr(c, err)
		return
	}
	apiresp.OK(c, gin.H{"plant_id": id, "snapshots": snaps})
}

func (s *Server) handlePlantInsight(c *gin.Context) {
	in, err := s.collector.Insight(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) || errors.Is(err, gemini.ErrNoAPIKey) {
			failErr(c, err)
			return
		}
		logger.Warn("insight %s: %v", c.Param("id"), err)
		apiresp.Fail(c, http.StatusBadGateway, err.Error())
		return
	}
	apiresp.OK(c, in)
}

// handleExport full history as plant_data.json
func (s *Server) handleExport(c *gin.Context) {
	snaps, err := s.store.AllSnapshots()
	if err != nil {
		failErr(c, err)
		return
	}
	c.Header("Content-Type", "application/json; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="plant_data.json"`)
	c.Status(http.StatusOK)
	if err := export.Write(c.Writer, export.Records(snaps)); err != nil {
		logger.Error("export: %v", err)
	}
}
