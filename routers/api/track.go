package api

import (
	"net/http"

	"souniq-server/models"
	"souniq-server/service"

	"github.com/gin-gonic/gin"
)

// 基于 MIDI 发起生成：POST /v1/api/midis/:midi_id/generate
func GenerateTrack(c *gin.Context) {
	midiID := c.Param("midi_id")

	var req service.GenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数解析失败: " + err.Error()})
		return
	}

	out, err := Orch.RequestGeneration(c.Request.Context(), currentUser(c), midiID, req)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "midi not found: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}

// track 列表（含版本）：GET /v1/api/tracks
func ListTracks(c *gin.Context) {
	tracks, err := Store.ListTracks(currentUser(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	type trackView struct {
		models.GeneratedTrack
		Versions []models.GeneratedVersion `json:"versions"`
	}
	views := make([]trackView, 0, len(tracks))
	for _, t := range tracks {
		versions, _ := Store.ListVersions(t.ID)
		views = append(views, trackView{GeneratedTrack: t, Versions: versions})
	}

	c.JSON(http.StatusOK, gin.H{"tracks": views})
}

// track 详情：GET /v1/api/tracks/:track_id
func GetTrackDetail(c *gin.Context) {
	trackID := c.Param("track_id")
	track, err := Store.GetTrack(trackID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "track not found: " + err.Error()})
		return
	}
	versions, err := Store.ListVersions(trackID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"track": track, "versions": versions})
}
