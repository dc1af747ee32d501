package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 触发整曲分离：POST /v1/api/songs/:song_id/separate
func SeparateSong(c *gin.Context) {
	songID := c.Param("song_id")
	out, err := Orch.RequestSeparation(c.Request.Context(), currentUser(c), songID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "song not found: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}

// stem 列表：GET /v1/api/songs/:song_id/stems
func ListStems(c *gin.Context) {
	stems, err := Store.ListStems(c.Param("song_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stems": stems})
}

// 触发单 stem 转 MIDI：POST /v1/api/stems/:stem_id/convert
func ConvertStem(c *gin.Context) {
	stemID := c.Param("stem_id")
	out, err := Orch.RequestConversion(c.Request.Context(), currentUser(c), stemID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "stem not found: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}
