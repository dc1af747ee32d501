package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 面板统计：GET /v1/api/stats
func GetStats(c *gin.Context) {
	stats, err := Store.Stats(currentUser(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}
