package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// 下载链接有效期
const downloadExpiry = 15 * time.Minute

// stem 音频下载：GET /v1/api/stems/:stem_id/download
func DownloadStem(c *gin.Context) {
	stem, err := Store.GetStem(c.Param("stem_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "stem not found: " + err.Error()})
		return
	}
	presign(c, stem.ObjectKey)
}

// MIDI 下载：GET /v1/api/midis/:midi_id/download
func DownloadMidi(c *gin.Context) {
	midi, err := Store.GetMidiFile(c.Param("midi_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "midi not found: " + err.Error()})
		return
	}
	if midi.ObjectKey == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "MIDI 尚未转换完成"})
		return
	}
	presign(c, midi.ObjectKey)
}

// 生成版本下载：GET /v1/api/versions/:version_id/download
func DownloadVersion(c *gin.Context) {
	version, err := Store.GetVersion(c.Param("version_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "version not found: " + err.Error()})
		return
	}
	presign(c, version.ObjectKey)
}

func presign(c *gin.Context, objectKey string) {
	url, err := Artifacts.PresignedURL(c.Request.Context(), objectKey, downloadExpiry)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "生成下载链接失败: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url, "expires_in": int(downloadExpiry.Seconds())})
}
