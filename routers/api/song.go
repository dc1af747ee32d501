package api

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"souniq-server/logger"
	"souniq-server/models"
	"souniq-server/service"

	"github.com/gin-gonic/gin"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxUploadBytes 上传文件大小上限（200MB）
const MaxUploadBytes = 200 << 20

var allowedAudioExt = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".flac": true,
	".ogg":  true,
	".m4a":  true,
}

// 上传歌曲：POST /v1/api/songs (multipart: file, title)
func UploadSong(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 file 字段"})
		return
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if !allowedAudioExt[ext] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "不支持的音频格式: " + ext})
		return
	}
	if fileHeader.Size > MaxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "文件过大，超出上传限制"})
		return
	}

	title := c.PostForm("title")
	if title == "" {
		title = strings.TrimSuffix(fileHeader.Filename, ext)
	}

	song := &models.Song{
		ID:         uuid.NewString(),
		UserID:     currentUser(c),
		Title:      title,
		Status:     models.SongStatusUploaded,
		FileSize:   fileHeader.Size,
		UploadedAt: time.Now(),
	}
	song.ObjectKey = service.SongObjectKey(song.ID, ext)

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取上传文件失败: " + err.Error()})
		return
	}
	defer f.Close()

	if ext == ".wav" {
		song.Duration = wavDuration(f)
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "读取上传文件失败: " + err.Error()})
			return
		}
	}

	if err := Artifacts.Put(c.Request.Context(), song.ObjectKey, f, fileHeader.Size); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "存储上传文件失败: " + err.Error()})
		return
	}

	if err := Store.CreateSong(song); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "保存歌曲记录失败: " + err.Error()})
		return
	}

	logger.Info("歌曲已上传",
		zap.String("song", song.ID),
		zap.String("title", song.Title),
		zap.Int64("size", song.FileSize))

	c.JSON(http.StatusOK, gin.H{"song": song})
}

// 歌曲列表：GET /v1/api/songs
func ListSongs(c *gin.Context) {
	songs, err := Store.ListSongs(currentUser(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"songs": songs})
}

// 歌曲详情（含 stems 与各自的 MIDI 状态）：GET /v1/api/songs/:song_id
func GetSongDetail(c *gin.Context) {
	songID := c.Param("song_id")
	song, err := Store.GetSong(songID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "song not found: " + err.Error()})
		return
	}

	stems, err := Store.ListStems(songID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	type stemView struct {
		models.Stem
		Midi *models.MidiFile `json:"midi,omitempty"`
	}
	views := make([]stemView, 0, len(stems))
	for _, s := range stems {
		v := stemView{Stem: s}
		if midi, err := Store.GetMidiFileByStem(s.ID); err == nil {
			v.Midi = midi
		}
		views = append(views, v)
	}

	c.JSON(http.StatusOK, gin.H{"song": song, "stems": views})
}

// 删除歌曲（级联删除派生记录与对象存储里的产物）：DELETE /v1/api/songs/:song_id
func DeleteSong(c *gin.Context) {
	songID := c.Param("song_id")
	song, err := Store.GetSong(songID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "song not found: " + err.Error()})
		return
	}

	// 先收集要删的对象 key，再删数据库记录
	keys := []string{song.ObjectKey}
	stems, _ := Store.ListStems(songID)
	for _, s := range stems {
		keys = append(keys, s.ObjectKey)
		if midi, err := Store.GetMidiFileByStem(s.ID); err == nil && midi.ObjectKey != "" {
			keys = append(keys, midi.ObjectKey)
		}
	}

	if err := Store.DeleteSong(songID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "删除失败: " + err.Error()})
		return
	}

	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := Artifacts.Remove(c.Request.Context(), key); err != nil {
			logger.Warn("删除对象失败", zap.String("key", key), zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "歌曲已删除", "song_id": songID})
}

// wavDuration 解析 WAV 头算时长（秒），解析失败按 0 处理，不挡上传。
func wavDuration(r io.ReadSeeker) float64 {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return 0
	}
	d, err := dec.Duration()
	if err != nil {
		return 0
	}
	return d.Seconds()
}
