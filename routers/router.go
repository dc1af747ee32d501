package routers

import (
	"souniq-server/routers/api"

	"github.com/gin-gonic/gin"
)

func InitRouter() *gin.Engine {
	r := gin.Default()
	v1 := r.Group("/v1/api")
	{
		v1.POST("/songs", api.UploadSong)
		v1.GET("/songs", api.ListSongs)
		v1.GET("/songs/:song_id", api.GetSongDetail)
		v1.DELETE("/songs/:song_id", api.DeleteSong)
		v1.POST("/songs/:song_id/separate", api.SeparateSong)
		v1.GET("/songs/:song_id/stems", api.ListStems)
		v1.POST("/stems/:stem_id/convert", api.ConvertStem)
		v1.GET("/stems/:stem_id/download", api.DownloadStem)
		v1.POST("/midis/:midi_id/generate", api.GenerateTrack)
		v1.GET("/midis/:midi_id/download", api.DownloadMidi)
		v1.GET("/tracks", api.ListTracks)
		v1.GET("/tracks/:track_id", api.GetTrackDetail)
		v1.GET("/versions/:version_id/download", api.DownloadVersion)
		v1.GET("/tasks/:task_id", api.GetTaskStatus)
		v1.GET("/stats", api.GetStats)
	}
	r.GET("/tasks/:task_id/wss", api.TaskProgressWebSocket)
	return r
}
