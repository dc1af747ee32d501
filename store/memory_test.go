package store

import (
	"errors"
	"sync"
	"testing"

	"souniq-server/models"

	"github.com/google/uuid"
)

func TestClaimTaskSuppressesConcurrentDuplicates(t *testing.T) {
	st := NewMemoryStore()

	var wg sync.WaitGroup
	var mu sync.Mutex
	claimed, rejected := 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task := &models.ProcessingTask{
				ID:       uuid.NewString(),
				TaskType: models.TaskTypeStemGeneration,
				SongID:   "song-1",
			}
			err := st.ClaimTask(task)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				claimed++
			case errors.Is(err, ErrTaskInFlight):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if claimed != 1 {
		t.Errorf("claimed = %d, want exactly 1", claimed)
	}
	if rejected != 9 {
		t.Errorf("rejected = %d, want 9", rejected)
	}
}

func TestClaimTaskAllowedAfterTerminal(t *testing.T) {
	st := NewMemoryStore()
	first := &models.ProcessingTask{
		ID:       uuid.NewString(),
		TaskType: models.TaskTypeMidiConversion,
		StemID:   "stem-1",
	}
	if err := st.ClaimTask(first); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	first.Status = models.TaskStatusFailed
	if err := st.UpdateTask(first); err != nil {
		t.Fatalf("update: %v", err)
	}

	second := &models.ProcessingTask{
		ID:       uuid.NewString(),
		TaskType: models.TaskTypeMidiConversion,
		StemID:   "stem-1",
	}
	if err := st.ClaimTask(second); err != nil {
		t.Errorf("claim after terminal task should succeed: %v", err)
	}

	// 不同目标互不影响
	other := &models.ProcessingTask{
		ID:       uuid.NewString(),
		TaskType: models.TaskTypeMidiConversion,
		StemID:   "stem-2",
	}
	if err := st.ClaimTask(other); err != nil {
		t.Errorf("different target should claim freely: %v", err)
	}
}

func TestDeleteSongCascades(t *testing.T) {
	st := NewMemoryStore()
	song := &models.Song{ID: uuid.NewString(), UserID: "u1", Status: models.SongStatusStemsCompleted}
	if err := st.CreateSong(song); err != nil {
		t.Fatalf("create song: %v", err)
	}

	stem := &models.Stem{ID: uuid.NewString(), SongID: song.ID, Ordinal: 0, StemType: models.StemTypeVocals}
	st.UpsertStem(stem)
	midi, _ := st.EnsureMidiFile(stem.ID)

	track := &models.GeneratedTrack{ID: uuid.NewString(), UserID: "u1", MidiFileID: midi.ID}
	st.CreateTrack(track)
	st.CreateVersion(&models.GeneratedVersion{ID: uuid.NewString(), TrackID: track.ID, VersionNumber: 1})

	task := &models.ProcessingTask{ID: uuid.NewString(), TaskType: models.TaskTypeStemGeneration, SongID: song.ID}
	st.ClaimTask(task)
	// 转换任务只挂在 stem 上，级联也要把它带走
	convTask := &models.ProcessingTask{ID: uuid.NewString(), TaskType: models.TaskTypeMidiConversion, StemID: stem.ID}
	st.ClaimTask(convTask)

	if err := st.DeleteSong(song.ID); err != nil {
		t.Fatalf("DeleteSong: %v", err)
	}

	if _, err := st.GetSong(song.ID); !errors.Is(err, ErrNotFound) {
		t.Error("song should be gone")
	}
	if _, err := st.GetStem(stem.ID); !errors.Is(err, ErrNotFound) {
		t.Error("stem should be gone")
	}
	if _, err := st.GetMidiFile(midi.ID); !errors.Is(err, ErrNotFound) {
		t.Error("midi should be gone")
	}
	if _, err := st.GetTrack(track.ID); !errors.Is(err, ErrNotFound) {
		t.Error("track should be gone")
	}
	versions, _ := st.ListVersions(track.ID)
	if len(versions) != 0 {
		t.Error("versions should be gone")
	}
	if _, err := st.GetTask(task.ID); !errors.Is(err, ErrNotFound) {
		t.Error("task should be gone")
	}
	if _, err := st.GetTask(convTask.ID); !errors.Is(err, ErrNotFound) {
		t.Error("stem-keyed conversion task should be gone")
	}
}

func TestEnsureMidiFileIdempotent(t *testing.T) {
	st := NewMemoryStore()
	stem := &models.Stem{ID: uuid.NewString(), SongID: uuid.NewString(), Ordinal: 0, StemType: models.StemTypeBass}
	st.UpsertStem(stem)

	first, err := st.EnsureMidiFile(stem.ID)
	if err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	if first.Status != models.MidiStatusPending {
		t.Errorf("status = %q, want pending", first.Status)
	}

	second, err := st.EnsureMidiFile(stem.ID)
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if second.ID != first.ID {
		t.Error("ensure should return the existing record, not create a new one")
	}
}

func TestCreateVersionRejectsDuplicateNumber(t *testing.T) {
	st := NewMemoryStore()
	trackID := uuid.NewString()
	if err := st.CreateVersion(&models.GeneratedVersion{ID: uuid.NewString(), TrackID: trackID, VersionNumber: 1}); err != nil {
		t.Fatalf("first version: %v", err)
	}
	err := st.CreateVersion(&models.GeneratedVersion{ID: uuid.NewString(), TrackID: trackID, VersionNumber: 1})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate (track, version) should fail, got %v", err)
	}
	if err := st.CreateVersion(&models.GeneratedVersion{ID: uuid.NewString(), TrackID: trackID, VersionNumber: 2}); err != nil {
		t.Errorf("next number should succeed: %v", err)
	}
}

func TestStatsCountsPerUser(t *testing.T) {
	st := NewMemoryStore()
	mine := &models.Song{ID: uuid.NewString(), UserID: "u1"}
	theirs := &models.Song{ID: uuid.NewString(), UserID: "u2"}
	st.CreateSong(mine)
	st.CreateSong(theirs)

	stem := &models.Stem{ID: uuid.NewString(), SongID: mine.ID, Ordinal: 0, StemType: models.StemTypeDrums}
	st.UpsertStem(stem)
	midi, _ := st.EnsureMidiFile(stem.ID)
	midi.Status = models.MidiStatusCompleted
	st.UpdateMidiFile(midi)

	stats, err := st.Stats("u1")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Songs != 1 {
		t.Errorf("songs = %d, want 1", stats.Songs)
	}
	if stats.Stems != 1 {
		t.Errorf("stems = %d, want 1", stats.Stems)
	}
	if stats.Midis != 1 {
		t.Errorf("midis = %d, want 1", stats.Midis)
	}
}
