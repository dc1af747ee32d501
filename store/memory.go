package store

import (
	"sort"
	"sync"
	"time"

	"souniq-server/models"

	"github.com/google/uuid"
)

// MemoryStore 内存实现，测试用
type MemoryStore struct {
	mu       sync.Mutex
	songs    map[string]models.Song
	stems    map[string]models.Stem
	midis    map[string]models.MidiFile
	tracks   map[string]models.GeneratedTrack
	versions map[string]models.GeneratedVersion
	tasks    map[string]models.ProcessingTask
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		songs:    make(map[string]models.Song),
		stems:    make(map[string]models.Stem),
		midis:    make(map[string]models.MidiFile),
		tracks:   make(map[string]models.GeneratedTrack),
		versions: make(map[string]models.GeneratedVersion),
		tasks:    make(map[string]models.ProcessingTask),
	}
}

func (s *MemoryStore) CreateSong(song *models.Song) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if song.UploadedAt.IsZero() {
		song.UploadedAt = now
	}
	song.UpdatedAt = now
	s.songs[song.ID] = *song
	return nil
}

func (s *MemoryStore) GetSong(id string) (*models.Song, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	song, ok := s.songs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &song, nil
}

func (s *MemoryStore) ListSongs(userID string) ([]models.Song, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []models.Song
	for _, song := range s.songs {
		if userID == "" || song.UserID == userID {
			res = append(res, song)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].UploadedAt.After(res[j].UploadedAt) })
	return res, nil
}

func (s *MemoryStore) UpdateSong(song *models.Song) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.songs[song.ID]; !ok {
		return ErrNotFound
	}
	song.UpdatedAt = time.Now()
	s.songs[song.ID] = *song
	return nil
}

func (s *MemoryStore) DeleteSong(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.songs[id]; !ok {
		return ErrNotFound
	}
	delete(s.songs, id)
	stemIDs := map[string]bool{}
	midiIDs := map[string]bool{}
	for sid, stem := range s.stems {
		if stem.SongID != id {
			continue
		}
		stemIDs[sid] = true
		delete(s.stems, sid)
		for mid, m := range s.midis {
			if m.StemID == sid {
				midiIDs[mid] = true
				delete(s.midis, mid)
			}
		}
	}
	trackIDs := map[string]bool{}
	for tid, tr := range s.tracks {
		if midiIDs[tr.MidiFileID] {
			trackIDs[tid] = true
			delete(s.tracks, tid)
		}
	}
	for vid, v := range s.versions {
		if trackIDs[v.TrackID] {
			delete(s.versions, vid)
		}
	}
	for tid, task := range s.tasks {
		if task.SongID == id || stemIDs[task.StemID] || trackIDs[task.TrackID] {
			delete(s.tasks, tid)
		}
	}
	return nil
}

func (s *MemoryStore) UpsertStem(stem *models.Stem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, existing := range s.stems {
		if existing.SongID == stem.SongID && existing.Ordinal == stem.Ordinal {
			stem.ID = existing.ID
			stem.CreatedAt = existing.CreatedAt
			stem.UpdatedAt = now
			s.stems[stem.ID] = *stem
			return nil
		}
	}
	stem.CreatedAt = now
	stem.UpdatedAt = now
	s.stems[stem.ID] = *stem
	return nil
}

func (s *MemoryStore) GetStem(id string) (*models.Stem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stem, ok := s.stems[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &stem, nil
}

func (s *MemoryStore) ListStems(songID string) ([]models.Stem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []models.Stem
	for _, stem := range s.stems {
		if stem.SongID == songID {
			res = append(res, stem)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Ordinal < res[j].Ordinal })
	return res, nil
}

func (s *MemoryStore) EnsureMidiFile(stemID string) (*models.MidiFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.midis {
		if m.StemID == stemID {
			return &m, nil
		}
	}
	m := models.MidiFile{
		ID:        uuid.NewString(),
		StemID:    stemID,
		Status:    models.MidiStatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	s.midis[m.ID] = m
	return &m, nil
}

func (s *MemoryStore) GetMidiFile(id string) (*models.MidiFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.midis[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (s *MemoryStore) GetMidiFileByStem(stemID string) (*models.MidiFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.midis {
		if m.StemID == stemID {
			return &m, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdateMidiFile(m *models.MidiFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.midis[m.ID]; !ok {
		return ErrNotFound
	}
	m.UpdatedAt = time.Now()
	s.midis[m.ID] = *m
	return nil
}

func (s *MemoryStore) AllMidisCompleted(songID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total, completed := 0, 0
	for _, stem := range s.stems {
		if stem.SongID != songID {
			continue
		}
		total++
		for _, m := range s.midis {
			if m.StemID == stem.ID && m.Status == models.MidiStatusCompleted {
				completed++
			}
		}
	}
	return total > 0 && total == completed, nil
}

func (s *MemoryStore) CreateTrack(t *models.GeneratedTrack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	s.tracks[t.ID] = *t
	return nil
}

func (s *MemoryStore) GetTrack(id string) (*models.GeneratedTrack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (s *MemoryStore) ListTracks(userID string) ([]models.GeneratedTrack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []models.GeneratedTrack
	for _, t := range s.tracks {
		if userID == "" || t.UserID == userID {
			res = append(res, t)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (s *MemoryStore) UpdateTrack(t *models.GeneratedTrack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tracks[t.ID]; !ok {
		return ErrNotFound
	}
	t.UpdatedAt = time.Now()
	s.tracks[t.ID] = *t
	return nil
}

func (s *MemoryStore) CreateVersion(v *models.GeneratedVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.versions {
		if existing.TrackID == v.TrackID && existing.VersionNumber == v.VersionNumber {
			return ErrDuplicate
		}
	}
	v.CreatedAt = time.Now()
	s.versions[v.ID] = *v
	return nil
}

func (s *MemoryStore) GetVersion(id string) (*models.GeneratedVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.versions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &v, nil
}

func (s *MemoryStore) ListVersions(trackID string) ([]models.GeneratedVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []models.GeneratedVersion
	for _, v := range s.versions {
		if v.TrackID == trackID {
			res = append(res, v)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].VersionNumber < res[j].VersionNumber })
	return res, nil
}

func (s *MemoryStore) ClaimTask(task *models.ProcessingTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tasks {
		if existing.TaskType == task.TaskType && !existing.Terminal() &&
			existing.TargetID() == task.TargetID() {
			return ErrTaskInFlight
		}
	}
	task.CreatedAt = time.Now()
	task.UpdatedAt = task.CreatedAt
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	s.tasks[task.ID] = *task
	return nil
}

func (s *MemoryStore) GetTask(id string) (*models.ProcessingTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (s *MemoryStore) UpdateTask(task *models.ProcessingTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; !ok {
		return ErrNotFound
	}
	task.UpdatedAt = time.Now()
	s.tasks[task.ID] = *task
	return nil
}

func (s *MemoryStore) SweepFailedTasks(olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, t := range s.tasks {
		if t.Status == models.TaskStatusFailed && t.CreatedAt.Before(olderThan) {
			delete(s.tasks, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Stats(userID string) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &Stats{}
	songIDs := map[string]bool{}
	for _, song := range s.songs {
		if userID == "" || song.UserID == userID {
			st.Songs++
			songIDs[song.ID] = true
		}
	}
	stemIDs := map[string]bool{}
	for _, stem := range s.stems {
		if songIDs[stem.SongID] {
			st.Stems++
			stemIDs[stem.ID] = true
		}
	}
	for _, m := range s.midis {
		if stemIDs[m.StemID] && m.Status == models.MidiStatusCompleted {
			st.Midis++
		}
	}
	trackIDs := map[string]bool{}
	for _, t := range s.tracks {
		if userID == "" || t.UserID == userID {
			st.Tracks++
			trackIDs[t.ID] = true
		}
	}
	for _, v := range s.versions {
		if trackIDs[v.TrackID] {
			st.Versions++
		}
	}
	return st, nil
}
