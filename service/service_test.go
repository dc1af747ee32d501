package service

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"souniq-server/config"
	"souniq-server/gateway"
	"souniq-server/models"
	"souniq-server/store"

	"github.com/google/uuid"
)

// fakeGateway 按预置结果应答，并记录收到的调用
type fakeGateway struct {
	separateEntries []gateway.ResultEntry
	separateErr     error
	convertEntry    gateway.ResultEntry
	convertErr      error
	generateEntries []gateway.ResultEntry
	generateErr     error

	separateCalls int
	convertCalls  int
	generateCalls int
	lastParams    gateway.GenerationParams
}

func (g *fakeGateway) Separate(ctx context.Context, audioPath string) ([]gateway.ResultEntry, error) {
	g.separateCalls++
	return g.separateEntries, g.separateErr
}

func (g *fakeGateway) ConvertToMIDI(ctx context.Context, audioPath string) (gateway.ResultEntry, error) {
	g.convertCalls++
	return g.convertEntry, g.convertErr
}

// Generate 和真实实现一样只交出交错结果里的音频槽位
func (g *fakeGateway) Generate(ctx context.Context, midiPath string, params gateway.GenerationParams) ([]gateway.ResultEntry, error) {
	g.generateCalls++
	g.lastParams = params
	if g.generateErr != nil {
		return nil, g.generateErr
	}
	return gateway.AudioSlots(g.generateEntries), nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return cfg
}

// newTestExecutor 返回执行器和隔离的 TempDir，方便断言临时文件清理
func newTestExecutor(t *testing.T, gw gateway.Gateway) (*Executor, *store.MemoryStore, *MemoryArtifactStore) {
	t.Helper()
	st := store.NewMemoryStore()
	artifacts := NewMemoryArtifactStore()
	exec := NewExecutor(st, artifacts, gw, testConfig())
	exec.TempDir = t.TempDir()
	return exec, st, artifacts
}

// resultFile 在磁盘上放一个真实文件并返回指向它的条目
func resultFile(t *testing.T, dir, name string, content []byte) gateway.ResultEntry {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("write result file: %v", err)
	}
	return gateway.ResultEntry{Kind: gateway.EntryInlinePath, Path: path}
}

func seedSong(t *testing.T, st *store.MemoryStore, artifacts *MemoryArtifactStore) *models.Song {
	t.Helper()
	song := &models.Song{
		ID:     uuid.NewString(),
		UserID: "u1",
		Title:  "demo",
		Status: models.SongStatusUploaded,
	}
	song.ObjectKey = SongObjectKey(song.ID, ".wav")
	mustPut(t, artifacts, song.ObjectKey, []byte("original audio"))
	if err := st.CreateSong(song); err != nil {
		t.Fatalf("seed song: %v", err)
	}
	return song
}

func seedStem(t *testing.T, st *store.MemoryStore, artifacts *MemoryArtifactStore, songID string, ordinal int, stemType string) *models.Stem {
	t.Helper()
	stem := &models.Stem{
		ID:       uuid.NewString(),
		SongID:   songID,
		Ordinal:  ordinal,
		StemType: stemType,
	}
	stem.ObjectKey = StemObjectKey(songID, ordinal, stemType)
	mustPut(t, artifacts, stem.ObjectKey, []byte("stem audio"))
	if err := st.UpsertStem(stem); err != nil {
		t.Fatalf("seed stem: %v", err)
	}
	return stem
}

func mustPut(t *testing.T, artifacts *MemoryArtifactStore, key string, data []byte) {
	t.Helper()
	if err := artifacts.Put(context.Background(), key, bytes.NewReader(data), int64(len(data))); err != nil {
		t.Fatalf("put %s: %v", key, err)
	}
}

// validMidi 构造一份能过本地校验的 MIDI 内容
func validMidi() []byte {
	data := make([]byte, 200)
	copy(data, "MThd")
	return data
}

func tempDirEmpty(t *testing.T, dir string) bool {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	return len(entries) == 0
}
