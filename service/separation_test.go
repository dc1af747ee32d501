package service

import (
	"context"
	"testing"

	"souniq-server/gateway"
	"souniq-server/models"
)

func sevenStems(t *testing.T, dir string) []gateway.ResultEntry {
	t.Helper()
	names := []string{"vocals", "drums", "bass", "guitar", "piano", "other", "clean"}
	entries := make([]gateway.ResultEntry, 0, len(names))
	for _, n := range names {
		entries = append(entries, resultFile(t, dir, n+".wav", []byte("audio "+n)))
	}
	return entries
}

func TestSeparateSongCreatesSevenStemsWithPendingMidis(t *testing.T) {
	gw := &fakeGateway{}
	exec, st, artifacts := newTestExecutor(t, gw)
	gw.separateEntries = sevenStems(t, t.TempDir())
	song := seedSong(t, st, artifacts)

	created, err := exec.SeparateSong(context.Background(), song.ID, nil)
	if err != nil {
		t.Fatalf("SeparateSong: %v", err)
	}
	if created != 7 {
		t.Errorf("created = %d, want 7", created)
	}

	got, _ := st.GetSong(song.ID)
	if got.Status != models.SongStatusStemsCompleted {
		t.Errorf("song status = %q, want stems_completed", got.Status)
	}

	stems, _ := st.ListStems(song.ID)
	if len(stems) != 7 {
		t.Fatalf("stems = %d, want 7", len(stems))
	}
	wantTypes := []string{"vocals", "drums", "bass", "guitar", "piano", "other", "clean"}
	for i, s := range stems {
		if s.Ordinal != i {
			t.Errorf("stem %d ordinal = %d", i, s.Ordinal)
		}
		if s.StemType != wantTypes[i] {
			t.Errorf("ordinal %d type = %q, want %q", i, s.StemType, wantTypes[i])
		}
		if !artifacts.Has(s.ObjectKey) {
			t.Errorf("stem %d audio not stored at %s", i, s.ObjectKey)
		}
		midi, err := st.GetMidiFileByStem(s.ID)
		if err != nil {
			t.Errorf("stem %d has no midi record: %v", i, err)
			continue
		}
		if midi.Status != models.MidiStatusPending {
			t.Errorf("stem %d midi status = %q, want pending", i, midi.Status)
		}
	}

	if !tempDirEmpty(t, exec.TempDir) {
		t.Error("temp files left behind after successful separation")
	}
}

func TestSeparateSongRerunOverwritesInsteadOfDuplicating(t *testing.T) {
	gw := &fakeGateway{}
	exec, st, artifacts := newTestExecutor(t, gw)
	gw.separateEntries = sevenStems(t, t.TempDir())
	song := seedSong(t, st, artifacts)

	if _, err := exec.SeparateSong(context.Background(), song.ID, nil); err != nil {
		t.Fatalf("first run: %v", err)
	}
	firstStems, _ := st.ListStems(song.ID)

	if _, err := exec.SeparateSong(context.Background(), song.ID, nil); err != nil {
		t.Fatalf("second run: %v", err)
	}
	secondStems, _ := st.ListStems(song.ID)

	if len(secondStems) != 7 {
		t.Fatalf("stems after rerun = %d, want 7", len(secondStems))
	}
	// (song, ordinal) 命中时保留原 id
	for i := range firstStems {
		if secondStems[i].ID != firstStems[i].ID {
			t.Errorf("ordinal %d id changed on rerun: %s -> %s",
				i, firstStems[i].ID, secondStems[i].ID)
		}
	}
}

func TestSeparateSongTooFewResultsFails(t *testing.T) {
	gw := &fakeGateway{}
	exec, st, artifacts := newTestExecutor(t, gw)
	dir := t.TempDir()
	gw.separateEntries = []gateway.ResultEntry{
		resultFile(t, dir, "vocals.wav", []byte("audio")),
		resultFile(t, dir, "drums.wav", []byte("audio")),
	}
	song := seedSong(t, st, artifacts)

	if _, err := exec.SeparateSong(context.Background(), song.ID, nil); err == nil {
		t.Fatal("expected error for short result set")
	}
	got, _ := st.GetSong(song.ID)
	if got.Status != models.SongStatusError {
		t.Errorf("song status = %q, want error", got.Status)
	}
	if !tempDirEmpty(t, exec.TempDir) {
		t.Error("temp files left behind after failed separation")
	}
}

func TestSeparateSongSkipsUnusableEntries(t *testing.T) {
	gw := &fakeGateway{}
	exec, st, artifacts := newTestExecutor(t, gw)
	entries := sevenStems(t, t.TempDir())
	entries[1] = gateway.ResultEntry{Kind: gateway.EntryEmpty} // drums 槽位缺失
	gw.separateEntries = entries
	song := seedSong(t, st, artifacts)

	created, err := exec.SeparateSong(context.Background(), song.ID, nil)
	if err != nil {
		t.Fatalf("SeparateSong: %v", err)
	}
	if created != 6 {
		t.Errorf("created = %d, want 6", created)
	}

	stems, _ := st.ListStems(song.ID)
	for _, s := range stems {
		if s.Ordinal == 1 {
			t.Error("unusable ordinal 1 should not have been persisted")
		}
	}
	got, _ := st.GetSong(song.ID)
	if got.Status != models.SongStatusStemsCompleted {
		t.Errorf("partial success should still complete, status = %q", got.Status)
	}
}

func TestSeparateSongGatewayErrorMarksSongError(t *testing.T) {
	gw := &fakeGateway{separateErr: context.DeadlineExceeded}
	exec, st, artifacts := newTestExecutor(t, gw)
	song := seedSong(t, st, artifacts)

	if _, err := exec.SeparateSong(context.Background(), song.ID, nil); err == nil {
		t.Fatal("expected error")
	}
	got, _ := st.GetSong(song.ID)
	if got.Status != models.SongStatusError {
		t.Errorf("song status = %q, want error", got.Status)
	}
	if !tempDirEmpty(t, exec.TempDir) {
		t.Error("temp files left behind after gateway failure")
	}
}
