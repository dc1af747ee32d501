package gateway

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDecodeEntryVariants(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		kind EntryKind
		path string
		url  string
	}{
		{"inline path", `"/tmp/out.wav"`, EntryInlinePath, "/tmp/out.wav", ""},
		{"object path", `{"path": "/tmp/out.wav"}`, EntryObjectPath, "/tmp/out.wav", ""},
		{"object name", `{"name": "/tmp/out.wav"}`, EntryObjectPath, "/tmp/out.wav", ""},
		{"object url", `{"url": "http://host/file"}`, EntryObjectURL, "", "http://host/file"},
		{"null", `null`, EntryEmpty, "", ""},
		{"empty string", `""`, EntryEmpty, "", ""},
		{"empty object", `{}`, EntryEmpty, "", ""},
	}
	for _, tc := range cases {
		e := DecodeEntry(json.RawMessage(tc.raw))
		if e.Kind != tc.kind {
			t.Errorf("%s: kind = %v, want %v", tc.name, e.Kind, tc.kind)
		}
		if e.Path != tc.path || e.URL != tc.url {
			t.Errorf("%s: got %+v", tc.name, e)
		}
	}
}

func TestUsableChecksLocalFile(t *testing.T) {
	dir := t.TempDir()

	full := filepath.Join(dir, "full.wav")
	os.WriteFile(full, []byte("data"), 0644)
	empty := filepath.Join(dir, "empty.wav")
	os.WriteFile(empty, nil, 0644)

	if !(ResultEntry{Kind: EntryInlinePath, Path: full}).Usable() {
		t.Error("non-empty file should be usable")
	}
	if (ResultEntry{Kind: EntryInlinePath, Path: empty}).Usable() {
		t.Error("zero-byte file should not be usable")
	}
	if (ResultEntry{Kind: EntryInlinePath, Path: filepath.Join(dir, "missing.wav")}).Usable() {
		t.Error("missing file should not be usable")
	}
	if (ResultEntry{Kind: EntryEmpty}).Usable() {
		t.Error("empty entry should not be usable")
	}
	if !(ResultEntry{Kind: EntryObjectURL, URL: "http://host/f"}).Usable() {
		t.Error("url entry should be usable")
	}
}

func TestAudioSlotsTakesEvenIndices(t *testing.T) {
	// 生成结果交错排列 [audio, plot, audio, plot, ...]
	var entries []ResultEntry
	for i := 0; i < 16; i++ {
		entries = append(entries, ResultEntry{Kind: EntryInlinePath, Path: string(rune('a' + i))})
	}
	slots := AudioSlots(entries)
	if len(slots) != 8 {
		t.Fatalf("slots = %d, want 8", len(slots))
	}
	for i, s := range slots {
		want := string(rune('a' + i*2))
		if s.Path != want {
			t.Errorf("slot %d = %q, want %q", i, s.Path, want)
		}
	}

	short := AudioSlots(entries[:5])
	if len(short) != 3 {
		t.Errorf("short slots = %d, want 3 (indices 0,2,4)", len(short))
	}
}
