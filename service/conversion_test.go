package service

import (
	"context"
	"fmt"
	"io"
	"testing"

	"souniq-server/gateway"
	"souniq-server/models"
)

func TestConvertStemCompletesMidi(t *testing.T) {
	gw := &fakeGateway{}
	exec, st, artifacts := newTestExecutor(t, gw)
	gw.convertEntry = resultFile(t, t.TempDir(), "drums.mid", validMidi())

	song := seedSong(t, st, artifacts)
	stem := seedStem(t, st, artifacts, song.ID, 1, models.StemTypeDrums)

	if err := exec.ConvertStem(context.Background(), stem.ID, nil); err != nil {
		t.Fatalf("ConvertStem: %v", err)
	}

	midi, err := st.GetMidiFileByStem(stem.ID)
	if err != nil {
		t.Fatalf("midi record missing: %v", err)
	}
	if midi.Status != models.MidiStatusCompleted {
		t.Errorf("midi status = %q, want completed", midi.Status)
	}
	if midi.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
	if midi.ObjectKey != MidiObjectKey(stem.ID) {
		t.Errorf("object key = %q", midi.ObjectKey)
	}
	if !artifacts.Has(midi.ObjectKey) {
		t.Error("midi blob not stored")
	}

	rc, _ := artifacts.Get(context.Background(), midi.ObjectKey)
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data[:4]) != "MThd" {
		t.Error("stored blob is not the conversion result")
	}

	if !tempDirEmpty(t, exec.TempDir) {
		t.Error("temp files left behind after conversion")
	}
}

func TestConvertStemGatewayFailureMarksError(t *testing.T) {
	gw := &fakeGateway{convertErr: fmt.Errorf("conversion: 远程服务报告失败")}
	exec, st, artifacts := newTestExecutor(t, gw)

	song := seedSong(t, st, artifacts)
	stem := seedStem(t, st, artifacts, song.ID, 0, models.StemTypeVocals)

	if err := exec.ConvertStem(context.Background(), stem.ID, nil); err == nil {
		t.Fatal("expected error")
	}

	midi, err := st.GetMidiFileByStem(stem.ID)
	if err != nil {
		t.Fatalf("midi record missing: %v", err)
	}
	if midi.Status != models.MidiStatusError {
		t.Errorf("midi status = %q, want error", midi.Status)
	}
	if midi.ErrorMessage == "" {
		t.Error("error message not recorded")
	}
	if midi.ObjectKey != "" {
		t.Error("failed conversion should leave object key empty")
	}
	if !tempDirEmpty(t, exec.TempDir) {
		t.Error("temp files left behind after failed conversion")
	}
}

func TestConvertStemEmptyResultFails(t *testing.T) {
	gw := &fakeGateway{convertEntry: gateway.ResultEntry{Kind: gateway.EntryEmpty}}
	exec, st, artifacts := newTestExecutor(t, gw)

	song := seedSong(t, st, artifacts)
	stem := seedStem(t, st, artifacts, song.ID, 2, models.StemTypeBass)

	if err := exec.ConvertStem(context.Background(), stem.ID, nil); err == nil {
		t.Fatal("expected error for unusable result")
	}
	midi, _ := st.GetMidiFileByStem(stem.ID)
	if midi.Status != models.MidiStatusError {
		t.Errorf("midi status = %q, want error", midi.Status)
	}
}

func TestConvertStemReconvertOverwrites(t *testing.T) {
	gw := &fakeGateway{}
	exec, st, artifacts := newTestExecutor(t, gw)
	dir := t.TempDir()
	gw.convertEntry = resultFile(t, dir, "v1.mid", validMidi())

	song := seedSong(t, st, artifacts)
	stem := seedStem(t, st, artifacts, song.ID, 3, models.StemTypeGuitar)

	if err := exec.ConvertStem(context.Background(), stem.ID, nil); err != nil {
		t.Fatalf("first convert: %v", err)
	}
	first, _ := st.GetMidiFileByStem(stem.ID)

	if err := exec.ConvertStem(context.Background(), stem.ID, nil); err != nil {
		t.Fatalf("reconvert: %v", err)
	}
	second, _ := st.GetMidiFileByStem(stem.ID)

	if second.ID != first.ID {
		t.Error("reconvert should reuse the existing midi record")
	}
	if second.Status != models.MidiStatusCompleted {
		t.Errorf("status = %q, want completed", second.Status)
	}
}
