package api

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

// 手搓一个最小的单声道 16bit PCM WAV，dataBytes 字节的采样数据
func pcmWav(sampleRate uint32, dataBytes uint32) []byte {
	buf := &bytes.Buffer{}
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataBytes))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(buf, binary.LittleEndian, sampleRate)
	binary.Write(buf, binary.LittleEndian, sampleRate*2) // byte rate
	binary.Write(buf, binary.LittleEndian, uint16(2))    // block align
	binary.Write(buf, binary.LittleEndian, uint16(16))   // bit depth
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, dataBytes)
	buf.Write(make([]byte, dataBytes))
	return buf.Bytes()
}

func TestWavDuration(t *testing.T) {
	// 8000Hz 单声道 16bit，16000 字节数据 = 1 秒
	got := wavDuration(bytes.NewReader(pcmWav(8000, 16000)))
	if math.Abs(got-1.0) > 0.01 {
		t.Errorf("duration = %v, want ~1.0s", got)
	}

	got = wavDuration(bytes.NewReader(pcmWav(8000, 48000)))
	if math.Abs(got-3.0) > 0.01 {
		t.Errorf("duration = %v, want ~3.0s", got)
	}
}

func TestWavDurationRejectsGarbage(t *testing.T) {
	if got := wavDuration(bytes.NewReader([]byte("not a wav file at all"))); got != 0 {
		t.Errorf("garbage input duration = %v, want 0", got)
	}
	if got := wavDuration(bytes.NewReader(nil)); got != 0 {
		t.Errorf("empty input duration = %v, want 0", got)
	}
}
