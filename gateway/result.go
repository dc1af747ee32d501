package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
)

// EntryKind 远程结果条目的形态。各服务返回的元素形态不一致：
// 纯路径字符串、带 path 字段的对象、带 url 字段的对象都出现过。
type EntryKind int

const (
	EntryEmpty EntryKind = iota
	EntryInlinePath
	EntryObjectPath
	EntryObjectURL
)

// ResultEntry 归一化后的单个结果条目
type ResultEntry struct {
	Kind EntryKind
	Path string
	URL  string
}

// DecodeEntry 把一个原始 JSON 元素归一化成 ResultEntry
func DecodeEntry(raw json.RawMessage) ResultEntry {
	if len(raw) == 0 || string(raw) == "null" {
		return ResultEntry{Kind: EntryEmpty}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return ResultEntry{Kind: EntryEmpty}
		}
		return ResultEntry{Kind: EntryInlinePath, Path: s}
	}
	var obj struct {
		Path string `json:"path"`
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ResultEntry{Kind: EntryEmpty}
	}
	if obj.URL != "" {
		return ResultEntry{Kind: EntryObjectURL, URL: obj.URL}
	}
	if obj.Path != "" {
		return ResultEntry{Kind: EntryObjectPath, Path: obj.Path}
	}
	if obj.Name != "" {
		return ResultEntry{Kind: EntryObjectPath, Path: obj.Name}
	}
	return ResultEntry{Kind: EntryEmpty}
}

// DecodeEntries 批量归一化
func DecodeEntries(raws []json.RawMessage) []ResultEntry {
	entries := make([]ResultEntry, 0, len(raws))
	for _, raw := range raws {
		entries = append(entries, DecodeEntry(raw))
	}
	return entries
}

// Usable 条目是否可用：缺失、零字节、指向不存在文件的都跳过
func (e ResultEntry) Usable() bool {
	switch e.Kind {
	case EntryInlinePath, EntryObjectPath:
		info, err := os.Stat(e.Path)
		return err == nil && info.Size() > 0
	case EntryObjectURL:
		return e.URL != ""
	default:
		return false
	}
}

// Open 打开条目内容。本地路径直接读文件，URL 形态通过 HTTP 下载。
func (e ResultEntry) Open(ctx context.Context, httpc *http.Client) (io.ReadCloser, int64, error) {
	switch e.Kind {
	case EntryInlinePath, EntryObjectPath:
		f, err := os.Open(e.Path)
		if err != nil {
			return nil, 0, err
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, 0, err
		}
		return f, info.Size(), nil
	case EntryObjectURL:
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.URL, nil)
		if err != nil {
			return nil, 0, err
		}
		if httpc == nil {
			httpc = http.DefaultClient
		}
		resp, err := httpc.Do(req)
		if err != nil {
			return nil, 0, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, 0, fmt.Errorf("download status: %d", resp.StatusCode)
		}
		return resp.Body, resp.ContentLength, nil
	default:
		return nil, 0, fmt.Errorf("empty result entry")
	}
}

// AudioSlots 从生成服务的交错结果 [audio0, plot0, audio1, plot1, ...]
// 里取音频槽位（偶数下标），最多 8 个
func AudioSlots(entries []ResultEntry) []ResultEntry {
	var slots []ResultEntry
	for i := 0; i < len(entries) && len(slots) < 8; i += 2 {
		slots = append(slots, entries[i])
	}
	return slots
}
