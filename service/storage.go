package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	"souniq-server/config"
	"souniq-server/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// ArtifactStore 二进制产物存储。对象名由所属实体 + 序号/类型唯一决定。
type ArtifactStore interface {
	Put(ctx context.Context, objectName string, reader io.Reader, size int64) error
	Get(ctx context.Context, objectName string) (io.ReadCloser, error)
	PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
	Remove(ctx context.Context, objectName string) error
}

// 对象命名：所属实体加序号/类型唯一决定 blob
func SongObjectKey(songID, ext string) string {
	return fmt.Sprintf("songs/%s/original%s", songID, ext)
}

func StemObjectKey(songID string, ordinal int, stemType string) string {
	return fmt.Sprintf("songs/%s/stems/%d_%s.wav", songID, ordinal, stemType)
}

func MidiObjectKey(stemID string) string {
	return fmt.Sprintf("midi/%s.mid", stemID)
}

func VersionObjectKey(trackID string, versionNumber int) string {
	return fmt.Sprintf("tracks/%s/v%d.wav", trackID, versionNumber)
}

// MinioStore MinIO 实现
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore 初始化 MinIO 连接并确保 bucket 存在
func NewMinioStore(cfg *config.Config) (*MinioStore, error) {
	mc := cfg.MinIO
	client, err := minio.New(mc.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(mc.AccessKey, mc.SecretKey, ""),
		Secure: mc.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("MinIO 初始化失败: %w", err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, mc.Bucket)
	if err != nil {
		return nil, fmt.Errorf("检查 Bucket 失败: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, mc.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 Bucket 失败: %w", err)
		}
		logger.Info("Bucket 已创建", zap.String("bucket", mc.Bucket))
	}

	return &MinioStore{client: client, bucket: mc.Bucket}, nil
}

func contentTypeFor(objectName string) string {
	switch filepath.Ext(objectName) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".mid", ".midi":
		return "audio/midi"
	default:
		return "application/octet-stream"
	}
}

func (s *MinioStore) Put(ctx context.Context, objectName string, reader io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentTypeFor(objectName),
	})
	if err != nil {
		return fmt.Errorf("上传到 MinIO 失败: %w", err)
	}
	return nil
}

func (s *MinioStore) Get(ctx context.Context, objectName string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("读取 MinIO 对象失败: %w", err)
	}
	return obj, nil
}

func (s *MinioStore) PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	reqParams := make(url.Values)
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, expiry, reqParams)
	if err != nil {
		return "", fmt.Errorf("生成签名 URL 失败: %w", err)
	}
	return u.String(), nil
}

func (s *MinioStore) Remove(ctx context.Context, objectName string) error {
	return s.client.RemoveObject(ctx, s.bucket, objectName, minio.RemoveObjectOptions{})
}

// MemoryArtifactStore 内存实现，测试用
type MemoryArtifactStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func NewMemoryArtifactStore() *MemoryArtifactStore {
	return &MemoryArtifactStore{objects: make(map[string][]byte)}
}

func (s *MemoryArtifactStore) Put(ctx context.Context, objectName string, reader io.Reader, size int64) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectName] = data
	return nil
}

func (s *MemoryArtifactStore) Get(ctx context.Context, objectName string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[objectName]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", objectName)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemoryArtifactStore) PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[objectName]; !ok {
		return "", fmt.Errorf("object not found: %s", objectName)
	}
	return "memory://" + objectName, nil
}

func (s *MemoryArtifactStore) Remove(ctx context.Context, objectName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, objectName)
	return nil
}

// Has 测试辅助
func (s *MemoryArtifactStore) Has(objectName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[objectName]
	return ok
}

// Size 测试辅助
func (s *MemoryArtifactStore) Size(objectName string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.objects[objectName]))
}
