package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"synxronlibrary/internal/domain"
	"synxronlibrary/internal/repository/memory"
	"synxronlibrary/internal/service/s3"
)

type fakeObject struct {
	io.ReadCloser
	length      int64
	contentType string
}

func (o *fakeObject) ContentLength() int64 { return o.length }
func (o *fakeObject) ContentType() string  { return o.contentType }

type fakeStorage struct {
	objects map[string][]byte
	types   map[string]string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (f *fakeStorage) UploadBytes(ctx context.Context, key, contentType string, data []byte) error {
	f.objects[key] = data
	f.types[key] = contentType
	return nil
}

func (f *fakeStorage) GetObject(ctx context.Context, key string) (s3.Object, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", key)
	}
	return &fakeObject{
		ReadCloser:  io.NopCloser(bytes.NewReader(data)),
		length:      int64(len(data)),
		contentType: f.types[key],
	}, nil
}

func (f *fakeStorage) DeleteObject(ctx context.Context, key string) error {
	delete(f.objects, key)
	delete(f.types, key)
	return nil
}

func (f *fakeStorage) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if _, ok := f.objects[key]; !ok {
		return "", fmt.Errorf("object not found: %s", key)
	}
	return "https://storage.test/" + key, nil
}

type mediaFixture struct {
	*permissionFixture
	storage *fakeStorage
	svc     *MediaService
}

func newMediaFixture(t *testing.T) *mediaFixture {
	t.Helper()

	pf := &permissionFixture{
		store: memory.NewStore(16),
		roles: make(map[string][]string),
	}
	pf.svc = NewPermissionService(pf.store, pf.store, pf.store, nil,
		func(ctx context.Context, userID string) bool { return false },
		func(ctx context.Context, userID string) []string { return nil },
		16)

	storage := newFakeStorage()
	return &mediaFixture{
		permissionFixture: pf,
		storage:           storage,
		svc: NewMediaService(pf.store, storage, nil, pf.svc,
			time.Hour, []string{"youtube.com", "vimeo.com"}),
	}
}

func TestAttachPayloadReplacesOldObject(t *testing.T) {
	f := newMediaFixture(t)
	ctx := context.Background()

	file := f.mustCreate(t, "Video.mp4", "alice", nil, domain.ItemTypeFile, domain.GeneralAccessPrivate)

	item, err := f.svc.AttachPayload(ctx, "alice", file.ID, "video/mp4", []byte("first"))
	require.NoError(t, err)
	require.NotNil(t, item.MediaKey)
	firstKey := *item.MediaKey

	item, err = f.svc.AttachPayload(ctx, "alice", file.ID, "video/mp4", []byte("second"))
	require.NoError(t, err)
	require.NotEqual(t, firstKey, *item.MediaKey)

	// Прежний объект удалён из хранилища
	_, ok := f.storage.objects[firstKey]
	require.False(t, ok)
	require.Equal(t, []byte("second"), f.storage.objects[*item.MediaKey])
	require.Equal(t, int64(6), *item.SizeBytes)
}

func TestAttachPayloadPermissions(t *testing.T) {
	f := newMediaFixture(t)
	ctx := context.Background()

	file := f.mustCreate(t, "Doc.pdf", "alice", nil, domain.ItemTypeFile, domain.GeneralAccessPrivate)
	folder := f.mustCreate(t, "Docs", "alice", nil, domain.ItemTypeFolder, domain.GeneralAccessPrivate)

	_, err := f.svc.AttachPayload(ctx, "bob", file.ID, "application/pdf", []byte("x"))
	require.ErrorIs(t, err, domain.ErrAccessDenied)

	// viewer загружать не может
	f.mustGrant(t, file.ID, "bob", domain.RoleViewer)
	_, err = f.svc.AttachPayload(ctx, "bob", file.ID, "application/pdf", []byte("x"))
	require.ErrorIs(t, err, domain.ErrAccessDenied)

	f.mustGrant(t, file.ID, "bob", domain.RoleEditor)
	_, err = f.svc.AttachPayload(ctx, "bob", file.ID, "application/pdf", []byte("x"))
	require.NoError(t, err)

	// Папке полезная нагрузка не привязывается
	_, err = f.svc.AttachPayload(ctx, "alice", folder.ID, "application/pdf", []byte("x"))
	require.Error(t, err)
}

func TestPayloadForLinkAndFile(t *testing.T) {
	f := newMediaFixture(t)
	ctx := context.Background()

	url := "https://www.youtube.com/watch?v=abc"
	link := &domain.Item{
		Name:          "Talk",
		Type:          domain.ItemTypeLink,
		CreatedBy:     "alice",
		UpdatedBy:     "alice",
		GeneralAccess: domain.GeneralAccessAnyone,
		ExternalURL:   &url,
	}
	require.NoError(t, f.store.Create(ctx, link))

	// Ссылка отдаёт внешний адрес и распознанное видео
	info, err := f.svc.Payload(ctx, "", link.ID)
	require.NoError(t, err)
	require.Equal(t, url, info.URL)
	require.True(t, info.IsVideo)

	file := f.mustCreate(t, "Doc.pdf", "alice", nil, domain.ItemTypeFile, domain.GeneralAccessPrivate)

	// Файл без содержимого нагрузку не отдаёт
	_, err = f.svc.Payload(ctx, "alice", file.ID)
	require.Error(t, err)

	item, err := f.svc.AttachPayload(ctx, "alice", file.ID, "application/pdf", []byte("data"))
	require.NoError(t, err)

	info, err = f.svc.Payload(ctx, "alice", file.ID)
	require.NoError(t, err)
	require.Equal(t, "https://storage.test/"+*item.MediaKey, info.URL)
	require.Equal(t, "application/pdf", info.MIMEType)
	require.False(t, info.IsVideo)
}

func TestDownload(t *testing.T) {
	f := newMediaFixture(t)
	ctx := context.Background()

	file := f.mustCreate(t, "Doc.pdf", "alice", nil, domain.ItemTypeFile, domain.GeneralAccessPrivate)
	_, err := f.svc.AttachPayload(ctx, "alice", file.ID, "application/pdf", []byte("payload"))
	require.NoError(t, err)

	// Без доступа скачивание закрыто
	_, _, err = f.svc.Download(ctx, "bob", file.ID)
	require.ErrorIs(t, err, domain.ErrAccessDenied)

	obj, item, err := f.svc.Download(ctx, "alice", file.ID)
	require.NoError(t, err)
	defer obj.Close()

	data, err := io.ReadAll(obj)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), data)
	require.Equal(t, "Doc.pdf", item.Name)
}
