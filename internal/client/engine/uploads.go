package engine

import (
	"context"
	"fmt"

	"github.com/cipherroom/internal/client/models"
	"github.com/cipherroom/internal/cryptox"
	"github.com/google/uuid"
)

// BlobUploader is the direct-to-storage leg of an attachment upload. The
// HTTP transport implements it; tests substitute it.
type BlobUploader interface {
	UploadBlob(ctx context.Context, uploadURL string, blob []byte) error
}

// UploadAttachment encrypts the blob with the room key, obtains a presigned
// slot and uploads it. Progress in the cache moves monotonically through the
// stages; a cancel through CancelUpload freezes the task and later progress
// is discarded. The returned attachment goes into a subsequent SendMessage.
func (e *Engine) UploadAttachment(ctx context.Context, up BlobUploader, roomID, name string, data []byte) (models.Attachment, error) {
	task := models.UploadTask{
		ID:     uuid.NewString(),
		RoomID: roomID,
		Name:   name,
		Status: models.UploadUploading,
	}
	e.cache.PutUpload(task)

	key, err := e.roomKey(ctx, roomID)
	if err != nil {
		e.cache.SetUploadStatus(task.ID, models.UploadFailed)
		return models.Attachment{}, err
	}

	envelope, err := cryptox.Encrypt(data, key)
	if err != nil {
		e.cache.SetUploadStatus(task.ID, models.UploadFailed)
		return models.Attachment{}, fmt.Errorf("encrypting attachment: %w", err)
	}
	blob := []byte(envelope)
	e.cache.SetUploadProgress(task.ID, 10)

	grant, err := e.api.PresignUpload(ctx, roomID, name, int64(len(blob)))
	if err != nil {
		e.cache.SetUploadStatus(task.ID, models.UploadFailed)
		return models.Attachment{}, fmt.Errorf("presigning upload: %w", err)
	}
	e.cache.SetUploadProgress(task.ID, 25)

	if cancelled(e.cache.Upload(task.ID)) {
		return models.Attachment{}, fmt.Errorf("upload %s cancelled", task.ID)
	}

	if err := up.UploadBlob(ctx, grant.UploadURL, blob); err != nil {
		e.cache.SetUploadStatus(task.ID, models.UploadFailed)
		return models.Attachment{}, fmt.Errorf("uploading blob: %w", err)
	}

	if cancelled(e.cache.Upload(task.ID)) {
		return models.Attachment{}, fmt.Errorf("upload %s cancelled", task.ID)
	}
	e.cache.SetUploadStatus(task.ID, models.UploadCompleted)

	return models.Attachment{
		ID:   grant.AttachmentID,
		Name: name,
		Size: int64(len(data)),
		URL:  grant.FileURL,
	}, nil
}

// CancelUpload marks the task cancelled. Progress updates arriving after
// this point are dropped by the cache.
func (e *Engine) CancelUpload(id string) {
	e.cache.SetUploadStatus(id, models.UploadCancelled)
}

func cancelled(t models.UploadTask, ok bool) bool {
	return ok && t.Status == models.UploadCancelled
}
