package app

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"tasukeai/api/internal/feed"
	"tasukeai/api/internal/storage"
	"tasukeai/api/internal/store"
	"tasukeai/api/internal/util"
)

// loadingImageURL is the placeholder shown while an image upload is in
// flight. A failed upload leaves it in place.
const loadingImageURL = "https://www.google.com/images/spin-32.gif?a"

const messagePageSize = 100

// ListMessages returns the newest messages of a room in ascending order,
// bounded to the most recent page.
func (s *Service) ListMessages(ctx context.Context, session Session, roomID string) ([]map[string]any, error) {
	if _, err := s.roomForMember(ctx, session, roomID); err != nil {
		return nil, err
	}
	newest, err := s.store.ListRoomMessages(ctx, roomID, messagePageSize)
	if err != nil {
		return nil, err
	}
	payloads := make([]map[string]any, 0, len(newest))
	for i := len(newest) - 1; i >= 0; i-- {
		payloads = append(payloads, messagePayload(newest[i]))
	}
	return payloads, nil
}

// GetMessage returns a single message of a room. Clients poll it to pick up
// the image URL once an upload has replaced the placeholder.
func (s *Service) GetMessage(ctx context.Context, session Session, roomID, messageID string) (map[string]any, error) {
	if _, err := s.roomForMember(ctx, session, roomID); err != nil {
		return nil, err
	}
	message, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.RoomID != roomID {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	return messagePayload(message), nil
}

// PostMessage appends a text message and publishes an added event to the
// room's feed channel.
func (s *Service) PostMessage(ctx context.Context, session Session, roomID, text string) (map[string]any, error) {
	if _, err := s.roomForMember(ctx, session, roomID); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "text is required", nil)
	}

	message := store.Message{
		ID:            util.NewID("msg"),
		RoomID:        roomID,
		AuthorUID:     session.UID,
		AuthorName:    session.Name,
		ProfilePicURL: session.PhotoURL,
		Text:          text,
		CreatedAt:     time.Now(),
	}
	if err := s.store.InsertMessage(ctx, message); err != nil {
		return nil, err
	}

	payload := messagePayload(message)
	event, buildErr := feed.MessageEvent(feed.Added, payload)
	s.publish(ctx, feed.RoomChannel(roomID), event, buildErr)
	return payload, nil
}

// PostImageMessage runs the three-phase image flow: a placeholder message is
// appended first, the file is uploaded, then the message's image URL is
// swapped in place. When the upload fails the placeholder stays and the
// error is returned.
func (s *Service) PostImageMessage(ctx context.Context, session Session, roomID, filename, contentType string, file io.Reader, size int64) (map[string]any, error) {
	if _, err := s.roomForMember(ctx, session, roomID); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "file must be an image", nil)
	}
	if s.objects == nil {
		return nil, domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Image uploads are not configured", nil)
	}

	message := store.Message{
		ID:            util.NewID("msg"),
		RoomID:        roomID,
		AuthorUID:     session.UID,
		AuthorName:    session.Name,
		ProfilePicURL: session.PhotoURL,
		ImageURL:      loadingImageURL,
		CreatedAt:     time.Now(),
	}
	if err := s.store.InsertMessage(ctx, message); err != nil {
		return nil, err
	}
	event, buildErr := feed.MessageEvent(feed.Added, messagePayload(message))
	s.publish(ctx, feed.RoomChannel(roomID), event, buildErr)

	objectPath := storage.ObjectPath(session.UID, message.ID, filename)
	imageURL, err := s.objects.Put(ctx, objectPath, contentType, file, size)
	if err != nil {
		// Placeholder message stays; the client keeps showing the spinner.
		return nil, err
	}

	if _, err := s.store.UpdateMessageImage(ctx, message.ID, imageURL, objectPath); err != nil {
		return nil, err
	}
	message.ImageURL = imageURL
	message.StoragePath = objectPath

	payload := messagePayload(message)
	event, buildErr = feed.MessageEvent(feed.Modified, payload)
	s.publish(ctx, feed.RoomChannel(roomID), event, buildErr)
	return payload, nil
}

func messagePayload(message store.Message) map[string]any {
	return map[string]any{
		"id":            message.ID,
		"roomId":        message.RoomID,
		"uid":           message.AuthorUID,
		"name":          message.AuthorName,
		"profilePicUrl": message.ProfilePicURL,
		"text":          message.Text,
		"image":         message.ImageURL,
		"createdAt":     message.CreatedAt.UTC().Format(time.RFC3339),
	}
}
