package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"tasukeai/api/internal/feed"
	"tasukeai/api/internal/store"
	"tasukeai/api/internal/util"
)

// transitionRule connects an action to its source states, target state, the
// task status the same transaction writes (zero means unchanged), and which
// side of the room may perform it.
type transitionRule struct {
	from       []store.RoomStatus
	to         store.RoomStatus
	taskStatus store.TaskStatus
	actor      string
}

const (
	actorOwner     = "owner"
	actorSupporter = "supporter"
)

var transitionRules = map[string]transitionRule{
	"apply":   {from: []store.RoomStatus{store.RoomMessaging}, to: store.RoomApplied, actor: actorOwner},
	"approve": {from: []store.RoomStatus{store.RoomApplied}, to: store.RoomConcluded, taskStatus: store.TaskConcluded, actor: actorSupporter},
	"cancel":  {from: []store.RoomStatus{store.RoomMessaging, store.RoomApplied}, to: store.RoomCanceled, taskStatus: store.TaskWaiting, actor: actorOwner},
	"decline": {from: []store.RoomStatus{store.RoomApplied}, to: store.RoomDeclined, taskStatus: store.TaskWaiting, actor: actorSupporter},
}

// ResolveRoom returns the room for an explicit roomID, or resolves one from a
// task: owners get the newest room on their task (or none), a prospective
// supporter gets their existing room or a fresh MESSAGING room created
// idempotently. Exactly one of roomID and taskID must be set.
func (s *Service) ResolveRoom(ctx context.Context, session Session, roomID, taskID string) (*store.Room, error) {
	if roomID != "" {
		room, err := s.store.GetRoom(ctx, roomID)
		if err != nil {
			return nil, err
		}
		if session.UID != room.OwnerUID && session.UID != room.SupporterUID {
			return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Not a member of this room", nil)
		}
		return &room, nil
	}
	if taskID == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "room or task is required", nil)
	}

	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if session.UID == task.OwnerUID {
		// Owners never open rooms; they join the one a supporter opened.
		return s.store.LatestRoomForTask(ctx, taskID)
	}

	existing, err := s.store.RoomForSupporter(ctx, taskID, session.UID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	// Re-entry into an existing room stays allowed above; opening a new one
	// against a concluded task is not.
	if task.Status == store.TaskConcluded {
		return nil, domainError(http.StatusConflict, "TRANSITION_BLOCKED", "Task is already concluded", map[string]any{
			"taskStatus": int(task.Status),
		})
	}

	created, err := s.store.CreateRoom(ctx, store.Room{
		ID:           util.NewID("room"),
		TaskID:       taskID,
		OwnerUID:     task.OwnerUID,
		SupporterUID: session.UID,
		Status:       store.RoomMessaging,
	})
	if err != nil {
		return nil, err
	}

	payload := roomPayload(created)
	for _, uid := range []string{created.OwnerUID, created.SupporterUID} {
		event, buildErr := feed.RoomEvent(feed.Added, payload)
		s.publish(ctx, feed.UserChannel(uid), event, buildErr)
	}
	return &created, nil
}

// Transition applies one of the closed lifecycle actions to a room. The
// room and its task move together in one transaction; a room not in an
// allowed source state is rejected, never silently ignored.
func (s *Service) Transition(ctx context.Context, session Session, roomID, action string) (store.Room, error) {
	rule, ok := transitionRules[action]
	if !ok {
		return store.Room{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "action must be one of apply, approve, cancel, decline", nil)
	}

	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return store.Room{}, err
	}

	actorUID := room.OwnerUID
	if rule.actor == actorSupporter {
		actorUID = room.SupporterUID
	}
	if session.UID != actorUID {
		if session.UID != room.OwnerUID && session.UID != room.SupporterUID {
			return store.Room{}, domainError(http.StatusForbidden, "FORBIDDEN", "Not a member of this room", nil)
		}
		return store.Room{}, domainError(http.StatusForbidden, "FORBIDDEN", "Only the "+rule.actor+" may "+action, nil)
	}

	changed, err := s.store.ApplyRoomTransition(ctx, roomID, rule.from, rule.to, room.TaskID, rule.taskStatus)
	if err != nil {
		return store.Room{}, err
	}
	if !changed {
		return store.Room{}, domainError(http.StatusConflict, "TRANSITION_BLOCKED", "Room is not in a state that allows "+action, map[string]any{
			"roomStatus": int(room.Status),
			"action":     action,
		})
	}

	room, err = s.store.GetRoom(ctx, roomID)
	if err != nil {
		return store.Room{}, err
	}
	s.syncTaskIndex(ctx, room.TaskID, rule.taskStatus)

	payload := roomPayload(room)
	for _, uid := range []string{room.OwnerUID, room.SupporterUID} {
		event, buildErr := feed.RoomEvent(feed.Modified, payload)
		s.publish(ctx, feed.UserChannel(uid), event, buildErr)
	}
	return room, nil
}

// syncTaskIndex keeps the search index in step with a task status written by
// a room transition: concluded tasks leave the index, reopened ones return
// with their new status.
func (s *Service) syncTaskIndex(ctx context.Context, taskID string, taskStatus store.TaskStatus) {
	if s.search == nil || taskStatus == 0 {
		return
	}
	if taskStatus == store.TaskConcluded {
		s.search.DeleteTask(taskID)
		return
	}
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		log.Printf("search: reload task %s for reindex: %v", taskID, err)
		return
	}
	s.search.IndexTask(taskRecord(task))
}

// ListRooms returns the caller's rooms, split by which side of the match
// they are on, each joined with a task excerpt and the counterpart profile.
func (s *Service) ListRooms(ctx context.Context, session Session) (map[string]any, error) {
	asOwner, err := s.store.ListRoomsByOwner(ctx, session.UID, 100)
	if err != nil {
		return nil, err
	}
	asSupporter, err := s.store.ListRoomsBySupporter(ctx, session.UID, 100)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"asOwner":     roomSummaryPayloads(asOwner),
		"asSupporter": roomSummaryPayloads(asSupporter),
	}, nil
}

// roomForMember loads a room and verifies the caller sits on one side of it.
func (s *Service) roomForMember(ctx context.Context, session Session, roomID string) (store.Room, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return store.Room{}, err
	}
	if session.UID != room.OwnerUID && session.UID != room.SupporterUID {
		return store.Room{}, domainError(http.StatusForbidden, "FORBIDDEN", "Not a member of this room", nil)
	}
	return room, nil
}

func roomPayload(room store.Room) map[string]any {
	return map[string]any{
		"id":           room.ID,
		"taskId":       room.TaskID,
		"ownerUid":     room.OwnerUID,
		"supporterUid": room.SupporterUID,
		"status":       int(room.Status),
		"createdAt":    room.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func roomSummaryPayloads(items []store.RoomSummary) []map[string]any {
	payloads := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payload := roomPayload(item.Room)
		payload["taskText"] = excerpt(item.TaskText, 20)
		payload["taskStatus"] = int(item.TaskStatus)
		payload["partner"] = map[string]any{
			"uid":      item.PartnerUID,
			"name":     item.PartnerName,
			"photoUrl": item.PartnerPhotoURL,
		}
		payloads = append(payloads, payload)
	}
	return payloads
}

// excerpt shortens text to max runes with a trailing ellipsis.
func excerpt(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
