package store

import "time"

// TaskStatus is the lifecycle state of a help request.
type TaskStatus int

const (
	TaskWaiting   TaskStatus = 1
	TaskMessaging TaskStatus = 2
	TaskConcluded TaskStatus = 3
)

func (s TaskStatus) String() string {
	switch s {
	case TaskWaiting:
		return "WAITING"
	case TaskMessaging:
		return "MESSAGING"
	case TaskConcluded:
		return "CONCLUDED"
	default:
		return "UNKNOWN"
	}
}

func (s TaskStatus) Valid() bool {
	return s >= TaskWaiting && s <= TaskConcluded
}

// RoomStatus is the lifecycle state of a matching room.
type RoomStatus int

const (
	RoomMessaging RoomStatus = 1
	RoomApplied   RoomStatus = 2
	RoomConcluded RoomStatus = 3
	RoomCanceled  RoomStatus = 4
	RoomDeclined  RoomStatus = 5
)

func (s RoomStatus) String() string {
	switch s {
	case RoomMessaging:
		return "MESSAGING"
	case RoomApplied:
		return "APPLIED"
	case RoomConcluded:
		return "CONCLUDED"
	case RoomCanceled:
		return "CANCELED"
	case RoomDeclined:
		return "DECLINED"
	default:
		return "UNKNOWN"
	}
}

func (s RoomStatus) Valid() bool {
	return s >= RoomMessaging && s <= RoomDeclined
}

// Terminal reports whether no further transitions are allowed from s.
func (s RoomStatus) Terminal() bool {
	return s == RoomConcluded || s == RoomCanceled || s == RoomDeclined
}

type User struct {
	UID           string
	Name          string
	ProfilePicURL string
	Email         string
	PasswordHash  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Task struct {
	ID        string
	OwnerUID  string
	Category  int
	Place     string
	Address   string
	Latitude  float64
	Longitude float64
	Date      string
	TimeSlot  int
	Text      string
	Status    TaskStatus
	CreatedAt time.Time
}

type Room struct {
	ID           string
	TaskID       string
	OwnerUID     string
	SupporterUID string
	Status       RoomStatus
	CreatedAt    time.Time
}

// RoomSummary is a room joined with its task excerpt and the counterpart
// profile, as shown in the room list.
type RoomSummary struct {
	Room
	TaskText        string
	TaskStatus      TaskStatus
	PartnerUID      string
	PartnerName     string
	PartnerPhotoURL string
}

type Message struct {
	ID            string
	RoomID        string
	AuthorUID     string
	AuthorName    string
	ProfilePicURL string
	Text          string
	ImageURL      string
	StoragePath   string
	CreatedAt     time.Time
}

type DeviceToken struct {
	Token     string
	UID       string
	CreatedAt time.Time
}
