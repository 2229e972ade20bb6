package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is an assistant account. Rows are auto-provisioned the first
// time a valid token resolves to an id we have not seen.
type User struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName *string   `json:"display_name,omitempty"`
	PushToken   *string   `json:"push_token,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasPushToken reports whether the user can receive push notifications.
func (u *User) HasPushToken() bool {
	return u.PushToken != nil && *u.PushToken != ""
}
