package models

import (
	"strconv"
	"strings"
	"time"
)

// User is a shopper profile keyed by the chat identity.
type User struct {
	ID            string    `bson:"id" json:"id"`
	FirstName     string    `bson:"first_name" json:"first_name"`
	LastName      string    `bson:"last_name,omitempty" json:"last_name,omitempty"`
	Username      string    `bson:"username,omitempty" json:"username,omitempty"`
	ChatID        int64     `bson:"chat_id,omitempty" json:"chat_id,omitempty"`
	PhoneNumber   string    `bson:"phone_number,omitempty" json:"phone_number,omitempty"`
	ContactShared bool      `bson:"contact_shared,omitempty" json:"contact_shared,omitempty"`
	LastActivity  time.Time `bson:"last_activity,omitempty" json:"last_activity,omitempty"`
}

const UsersCollection = "users"

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// UserKey converts a chat identity to the document key used for users and
// for Order.UserID.
func UserKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
