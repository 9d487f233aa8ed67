package models

import "time"

// User is an account document in the users collection. The collection
// carries a unique index on username; that index, not the application,
// is the real guard against two concurrent registrations of the same name.
type User struct {
	Username   string    `json:"username"    bson:"username"`
	Password   string    `json:"-"           bson:"password"` // bcrypt hash, never serialized
	Name       string    `json:"name"        bson:"name"`
	Friends    []string  `json:"friends"     bson:"friends"`
	AvatarPath *string   `json:"avatar_path" bson:"avatarPath"`
	Redirect   string    `json:"redirect"    bson:"redirect"`
	CreatedAt  time.Time `json:"created_at"  bson:"createdAt"`
}

// Avatar returns the user's avatar path or "" when the default avatar
// should be used.
func (u User) Avatar() string {
	if u.AvatarPath == nil {
		return ""
	}
	return *u.AvatarPath
}
