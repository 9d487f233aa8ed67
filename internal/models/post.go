package models

import "time"

// Post privacy levels. Privacy is stored on every post but the feed
// listing does not filter on it; see DESIGN.md.
const (
	PrivacyPublic  = "public"
	PrivacyFriends = "friends"
	PrivacyPrivate = "private"
)

// ValidPrivacy reports whether s is one of the recognized privacy levels.
func ValidPrivacy(s string) bool {
	return s == PrivacyPublic || s == PrivacyFriends || s == PrivacyPrivate
}

// Comment is embedded in a Post. Comments are append-only; there is no
// edit or delete operation.
type Comment struct {
	Content   string    `json:"content"    bson:"content"`
	Author    string    `json:"author"     bson:"author"`
	CreatedAt time.Time `json:"created_at" bson:"createdAt"`
}

// Post is a single entry in the feed collection. UUID is the external
// reference used by the comment and like endpoints; the Mongo _id never
// leaves the store layer.
type Post struct {
	UUID      string    `json:"uuid"       bson:"uuid"`
	Content   string    `json:"content"    bson:"content"`
	Author    string    `json:"author"     bson:"author"`
	Privacy   string    `json:"privacy"    bson:"privacy"`
	Comments  []Comment `json:"comments"   bson:"comments"`
	Likes     []string  `json:"likes"      bson:"likes"`
	CreatedAt time.Time `json:"created_at" bson:"createdAt"`
}

// LikedBy reports whether username is in the post's like set.
func (p Post) LikedBy(username string) bool {
	for _, u := range p.Likes {
		if u == username {
			return true
		}
	}
	return false
}
