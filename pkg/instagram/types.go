package instagram

import "time"

// User is the subset of profile fields the automation strategies filter on.
type User struct {
	ID             int64  `json:"pk"`
	Username       string `json:"username"`
	FullName       string `json:"full_name"`
	IsPrivate      bool   `json:"is_private"`
	IsVerified     bool   `json:"is_verified"`
	FollowerCount  int    `json:"follower_count"`
	FollowingCount int    `json:"following_count"`
}

// Media is a feed post.
type Media struct {
	ID      string    `json:"id"`
	Code    string    `json:"code"`
	UserID  int64     `json:"user_id"`
	TakenAt time.Time `json:"-"`
}

// StoryItem is a single story reel item.
type StoryItem struct {
	ID      string    `json:"id"`
	UserID  int64     `json:"user_id"`
	TakenAt time.Time `json:"-"`
}
