package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// UserStories returns the current story reel of the given user. An empty
// slice means no active stories.
func (c *Client) UserStories(ctx context.Context, userID int64) ([]StoryItem, error) {
	endpoint := fmt.Sprintf("/feed/user/%d/story/", userID)
	body, err := c.makeRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("list stories of %d: %w", userID, err)
	}

	var payload struct {
		Reel struct {
			Items []struct {
				ID      string `json:"id"`
				TakenAt int64  `json:"taken_at"`
			} `json:"items"`
		} `json:"reel"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode story reel response: %w", err)
	}

	items := make([]StoryItem, 0, len(payload.Reel.Items))
	for _, item := range payload.Reel.Items {
		items = append(items, StoryItem{
			ID:      item.ID,
			UserID:  userID,
			TakenAt: time.Unix(item.TakenAt, 0),
		})
	}
	return items, nil
}

// ViewStory marks a story item as seen.
func (c *Client) ViewStory(ctx context.Context, item StoryItem) error {
	form := url.Values{}
	seenAt := strconv.FormatInt(time.Now().Unix(), 10)
	form.Set("reels", fmt.Sprintf(`{"%s_%d":["%d_%s"]}`, item.ID, item.UserID, item.TakenAt.Unix(), seenAt))
	if _, err := c.makeRequest(ctx, http.MethodPost, "/media/seen/", form); err != nil {
		return fmt.Errorf("view story %s: %w", item.ID, err)
	}
	return nil
}

// LikeStory sends a story like for a previously viewed item.
func (c *Client) LikeStory(ctx context.Context, item StoryItem) error {
	form := url.Values{}
	form.Set("media_id", item.ID)
	if _, err := c.makeRequest(ctx, http.MethodPost, "/story_interactions/send_story_like/", form); err != nil {
		return fmt.Errorf("like story %s: %w", item.ID, err)
	}
	return nil
}
