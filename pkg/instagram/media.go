package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Like likes a feed post.
func (c *Client) Like(ctx context.Context, mediaID string) error {
	endpoint := fmt.Sprintf("/media/%s/like/", mediaID)
	form := url.Values{}
	form.Set("media_id", mediaID)
	if _, err := c.makeRequest(ctx, http.MethodPost, endpoint, form); err != nil {
		return fmt.Errorf("like media %s: %w", mediaID, err)
	}
	return nil
}

// Comment posts a comment on a feed post.
func (c *Client) Comment(ctx context.Context, mediaID, text string) error {
	endpoint := fmt.Sprintf("/media/%s/comment/", mediaID)
	form := url.Values{}
	form.Set("comment_text", text)
	if _, err := c.makeRequest(ctx, http.MethodPost, endpoint, form); err != nil {
		return fmt.Errorf("comment on media %s: %w", mediaID, err)
	}
	return nil
}

// UserMedias returns up to limit recent posts of the given user.
func (c *Client) UserMedias(ctx context.Context, userID int64, limit int) ([]Media, error) {
	endpoint := fmt.Sprintf("/feed/user/%d/?count=%d", userID, limit)
	body, err := c.makeRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("list medias of %d: %w", userID, err)
	}

	var payload struct {
		Items []struct {
			ID      string `json:"id"`
			Code    string `json:"code"`
			TakenAt int64  `json:"taken_at"`
			User    struct {
				ID int64 `json:"pk"`
			} `json:"user"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode user feed response: %w", err)
	}

	medias := make([]Media, 0, len(payload.Items))
	for _, item := range payload.Items {
		medias = append(medias, Media{
			ID:      item.ID,
			Code:    item.Code,
			UserID:  item.User.ID,
			TakenAt: time.Unix(item.TakenAt, 0),
		})
	}
	return medias, nil
}
