package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	twitterbot "github.com/anatolykoptev/go-twitterbot"
)

const twitterTimeLayout = "Mon Jan 02 15:04:05 +0000 2006"

type apiErrors []struct {
	Message string `json:"message"`
}

func (e apiErrors) err(op string) error {
	if len(e) == 0 {
		return nil
	}
	return fmt.Errorf("%s API error: %s", op, e[0].Message)
}

// parseUserByScreenName parses the UserByScreenName GraphQL response.
func parseUserByScreenName(body []byte) (*twitterbot.Profile, error) {
	var raw struct {
		Data struct {
			User struct {
				Result userResult `json:"result"`
			} `json:"user"`
		} `json:"data"`
		Errors apiErrors `json:"errors"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal UserByScreenName: %w", err)
	}
	if err := raw.Errors.err("UserByScreenName"); err != nil {
		return nil, err
	}
	return parseUserResult(raw.Data.User.Result)
}

// parseSearchTimeline parses a SearchTimeline response into events.
func parseSearchTimeline(body []byte) ([]twitterbot.InboundEvent, error) {
	var raw struct {
		Data struct {
			SearchByRawQuery struct {
				SearchTimeline struct {
					Timeline timelineObj `json:"timeline"`
				} `json:"search_timeline"`
			} `json:"search_by_raw_query"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal search timeline: %w", err)
	}
	return extractTweetsFromTimeline(raw.Data.SearchByRawQuery.SearchTimeline.Timeline), nil
}

type timelineObj struct {
	Instructions []timelineInstruction `json:"instructions"`
}

type timelineInstruction struct {
	Type    string          `json:"type"`
	Entries []timelineEntry `json:"entries"`
	Entry   *timelineEntry  `json:"entry"`
}

type timelineEntry struct {
	EntryID string `json:"entryId"`
	Content struct {
		ItemContent json.RawMessage `json:"itemContent"`
	} `json:"content"`
}

type userResult struct {
	TypeName string `json:"__typename"`
	RestID   string `json:"rest_id"`
	Core     struct {
		Name       string `json:"name"`
		ScreenName string `json:"screen_name"`
		CreatedAt  string `json:"created_at"`
	} `json:"core"`
	Legacy struct {
		Name           string `json:"name"`
		ScreenName     string `json:"screen_name"`
		FollowersCount int    `json:"followers_count"`
		FriendsCount   int    `json:"friends_count"`
		StatusesCount  int    `json:"statuses_count"`
		CreatedAt      string `json:"created_at"`
		Verified       bool   `json:"verified"`
		Description    string `json:"description"`
	} `json:"legacy"`
	IsBlueVerified bool `json:"is_blue_verified"`
}

// handle prefers legacy fields and falls back to the newer core block.
func (r userResult) handle() string {
	if r.Legacy.ScreenName != "" {
		return r.Legacy.ScreenName
	}
	return r.Core.ScreenName
}

type tweetResult struct {
	TypeName string `json:"__typename"`
	RestID   string `json:"rest_id"`
	Core     struct {
		UserResults struct {
			Result userResult `json:"result"`
		} `json:"user_results"`
	} `json:"core"`
	// TweetWithVisibilityResults wraps the tweet one level deeper.
	Tweet  *tweetResult `json:"tweet"`
	Legacy struct {
		FullText          string `json:"full_text"`
		CreatedAt         string `json:"created_at"`
		UserIDStr         string `json:"user_id_str"`
		ConversationIDStr string `json:"conversation_id_str"`
	} `json:"legacy"`
}

func extractTweetsFromTimeline(tl timelineObj) []twitterbot.InboundEvent {
	var events []twitterbot.InboundEvent
	for _, instruction := range tl.Instructions {
		entries := instruction.Entries
		if instruction.Entry != nil {
			entries = append(entries, *instruction.Entry)
		}
		for _, entry := range entries {
			if entry.Content.ItemContent == nil {
				continue
			}
			var item struct {
				TypeName     string `json:"__typename"`
				TweetResults struct {
					Result tweetResult `json:"result"`
				} `json:"tweet_results"`
			}
			if err := json.Unmarshal(entry.Content.ItemContent, &item); err != nil || item.TypeName != "TimelineTweet" {
				continue
			}
			ev, err := parseTweetResult(item.TweetResults.Result)
			if err != nil {
				slog.Debug("session: skip tweet", slog.String("entry", entry.EntryID), slog.Any("error", err))
				continue
			}
			events = append(events, ev)
		}
	}
	return events
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(twitterTimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseUserResult(r userResult) (*twitterbot.Profile, error) {
	if r.TypeName == "UserUnavailable" {
		return nil, fmt.Errorf("user unavailable (suspended or restricted)")
	}
	if r.RestID == "" {
		return nil, fmt.Errorf("empty user rest_id (typename=%s)", r.TypeName)
	}
	name := r.Legacy.Name
	if name == "" {
		name = r.Core.Name
	}
	created := r.Legacy.CreatedAt
	if created == "" {
		created = r.Core.CreatedAt
	}
	return &twitterbot.Profile{
		ID:          r.RestID,
		Handle:      r.handle(),
		DisplayName: name,
		Bio:         strings.TrimSpace(r.Legacy.Description),
		Followers:   r.Legacy.FollowersCount,
		Following:   r.Legacy.FriendsCount,
		TweetCount:  r.Legacy.StatusesCount,
		CreatedAt:   parseTime(created),
		IsVerified:  r.Legacy.Verified || r.IsBlueVerified,
	}, nil
}

func parseTweetResult(r tweetResult) (twitterbot.InboundEvent, error) {
	if r.TypeName == "TweetWithVisibilityResults" && r.Tweet != nil {
		r = *r.Tweet
	}
	if r.RestID == "" {
		return twitterbot.InboundEvent{}, fmt.Errorf("empty tweet rest_id")
	}
	author := r.Core.UserResults.Result
	authorID := r.Legacy.UserIDStr
	if authorID == "" {
		authorID = author.RestID
	}
	return twitterbot.InboundEvent{
		ID:             r.RestID,
		AuthorID:       authorID,
		AuthorHandle:   author.handle(),
		Text:           r.Legacy.FullText,
		CreatedAt:      parseTime(r.Legacy.CreatedAt),
		ConversationID: r.Legacy.ConversationIDStr,
	}, nil
}

// parseCreateTweet extracts the new tweet from a CreateTweet mutation response.
func parseCreateTweet(body []byte) (twitterbot.PostResult, error) {
	var raw struct {
		Data struct {
			CreateTweet struct {
				TweetResults struct {
					Result struct {
						RestID string `json:"rest_id"`
						Legacy struct {
							UserIDStr string `json:"user_id_str"`
						} `json:"legacy"`
					} `json:"result"`
				} `json:"tweet_results"`
			} `json:"create_tweet"`
		} `json:"data"`
		Errors apiErrors `json:"errors"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return twitterbot.PostResult{}, fmt.Errorf("unmarshal CreateTweet: %w", err)
	}
	if err := raw.Errors.err("CreateTweet"); err != nil {
		return twitterbot.PostResult{}, err
	}
	res := raw.Data.CreateTweet.TweetResults.Result
	if res.RestID == "" {
		return twitterbot.PostResult{}, fmt.Errorf("CreateTweet returned empty tweet ID: %s", truncateBytes(body, 300))
	}
	return twitterbot.PostResult{ID: res.RestID, AuthorID: res.Legacy.UserIDStr}, nil
}

// parseFavorite checks a FavoriteTweet response ("Done" on success).
func parseFavorite(body []byte) error {
	var raw struct {
		Data struct {
			FavoriteTweet string `json:"favorite_tweet"`
		} `json:"data"`
		Errors apiErrors `json:"errors"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return fmt.Errorf("unmarshal FavoriteTweet: %w", err)
	}
	if err := raw.Errors.err("FavoriteTweet"); err != nil {
		return err
	}
	if raw.Data.FavoriteTweet != "Done" {
		return fmt.Errorf("FavoriteTweet: unexpected result %q", raw.Data.FavoriteTweet)
	}
	return nil
}

// parseRetweet checks a CreateRetweet response.
func parseRetweet(body []byte) error {
	var raw struct {
		Data struct {
			CreateRetweet struct {
				RetweetResults struct {
					Result struct {
						RestID string `json:"rest_id"`
					} `json:"result"`
				} `json:"retweet_results"`
			} `json:"create_retweet"`
		} `json:"data"`
		Errors apiErrors `json:"errors"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return fmt.Errorf("unmarshal CreateRetweet: %w", err)
	}
	if err := raw.Errors.err("CreateRetweet"); err != nil {
		return err
	}
	if raw.Data.CreateRetweet.RetweetResults.Result.RestID == "" {
		return fmt.Errorf("CreateRetweet returned no retweet: %s", truncateBytes(body, 300))
	}
	return nil
}
