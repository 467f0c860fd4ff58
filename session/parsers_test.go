package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	twitterbot "github.com/anatolykoptev/go-twitterbot"
)

func TestParseUserByScreenName(t *testing.T) {
	body := `{
		"data": {
			"user": {
				"result": {
					"__typename": "User",
					"rest_id": "12345",
					"legacy": {
						"name": "Test User",
						"screen_name": "testuser",
						"followers_count": 100,
						"friends_count": 50,
						"statuses_count": 200,
						"created_at": "Mon Jan 02 15:04:05 +0000 2020",
						"verified": false,
						"description": "  Hello world  "
					},
					"is_blue_verified": true
				}
			}
		}
	}`

	user, err := parseUserByScreenName([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, "12345", user.ID)
	assert.Equal(t, "testuser", user.Handle)
	assert.Equal(t, "Test User", user.DisplayName)
	assert.Equal(t, "Hello world", user.Bio)
	assert.Equal(t, 100, user.Followers)
	assert.Equal(t, 50, user.Following)
	assert.Equal(t, 200, user.TweetCount)
	assert.True(t, user.IsVerified)
	assert.Equal(t, 2020, user.CreatedAt.Year())
}

func TestParseUserByScreenName_CoreFields(t *testing.T) {
	body := `{"data":{"user":{"result":{"__typename":"User","rest_id":"7",
		"core":{"name":"Core Name","screen_name":"coreuser","created_at":"Tue Mar 05 10:00:00 +0000 2019"},
		"legacy":{"followers_count":3}}}}}`

	user, err := parseUserByScreenName([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, "coreuser", user.Handle)
	assert.Equal(t, "Core Name", user.DisplayName)
	assert.Equal(t, 2019, user.CreatedAt.Year())
}

func TestParseUserByScreenName_Unavailable(t *testing.T) {
	body := `{"data":{"user":{"result":{"__typename":"UserUnavailable","rest_id":""}}}}`
	_, err := parseUserByScreenName([]byte(body))
	assert.Error(t, err)
}

func TestParseUserByScreenName_APIError(t *testing.T) {
	_, err := parseUserByScreenName([]byte(`{"errors":[{"message":"User not found"}]}`))
	assert.ErrorContains(t, err, "User not found")
}

const searchBody = `{
	"data": {
		"search_by_raw_query": {
			"search_timeline": {
				"timeline": {
					"instructions": [{
						"type": "TimelineAddEntries",
						"entries": [
							{
								"entryId": "tweet-100",
								"content": {"itemContent": {
									"__typename": "TimelineTweet",
									"tweet_results": {"result": {
										"__typename": "Tweet",
										"rest_id": "100",
										"core": {"user_results": {"result": {"rest_id": "9", "legacy": {"screen_name": "alice"}}}},
										"legacy": {
											"full_text": "@bot hello",
											"created_at": "Wed Oct 14 12:00:00 +0000 2026",
											"user_id_str": "9",
											"conversation_id_str": "100"
										}
									}}
								}}
							},
							{
								"entryId": "tweet-101",
								"content": {"itemContent": {
									"__typename": "TimelineTweet",
									"tweet_results": {"result": {
										"__typename": "TweetWithVisibilityResults",
										"tweet": {
											"rest_id": "101",
											"core": {"user_results": {"result": {"rest_id": "8", "core": {"screen_name": "bob"}}}},
											"legacy": {
												"full_text": "@bot limited",
												"created_at": "Wed Oct 14 12:05:00 +0000 2026",
												"conversation_id_str": "90"
											}
										}
									}}
								}}
							},
							{
								"entryId": "cursor-bottom-0",
								"content": {"value": "abc"}
							}
						]
					}]
				}
			}
		}
	}
}`

func TestParseSearchTimeline(t *testing.T) {
	events, err := parseSearchTimeline([]byte(searchBody))
	require.NoError(t, err)
	require.Len(t, events, 2)

	first := events[0]
	assert.Equal(t, "100", first.ID)
	assert.Equal(t, "9", first.AuthorID)
	assert.Equal(t, "alice", first.AuthorHandle)
	assert.Equal(t, "@bot hello", first.Text)
	assert.Equal(t, "100", first.ConversationID)
	assert.True(t, first.CreatedAt.Equal(time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)))

	assert.Equal(t, "101", events[1].ID)
	assert.Equal(t, "8", events[1].AuthorID)
	assert.Equal(t, "bob", events[1].AuthorHandle)
	assert.Equal(t, "90", events[1].ConversationID)
}

func TestFilterSince(t *testing.T) {
	events, err := parseSearchTimeline([]byte(searchBody))
	require.NoError(t, err)

	since := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	got := filterSince(events, since, 10)
	require.Len(t, got, 1)
	assert.Equal(t, "101", got[0].ID)

	assert.Len(t, filterSince(events, time.Time{}, 1), 1)
}

func TestParseCreateTweet(t *testing.T) {
	body := `{"data":{"create_tweet":{"tweet_results":{"result":{"rest_id":"555","legacy":{"user_id_str":"42"}}}}}}`
	res, err := parseCreateTweet([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, twitterbot.PostResult{ID: "555", AuthorID: "42"}, res)

	_, err = parseCreateTweet([]byte(`{"data":{"create_tweet":{"tweet_results":{}}}}`))
	assert.Error(t, err)

	_, err = parseCreateTweet([]byte(`{"errors":[{"message":"Status is a duplicate."}]}`))
	assert.ErrorContains(t, err, "duplicate")
}

func TestParseFavoriteAndRetweet(t *testing.T) {
	assert.NoError(t, parseFavorite([]byte(`{"data":{"favorite_tweet":"Done"}}`)))
	assert.Error(t, parseFavorite([]byte(`{"data":{}}`)))

	assert.NoError(t, parseRetweet([]byte(`{"data":{"create_retweet":{"retweet_results":{"result":{"rest_id":"9"}}}}}`)))
	assert.Error(t, parseRetweet([]byte(`{"data":{"create_retweet":{}}}`)))
}

func TestEndpointQueryURL(t *testing.T) {
	ep, err := endpoint("UserByScreenName")
	require.NoError(t, err)
	u, err := ep.QueryURL(map[string]any{"screen_name": "alice"}, nil)
	require.NoError(t, err)
	assert.Contains(t, u, graphqlBase+"/1VOOyvKkiI3FMmkeDNxM9A/UserByScreenName?")
	assert.Contains(t, u, "variables=%7B%22screen_name%22%3A%22alice%22%7D")
	assert.NotContains(t, u, "fieldToggles")

	_, err = endpoint("Nope")
	assert.Error(t, err)
}

func TestParseAccounts(t *testing.T) {
	accs := ParseAccounts("a:1, b:2:b@x.io ,c:3:c@x.io:SECRET,bad,")
	require.Len(t, accs, 3)
	assert.Equal(t, "a", accs[0].Username)
	assert.Equal(t, "b@x.io", accs[1].Email)
	assert.Equal(t, "SECRET", accs[2].TOTPSecret)
}

func TestExtractCT0FromHeaders(t *testing.T) {
	assert.Equal(t, "abc", extractCT0FromHeaders(map[string]string{"set-cookie": "ct0=abc; Path=/; Secure"}))
	assert.Empty(t, extractCT0FromHeaders(map[string]string{"set-cookie": "ct0=; Path=/"}))
	assert.Len(t, GenerateCT0(), 64)
}
