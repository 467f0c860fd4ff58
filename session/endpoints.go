package session

import (
	"encoding/json"
	"fmt"
	"net/url"
)

const (
	graphqlBase   = "https://x.com/i/api/graphql"
	twitterAPIURL = "https://api.twitter.com"
)

// BearerToken is the public web-app bearer token.
var BearerToken = "AAAAAAAAAAAAAAAAAAAAANRILgAAAAAAnNwIzUejRCOuH5E6I8xnZz4puTs%3D1Zv7ttfk8LF81IUq16cHjhLTvJu4FA33AGWWjCpTnA"

// Endpoint is a GraphQL operation: query ID, name and feature flags.
type Endpoint struct {
	ID       string
	Name     string
	Mutation bool
	Features map[string]any
}

// URL returns the operation URL without parameters.
func (e Endpoint) URL() string {
	return fmt.Sprintf("%s/%s/%s", graphqlBase, e.ID, e.Name)
}

// QueryURL returns a GET URL carrying variables, features and field toggles.
func (e Endpoint) QueryURL(variables map[string]any, fieldToggles map[string]any) (string, error) {
	q := url.Values{}
	for key, v := range map[string]any{"variables": variables, "features": e.Features, "fieldToggles": fieldToggles} {
		if v == nil || (key == "fieldToggles" && len(fieldToggles) == 0) {
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("%s %s: %w", e.Name, key, err)
		}
		q.Set(key, string(b))
	}
	return e.URL() + "?" + q.Encode(), nil
}

// Body returns a mutation POST body.
func (e Endpoint) Body(variables map[string]any) ([]byte, error) {
	payload := map[string]any{"variables": variables, "queryId": e.ID}
	if e.Features != nil {
		payload["features"] = e.Features
	}
	return json.Marshal(payload)
}

// Endpoints maps operation names to their GraphQL IDs and feature flags.
var Endpoints = map[string]Endpoint{
	"UserByScreenName": {ID: "1VOOyvKkiI3FMmkeDNxM9A", Name: "UserByScreenName", Features: gqlFeatures()},
	"SearchTimeline":   {ID: "AIdc203rPpK_k_2KWSdm7g", Name: "SearchTimeline", Features: gqlFeatures()},
	"CreateTweet":      {ID: "oB-5XsHNAbjvARJEc8CZFw", Name: "CreateTweet", Mutation: true, Features: gqlFeatures()},
	"FavoriteTweet":    {ID: "lI07N6Otwv1PhnEgXILM7A", Name: "FavoriteTweet", Mutation: true},
	"CreateRetweet":    {ID: "ojPdsZsimiJrUGLR1sjUtA", Name: "CreateRetweet", Mutation: true},
}

func endpoint(name string) (Endpoint, error) {
	ep, ok := Endpoints[name]
	if !ok {
		return Endpoint{}, fmt.Errorf("unknown operation: %s", name)
	}
	return ep, nil
}

// gqlFeatures returns the web client's GraphQL feature flags.
func gqlFeatures() map[string]any {
	return map[string]any{
		"articles_preview_enabled":                                                false,
		"c9s_tweet_anatomy_moderator_badge_enabled":                               true,
		"communities_web_enable_tweet_community_results_fetch":                    true,
		"creator_subscriptions_quote_tweet_preview_enabled":                       false,
		"creator_subscriptions_tweet_preview_api_enabled":                         true,
		"freedom_of_speech_not_reach_fetch_enabled":                               true,
		"graphql_is_translatable_rweb_tweet_is_translatable_enabled":              true,
		"longform_notetweets_consumption_enabled":                                 true,
		"longform_notetweets_inline_media_enabled":                                true,
		"longform_notetweets_rich_text_read_enabled":                              true,
		"responsive_web_edit_tweet_api_enabled":                                   true,
		"responsive_web_enhance_cards_enabled":                                    false,
		"responsive_web_graphql_exclude_directive_enabled":                        true,
		"responsive_web_graphql_skip_user_profile_image_extensions_enabled":       false,
		"responsive_web_graphql_timeline_navigation_enabled":                      true,
		"responsive_web_twitter_article_tweet_consumption_enabled":                true,
		"rweb_video_timestamps_enabled":                                           true,
		"standardized_nudges_misinfo":                                             true,
		"tweet_awards_web_tipping_enabled":                                        false,
		"tweet_with_visibility_results_prefer_gql_limited_actions_policy_enabled": true,
		"verified_phone_label_enabled":                                            false,
		"view_counts_everywhere_api_enabled":                                      true,
	}
}
