package twitterbot

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Length(t *testing.T) {
	rules := Rules{MaxEmojis: -1, MaxHashtags: -1}

	assert.NoError(t, Validate(strings.Repeat("a", 280), rules))

	err := Validate(strings.Repeat("a", 281), rules)
	require.ErrorIs(t, err, ErrContentTooLong)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, 281, ve.Got)
	assert.Equal(t, 280, ve.Limit)

	// Runes, not bytes.
	assert.NoError(t, Validate(strings.Repeat("é", 280), rules))
	assert.ErrorIs(t, Validate("hello world", Rules{MaxLength: 5}), ErrContentTooLong)
}

func TestValidate_Empty(t *testing.T) {
	assert.ErrorIs(t, Validate("   \n", DefaultRules()), ErrEmptyContent)
}

func TestValidate_Emojis(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		ok   bool
	}{
		{"none allowed by default", "hello 😀", 0, false},
		{"plain text", "hello there", 0, true},
		{"at limit", "hi 😀 🎉", 2, true},
		{"over limit", "😀😀😀", 2, false},
		{"zwj family counts once", "👨‍👩‍👧", 1, true},
		{"flag counts once", "🇺🇸", 1, true},
		{"skin tone counts once", "👍🏽", 1, true},
		{"variation selector", "I ❤️ Go", 0, false},
		{"keycap", "1️⃣", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.text, Rules{MaxEmojis: tt.max})
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrTooManyEmojis)
			}
		})
	}
}

func TestCountEmojis(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"✓ done", 0},
		{"★ rated", 0},
		{"☐ todo", 0},
		{"🄰 boxed letter", 0},
		{"# 1 * 2", 0},
		{"↔", 1},
		{"™", 1},
		{"plain © text", 1},
		{"✅ done", 1},
		{"#️⃣ and 7️⃣", 2},
		{"☺️", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CountEmojis(tt.text), tt.text)
	}
	assert.Equal(t, 3, CountEmojis("🚀 to the 🌕 and back 🇺🇸"))
	assert.Equal(t, 1, CountEmojis("👩🏽‍💻"))
}

func TestValidate_Hashtags(t *testing.T) {
	assert.ErrorIs(t, Validate("go #golang", DefaultRules()), ErrTooManyHashtags)
	assert.NoError(t, Validate("go #golang", Rules{MaxHashtags: 1}))
	assert.ErrorIs(t, Validate("#go #rust", Rules{MaxHashtags: 1}), ErrTooManyHashtags)
	assert.NoError(t, Validate("#a #b #c #d", Rules{MaxHashtags: -1}))
	assert.Equal(t, 2, CountHashtags("#a b #c"))
}

func TestValidate_Order(t *testing.T) {
	long := strings.Repeat("😀 #x ", 60)
	assert.ErrorIs(t, Validate(long, DefaultRules()), ErrContentTooLong)
	assert.ErrorIs(t, Validate("😀 #x", DefaultRules()), ErrTooManyEmojis)
}

func TestValidationErrorKind(t *testing.T) {
	err := OutboundMessage{Text: "#tag"}.Validate(DefaultRules())
	assert.Equal(t, KindValidation, KindOf(err))
	assert.False(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "too many hashtags: 1 exceeds limit 0")
}

func TestTrimToLimit(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want string
	}{
		{"fits", "  short  ", 20, "short"},
		{"sentence boundary", "Hello world. This part is too long", 15, "Hello world."},
		{"question mark", "Ready? Set, go now please", 10, "Ready?"},
		{"word boundary", "alpha beta gamma", 12, "alpha beta…"},
		{"decimal is not a sentence end", "Version 3.5 is out now", 12, "Version…"},
		{"zero", "anything", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TrimToLimit(tt.text, tt.max)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len([]rune(got)), max(tt.max, 0))
		})
	}
}

func TestCleanResponse(t *testing.T) {
	assert.Equal(t, "Hello", CleanResponse(`  "Hello"  `))
	assert.Equal(t, "hi", CleanResponse(`'"hi"'`))
	assert.Equal(t, `say "hi" now`, CleanResponse(`say "hi" now`))
	assert.Equal(t, "", CleanResponse(`""`))
}
