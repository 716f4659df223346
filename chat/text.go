package chat

import (
	"strings"
	"unicode/utf16"
)

// MaxMessageLength is Telegram's limit for one text message.
const MaxMessageLength = 4096

const (
	StartReply = "Gravity Claw online. Send me a message, or use /setup to personalize my memory."
	SetupReply = "Welcome to Gravity Claw. Let's get you set up.\n\nTo build my core memory, please tell me a bit about yourself. What is your name, what do you do for work, and what are your primary interests?"

	TextFailureReply  = "Something went wrong. Please try again."
	VoiceFailureReply = "Something went wrong processing your voice message."
	EmptyVoiceReply   = "I couldn't make out what you said. Try again?"
)

// HeardReply echoes a voice transcript back to the user.
func HeardReply(transcript string) string {
	return `I heard: "` + transcript + `"`
}

// SplitMessage cuts text into pieces of at most max UTF-16 code units, the
// unit Telegram counts in. Splits fall on rune boundaries.
func SplitMessage(text string, max int) []string {
	if max <= 0 {
		max = MaxMessageLength
	}
	if utf16Len(text) <= max {
		return []string{text}
	}

	var (
		chunks []string
		start  int
		units  int
	)
	for i, r := range text {
		n := utf16.RuneLen(r)
		if n < 0 {
			// Invalid UTF-8 is sent as U+FFFD.
			n = 1
		}
		if units > 0 && units+n > max {
			chunks = append(chunks, text[start:i])
			start, units = i, 0
		}
		units += n
	}
	return append(chunks, text[start:])
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}

// parseCommand returns the bot command at the start of text, without the
// slash or an @botname suffix. ok is false for ordinary text.
func parseCommand(text string) (cmd string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	word := strings.Fields(text)[0][1:]
	if at := strings.IndexByte(word, '@'); at >= 0 {
		word = word[:at]
	}
	return strings.ToLower(word), word != ""
}
