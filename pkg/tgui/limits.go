package tgui

import "unicode/utf8"

// Telegram API limits, counted in characters of the rendered text.
const (
	MaxMessageLen = 4096
	MaxCaptionLen = 1024
)

// FitsCaption reports whether s is short enough to be sent as a photo caption.
// Tags are counted too, which keeps the check conservative.
func FitsCaption(s string) bool {
	return utf8.RuneCountInString(s) <= MaxCaptionLen
}
