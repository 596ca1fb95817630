package model

// Message is a formatted notification ready for delivery.
// Text is Telegram HTML; Image, when set, asks for a captioned photo.
type Message struct {
	Text  string
	Image string
}

// HasImage reports whether the message should be sent as a photo.
func (m Message) HasImage() bool { return m.Image != "" }
