package model

import "strings"

// Inbound is one message received from the messaging provider. Audio wins
// over Text; an image is described and appended to Caption.
type Inbound struct {
	Text      string
	Audio     []byte
	AudioMIME string
	Image     []byte
	ImageMIME string
	Caption   string
}

// Empty reports whether the message carries nothing to answer.
func (in Inbound) Empty() bool {
	return strings.TrimSpace(in.Text) == "" && len(in.Audio) == 0 &&
		len(in.Image) == 0 && strings.TrimSpace(in.Caption) == ""
}
