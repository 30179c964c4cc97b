// internal/model/channel.go
package model

import (
	"fmt"
	"strings"
)

// Channel is the transport a campaign's messages go out on.
type Channel string

const (
	ChannelSMS   Channel = "SMS"
	ChannelEmail Channel = "EMAIL"
)

var channels = []Channel{ChannelSMS, ChannelEmail}

// Format is the content format of a campaign message.
type Format string

const (
	FormatTXT  Format = "TXT"
	FormatHTML Format = "HTML"
)

var formats = []Format{FormatTXT, FormatHTML}

func ParseChannel(s string) (Channel, error) {
	for _, c := range channels {
		if strings.EqualFold(s, string(c)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown channel %q", s)
}

func ParseFormat(s string) (Format, error) {
	for _, f := range formats {
		if strings.EqualFold(s, string(f)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown format %q", s)
}

func (c Channel) Valid() bool {
	_, err := ParseChannel(string(c))
	return err == nil
}

func (f Format) Valid() bool {
	_, err := ParseFormat(string(f))
	return err == nil
}
