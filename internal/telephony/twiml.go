package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// Minimal TwiML builder for outbound announcements. It intentionally avoids
// any provider SDK dependency; only the verbs the dialer needs exist here.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

const defaultVoice = "Polly.Joanna"

// RenderSayTwiML builds the TwiML document that speaks message and hangs up.
// Encoding through encoding/xml escapes the message, so user-supplied text
// can never inject extra verbs.
func RenderSayTwiML(message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", errors.New("telephony: message required for say twiml")
	}

	r := twimlResponse{
		Verbs: []any{
			twimlSay{Voice: defaultVoice, Text: message},
			twimlHangup{},
		},
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
