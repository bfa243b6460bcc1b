package slack

// Message is an incoming-webhook payload
// Reference: https://api.slack.com/messaging/webhooks
type Message struct {
	Text        string  `json:"text,omitempty"`
	Blocks      []Block `json:"blocks,omitempty"`
	UnfurlLinks bool    `json:"unfurl_links"`
}

// Block is a Block Kit element
type Block struct {
	Type     string       `json:"type"`
	Text     *TextObject  `json:"text,omitempty"`
	Fields   []TextObject `json:"fields,omitempty"`
	Elements []TextObject `json:"elements,omitempty"`
}

// TextObject is text within a block
type TextObject struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func mrkdwn(text string) TextObject {
	return TextObject{Type: "mrkdwn", Text: text}
}
