package conversation

import "context"

// ReplyMessenger delivers replies back to the user's WhatsApp number.
type ReplyMessenger interface {
	SendReply(ctx context.Context, reply OutboundReply) error
}

// OutboundReply carries the data required to push a message to the user.
type OutboundReply struct {
	To        string
	Body      string
	EnquiryID string
	// ReplyTo is the inbound WhatsApp message id being answered.
	ReplyTo string
}
