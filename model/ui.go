package model

// MessageHandle identifies a rendered message so streamed content can be
// updated in place. The zero value is a valid "no message" handle.
type MessageHandle int

// ChatUI is the contract the presentation layer implements. The engine
// drives it with the same ordered event stream it persists, so a
// consumer never sees a tool notice before the text that preceded it.
type ChatUI interface {
	AppendMessage(role, content string) MessageHandle
	UpdateMessage(handle MessageHandle, content string)
	AppendConfirmationActions()
	ClearMessages()
	SetBusy(busy bool)
}
