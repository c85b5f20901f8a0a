package types

// MessageType is the kind of a cross-context message.
type MessageType string

const (
	// MessageBuildReady is sent by the full variant once it is warm.
	MessageBuildReady MessageType = "build-ready"

	// MessageGameOver is sent by the lite variant when it completes.
	MessageGameOver MessageType = "game-over"

	// MessageLevelReached is sent by the lite variant on each progress milestone.
	MessageLevelReached MessageType = "level-reached"
)

// Message is exchanged with a variant running in an isolated context.
//
// Messages must be origin-checked before they are acted upon.
type Message struct {
	Type    MessageType `json:"type"`
	BuildID VariantKind `json:"buildId"`
	Level   int         `json:"level,omitempty"`
}
