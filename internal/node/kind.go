package node

import "slices"

// Kind is the discriminated tag of a node. The set of kinds is closed: the
// loader rejects labels that are not declared here.
type Kind string

// Entry kinds provide the initial payload of a traversal.
const (
	KindPromptInput Kind = "prompt_input"
	KindVideoUpload Kind = "video_upload"
	KindXMLUpload   Kind = "xml_upload"
	KindPDFUpload   Kind = "pdf_upload"
	KindWebhook     Kind = "webhook"
)

// Generator and integration kinds are dispatched through the handler registry.
const (
	KindTextGenerator  Kind = "text_generator"
	KindImageGenerator Kind = "image_generator"
	KindKeyValue       Kind = "key_value"
	KindRelational     Kind = "relational"
	KindHTTPRequest    Kind = "http_request"
	KindMail           Kind = "mail"
	KindMessaging      Kind = "messaging"
)

// Control-flow kinds alter which outgoing edges receive the payload.
const (
	KindFunction  Kind = "function"
	KindCondition Kind = "condition"
	KindRouter    Kind = "router"
	KindWait      Kind = "wait"
)

// Display kinds.
const (
	KindMessageOutput Kind = "message_output"
	KindImageOutput   Kind = "image_output"
)

// EntryKinds lists the entry kinds in the order the engine visits them.
var EntryKinds = []Kind{
	KindPromptInput,
	KindVideoUpload,
	KindXMLUpload,
	KindPDFUpload,
	KindWebhook,
}

var allKinds = []Kind{
	KindPromptInput, KindVideoUpload, KindXMLUpload, KindPDFUpload, KindWebhook,
	KindTextGenerator, KindImageGenerator, KindKeyValue, KindRelational,
	KindHTTPRequest, KindMail, KindMessaging,
	KindFunction, KindCondition, KindRouter, KindWait,
	KindMessageOutput, KindImageOutput,
}

// ParseKind validates an HCL label against the closed kind set.
func ParseKind(s string) (Kind, bool) {
	k := Kind(s)
	return k, slices.Contains(allKinds, k)
}

// IsEntry reports whether nodes of this kind can start a traversal.
func (k Kind) IsEntry() bool {
	return slices.Contains(EntryKinds, k)
}

// IsControlFlow reports whether the kind is one of the four control-flow
// primitives.
func (k Kind) IsControlFlow() bool {
	switch k {
	case KindFunction, KindCondition, KindRouter, KindWait:
		return true
	}
	return false
}

// HasExpression reports whether nodes of this kind carry a user expression.
func (k Kind) HasExpression() bool {
	return k == KindFunction || k == KindCondition
}
