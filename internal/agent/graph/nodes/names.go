package nodes

// Node names of the turn graph.
const (
	NodeMemoryExtraction     = "memory_extraction_node"
	NodeRouter               = "router_node"
	NodeContextInjection     = "context_injection_node"
	NodeMemoryInjection      = "memory_injection_node"
	NodeSearch               = "search_node"
	NodeConversation         = "conversation_node"
	NodeAudio                = "audio_node"
	NodeProjectCard          = "project_card_node"
	NodeContinueConversation = "continue_conversation_node"
	NodeSummarize            = "summarize_conversation_node"
)

// CannedReply is sent when every reply path has failed.
const CannedReply = "Sorry, I'm having a little trouble right now. Could you send that again in a moment?"
