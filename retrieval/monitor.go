package retrieval

import "github.com/poiesic/lexis/core"

// RetrievalMonitor provides hooks to observe a retrieval.
// Hooks are called from the calling goroutine, in variant order.
type RetrievalMonitor interface {
	Start(variants []string)
	VariantSearched(index int, variant string, hits []core.ChunkHit)
	VariantFailed(index int, variant string, err error)
	Finish(chunks []core.RetrievedChunk, found int)
}

// noopMonitor is a no-op implementation of RetrievalMonitor
type noopMonitor struct{}

var _ RetrievalMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ []string)                                   {}
func (n *noopMonitor) VariantSearched(_ int, _ string, _ []core.ChunkHit) {}
func (n *noopMonitor) VariantFailed(_ int, _ string, _ error)             {}
func (n *noopMonitor) Finish(_ []core.RetrievedChunk, _ int)              {}
