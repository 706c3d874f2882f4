package gateway

import "github.com/poiesic/corpus/core"

// Monitor provides hooks to observe the search process. Implement this
// interface to track intermediate steps and results during search.
type Monitor interface {
	Start(query string)
	AfterSemanticSearch(ids []core.ID)
	AfterLexicalSearch(ids []core.ID)
	BackendFailed(backend string, err error)
	Finish(results []Result, degraded bool)
}

// noopMonitor is a no-op implementation of Monitor.
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                     {}
func (n *noopMonitor) AfterSemanticSearch(_ []core.ID)    {}
func (n *noopMonitor) AfterLexicalSearch(_ []core.ID)     {}
func (n *noopMonitor) BackendFailed(_ string, _ error)    {}
func (n *noopMonitor) Finish(_ []Result, _ bool)          {}
