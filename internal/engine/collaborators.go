package engine

import (
	"sync"
	"time"

	"github.com/RealSalty1/ORB-TopStep-sub001/internal/domain"
)

// PortfolioExposure caps concurrently open trades across all instruments. It
// is the only synchronization point between parallel instrument runs.
type PortfolioExposure struct {
	mu      sync.Mutex
	maxOpen int
	open    map[string]domain.Direction
}

// NewPortfolioExposure builds the controller; maxOpen <= 0 disables the cap.
func NewPortfolioExposure(maxOpen int) *PortfolioExposure {
	return &PortfolioExposure{
		maxOpen: maxOpen,
		open:    make(map[string]domain.Direction),
	}
}

func (p *PortfolioExposure) AllowOpen(instrument string, _ time.Time, _ domain.Direction) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, dup := p.open[instrument]; dup {
		return false
	}
	return p.maxOpen <= 0 || len(p.open) < p.maxOpen
}

func (p *PortfolioExposure) NotifyOpen(instrument string, _ time.Time, dir domain.Direction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open[instrument] = dir
}

func (p *PortfolioExposure) NotifyClose(instrument string, _ time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.open, instrument)
}

// OpenCount reports the number of currently open trades.
func (p *PortfolioExposure) OpenCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.open)
}

// permissiveFilter never excludes a context; it stands in when no externally
// trained exclusion list is supplied.
type permissiveFilter struct{}

func (permissiveFilter) Excluded(domain.ContextSignature) bool { return false }

// PermissiveFilter returns the always-allow context filter.
func PermissiveFilter() domain.ContextFilter { return permissiveFilter{} }

// posteriorModel is the built-in extension model: a fixed prior per auction
// state, nudged by how cleanly the trade is holding its gains. It is
// deterministic and causal; an externally trained model can replace it.
type posteriorModel struct{}

// PosteriorExtensionModel returns the built-in extension model.
func PosteriorExtensionModel() domain.ExtensionModel { return posteriorModel{} }

func (posteriorModel) ExtensionProbability(g domain.TradeGlance) float64 {
	prob := 0.45
	switch g.State {
	case domain.StateInitiative:
		prob = 0.65
	case domain.StateCompression:
		prob = 0.55
	case domain.StateGapReversion, domain.StateInventoryFix:
		prob = 0.40
	}
	// Holding most of the excursion at the gate is evidence for extension;
	// a deep give-back is evidence against.
	if g.MaxFavorableR > 0 {
		held := g.CurrentR / g.MaxFavorableR
		switch {
		case held >= 0.8:
			prob += 0.05
		case held < 0.4:
			prob -= 0.10
		}
	}
	if prob < 0 {
		return 0
	}
	if prob > 1 {
		return 1
	}
	return prob
}
