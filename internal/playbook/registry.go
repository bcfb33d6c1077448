package playbook

import (
	"log/slog"
	"sort"

	"github.com/RealSalty1/ORB-TopStep-sub001/internal/config"
)

// Registry holds the tactics enabled for a session, in deterministic
// (lexicographic) order.
type Registry struct {
	tactics []Tactic
}

// NewRegistry builds a fresh tactic set from configuration. It is called once
// per session so that tactic-internal memory never leaks across sessions.
func NewRegistry(cfg config.PlaybookConfig, logger *slog.Logger) *Registry {
	r := &Registry{}
	if cfg.Breakout.Enabled {
		r.tactics = append(r.tactics, NewBreakout(cfg.Breakout, cfg.CompressionMaxWidthATR))
	}
	if cfg.Fade.Enabled {
		r.tactics = append(r.tactics, NewFade(cfg.Fade))
	}
	if cfg.Pullback.Enabled {
		r.tactics = append(r.tactics, NewPullback(cfg.Pullback))
	}
	sort.Slice(r.tactics, func(i, j int) bool { return r.tactics[i].Name() < r.tactics[j].Name() })

	if logger != nil {
		names := make([]string, len(r.tactics))
		for i, t := range r.tactics {
			names[i] = t.Name()
		}
		logger.Debug("playbook registry built", slog.Any("tactics", names))
	}
	return r
}

// Tactics returns the registered tactics in lexicographic order.
func (r *Registry) Tactics() []Tactic { return r.tactics }
