package resolver

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
)

// Policy admits or rejects edge connections so the resolved input set can
// never violate the target's mode. CanAdmit runs synchronously during the
// connect gesture; ReconcileEdges repairs violations that appear after the
// fact (upstream payload changed shape, or the mode itself changed).
type Policy struct {
	graph   ports.GraphStore
	notices ports.NoticePort
	config  domain.ResolutionConfig
	logger  *slog.Logger
}

func NewPolicy(graph ports.GraphStore, notices ports.NoticePort, config domain.ResolutionConfig, logger *slog.Logger) *Policy {
	return &Policy{
		graph:   graph,
		notices: notices,
		config:  config,
		logger:  logger.With("component", "edge-admission"),
	}
}

func (p *Policy) CanAdmit(candidate *domain.Edge) bool {
	target, ok := p.graph.GetNode(candidate.TargetID)
	if !ok || !target.Kind.Generator() {
		return false
	}
	source, ok := p.graph.GetNode(candidate.SourceID)
	if !ok {
		return false
	}

	kind, _, resolvable := classify(source)
	if !resolvable {
		// A not-yet-configured upstream (empty upload node) connects
		// freely; it contributes no input until it has a payload.
		return true
	}

	mode := domain.ModeOf(target)
	counts := p.countInbound(target)

	switch kind {
	case domain.InputText:
		return counts.texts == 0
	case domain.InputVideo:
		return mode.AcceptsVideo() && counts.videos == 0
	case domain.InputImage:
		limit := p.imageCapOf(target, mode)
		if limit == 0 {
			// Tolerated in text modes; the resolver discards them.
			return true
		}
		return counts.images+1 <= limit
	}
	return false
}

func (p *Policy) ReconcileEdges(nodeID string) ([]string, error) {
	target, ok := p.graph.GetNode(nodeID)
	if !ok {
		return nil, domain.ErrNodeNotFound
	}

	mode := domain.ModeOf(target)
	imageCap := p.imageCapOf(target, mode)
	inbound := inboundEdges(p.graph.GetEdges(), nodeID)

	var (
		remove     []string
		imagesKept int
		textsKept  int
		videosKept int
	)
	for _, edge := range inbound {
		source, ok := p.graph.GetNode(edge.SourceID)
		if !ok {
			continue
		}
		kind, _, resolvable := classify(source)
		if !resolvable {
			continue
		}
		switch kind {
		case domain.InputText:
			if textsKept > 0 {
				remove = append(remove, edge.ID)
				continue
			}
			textsKept++
		case domain.InputImage:
			if imageCap == 0 {
				// Text modes tolerate connected images: the resolver
				// discards them, and switching back to an image mode
				// restores them without rewiring.
				continue
			}
			if imagesKept >= imageCap {
				remove = append(remove, edge.ID)
				continue
			}
			imagesKept++
		case domain.InputVideo:
			if !mode.AcceptsVideo() || videosKept > 0 {
				remove = append(remove, edge.ID)
				continue
			}
			videosKept++
		}
	}

	if len(remove) == 0 {
		return nil, nil
	}

	if err := p.graph.RemoveEdges(remove); err != nil {
		return nil, err
	}

	p.logger.Info("pruned non-conforming edges",
		"node_id", nodeID,
		"mode", mode,
		"removed", len(remove),
	)
	p.notices.Publish(domain.Notice{
		Kind:    domain.NoticeEdgesPruned,
		Level:   domain.NoticeError,
		NodeID:  nodeID,
		Message: fmt.Sprintf("%d connection(s) removed: the current mode does not accept them", len(remove)),
		Details: map[string]interface{}{
			"edge_ids": remove,
			"mode":     string(mode),
		},
		EmittedAt: time.Now(),
	})
	return remove, nil
}

type inboundCounts struct {
	texts  int
	images int
	videos int
}

func (p *Policy) countInbound(target *domain.Node) inboundCounts {
	var counts inboundCounts
	for _, edge := range inboundEdges(p.graph.GetEdges(), target.ID) {
		source, ok := p.graph.GetNode(edge.SourceID)
		if !ok {
			continue
		}
		kind, _, resolvable := classify(source)
		if !resolvable {
			continue
		}
		switch kind {
		case domain.InputText:
			counts.texts++
		case domain.InputImage:
			counts.images++
		case domain.InputVideo:
			counts.videos++
		}
	}
	return counts
}

func (p *Policy) imageCapOf(target *domain.Node, mode domain.Mode) int {
	maxRef := domain.MaxReference(target, p.config.DefaultMaxReference)
	if mode == domain.ModeTextToResult && domain.ImageConditioned(target) {
		return maxRef
	}
	return mode.ImageCap(maxRef)
}
