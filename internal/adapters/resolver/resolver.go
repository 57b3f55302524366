package resolver

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
)

// Engine resolves a node's inbound edges into its typed input set. It is
// recomputed on every graph change and is pure except for the truncation
// notice.
type Engine struct {
	graph   ports.GraphStore
	notices ports.NoticePort
	config  domain.ResolutionConfig
	logger  *slog.Logger
}

func NewEngine(graph ports.GraphStore, notices ports.NoticePort, config domain.ResolutionConfig, logger *slog.Logger) *Engine {
	return &Engine{
		graph:   graph,
		notices: notices,
		config:  config,
		logger:  logger.With("component", "input-resolver"),
	}
}

func (e *Engine) Resolve(nodeID string, mode domain.Mode) ([]domain.ResolvedInput, error) {
	node, ok := e.graph.GetNode(nodeID)
	if !ok {
		return nil, domain.ErrNodeNotFound
	}

	inbound := inboundEdges(e.graph.GetEdges(), nodeID)

	var (
		inputs    []domain.ResolvedInput
		images    []domain.ResolvedInput
		videos    []domain.ResolvedInput
		seenImage = map[string]bool{}
		hasText   bool
	)

	for _, edge := range inbound {
		source, ok := e.graph.GetNode(edge.SourceID)
		if !ok {
			continue
		}
		kind, payload, ok := classify(source)
		if !ok {
			continue
		}
		input := domain.ResolvedInput{Kind: kind, Payload: payload, OriginEdgeID: edge.ID}

		switch kind {
		case domain.InputText:
			if !hasText {
				hasText = true
				inputs = append(inputs, input)
			}
		case domain.InputImage:
			if !seenImage[payload] {
				seenImage[payload] = true
				images = append(images, input)
			}
		case domain.InputVideo:
			videos = append(videos, input)
		}
	}

	imageCap := e.imageCap(node, mode)
	if len(images) > imageCap {
		if imageCap > 0 {
			e.notices.Publish(domain.Notice{
				Kind:    domain.NoticeInputsTruncated,
				Level:   domain.NoticeInfo,
				NodeID:  nodeID,
				Message: fmt.Sprintf("too many images connected, using the first %d", imageCap),
				Details: map[string]interface{}{
					"used":      imageCap,
					"connected": len(images),
				},
				EmittedAt: time.Now(),
			})
		}
		images = images[:imageCap]
	}
	inputs = append(inputs, images...)

	if mode.AcceptsVideo() && len(videos) > 0 {
		inputs = append(inputs, videos[0])
	}

	return inputs, nil
}

func (e *Engine) imageCap(node *domain.Node, mode domain.Mode) int {
	maxRef := domain.MaxReference(node, e.config.DefaultMaxReference)
	if mode == domain.ModeTextToResult && domain.ImageConditioned(node) {
		return maxRef
	}
	return mode.ImageCap(maxRef)
}

// FirstTextInput returns the first upstream text payload in connection
// order. The engine mirrors it into the node's own prompt so upstream
// edits survive disconnection.
func (e *Engine) FirstTextInput(nodeID string) (string, bool) {
	for _, edge := range inboundEdges(e.graph.GetEdges(), nodeID) {
		source, ok := e.graph.GetNode(edge.SourceID)
		if !ok {
			continue
		}
		if kind, payload, ok := classify(source); ok && kind == domain.InputText {
			return payload, true
		}
	}
	return "", false
}

// inboundEdges filters and orders by connection time, not geometric
// position.
func inboundEdges(edges []*domain.Edge, nodeID string) []*domain.Edge {
	var inbound []*domain.Edge
	for _, e := range edges {
		if e.TargetID == nodeID {
			inbound = append(inbound, e)
		}
	}
	sort.SliceStable(inbound, func(i, j int) bool {
		return inbound[i].Seq < inbound[j].Seq
	})
	return inbound
}
