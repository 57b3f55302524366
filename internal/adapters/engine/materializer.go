package engine

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
	"github.com/google/uuid"
)

// Materializer creates downstream result nodes from a succeeded job.
// It is safe to call twice with the same job: existing downstream nodes
// with the same payload URL are reused, and suppressed jobs are skipped
// silently.
type Materializer struct {
	graph  ports.GraphStore
	ledger ports.SuppressionLedger
	config domain.MaterializerConfig
	logger *slog.Logger
}

func NewMaterializer(graph ports.GraphStore, ledger ports.SuppressionLedger, config domain.MaterializerConfig, logger *slog.Logger) *Materializer {
	return &Materializer{
		graph:  graph,
		ledger: ledger,
		config: config,
		logger: logger.With("component", "result-materializer"),
	}
}

func (m *Materializer) Materialize(nodeID string, job *domain.Job) ([]string, error) {
	source, ok := m.graph.GetNode(nodeID)
	if !ok {
		return nil, domain.ErrNodeNotFound
	}
	urls := job.URLs()
	if len(urls) == 0 {
		return nil, nil
	}

	suppressed, err := m.ledger.IsSuppressed(job.ID, nodeID)
	if err != nil {
		m.logger.Warn("suppression lookup failed, materializing anyway", "job_id", job.ID, "error", err)
	} else if suppressed {
		m.logger.Debug("materialization suppressed", "node_id", nodeID, "job_id", job.ID)
		return nil, nil
	}

	previewKind := source.Kind.PreviewKind()
	existing := m.downstreamPreviews(nodeID, previewKind)
	byURL := make(map[string]string, len(existing))
	for _, node := range existing {
		if url := previewPayload(node); url != "" {
			byURL[url] = node.ID
		}
	}

	ratio := domain.Ratio(source)
	height := previewHeight(ratio, m.config.PreviewWidth, m.config.DefaultHeight)
	sourceWidth := source.Size.Width
	if sourceWidth == 0 {
		sourceWidth = m.config.PreviewWidth
	}

	var (
		created []string
		stacked = len(existing)
		nodes   []*domain.Node
		edges   []*domain.Edge
	)
	for _, url := range urls {
		if id, reused := byURL[url]; reused {
			m.logger.Debug("reusing existing result node", "node_id", nodeID, "result_node_id", id)
			continue
		}

		previewID := "preview-" + nodeID + "-" + uuid.NewString()
		preview := &domain.Node{
			ID:   previewID,
			Kind: previewKind,
			Position: domain.Position{
				X: source.Position.X + sourceWidth + m.config.SpacingX,
				Y: source.Position.Y + float64(stacked)*(height+m.config.SpacingY),
			},
			Size: domain.Size{Width: m.config.PreviewWidth, Height: height},
			DurableData: map[string]interface{}{
				payloadKey(previewKind): url,
				domain.DataRatio:        ratio,
			},
		}
		edge := &domain.Edge{
			ID:           "edge-" + nodeID + "-" + previewID,
			SourceID:     nodeID,
			TargetID:     previewID,
			TargetHandle: previewID + "-target",
			CreatedAt:    time.Now(),
		}

		nodes = append(nodes, preview)
		edges = append(edges, edge)
		created = append(created, previewID)
		byURL[url] = previewID
		stacked++
	}

	if len(nodes) == 0 {
		return nil, nil
	}
	if err := m.graph.AddNodes(nodes); err != nil {
		return nil, err
	}
	if err := m.graph.AddEdges(edges); err != nil {
		return created, err
	}

	m.logger.Info("results materialized",
		"node_id", nodeID,
		"job_id", job.ID,
		"created", len(created),
		"reused", len(urls)-len(created),
	)
	return created, nil
}

func (m *Materializer) downstreamPreviews(nodeID string, kind domain.NodeKind) []*domain.Node {
	var previews []*domain.Node
	for _, edge := range m.graph.GetEdges() {
		if edge.SourceID != nodeID {
			continue
		}
		if node, ok := m.graph.GetNode(edge.TargetID); ok && node.Kind == kind {
			previews = append(previews, node)
		}
	}
	return previews
}

func payloadKey(kind domain.NodeKind) string {
	switch kind {
	case domain.KindVideoPreview:
		return domain.DataVideoURL
	case domain.KindTextPreview:
		return domain.DataText
	case domain.KindAudioPreview:
		return domain.DataResultURL
	default:
		return domain.DataImageURL
	}
}

func previewPayload(node *domain.Node) string {
	if node.DurableData == nil {
		return ""
	}
	for _, key := range []string{domain.DataVideoURL, domain.DataImageURL, domain.DataText, domain.DataResultURL} {
		if url, ok := node.DurableData[key].(string); ok && url != "" {
			return url
		}
	}
	return ""
}

// previewHeight derives a node height from a "W:H" ratio string.
func previewHeight(ratio string, width, fallback float64) float64 {
	parts := strings.SplitN(ratio, ":", 2)
	if len(parts) != 2 {
		return fallback
	}
	w, errW := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	h, errH := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return fallback
	}
	return width * h / w
}
