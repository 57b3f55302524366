package resolver

import (
	"strings"

	"github.com/eleven-am/loom/internal/domain"
)

// classify determines what a source node exposes to downstream consumers.
// Priority: explicit payload fields, then the first matching asset inside
// container nodes, then nothing. A node with no resolvable payload yet is
// not an error; its edges simply contribute no input.
func classify(node *domain.Node) (domain.InputKind, string, bool) {
	if node == nil || node.DurableData == nil {
		return "", "", false
	}

	if text, ok := node.DurableData[domain.DataText].(string); ok && text != "" {
		return domain.InputText, text, true
	}
	if url, ok := node.DurableData[domain.DataImageURL].(string); ok && url != "" {
		return domain.InputImage, url, true
	}
	if url, ok := node.DurableData[domain.DataVideoURL].(string); ok && url != "" {
		return domain.InputVideo, url, true
	}

	if url, ok := node.DurableData[domain.DataResultURL].(string); ok && url != "" {
		switch node.Kind.PreviewKind() {
		case domain.KindVideoPreview:
			return domain.InputVideo, url, true
		case domain.KindTextPreview:
			return domain.InputText, url, true
		default:
			return domain.InputImage, url, true
		}
	}

	return classifyAssets(node)
}

func classifyAssets(node *domain.Node) (domain.InputKind, string, bool) {
	raw, ok := node.DurableData[domain.DataAssets].([]interface{})
	if !ok {
		return "", "", false
	}

	for _, item := range raw {
		asset, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		url, _ := asset["url"].(string)
		mime, _ := asset["mime_type"].(string)
		if url == "" {
			continue
		}
		switch {
		case strings.HasPrefix(mime, "image/"):
			return domain.InputImage, url, true
		case strings.HasPrefix(mime, "video/"):
			return domain.InputVideo, url, true
		}
	}
	return "", "", false
}
