package domain

// Durable data keys. Each node owns its DurableData map exclusively; these
// are the keys the engine reads and merge-writes.
const (
	DataJobID        = "jobId"
	DataGenerating   = "isGenerating"
	DataProgress     = "progress"
	DataMode         = "mode"
	DataPrompt       = "prompt"
	DataRatio        = "ratio"
	DataDuration     = "duration"
	DataModelID      = "modelId"
	DataResultURL    = "resultUrl"
	DataResultURLs   = "resultUrls"
	DataErrorMessage = "errorMessage"
	DataLocked       = "locked"

	DataText     = "text"
	DataImageURL = "imageUrl"
	DataVideoURL = "videoUrl"
	DataAssets   = "assets"

	DataMaxReference     = "maxReferenceImages"
	DataImageConditioned = "imageConditioned"
)

func dataString(n *Node, key string) string {
	if n == nil || n.DurableData == nil {
		return ""
	}
	s, _ := n.DurableData[key].(string)
	return s
}

func dataBool(n *Node, key string) bool {
	if n == nil || n.DurableData == nil {
		return false
	}
	b, _ := n.DurableData[key].(bool)
	return b
}

func dataInt(n *Node, key string) int {
	if n == nil || n.DurableData == nil {
		return 0
	}
	switch v := n.DurableData[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// JobID returns the durable job handle, empty when no job is owned.
func JobID(n *Node) string { return dataString(n, DataJobID) }

// Orphaned reports the "possibly generating when the process ended" flag.
func Orphaned(n *Node) bool { return dataBool(n, DataGenerating) }

// Locked nodes reject submission; the collaboration layer sets the flag.
func Locked(n *Node) bool { return dataBool(n, DataLocked) }

func Prompt(n *Node) string { return dataString(n, DataPrompt) }

func Ratio(n *Node) string { return dataString(n, DataRatio) }

func Duration(n *Node) int { return dataInt(n, DataDuration) }

func MaxReference(n *Node, fallback int) int {
	if v := dataInt(n, DataMaxReference); v > 0 {
		return v
	}
	return fallback
}

func ImageConditioned(n *Node) bool { return dataBool(n, DataImageConditioned) }
