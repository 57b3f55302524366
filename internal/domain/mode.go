package domain

// Mode is a node's generation mode. It determines which input kinds the
// node accepts and how many of each the resolver keeps.
type Mode string

const (
	ModeTextToResult   Mode = "text-to-result"
	ModeFirstFrame     Mode = "first-frame"
	ModeLastFrame      Mode = "last-frame"
	ModeFirstLastFrame Mode = "first-last-frame"
	ModeMultiReference Mode = "multi-reference"
	ModeEdit           Mode = "edit"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeTextToResult, ModeFirstFrame, ModeLastFrame, ModeFirstLastFrame, ModeMultiReference, ModeEdit:
		return true
	}
	return false
}

// ImageCap is the maximum number of image inputs the mode resolves;
// maxReference is the model-specific ceiling for reference modes.
func (m Mode) ImageCap(maxReference int) int {
	switch m {
	case ModeTextToResult:
		return 0
	case ModeFirstFrame, ModeLastFrame:
		return 1
	case ModeFirstLastFrame:
		return 2
	default:
		return maxReference
	}
}

// MinImages is the submit precondition for the mode.
func (m Mode) MinImages() int {
	switch m {
	case ModeFirstFrame, ModeLastFrame:
		return 1
	case ModeFirstLastFrame:
		return 2
	case ModeMultiReference:
		return 1
	default:
		return 0
	}
}

func (m Mode) AcceptsVideo() bool {
	return m == ModeEdit
}

// RequiresPrompt reports whether submission needs a non-empty prompt.
func (m Mode) RequiresPrompt() bool {
	return m == ModeTextToResult || m == ModeMultiReference
}

// ModeOf reads a node's configured mode, falling back to the default for
// its kind.
func ModeOf(n *Node) Mode {
	if m := Mode(dataString(n, DataMode)); m.Valid() {
		return m
	}
	if n == nil {
		return ModeTextToResult
	}
	switch n.Kind {
	case KindImage, KindCharacter:
		return ModeMultiReference
	case KindEditing:
		return ModeEdit
	default:
		return ModeTextToResult
	}
}
