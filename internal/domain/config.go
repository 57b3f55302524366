package domain

import (
	"time"
)

// EngineConfig tunes the lifecycle manager, resolver, and materializer.
// Zero values take the defaults below, which match the ceilings observed
// in production.
type EngineConfig struct {
	Poll         PollConfig
	Resolution   ResolutionConfig
	Materializer MaterializerConfig
}

type PollConfig struct {
	// Interval between status polls, per generator kind. Polling is
	// fixed-interval; backoff applies only to transport errors.
	Interval map[NodeKind]time.Duration

	// MaxAttempts is the local timeout ceiling, per generator kind.
	MaxAttempts map[NodeKind]int

	// TransportBackoff is added per consecutive transport failure, capped
	// at TransportBackoffMax. Transport errors never fail the job.
	TransportBackoff    time.Duration
	TransportBackoffMax time.Duration
}

type ResolutionConfig struct {
	// DefaultMaxReference caps multi-reference inputs when the node does
	// not carry a model-specific maximum.
	DefaultMaxReference int
}

type MaterializerConfig struct {
	PreviewWidth  float64
	DefaultHeight float64
	SpacingX      float64
	SpacingY      float64
}

func (c *EngineConfig) SetDefaults() {
	if c.Poll.Interval == nil {
		c.Poll.Interval = map[NodeKind]time.Duration{}
	}
	if c.Poll.Interval[KindImage] == 0 {
		c.Poll.Interval[KindImage] = 2 * time.Second
	}
	for _, k := range []NodeKind{KindVideo, KindEditing, KindStoryboard, KindCharacter, KindAudioDesign} {
		if c.Poll.Interval[k] == 0 {
			c.Poll.Interval[k] = time.Second
		}
	}
	if c.Poll.MaxAttempts == nil {
		c.Poll.MaxAttempts = map[NodeKind]int{}
	}
	if c.Poll.MaxAttempts[KindImage] == 0 {
		c.Poll.MaxAttempts[KindImage] = 300
	}
	for _, k := range []NodeKind{KindVideo, KindEditing, KindStoryboard} {
		if c.Poll.MaxAttempts[k] == 0 {
			c.Poll.MaxAttempts[k] = 600
		}
	}
	for _, k := range []NodeKind{KindCharacter, KindAudioDesign} {
		if c.Poll.MaxAttempts[k] == 0 {
			c.Poll.MaxAttempts[k] = 150
		}
	}
	if c.Poll.TransportBackoff == 0 {
		c.Poll.TransportBackoff = 500 * time.Millisecond
	}
	if c.Poll.TransportBackoffMax == 0 {
		c.Poll.TransportBackoffMax = 10 * time.Second
	}
	if c.Resolution.DefaultMaxReference == 0 {
		c.Resolution.DefaultMaxReference = 7
	}
	if c.Materializer.PreviewWidth == 0 {
		c.Materializer.PreviewWidth = 400
	}
	if c.Materializer.DefaultHeight == 0 {
		c.Materializer.DefaultHeight = 300
	}
	if c.Materializer.SpacingX == 0 {
		c.Materializer.SpacingX = 200
	}
	if c.Materializer.SpacingY == 0 {
		c.Materializer.SpacingY = 100
	}
}

func (c PollConfig) IntervalFor(kind NodeKind) time.Duration {
	if d, ok := c.Interval[kind]; ok && d > 0 {
		return d
	}
	return 2 * time.Second
}

func (c PollConfig) MaxAttemptsFor(kind NodeKind) int {
	if n, ok := c.MaxAttempts[kind]; ok && n > 0 {
		return n
	}
	return 150
}
