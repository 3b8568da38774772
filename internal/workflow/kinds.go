package workflow

import (
	"fmt"
	"strings"

	"reelcast/internal/fanout"
	"reelcast/internal/schedule"
	"reelcast/internal/services/caption"
	"reelcast/internal/services/render"
	"reelcast/internal/store"
)

// KindStrategy holds everything that differs between workflow kinds.
type KindStrategy struct {
	Kind store.Kind
	// Partition is the storage table holding records of this kind.
	Partition string
	Platforms []schedule.Platform
	Mode      fanout.Mode
	// DefaultTitle is used when a record carries no title.
	DefaultTitle string

	RenderRequest  func(rec *store.Record) render.Request
	CaptionRequest func(rec *store.Record, videoURL string) caption.Request
	PostRequests   fanout.RequestBuilder
}

// Plan returns the distribution plan for rec.
func (s KindStrategy) Plan(rec *store.Record) fanout.Plan {
	return fanout.Plan{
		Platforms: s.Platforms,
		Mode:      s.Mode,
		Title:     s.title(rec),
		Build:     s.PostRequests,
	}
}

func (s KindStrategy) title(rec *store.Record) string {
	return firstNonEmpty(rec.Title, s.DefaultTitle)
}

var strategies = map[store.Kind]KindStrategy{
	store.KindProperty: {
		Platforms:    []schedule.Platform{schedule.Instagram, schedule.TikTok, schedule.YouTube, schedule.Facebook, schedule.LinkedIn},
		Mode:         fanout.ModeSameDay,
		DefaultTitle: "New Listing",
		PostRequests: fanout.StandardRequests,
	},
	store.KindMarketUpdate: {
		Platforms:    []schedule.Platform{schedule.LinkedIn, schedule.Twitter, schedule.Facebook, schedule.Threads, schedule.YouTube},
		Mode:         fanout.ModeSameDay,
		DefaultTitle: "Market Update",
		PostRequests: fanout.StandardRequests,
	},
	store.KindAgentSpotlight: {
		Platforms:    []schedule.Platform{schedule.Instagram, schedule.Facebook, schedule.LinkedIn, schedule.TikTok},
		Mode:         fanout.ModeWeekly,
		DefaultTitle: "Agent Spotlight",
		PostRequests: fanout.PrimaryOnlyRequests,
	},
}

func init() {
	for kind, strategy := range strategies {
		strategy.Kind = kind
		strategy.Partition = kind.Table()
		strategy.RenderRequest = func(rec *store.Record) render.Request {
			return render.Request{Script: rec.Script, Title: strategy.title(rec)}
		}
		strategy.CaptionRequest = func(rec *store.Record, videoURL string) caption.Request {
			return caption.Request{VideoURL: videoURL, Title: strategy.title(rec)}
		}
		strategies[kind] = strategy
	}
}

// Lookup resolves the strategy for kind.
func Lookup(kind store.Kind) (KindStrategy, error) {
	strategy, ok := strategies[kind]
	if !ok {
		return KindStrategy{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return strategy, nil
}

// Strategies returns the strategy of every kind in partition order.
func Strategies() []KindStrategy {
	kinds := store.Kinds()
	out := make([]KindStrategy, 0, len(kinds))
	for _, kind := range kinds {
		if strategy, ok := strategies[kind]; ok {
			out = append(out, strategy)
		}
	}
	return out
}

// PlatformNames renders a strategy's platforms for display.
func (s KindStrategy) PlatformNames() string {
	names := make([]string, 0, len(s.Platforms))
	for _, p := range s.Platforms {
		names = append(names, string(p))
	}
	return strings.Join(names, ",")
}
