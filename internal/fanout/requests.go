package fanout

import (
	"strings"

	"reelcast/internal/schedule"
	"reelcast/internal/services/distribution"
	"reelcast/internal/store"
)

// Placement types understood by the distribution provider.
const (
	PlacementReel  = "reel"
	PlacementStory = "story"
	PlacementShort = "short"
	PlacementVideo = "video"
	PlacementPost  = "post"
)

// RequestBuilder expands one platform into the provider calls it needs.
// base carries the shared video URL, caption and title.
type RequestBuilder func(rec *store.Record, platform schedule.Platform, base distribution.Request) []distribution.Request

// placements lists the calls each platform needs, in submission order.
var placements = map[schedule.Platform][]string{
	schedule.Instagram: {PlacementReel, PlacementStory},
	schedule.Facebook:  {PlacementReel, PlacementStory},
	schedule.YouTube:   {PlacementShort},
	schedule.TikTok:    {PlacementVideo},
	schedule.LinkedIn:  {PlacementPost},
	schedule.Twitter:   {PlacementPost},
	schedule.Threads:   {PlacementPost},
}

// StandardRequests builds one request per placement for the platform.
func StandardRequests(_ *store.Record, platform schedule.Platform, base distribution.Request) []distribution.Request {
	kinds, ok := placements[platform]
	if !ok {
		kinds = []string{PlacementPost}
	}
	out := make([]distribution.Request, 0, len(kinds))
	for _, placement := range kinds {
		out = append(out, forPlacement(base, platform, placement))
	}
	return out
}

// PrimaryOnlyRequests builds a single request using the platform's first
// placement, skipping stories.
func PrimaryOnlyRequests(_ *store.Record, platform schedule.Platform, base distribution.Request) []distribution.Request {
	placement := PlacementPost
	if kinds, ok := placements[platform]; ok && len(kinds) > 0 {
		placement = kinds[0]
	}
	return []distribution.Request{forPlacement(base, platform, placement)}
}

func forPlacement(base distribution.Request, platform schedule.Platform, placement string) distribution.Request {
	req := base
	req.Platforms = []string{string(platform)}
	req.PostTypes = map[string]string{string(platform): placement}
	if placement == PlacementStory {
		// stories carry no caption text on either platform
		req.Caption = ""
	}
	return req
}

func captionFor(rec *store.Record, plan Plan) string {
	if c := strings.TrimSpace(plan.Caption); c != "" {
		return c
	}
	if c := strings.TrimSpace(rec.CaptionText); c != "" {
		return c
	}
	return strings.TrimSpace(rec.Title)
}
