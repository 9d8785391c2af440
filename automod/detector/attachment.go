package detector

import (
	"context"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/modwarden/warden/automod/event"
	"github.com/modwarden/warden/automod/setstore"

	"github.com/PuerkitoBio/purell"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
}

// Flags image attachments which are not on the allow-list, matched by exact URL or by hostname.
type AttachmentDetector struct {
	Sets setstore.SetStore
}

var _ Detector = (*AttachmentDetector)(nil)

func (ad *AttachmentDetector) Channel() event.Channel {
	return event.ChannelAttachment
}

func isImage(att event.Attachment) bool {
	if att.ContentType != "" {
		return strings.HasPrefix(strings.ToLower(att.ContentType), "image/")
	}
	u, err := url.Parse(att.URL)
	if err != nil {
		return false
	}
	return imageExtensions[strings.ToLower(path.Ext(u.Path))]
}

// Lossy normalization for allow-list matching: lower-case, no "www.", no query string or fragment. CDN attachment URLs carry signed query parameters which differ on every upload.
func normalizeAttachmentURL(raw string) string {
	clean, err := purell.NormalizeURLString(raw, purell.FlagsUsuallySafeGreedy|purell.FlagRemoveFragment|purell.FlagRemoveDuplicateSlashes|purell.FlagRemoveWWW)
	if err != nil {
		return strings.ToLower(raw)
	}
	u, err := url.Parse(clean)
	if err != nil {
		return strings.ToLower(clean)
	}
	u.RawQuery = ""
	return strings.ToLower(u.String())
}

func (ad *AttachmentDetector) allowed(ctx context.Context, raw string) bool {
	if ad.Sets == nil {
		return false
	}
	norm := normalizeAttachmentURL(raw)
	candidates := []string{strings.ToLower(raw), norm}
	if u, err := url.Parse(norm); err == nil && u.Hostname() != "" {
		candidates = append(candidates, u.Hostname())
	}
	for _, c := range candidates {
		// set members are stored lower-cased
		ok, err := ad.Sets.InSet(ctx, setstore.SetAttachmentAllow, c)
		if err != nil {
			return false
		}
		if ok {
			return true
		}
	}
	return false
}

func (ad *AttachmentDetector) Detect(ctx context.Context, evt *event.Event, now time.Time) *event.Violation {
	for _, att := range evt.Attach {
		if !isImage(att) || ad.allowed(ctx, att.URL) {
			continue
		}
		return &event.Violation{
			Scope:          evt.Scope,
			SeverityPoints: 1,
			Source:         event.SourceHeuristic,
			Channel:        event.ChannelAttachment,
			Timestamp:      now,
		}
	}
	return nil
}
