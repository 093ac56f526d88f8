package youtube

import "regexp"

// linkPatterns are tried in order; the first capture group is the video ID.
var linkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`youtube\.com/(?:embed/|v/|watch\?v=|watch\?.+&v=)([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`youtu\.be/([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`youtube\.com/(?:playlist\?list=[^&]+&v=|v/)([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`youtube\.com/(?:.*\?v=|.*/)([0-9A-Za-z_-]{11})`),
}

// ExtractVideoID returns the 11-character video ID embedded in a YouTube
// link, and false when text is not a recognised link.
func ExtractVideoID(text string) (string, bool) {
	for _, re := range linkPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// WatchURL returns the canonical watch URL for a video ID.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

// ThumbnailURL returns the high-quality thumbnail URL for a video ID.
func ThumbnailURL(id string) string {
	return "https://i.ytimg.com/vi/" + id + "/hqdefault.jpg"
}
