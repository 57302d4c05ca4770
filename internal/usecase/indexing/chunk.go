package indexing

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/kailas-cloud/geoquery/internal/domain"
)

// noiseLines are wiki chrome lines that carry no tag documentation.
var noiseLines = []*regexp.Regexp{
	regexp.MustCompile(`^Jump to navigation$`),
	regexp.MustCompile(`^Jump to search$`),
	regexp.MustCompile(`^From OpenStreetMap Wiki$`),
	regexp.MustCompile(`^In other languages$`),
	regexp.MustCompile(`^Other languages\.\.\.$`),
	regexp.MustCompile(`^Contents$`),
	regexp.MustCompile(`^Tools for this tag$`),
	regexp.MustCompile(`^More details at tag$`),
}

var (
	tagInURL    = regexp.MustCompile(`Tag:([^%]+)%3D(.+)$`)
	blankSpaces = regexp.MustCompile(`[ \t]+`)
)

// Clean drops navigation lines and language-menu fragments and collapses runs
// of blanks.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var lines []string
	for _, ln := range strings.Split(text, "\n") {
		s := strings.TrimSpace(ln)
		if len([]rune(s)) <= 2 || isNoise(s) {
			continue
		}
		lines = append(lines, s)
	}
	return blankSpaces.ReplaceAllString(strings.Join(lines, "\n"), " ")
}

func isNoise(line string) bool {
	for _, re := range noiseLines {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// Chunk splits text into windows of size runes that overlap by overlap runes.
// Trimmed windows shorter than minLen are dropped. overlap must be less than size.
func Chunk(text string, size, overlap, minLen int) []string {
	r := []rune(text)
	n := len(r)
	var out []string
	for start := 0; start < n; {
		end := min(start+size, n)
		c := strings.TrimSpace(string(r[start:end]))
		if len([]rune(c)) >= minLen {
			out = append(out, c)
		}
		if end == n {
			break
		}
		start = end - overlap
	}
	return out
}

// TagFromURL infers the tag a wiki page documents from its URL, e.g.
// ".../wiki/Tag:amenity%3Dcafe" yields amenity=cafe. The zero TagPair means
// the page is not a tag page.
func TagFromURL(u string) domain.TagPair {
	m := tagInURL.FindStringSubmatch(u)
	if m == nil {
		return domain.TagPair{}
	}
	key, err := url.PathUnescape(m[1])
	if err != nil {
		key = m[1]
	}
	value, err := url.PathUnescape(m[2])
	if err != nil {
		value = m[2]
	}
	t := domain.TagPair{Key: key, Value: value}
	if !t.Valid() {
		return domain.TagPair{}
	}
	return t
}
