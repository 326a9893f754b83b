package fetch

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// Class is the resource class that decides a request's fetch strategy.
type Class int

const (
	ClassTile Class = iota
	ClassHazardFeed
	ClassStatic
)

func (c Class) String() string {
	switch c {
	case ClassTile:
		return "tile"
	case ClassHazardFeed:
		return "hazard-feed"
	case ClassStatic:
		return "static"
	default:
		return "unknown"
	}
}

var (
	imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".webp": true, ".gif": true}

	// slippyRe matches /{z}/{x}/{y} tile paths with an optional retina
	// suffix and extension, e.g. /7/33/50@2x.png.
	slippyRe = regexp.MustCompile(`/\d+/\d+/\d+(@\dx)?(\.[a-z]+)?$`)
)

// Classify places a request URL into exactly one class. Hazard feed hosts
// win over everything else, then image and map-tile shapes, and whatever
// remains is a static asset.
func (d *Dispatcher) Classify(u *url.URL) Class {
	if d.isHazardFeed(u) {
		return ClassHazardFeed
	}
	if isTile(u) {
		return ClassTile
	}
	return ClassStatic
}

func (d *Dispatcher) isHazardFeed(u *url.URL) bool {
	if _, ok := d.feedHosts[strings.ToLower(u.Hostname())]; ok {
		return true
	}
	return strings.Contains(u.Path, "/alerts")
}

func isTile(u *url.URL) bool {
	q := u.Query()
	for k, v := range q {
		if strings.EqualFold(k, "request") && len(v) > 0 && strings.EqualFold(v[0], "GetMap") {
			return true
		}
	}
	if imageExts[strings.ToLower(path.Ext(u.Path))] {
		return true
	}
	return slippyRe.MatchString(u.Path)
}
