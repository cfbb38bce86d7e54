package browser

import (
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// InjectedClientPath is where dev servers serve their in-page live-reload
// script.
const InjectedClientPath = "/_live/script.js"

// blocker decides which tab requests fail.
type blocker struct {
	injected bool
	types    map[string]bool
}

func newBlocker(injected bool, types []string) *blocker {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[strings.ToLower(t)] = true
	}
	return &blocker{injected: injected, types: set}
}

func (b *blocker) active() bool { return b.injected || len(b.types) > 0 }

func (b *blocker) shouldBlock(u *url.URL, resType string) bool {
	if b.injected && u != nil && u.Path == InjectedClientPath {
		return true
	}
	return shouldBlockType(b.types, resType)
}

// applyBlocking hijacks every request of page and fails the ones b rejects.
// The returned router must be stopped when the tab closes.
func applyBlocking(page *rod.Page, b *blocker) *rod.HijackRouter {
	router := page.HijackRequests()

	router.MustAdd("*", func(ctx *rod.Hijack) {
		if b.shouldBlock(ctx.Request.URL(), string(ctx.Request.Type())) {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})

	go router.Run()
	return router
}

func shouldBlockType(blockSet map[string]bool, resType string) bool {
	lower := strings.ToLower(resType)

	// CDP names are singular; config names are plural.
	switch lower {
	case "image":
		return blockSet["images"] || blockSet["image"]
	case "font":
		return blockSet["fonts"] || blockSet["font"]
	case "media":
		return blockSet["media"]
	case "stylesheet":
		return blockSet["stylesheets"] || blockSet["stylesheet"]
	}

	return blockSet[lower]
}
