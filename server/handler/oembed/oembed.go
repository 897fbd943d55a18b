// Package oembed answers oEmbed discovery requests for processed entries.
package oembed

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/indieinfra/plume/server/handler/common"
	"github.com/indieinfra/plume/server/resp"
	"github.com/indieinfra/plume/server/state"
	"github.com/indieinfra/plume/storage/entries"
)

const (
	Version      = "1.0"
	ProviderName = "plume"
)

type Response struct {
	Type         string `json:"type"`
	Version      string `json:"version"`
	Title        string `json:"title,omitempty"`
	AuthorName   string `json:"author_name"`
	AuthorURL    string `json:"author_url"`
	ProviderName string `json:"provider_name"`
	ProviderURL  string `json:"provider_url"`
	URL          string `json:"url"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	HTML         string `json:"html,omitempty"`
}

type params struct {
	target    *url.URL
	maxWidth  int
	maxHeight int
	format    string
}

func parseParams(q url.Values) (params, bool) {
	var p params

	raw := q.Get("url")
	if raw == "" {
		return p, false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return p, false
	}
	p.target = u

	for name, dst := range map[string]*int{"maxwidth": &p.maxWidth, "maxheight": &p.maxHeight} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return p, false
		}
		*dst = n
	}

	p.format = strings.ToLower(q.Get("format"))
	return p, true
}

// HandleOEmbed serves GET /oembed?url=&maxwidth=&maxheight=&format=.
func HandleOEmbed(st *state.PlumeState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := parseParams(r.URL.Query())
		if !ok {
			resp.WriteNotFound(w, "url must point at a media entry")
			return
		}

		switch p.format {
		case "", "json":
		default:
			resp.WriteNotImplemented(w, fmt.Sprintf("format %q is not supported", p.format))
			return
		}

		username, media, ok := common.SplitEntryPath(p.target.Path)
		if !ok {
			resp.WriteNotFound(w, "url must point at a media entry")
			return
		}

		user, e, err := common.ResolveEntry(r.Context(), st.Store, username, media)
		if err != nil {
			common.LogAndWriteError(w, r, st.Log, "oembed", err)
			return
		}
		if e.State != entries.StateProcessed {
			resp.WriteNotFound(w, "not found")
			return
		}

		out, ok := Build(st.AbsoluteURL("/"), st.AbsoluteURL(common.EntryPath(user.Username, e)), user.Username, e, p.maxWidth, p.maxHeight)
		if !ok {
			resp.WriteNotFound(w, "media type has no embed")
			return
		}
		out.AuthorURL = st.AbsoluteURL("/u/" + user.Username + "/")

		resp.WriteOK(w, out)
	}
}

// Build assembles the oEmbed payload for a processed entry living at
// entryURL. It reports false for media types that cannot be embedded.
func Build(providerURL, entryURL, author string, e *entries.Entry, maxWidth, maxHeight int) (Response, bool) {
	width, height := Fit(e.Metadata.Width, e.Metadata.Height, maxWidth, maxHeight)

	out := Response{
		Version:      Version,
		Title:        e.Title,
		AuthorName:   author,
		ProviderName: ProviderName,
		ProviderURL:  providerURL,
		URL:          entryURL,
		Width:        width,
		Height:       height,
	}

	var node *html.Node
	switch e.MediaType {
	case "image":
		out.Type = "photo"
		node = element(atom.Img, "src", entryURL, "alt", e.Title)
	case "audio":
		out.Type = "rich"
		node = frame(entryURL + "embed/")
	case "video":
		out.Type = "video"
		node = frame(entryURL + "embed/")
	default:
		return Response{}, false
	}

	if width > 0 && height > 0 {
		node.Attr = append(node.Attr,
			html.Attribute{Key: "width", Val: strconv.Itoa(width)},
			html.Attribute{Key: "height", Val: strconv.Itoa(height)},
		)
	}

	var b strings.Builder
	if err := html.Render(&b, node); err != nil {
		return Response{}, false
	}
	out.HTML = b.String()

	return out, true
}

func frame(src string) *html.Node {
	return element(atom.Iframe, "src", src, "frameborder", "0", "allowfullscreen", "")
}

func element(a atom.Atom, kv ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	for i := 0; i+1 < len(kv); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: kv[i], Val: kv[i+1]})
	}
	return n
}

// Fit scales width x height down to fit within maxWidth x maxHeight while
// keeping the aspect ratio. A zero bound leaves that axis unconstrained and
// media is never scaled up. Unknown dimensions stay zero.
func Fit(width, height, maxWidth, maxHeight int) (int, int) {
	if width <= 0 || height <= 0 {
		return 0, 0
	}

	scale := 1.0
	if maxWidth > 0 && width > maxWidth {
		scale = min(scale, float64(maxWidth)/float64(width))
	}
	if maxHeight > 0 && height > maxHeight {
		scale = min(scale, float64(maxHeight)/float64(height))
	}

	return max(int(float64(width)*scale), 1), max(int(float64(height)*scale), 1)
}
