package client

import (
	"fmt"
	"net/url"

	"github.com/Sternrassler/collection-cache/pkg/cache"
	"github.com/Sternrassler/collection-cache/pkg/pagination"
	"github.com/tidwall/gjson"
)

// decodePage turns a response body into a page. Two shapes are accepted:
//
//	[ {...}, {...} ]                            single page, no next
//	{"results": [ {...} ], "next": "url"|null}  paginated envelope
//
// A relative next link is resolved against pageURL.
func decodePage(body []byte, pageURL string) (pagination.Page, error) {
	if !gjson.ValidBytes(body) {
		return pagination.Page{}, fmt.Errorf("%w: body is not valid JSON", ErrUnexpectedShape)
	}

	root := gjson.ParseBytes(body)

	var list gjson.Result
	var next string
	switch {
	case root.IsArray():
		list = root
	case root.IsObject():
		list = root.Get("results")
		if !list.IsArray() {
			return pagination.Page{}, fmt.Errorf("%w: object without a results array", ErrUnexpectedShape)
		}

		n := root.Get("next")
		switch n.Type {
		case gjson.String:
			next = n.String()
		case gjson.Null:
			// last page
		default:
			return pagination.Page{}, fmt.Errorf("%w: next is %s, want string or null", ErrUnexpectedShape, n.Type)
		}
	default:
		return pagination.Page{}, fmt.Errorf("%w: top-level %s", ErrUnexpectedShape, root.Type)
	}

	items := make([]cache.Record, 0, len(list.Array()))
	list.ForEach(func(_, value gjson.Result) bool {
		items = append(items, cache.Record(value.Raw))
		return true
	})

	if next != "" {
		resolved, err := resolveNext(pageURL, next)
		if err != nil {
			return pagination.Page{}, err
		}
		next = resolved
	}

	return pagination.Page{Items: items, Next: next}, nil
}

func resolveNext(pageURL, next string) (string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}
	ref, err := url.Parse(next)
	if err != nil {
		return "", fmt.Errorf("%w: invalid next url %q: %v", ErrUnexpectedShape, next, err)
	}
	return base.ResolveReference(ref).String(), nil
}
