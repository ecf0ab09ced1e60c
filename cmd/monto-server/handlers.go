package main

import (
	"context"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/SWAI-Ltd/monto/client"
	"github.com/SWAI-Ltd/monto/internal/proto"
)

func handlerFor(name string, useSelection bool) (client.Handler, error) {
	switch name {
	case "reflect":
		return reflect(useSelection), nil
	case "length":
		return length, nil
	case "reverse":
		return reverse, nil
	}
	return nil, fmt.Errorf("unknown server %q", name)
}

// reflect answers each version with its own contents, or with just the
// selected text.
func reflect(useSelection bool) client.Handler {
	return func(_ context.Context, v *proto.Version) ([]proto.Product, error) {
		contents := v.Contents
		if useSelection {
			contents = proto.SelectionText(v)
		}
		return []proto.Product{{
			Source:   v.Source,
			Product:  "reflect",
			Language: v.Language,
			Contents: contents,
		}}, nil
	}
}

// length reports the number of characters in the contents.
func length(_ context.Context, v *proto.Version) ([]proto.Product, error) {
	return []proto.Product{{
		Source:   v.Source,
		Product:  "length",
		Language: "number",
		Contents: strconv.Itoa(utf8.RuneCountInString(v.Contents)),
	}}, nil
}

func reverse(_ context.Context, v *proto.Version) ([]proto.Product, error) {
	r := []rune(v.Contents)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return []proto.Product{{
		Source:   v.Source,
		Product:  "reverse",
		Language: "text",
		Contents: string(r),
	}}, nil
}
