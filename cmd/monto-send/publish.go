package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/SWAI-Ltd/monto/client"
	"github.com/SWAI-Ltd/monto/internal/proto"
)

func readVersion(name, lang string, sels []proto.Selection) (*proto.Version, error) {
	contents, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(name)
	if err != nil {
		return nil, err
	}
	return &proto.Version{
		Source:     abs,
		Language:   lang,
		Contents:   string(contents),
		Selections: sels,
	}, nil
}

func publish(ctx context.Context, src *client.Source, name, lang string, sels []proto.Selection) error {
	v, err := readVersion(name, lang, sels)
	if err != nil {
		return err
	}
	return src.PublishVersion(ctx, v)
}
