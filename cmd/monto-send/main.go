// monto-send publishes files to Monto as versions.
// Usage: monto-send [-lang language] [-s begin:end]... file...
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/SWAI-Ltd/monto/client"
	"github.com/SWAI-Ltd/monto/internal/cli"
	"github.com/SWAI-Ltd/monto/internal/proto"
)

// selections collects repeated -s begin:end flags.
type selections []proto.Selection

func (s *selections) String() string {
	parts := make([]string, len(*s))
	for i, sel := range *s {
		parts[i] = fmt.Sprintf("%d:%d", sel.Begin, sel.End)
	}
	return strings.Join(parts, ",")
}

func (s *selections) Set(arg string) error {
	sel, err := parseSelection(arg)
	if err != nil {
		return err
	}
	*s = append(*s, sel)
	return nil
}

func parseSelection(arg string) (proto.Selection, error) {
	b, e, ok := strings.Cut(arg, ":")
	begin, errB := strconv.Atoi(b)
	end, errE := strconv.Atoi(e)
	if !ok || errB != nil || errE != nil || begin < 0 || end < 0 {
		return proto.Selection{}, fmt.Errorf("selection %q is not of the form begin:end", arg)
	}
	if begin > end {
		return proto.Selection{}, fmt.Errorf("in selection %q, begin > end", arg)
	}
	return proto.Selection{Begin: begin, End: end}, nil
}

// language picks the language for filename: the override when given, else
// the extension without its dot, else "text".
func language(filename, override string) string {
	if override != "" {
		return override
	}
	if ext := filepath.Ext(filename); ext != "" {
		return ext[1:]
	}
	return "text"
}

func main() {
	var (
		flags cli.Flags
		sels  selections
	)
	flags.Register(flag.CommandLine)
	lang := flag.String("lang", "", "language for every file (default: file extension, or text)")
	flag.Var(&sels, "s", "selection begin:end (repeatable)")
	flag.Parse()

	logger := flags.Logger(os.Stderr)
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: monto-send [-lang language] [-s begin:end]... file...")
		os.Exit(2)
	}

	ctx, cancel := cli.SignalContext()
	defer cancel()

	cfg, err := flags.Broker(ctx)
	if err != nil {
		logger.Error("cannot locate broker", "err", err)
		os.Exit(1)
	}
	opts, err := flags.Options(logger)
	if err != nil {
		logger.Error("invalid flags", "err", err)
		os.Exit(2)
	}

	src, err := client.NewSource(ctx, cfg, opts...)
	if err != nil {
		logger.Error("connect failed", "err", err)
		os.Exit(1)
	}
	defer src.Close()

	failed := false
	for _, name := range flag.Args() {
		if err := publish(ctx, src, name, language(name, *lang), sels); err != nil {
			logger.Error("error publishing version", "file", name, "err", err)
			failed = true
			continue
		}
		logger.Info("published", "file", name)
	}
	if failed {
		src.Close()
		os.Exit(1)
	}
}
