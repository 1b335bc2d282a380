// Command distill summarizes a document from the command line.
//
// Usage:
//
//	distill -length short report.pdf
//	distill -extract-only -sentences 5 notes.txt
//	distill -config distill.yaml -json slides.pptx
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/brunobiangulo/distill"
	"github.com/brunobiangulo/distill/extract"
	"github.com/brunobiangulo/distill/logging"
	"github.com/brunobiangulo/distill/parser"
	"github.com/brunobiangulo/distill/pipeline"
)

// newEngine is replaced in tests.
var newEngine = func(ctx context.Context, cfg distill.Config) (distill.Engine, error) {
	return distill.New(ctx, cfg)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	configPath  string
	envFile     string
	sentences   int
	length      string
	maxLength   int
	minLength   int
	extractOnly bool
	asJSON      bool
	path        string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("distill", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "Path to config file (YAML or JSON)")
	fs.StringVar(&o.envFile, "env", ".env", "Path to .env file")
	fs.IntVar(&o.sentences, "sentences", 0, "Sentences to extract (default from config)")
	fs.StringVar(&o.length, "length", "", "Summary length: short, medium, long")
	fs.IntVar(&o.maxLength, "max", 0, "Maximum summary length in words")
	fs.IntVar(&o.minLength, "min", 0, "Minimum summary length in words")
	fs.BoolVar(&o.extractOnly, "extract-only", false, "Print the extracted sentences without rewriting")
	fs.BoolVar(&o.asJSON, "json", false, "Print the result as JSON")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: distill [flags] <document>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return o, errors.New("expected exactly one document path")
	}
	o.path = fs.Arg(0)
	if o.sentences < 0 {
		return o, errors.New("-sentences must not be negative")
	}
	return o, nil
}

func loadConfig(o options) (distill.Config, error) {
	if err := distill.LoadEnvFile(o.envFile); err != nil {
		return distill.Config{}, err
	}
	cfg := distill.DefaultConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = distill.LoadConfig(o.configPath); err != nil {
			return distill.Config{}, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return distill.Config{}, err
	}
	// Metrics are only scraped from the server.
	cfg.Metrics = false
	return cfg, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, "distill:", err)
		return 2
	}

	cfg, err := loadConfig(o)
	if err != nil {
		fmt.Fprintln(stderr, "distill:", err)
		return 1
	}
	logger := logging.New(stderr, cfg.Log)
	ctx = logging.WithLogger(ctx, logger)

	if o.extractOnly {
		return runExtract(ctx, cfg, o, stdout, stderr)
	}

	engine, err := newEngine(ctx, cfg)
	if err != nil {
		fmt.Fprintln(stderr, "distill:", err)
		return 1
	}
	defer engine.Close()

	var opts []distill.Option
	if o.length != "" {
		opts = append(opts, distill.WithLengthPreset(o.length))
	}
	if o.maxLength > 0 || o.minLength > 0 {
		maxWords, minWords := o.maxLength, o.minLength
		if maxWords == 0 {
			maxWords = cfg.MaxLength
		}
		opts = append(opts, distill.WithLength(maxWords, minWords))
	}
	if o.sentences > 0 {
		opts = append(opts, distill.WithSentenceCount(o.sentences))
	}

	summary, err := engine.Summarize(ctx, o.path, opts...)
	if err != nil {
		reportFailure(stderr, err)
		return 1
	}

	if o.asJSON {
		return printJSON(stdout, stderr, summary)
	}
	fmt.Fprintln(stdout, summary.Text)
	return 0
}

// runExtract acquires and ranks the document without a rewriting model.
func runExtract(ctx context.Context, cfg distill.Config, o options, stdout, stderr io.Writer) int {
	doc, err := parser.New(cfg.Acquire, nil).Acquire(ctx, o.path)
	if err != nil {
		reportFailure(stderr, &pipeline.Failure{
			Stage: pipeline.Acquiring, Kind: pipeline.KindAcquisition, Reason: err.Error(), Err: err,
		})
		return 1
	}
	res, err := extract.New(cfg.Extract).Extract(ctx, doc.Text, o.sentences)
	if err != nil {
		kind := pipeline.KindExtraction
		switch {
		case errors.Is(err, extract.ErrEmptyDocument):
			kind = pipeline.KindEmptyDocument
		case errors.Is(err, extract.ErrEmptyResult):
			kind = pipeline.KindEmptyResult
		}
		reportFailure(stderr, &pipeline.Failure{
			Stage: pipeline.Extracting, Kind: kind, Reason: err.Error(), Err: err,
		})
		return 1
	}

	if o.asJSON {
		return printJSON(stdout, stderr, res)
	}
	for _, s := range res.Sentences {
		fmt.Fprintln(stdout, s.Text)
	}
	return 0
}

func reportFailure(w io.Writer, err error) {
	var f *pipeline.Failure
	if errors.As(err, &f) {
		fmt.Fprintf(w, "distill: %s failed (%s): %s\n", f.Stage, f.Kind, f.Reason)
		return
	}
	fmt.Fprintln(w, "distill:", err)
}

func printJSON(stdout, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(stderr, "distill:", strings.TrimSpace(err.Error()))
		return 1
	}
	return 0
}
