// Command vidlens ingests local videos and searches or questions them.
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

	"gopkg.in/yaml.v3"

	"github.com/yangwenmai/vidlens/internal/app"
	"github.com/yangwenmai/vidlens/internal/cascade"
	"github.com/yangwenmai/vidlens/internal/config"
	"github.com/yangwenmai/vidlens/internal/export"
	"github.com/yangwenmai/vidlens/internal/logger"
	"github.com/yangwenmai/vidlens/internal/model"
)

const usage = `usage: vidlens [-config path] <command> [flags] [args]

commands:
  ingest <path>         ingest a video file or every video under a directory
  search <query>        hybrid full-text and semantic search
  ask <question>        answer a question from indexed videos
  list                  list ingested videos
  info <video_id>       show a video and its artifact counts
  transcript <video_id> print a video's transcript (text, json, srt, vtt)
  delete <video_id>     remove a video and everything derived from it
  config show|path|set <key> <value>
`

// errUsage marks errors that should be followed by the usage text.
var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type cli struct {
	configPath string
	stdout     io.Writer
	stderr     io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("vidlens", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", "", "config file (default $VIDLENS_CONFIG or ~/.config/vidlens/config.yaml)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	c := &cli{configPath: *configPath, stdout: stdout, stderr: stderr}
	cmd, rest := fs.Arg(0), fs.Args()[1:]

	var err error
	switch cmd {
	case "ingest":
		err = c.ingest(ctx, rest)
	case "search":
		err = c.search(ctx, rest)
	case "ask":
		err = c.ask(ctx, rest)
	case "list":
		err = c.list(ctx, rest)
	case "info":
		err = c.info(ctx, rest)
	case "transcript":
		err = c.transcript(ctx, rest)
	case "delete":
		err = c.delete(ctx, rest)
	case "config":
		err = c.config(rest)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		err = fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}

	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if errors.Is(err, errUsage) {
			fmt.Fprint(stderr, usage)
		}
		return 1
	}
	return 0
}

// open loads configuration and wires the application.
func (c *cli) open(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.LoggerOptions())
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return app.Open(ctx, cfg, log)
}

func (c *cli) printJSON(v interface{}) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func newFlags(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// parseInterspersed parses flags that may appear before or after positional
// arguments, returning the positionals.
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var pos []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, fmt.Errorf("%w: %v", errUsage, err)
		}
		args = fs.Args()
		if len(args) == 0 {
			return pos, nil
		}
		pos = append(pos, args[0])
		args = args[1:]
	}
}

func (c *cli) ingest(ctx context.Context, args []string) error {
	fs := newFlags("ingest", c.stderr)
	captions := fs.Bool("captions", false, "run the caption cascade")
	frameCaptions := fs.Bool("frame-captions", false, "caption sampled frames one by one instead of the cascade")
	fps := fs.Float64("fps", 0, "frame sampling rate for frame and dense captions")
	maxFrames := fs.Int("max-frames", 0, "maximum sampled frames")
	noEmbed := fs.Bool("no-embed", false, "skip embeddings")
	force := fs.Bool("force", false, "re-ingest even if already ingested")
	dryRun := fs.Bool("dry-run", false, "probe only, write nothing")
	denseVision := fs.Bool("dense-vision", false, "run dense vision captioning and export a timeline")
	principles := fs.String("principles", "", "principles file for dense vision")
	topic := fs.String("topic", "", "caption focus: "+strings.Join(cascade.Topics(), ", ")+" or free text")
	chunkDuration := fs.Int("chunk-duration", 0, "cascade chunk length in seconds")
	framesPerChunk := fs.Int("frames-per-chunk", 0, "frames sampled per cascade chunk")
	pos, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		return fmt.Errorf("%w: ingest takes exactly one path", errUsage)
	}
	if *captions && *frameCaptions {
		return fmt.Errorf("%w: --captions and --frame-captions are mutually exclusive", errUsage)
	}

	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.Media.AssertReady(ctx); err != nil {
		return err
	}

	opts := a.IngestOptions()
	opts.Captions = *captions
	opts.FrameCaptions = *frameCaptions
	opts.NoEmbed = *noEmbed
	opts.Force = *force
	opts.DryRun = *dryRun
	opts.DenseVision = *denseVision
	if *fps > 0 {
		opts.FPSSample = *fps
	}
	if *maxFrames > 0 {
		opts.MaxFrames = *maxFrames
	}
	if *principles != "" {
		opts.PrinciplesPath = *principles
	}
	if *topic != "" {
		opts.Topic = *topic
	}
	if *chunkDuration > 0 {
		opts.ChunkDurationSec = *chunkDuration
	}
	if *framesPerChunk > 0 {
		opts.FramesPerChunk = *framesPerChunk
	}

	results, err := a.Ingest.IngestPath(ctx, pos[0], opts)
	if err != nil {
		return err
	}
	if len(results) == 1 {
		if err := c.printJSON(results[0]); err != nil {
			return err
		}
	} else if err := c.printJSON(results); err != nil {
		return err
	}
	for _, r := range results {
		if r.Status == model.StatusError {
			return fmt.Errorf("ingest failed for %s", r.Filename)
		}
	}
	return nil
}

func (c *cli) search(ctx context.Context, args []string) error {
	fs := newFlags("search", c.stderr)
	limit := fs.Int("limit", 10, "maximum results")
	videoID := fs.String("video", "", "restrict to one video id")
	pos, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}
	query := strings.TrimSpace(strings.Join(pos, " "))
	if query == "" {
		return fmt.Errorf("%w: search needs a query", errUsage)
	}

	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.Retriever.Search(ctx, query, *limit, *videoID)
	if err != nil {
		return err
	}
	return c.printJSON(resp)
}

func (c *cli) ask(ctx context.Context, args []string) error {
	fs := newFlags("ask", c.stderr)
	topK := fs.Int("top-k", 5, "context passages to retrieve")
	videoID := fs.String("video", "", "restrict to one video id")
	pos, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}
	question := strings.TrimSpace(strings.Join(pos, " "))
	if question == "" {
		return fmt.Errorf("%w: ask needs a question", errUsage)
	}

	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.Composer.Ask(ctx, question, *topK, *videoID)
	if err != nil {
		return err
	}
	return c.printJSON(resp)
}

func (c *cli) list(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("%w: list takes no arguments", errUsage)
	}
	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	videos, err := a.Store.ListVideos(ctx)
	if err != nil {
		return err
	}
	if videos == nil {
		videos = []model.VideoSummary{}
	}
	return c.printJSON(videos)
}

func (c *cli) info(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: info takes a video id", errUsage)
	}
	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	info, err := a.Store.GetVideoInfo(ctx, args[0])
	if err != nil {
		return err
	}
	return c.printJSON(info)
}

func (c *cli) transcript(ctx context.Context, args []string) error {
	fs := newFlags("transcript", c.stderr)
	format := fs.String("format", "text", "output format: text, json, srt or vtt")
	pos, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		return fmt.Errorf("%w: transcript takes a video id", errUsage)
	}

	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.Store.GetVideo(ctx, pos[0]); err != nil {
		return err
	}
	arts, err := a.Store.GetArtifacts(ctx, pos[0], model.ArtifactTranscript)
	if err != nil {
		return err
	}

	switch *format {
	case "text":
		_, err = io.WriteString(c.stdout, export.PlainText(arts))
	case "srt":
		_, err = io.WriteString(c.stdout, export.SRT(arts))
	case "vtt":
		_, err = io.WriteString(c.stdout, export.VTT(arts))
	case "json":
		if arts == nil {
			arts = []model.Artifact{}
		}
		err = c.printJSON(arts)
	default:
		return fmt.Errorf("%w: unknown format %q", errUsage, *format)
	}
	return err
}

func (c *cli) delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: delete takes a video id", errUsage)
	}
	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Store.DeleteVideo(ctx, args[0]); err != nil {
		return err
	}
	return c.printJSON(map[string]interface{}{"deleted": true, "video_id": args[0]})
}

func (c *cli) config(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: config needs show, path or set", errUsage)
	}
	path := config.ResolvePath(c.configPath)

	switch args[0] {
	case "path":
		_, err := fmt.Fprintln(c.stdout, path)
		return err
	case "show":
		cfg, err := config.Load(c.configPath)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(c.stdout)
		enc.SetIndent(2)
		if err := enc.Encode(cfg.Redacted()); err != nil {
			return err
		}
		return enc.Close()
	case "set":
		if len(args) != 3 {
			return fmt.Errorf("%w: config set <key> <value>", errUsage)
		}
		cfg, err := config.LoadFile(path)
		if err != nil {
			return err
		}
		if err := cfg.Set(args[1], args[2]); err != nil {
			return err
		}
		if err := cfg.Save(path); err != nil {
			return err
		}
		_, err = fmt.Fprintf(c.stdout, "Set %s in %s\n", args[1], path)
		return err
	default:
		return fmt.Errorf("%w: unknown config action %q", errUsage, args[0])
	}
}
