package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/TFMV/stitchgraph/config"
	"github.com/TFMV/stitchgraph/editor"
	"github.com/TFMV/stitchgraph/ingest"
	"github.com/TFMV/stitchgraph/models"
	"github.com/TFMV/stitchgraph/physics"
	"github.com/TFMV/stitchgraph/render"
	"github.com/TFMV/stitchgraph/server"
	"github.com/TFMV/stitchgraph/stitch"
	"github.com/TFMV/stitchgraph/viewer"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Cancel on SIGINT/SIGTERM for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app carries what every command needs after flags are parsed.
type app struct {
	configPath string
	debug      bool

	// overrides
	width, height int
	background    string
	port          int
	palette       string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "stitchgraph",
		Short:        "Interactive force-directed editor for crochet schemes",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Path to a YAML config file")
	pf.BoolVar(&a.debug, "debug", false, "Enable debug logging")
	pf.IntVar(&a.width, "width", 0, "Viewport width in CSS pixels")
	pf.IntVar(&a.height, "height", 0, "Viewport height in CSS pixels")
	pf.StringVar(&a.background, "background", "", "Background colour")
	pf.StringVar(&a.palette, "palette", "stitch", "Node palette: stitch or default")

	root.AddCommand(a.renderCmd(), a.pickCmd(), a.serveCmd(), a.watchCmd())
	return root
}

// setup loads the config, applies flag overrides and configures logging.
func (a *app) setup(cmd *cobra.Command) error {
	level := slog.LevelInfo
	if a.debug {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	slog.SetDefault(a.logger)

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("width") {
		cfg.Viewer.Width = a.width
	}
	if flags.Changed("height") {
		cfg.Viewer.Height = a.height
	}
	if flags.Changed("background") {
		cfg.Viewer.Background = a.background
	}
	if flags.Changed("port") {
		cfg.Server.Port = a.port
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.logger.Debug("configuration loaded", "path", a.configPath, "size", fmt.Sprintf("%dx%d", cfg.Viewer.Width, cfg.Viewer.Height))
	return nil
}

func (a *app) newPalette() (*ingest.Palette, error) {
	switch strings.ToLower(a.palette) {
	case "stitch":
		return ingest.StitchPalette(), nil
	case "default":
		return ingest.DefaultPalette(), nil
	default:
		return nil, fmt.Errorf("unknown palette %q", a.palette)
	}
}

// loadGraph reads path, or starts an empty scheme when path is empty.
func (a *app) loadGraph(path string) (*models.Graph, error) {
	if path == "" {
		return models.NewGraph("scheme"), nil
	}
	g, err := ingest.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	a.logger.Info("graph loaded", "path", path, "nodes", len(g.Nodes), "links", len(g.Links))
	return g, nil
}

func (a *app) newSimulation(g *models.Graph) *physics.Simulation {
	s := a.cfg.Simulation
	sim := physics.New(g,
		physics.WithLogger(a.logger),
		physics.WithSeed(s.Seed),
		physics.WithAlphaMin(s.AlphaMin),
		physics.WithVelocityDecay(s.VelocityDecay),
	)
	sim.CooldownTicks.Set(s.CooldownTicks).CooldownTime.Set(s.CooldownTime)
	return sim
}

func (a *app) newScheme(sim *physics.Simulation) *stitch.Scheme {
	return stitch.New(editor.New(sim, a.logger),
		stitch.WithDistances(a.cfg.Stitch.Distances),
		stitch.WithCharge(a.cfg.Simulation.ChargeStrength),
		stitch.WithSeed(a.cfg.Simulation.Seed),
		stitch.WithLogger(a.logger),
	)
}

// newViewer builds the viewer for sim, styles it with the palette and the
// scheme, and applies the config.
func (a *app) newViewer(sim *physics.Simulation, scheme *stitch.Scheme, sched viewer.Scheduler) (*viewer.Controller, error) {
	palette, err := a.newPalette()
	if err != nil {
		return nil, err
	}
	vc := a.cfg.Viewer
	v := viewer.New(sim, viewer.Dimensions{Width: vc.Width, Height: vc.Height},
		viewer.WithScheduler(sched),
		viewer.WithLogger(a.logger),
		viewer.WithPixelRatio(vc.PixelRatio),
		viewer.WithHoverThrottle(vc.HoverThrottle),
		viewer.WithZoomFactor(vc.ZoomFactor),
		viewer.WithDragTolerance(vc.DragTolerance),
		viewer.WithDragAlphaTarget(a.cfg.Simulation.DragAlphaTarget),
		viewer.WithChecksumBits(a.cfg.Registry.ChecksumBits),
		viewer.WithScaleExtent(vc.MinZoom, vc.MaxZoom),
	)

	background := vc.Background
	if background == "" {
		background = palette.Background
	}
	v.BackgroundColor.Set(background).AutoPauseRedraw.Set(vc.AutoPauseRedraw)

	nodeStyle, linkStyle := palette.Styles(sim.Graph.Value())
	v.UpdateForegroundRender(func(fg *render.Renderer) {
		fg.NodeStyle.Set(nodeStyle).LinkStyle.Set(linkStyle)
	})
	if scheme != nil {
		scheme.Configure(v)
	}
	return v, nil
}

// settle runs frames until the layout stops or maxFrames is reached, then
// fits the graph into the viewport and draws one more frame.
func settle(v *viewer.Controller, sched *viewer.ManualScheduler, maxFrames int, padding float64) int {
	frames := 0
	for frames < maxFrames && v.Simulation().IsEngineRunning() && sched.Step() {
		frames++
	}
	if _, err := v.GraphBbox(nil); err == nil {
		v.ZoomToFit(padding)
	}
	v.RequestRedraw()
	sched.Step()
	return frames
}

// offline builds a scheme and viewer on a manual scheduler and settles the
// layout.
func (a *app) offline(path string, maxFrames int, padding float64) (*viewer.Controller, error) {
	g, err := a.loadGraph(path)
	if err != nil {
		return nil, err
	}
	sim := a.newSimulation(g)
	scheme := a.newScheme(sim)
	sched := viewer.NewManualScheduler()
	v, err := a.newViewer(sim, scheme, sched)
	if err != nil {
		return nil, err
	}
	frames := settle(v, sched, maxFrames, padding)
	a.logger.Debug("layout settled", "frames", frames, "zoom", v.Zoom())
	return v, nil
}

func (a *app) renderCmd() *cobra.Command {
	var output string
	var frames int
	var padding float64
	var labels bool

	cmd := &cobra.Command{
		Use:   "render [data file]",
		Short: "Settle the layout and write it as PNG, SVG or JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.offline(args[0], frames, padding)
			if err != nil {
				return err
			}
			defer v.Destroy()

			if output == "" {
				output = "output.png"
			}
			format := strings.TrimPrefix(strings.ToLower(filepath.Ext(output)), ".")

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer f.Close()

			if format == "png" {
				err = v.EncodePNG(f)
			} else {
				err = a.export(f, v, format, padding, labels)
			}
			if err != nil {
				return fmt.Errorf("rendering failed: %w", err)
			}
			a.logger.Info("processing complete", "output", output)
			return f.Close()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file; the extension picks the format (default output.png)")
	cmd.Flags().IntVar(&frames, "frames", 600, "Maximum simulation frames before rendering")
	cmd.Flags().Float64Var(&padding, "padding", 10, "Padding around the fitted graph in CSS pixels")
	cmd.Flags().BoolVar(&labels, "labels", false, "Draw node labels (SVG)")
	return cmd
}

func (a *app) export(f *os.File, v *viewer.Controller, format string, padding float64, labels bool) error {
	exporter, err := render.GetExporter(format)
	if err != nil {
		return err
	}
	opts := render.NewDefaultOptions(format)
	opts.Width = float64(a.cfg.Viewer.Width)
	opts.Height = float64(a.cfg.Viewer.Height)
	opts.Padding = padding
	opts.Background = v.BackgroundColor.Value()
	opts.ShowLabels = labels
	opts.NodeStyle = v.Foreground().NodeStyle.Value()
	opts.LinkStyle = v.Foreground().LinkStyle.Value()

	out, err := exporter.Export(v.Graph.Value(), opts)
	if err != nil {
		return err
	}
	_, err = f.Write(out)
	return err
}

func (a *app) pickCmd() *cobra.Command {
	var x, y, padding float64
	var frames int

	cmd := &cobra.Command{
		Use:   "pick [data file]",
		Short: "Settle the layout and report the object under a CSS pixel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.offline(args[0], frames, padding)
			if err != nil {
				return err
			}
			defer v.Destroy()

			v.RefreshShadow()
			obj := v.PickAt(x, y)
			if obj != nil && obj.Node != nil && obj.Node.Label != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %q\n", obj, obj.Node.Label)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), obj)
			return nil
		},
	}
	cmd.Flags().Float64Var(&x, "x", 0, "Pointer x in CSS pixels")
	cmd.Flags().Float64Var(&y, "y", 0, "Pointer y in CSS pixels")
	cmd.Flags().IntVar(&frames, "frames", 600, "Maximum simulation frames before picking")
	cmd.Flags().Float64Var(&padding, "padding", 10, "Padding around the fitted graph in CSS pixels")
	return cmd
}

// live builds a scheme, viewer and session driven by a real frame loop.
func (a *app) live(path string, editable bool) (*server.Session, *viewer.Loop, error) {
	g, err := a.loadGraph(path)
	if err != nil {
		return nil, nil, err
	}
	sim := a.newSimulation(g)
	var scheme *stitch.Scheme
	if editable {
		scheme = a.newScheme(sim)
	}
	loop := viewer.NewLoop(a.cfg.Viewer.FrameInterval, a.logger)
	v, err := a.newViewer(sim, scheme, loop)
	if err != nil {
		return nil, nil, err
	}
	return server.NewSession(v, scheme, loop), loop, nil
}

func (a *app) serverConfig() server.Config {
	s := a.cfg.Server
	return server.Config{Port: s.Port, ReadTimeout: s.ReadTimeout, WriteTimeout: s.WriteTimeout, IdleTimeout: s.IdleTimeout}
}

// runLive runs the frame loop, the HTTP server and any extra workers until
// ctx ends or one of them fails.
func (a *app) runLive(ctx context.Context, session *server.Session, loop *viewer.Loop, workers ...func(context.Context) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loop.Run(ctx) })
	g.Go(func() error { return server.New(a.serverConfig(), session, a.logger).Run(ctx) })
	for _, w := range workers {
		g.Go(func() error { return w(ctx) })
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		a.logger.Info("shutting down")
		return nil
	}
	return err
}

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [data file]",
		Short: "Edit a scheme live in the browser",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			session, loop, err := a.live(path, true)
			if err != nil {
				return err
			}
			return a.runLive(cmd.Context(), session, loop)
		},
	}
	cmd.Flags().IntVar(&a.port, "port", 8080, "Port for the HTTP server")
	return cmd
}
