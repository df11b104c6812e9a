// Command deferred renders a scene file with the deferred Vulkan renderer.
package main

import (
	"context"
	"fmt"
	stdmath "math"
	"os"
	"os/signal"
	"time"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spf13/cobra"

	"deferred-engine/config"
	"deferred-engine/core"
	"deferred-engine/internal/vkm"
	"deferred-engine/renderer"
	"deferred-engine/scene"
	"deferred-engine/vulkan"
)

type flags struct {
	config     string
	logLevel   string
	scene      string
	validation bool
	noVSync    bool
	noCache    bool
	overlay    bool
}

func main() {
	if err := rootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "deferred:", err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var f flags
	root := &cobra.Command{
		Use:           "deferred",
		Short:         "Render a scene with the deferred Vulkan renderer",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, f.overlay)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&f.config, "config", "c", "", "TOML config file; defaults apply when empty")
	pf.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	root.Flags().StringVar(&f.scene, "scene", "", "scene description overriding the config")
	root.Flags().BoolVar(&f.validation, "validation", false, "enable the Vulkan validation layer")
	root.Flags().BoolVar(&f.noVSync, "no-vsync", false, "present without waiting for vertical blank")
	root.Flags().BoolVar(&f.noCache, "no-cache", false, "bake IBL maps and pipelines without the disk cache")
	root.Flags().BoolVar(&f.overlay, "frame-graph", true, "draw the frame time graph")

	var force bool
	shaders := &cobra.Command{
		Use:   "shaders",
		Short: "Compile the renderer's GLSL sources to SPIR-V",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return renderer.CompileShaders(cmd.Context(), cfg.ShaderDir, force, cfg.Logger())
		},
	}
	shaders.Flags().BoolVar(&force, "force", false, "recompile shaders that already exist")
	root.AddCommand(shaders)
	return root
}

// loadConfig reads the config file and applies only the flags the user set.
func loadConfig(cmd *cobra.Command, f flags) (config.Config, error) {
	cfg := config.Default()
	if f.config != "" {
		var err error
		if cfg, err = config.Load(f.config); err != nil {
			return cfg, err
		}
	}
	set := cmd.Flags().Changed
	if set("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if set("scene") {
		cfg.ScenePath = f.scene
	}
	if set("validation") {
		cfg.Validation = f.validation
	}
	if set("no-vsync") {
		cfg.Window.VSync = !f.noVSync
	}
	if set("no-cache") && f.noCache {
		cfg.CacheDir = ""
	}
	if err := cfg.ExpandPaths(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, cfg config.Config, withOverlay bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	log := cfg.Logger()

	if missing := renderer.MissingShaders(cfg.ShaderDir); len(missing) > 0 {
		return errors.Newf("shaders %v missing from %s; run `deferred shaders`", missing, cfg.ShaderDir)
	}
	desc, err := scene.LoadDescription(cfg.ScenePath)
	if err != nil {
		return err
	}
	assets, err := scene.LoadAssets(ctx, desc, log)
	if err != nil {
		return err
	}

	if err := core.InitVulkan(); err != nil {
		return err
	}
	wc := core.DefaultWindowConfig()
	wc.Width, wc.Height, wc.Title = cfg.Window.Width, cfg.Window.Height, cfg.Window.Title
	window, err := core.NewWindow(wc)
	if err != nil {
		return err
	}
	defer window.Destroy()

	inst, err := vulkan.NewInstance(vulkan.InstanceConfig{
		AppName:    cfg.Window.Title,
		Validation: cfg.Validation,
		Extensions: window.RequiredInstanceExtensions(),
		Logger:     log,
	})
	if err != nil {
		return err
	}
	defer inst.Destroy()
	surface, err := window.CreateSurface(inst.Handle)
	if err != nil {
		return err
	}
	defer vk.DestroySurface(inst.Handle, surface, nil)

	dev, err := vulkan.NewDevice(inst, surface, log)
	if err != nil {
		return err
	}
	defer dev.Destroy()
	m, err := vkm.New(dev, log)
	if err != nil {
		return err
	}
	defer m.Close()

	camera, err := scene.NewCamera(cfg.Camera.FOV, 1, cfg.Camera.Near, cfg.Camera.Far, cfg.Shadow.Cascades)
	if err != nil {
		return err
	}
	camera.Position = desc.Camera.PositionVec()
	camera.Yaw = float32(float64(desc.Camera.Yaw) * stdmath.Pi / 180)
	camera.Pitch = float32(float64(desc.Camera.Pitch) * stdmath.Pi / 180)

	var graph *renderer.FrameGraph
	opts := renderer.Options{
		Manager: m,
		Surface: surface,
		Window:  window,
		Config:  cfg,
		Assets:  assets,
		Camera:  camera,
		Logger:  log,
	}
	if withOverlay {
		graph = renderer.NewFrameGraph(cfg.ShaderDir, 120, time.Second/60)
		opts.Overlay = graph
	}
	r, err := renderer.New(opts)
	if err != nil {
		return err
	}
	defer r.Close()
	if err := r.Prepare(ctx); err != nil {
		return err
	}
	return loop(ctx, window, r, graph, cfg.Window.Title)
}

func loop(ctx context.Context, window *core.Window, r *renderer.Deferred, graph *renderer.FrameGraph, title string) error {
	var frames int
	last := time.Now()
	window.Poll() // drop input gathered during startup
	for !window.ShouldClose() {
		if err := ctx.Err(); err != nil {
			return nil
		}
		in := window.Poll()
		if in.Pressed(core.KeyEscape) {
			window.RequestClose()
			continue
		}
		start := time.Now()
		if err := r.Frame(ctx, in); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if graph != nil {
			graph.Add(time.Since(start))
		}
		frames++
		if el := time.Since(last); el >= time.Second {
			window.SetTitle(fmt.Sprintf("%s - %.0f fps", title, float64(frames)/el.Seconds()))
			frames, last = 0, time.Now()
		}
		window.WaitWhileMinimized()
	}
	return nil
}
