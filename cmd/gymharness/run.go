package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bhandras/gymharness/internal/config"
	"github.com/bhandras/gymharness/internal/env"
	"github.com/bhandras/gymharness/internal/harness"
	"github.com/bhandras/gymharness/internal/info"
	"github.com/bhandras/gymharness/internal/input"
	"github.com/bhandras/gymharness/internal/policy"
	"github.com/bhandras/gymharness/internal/reward"
	"github.com/bhandras/gymharness/internal/steplog"
	"github.com/bhandras/gymharness/internal/telemetry"
	"github.com/bhandras/gymharness/internal/timecontrol"
	"github.com/bhandras/gymharness/pkg/logger"
)

type runOptions struct {
	instances int
	episodes  int
	maxSteps  int
	seed      uint32
	modDir    string
}

func newRunCommand() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run environments with a random policy and log every step",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if opts.instances > 0 {
				cfg.Instances = opts.instances
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runEnvironments(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().IntVarP(&opts.instances, "instances", "n", 0, "number of concurrent environments (default GYMHARNESS_INSTANCES)")
	cmd.Flags().IntVar(&opts.episodes, "episodes", 1, "episodes per environment")
	cmd.Flags().IntVar(&opts.maxSteps, "max-steps", 10000, "step limit per episode")
	cmd.Flags().Uint32Var(&opts.seed, "seed", 0, "world seed (0 picks a random seed per instance)")
	cmd.Flags().StringVar(&opts.modDir, "mod-dir", "", "directory holding magic_numbers_template.xml")
	return cmd
}

func runEnvironments(parent context.Context, cfg *config.Config, opts runOptions) error {
	if err := cfg.Ensure(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, "gymharness", cfg.OTELEndpoint)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warnf("failed to flush traces: %v", err)
		}
	}()

	apps, err := config.LoadApps(cfg.AppsFile)
	if err != nil {
		return err
	}
	app, err := apps.Find(cfg.Run.App)
	if err != nil {
		return err
	}
	cfg.Run = cfg.Run.ForApp(app)

	space := env.DefaultInputSpace()
	if len(app.Keys) > 0 {
		if space, err = env.InputSpaceFromKeys(app.Keys); err != nil {
			return fmt.Errorf("app %s keys: %w", app.Title, err)
		}
	}

	speed := timecontrol.NewWriter(cfg.TimeControlDir)
	for i := 0; i < cfg.Instances; i++ {
		if err := speed.SetSpeed(1, i); err != nil {
			return err
		}
	}

	router, err := openRouter(cfg, app.SequenceKeydownTime)
	if err != nil {
		return err
	}
	defer closeRouter(router)

	store, err := steplog.Open(ctx, steplog.Options{
		Dir:                  cfg.OutDir,
		App:                  app.Title,
		PixelsEveryNEpisodes: cfg.Run.PixelsEveryNEpisodes,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	launcher, err := harness.NewLauncher(harness.LauncherConfig{
		App:            app,
		Run:            cfg.Run,
		Display:        cfg.Display,
		EnvDirPrefix:   cfg.EnvDirPrefix,
		SpeedPaths:     speed,
		TimeControlLib: cfg.TimeControlLib,
		Capturer:       &harness.ImportCapturer{Display: cfg.Display},
		Windows:        &harness.XdotoolLocator{Display: cfg.Display},
	})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Instances; i++ {
		channel, err := router.Channel(i)
		if err != nil {
			return err
		}

		seed := opts.seed
		if seed == 0 {
			seed = rand.Uint32()
			logger.Infof("env[%d]: using random seed %d", i, seed)
		}

		var seeder env.Seeder
		if opts.modDir != "" {
			seeder = &harness.TemplateSeeder{Dir: opts.modDir}
		}

		session, err := env.NewSession(env.SessionConfig{
			Instance:    i,
			Seed:        seed,
			Coordinates: windowOrigin(i, cfg.Run, cfg.DisplayWidth),
			Run:         cfg.Run,
			InputSpace:  space,
			SkipStartup: cfg.SkipStartup,
		}, env.Deps{
			Launcher: launcher,
			Input:    channel,
			Speed:    speed,
			Info:     info.NewFileSource(cfg.EnvDir(i)),
			Reward:   reward.NewProgress(),
			Policy:   policy.Default(),
			Seeder:   seeder,
			Recorder: store,
		})
		if err != nil {
			return err
		}

		g.Go(func() error {
			defer func() {
				if err := session.Close(); err != nil {
					logger.Warnf("env[%d]: close: %v", session.Instance(), err)
				}
			}()
			return runEpisodes(ctx, session, opts)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		logger.Infof("interrupted")
		return nil
	}
	return err
}

// runEpisodes drives one session with uniformly random actions. A stalled
// step ends the episode early; the next reset recovers the process.
func runEpisodes(ctx context.Context, s *env.Session, opts runOptions) error {
	agent := newRandomAgent(s.InputSpace(), rand.New(rand.NewPCG(uint64(s.Seed()), uint64(s.Instance()))))

	for ep := 0; ep < opts.episodes; ep++ {
		if _, err := s.Reset(ctx); err != nil {
			return err
		}

		var total float64
		for step := 0; step < opts.maxSteps; step++ {
			res, err := s.Step(ctx, agent.Act())
			if errors.Is(err, env.ErrStepStall) {
				logger.Warnf("env[%d]: environment unavailable, resetting", s.Instance())
				break
			}
			if err != nil {
				return err
			}
			total += res.Reward
			if res.Done() {
				break
			}
		}

		ri := s.RunInfo()
		logger.Infof("env[%d]: episode %d finished after %d steps, return %.2f",
			s.Instance(), ri.Episode, ri.EpisodeStep, total)
	}
	return nil
}

// windowOrigin tiles instance windows left to right, top to bottom.
func windowOrigin(instance int, run config.RunConfig, displayWidth int) env.Coordinates {
	w := run.XRes * max(run.Scale, 1)
	h := run.YRes * max(run.Scale, 1)
	cols := max(displayWidth/w, 1)
	return env.Coordinates{
		X: (instance % cols) * w,
		Y: (instance / cols) * h,
	}
}

// randomAgent samples every discrete dimension and the cursor uniformly.
type randomAgent struct {
	sizes []int
	rng   *rand.Rand
}

func newRandomAgent(space env.InputSpace, rng *rand.Rand) *randomAgent {
	return &randomAgent{sizes: space.Sizes(), rng: rng}
}

func (a *randomAgent) Act() env.Action {
	act := env.Action{Discrete: make([]int, len(a.sizes))}
	for i, n := range a.sizes {
		act.Discrete[i] = a.rng.IntN(n)
	}
	act.Continuous = [2]float64{a.rng.Float64()*2 - 1, a.rng.Float64()*2 - 1}
	return act
}

var _ env.InputChannel = (*input.Channel)(nil)
