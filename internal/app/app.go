package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
	metricsv "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/skillcoder/jobadapter/internal/adapters/outbound/gateway"
	"github.com/skillcoder/jobadapter/internal/adapters/outbound/jobprobe"
	"github.com/skillcoder/jobadapter/internal/adapters/outbound/k8s"
	"github.com/skillcoder/jobadapter/internal/adapters/outbound/kubectl"
	"github.com/skillcoder/jobadapter/internal/adapters/outbound/shell"
	"github.com/skillcoder/jobadapter/internal/config"
	"github.com/skillcoder/jobadapter/internal/httpserver"
	"github.com/skillcoder/jobadapter/internal/infra/cronparser"
	"github.com/skillcoder/jobadapter/internal/infra/images"
	"github.com/skillcoder/jobadapter/internal/infra/pinger"
	"github.com/skillcoder/jobadapter/internal/infra/shutdown"
	"github.com/skillcoder/jobadapter/internal/infra/templates"
	"github.com/skillcoder/jobadapter/internal/logic/deployer"
	"github.com/skillcoder/jobadapter/internal/logic/job"
	"github.com/skillcoder/jobadapter/internal/logic/logstream"
	"github.com/skillcoder/jobadapter/internal/logic/monitor"
	"github.com/skillcoder/jobadapter/internal/logic/secrets"
	"github.com/skillcoder/jobadapter/internal/logic/survey"
	"github.com/skillcoder/jobadapter/internal/logic/target"
)

var (
	ErrUnknownTarget    = errors.New("unknown infrastructure target")
	ErrUnknownTransport = errors.New("unknown transport")
)

// platformHookName names the env hook fed from the platform job_env settings.
const platformHookName = "platform-job-env"

type App struct {
	logger        *slog.Logger
	appState      appstater
	signals       signalHandler
	renderer      *templates.Renderer
	targets       map[string]*target.Service
	logManagers   []*logstream.Manager
	pingers       component
	survey        component
	httpServer    appServer
	metricsServer appServer
}

// New creates a new application instance with all dependencies wired. The
// pingers service must be the one backing appState.
func New(logger *slog.Logger, cfg *config.Config, appState appstater, pingers component) (*App, error) {
	renderer := templates.New(logger, cfg.TemplatesDir)

	resolver, err := images.New(cfg.Docker.Registry, cfg.Docker.Namespace)
	if err != nil {
		return nil, fmt.Errorf("create image resolver: %w", err)
	}

	limits, err := cfg.Platform.ResourceLimits()
	if err != nil {
		return nil, fmt.Errorf("default resource limits: %w", err)
	}

	ceiling, err := cfg.Platform.MemoryCeilingQuantity()
	if err != nil {
		return nil, fmt.Errorf("memory ceiling: %w", err)
	}

	var hooks []deployer.EnvHook
	if len(cfg.Platform.JobEnv) > 0 {
		hooks = append(hooks, deployer.NewStaticEnvHook(platformHookName, cfg.Platform.JobEnv))
	}

	a := &App{
		logger:   logger,
		appState: appState,
		signals:  shutdown.New(logger, appState),
		renderer: renderer,
		targets:  make(map[string]*target.Service, len(cfg.Targets)),
	}

	prober := jobprobe.New(nil)

	for _, name := range cfg.TargetNames() {
		tc := cfg.Targets[name]

		channel, err := newChannel(logger, tc)
		if err != nil {
			return nil, fmt.Errorf("target %s: %w", name, err)
		}

		engine := deployer.New(
			logger,
			channel,
			renderer,
			deployer.StaticTokens(cfg.Platform.FamilyTokens),
			resolver,
			hooks,
			deployer.Settings{
				InfrastructureTarget: name,
				PubURL:               cfg.Platform.PubURL,
				TracingHeader:        cfg.Platform.TracingHeader,
				TelemetryEndpoint:    cfg.Platform.TelemetryEndpoint,
				DefaultLimits:        limits,
				MemoryCeiling:        ceiling,
				ServiceMonitor:       cfg.Platform.ServiceMonitor,
			},
		)

		jobMonitor := monitor.New(logger, channel, prober, monitor.Settings{
			InfrastructureTarget: name,
			GatewayURL:           tc.RemoteGatewayURL,
			GatewayToken:         tc.RemoteGatewayToken,
			ConditionInterval:    cfg.ConditionInterval,
			ConditionTimeout:     cfg.ConditionTimeout,
		})

		logs := logstream.New(logger.With("target", name), channel, logstream.Settings{
			PollInterval:      cfg.LogPollInterval,
			DiscoveryInterval: cfg.LogDiscoveryInterval,
		})

		a.logManagers = append(a.logManagers, logs)
		a.targets[name] = target.New(
			logger,
			name,
			channel,
			secrets.New(logger, channel, renderer),
			engine,
			jobMonitor,
			logs,
		)
	}

	schedule, err := cronparser.Parse(cfg.SurveySchedule)
	if err != nil {
		return nil, fmt.Errorf("parse survey schedule: %w", err)
	}

	listers := make(map[string]survey.Lister, len(a.targets))
	apiTargets := make(map[string]httpserver.TargetService, len(a.targets))

	for name, svc := range a.targets {
		listers[name] = svc
		apiTargets[name] = svc
	}

	surveyService := survey.New(logger, schedule, listers)
	httpServer := httpserver.New(logger, appState, cfg.HTTPPort, apiTargets)
	metricsServer := httpserver.NewMetricsServer(logger, cfg.MetricsPort)

	for _, p := range []pinger.Pinger{httpServer, metricsServer, surveyService} {
		if err := appState.RegisterPinger(p); err != nil {
			return nil, fmt.Errorf("register pinger %s: %w", p.Name(), err)
		}
	}

	for _, name := range slices.Sorted(maps.Keys(a.targets)) {
		if err := appState.RegisterPinger(a.targets[name]); err != nil {
			return nil, fmt.Errorf("register pinger %s: %w", name, err)
		}
	}

	a.pingers = pingers
	a.survey = surveyService
	a.httpServer = httpServer
	a.metricsServer = metricsServer

	return a, nil
}

func newChannel(logger *slog.Logger, tc config.Target) (job.Channel, error) {
	switch tc.Transport {
	case job.TransportDirect:
		restConfig, err := clientcmd.BuildConfigFromFlags(tc.KubeMaster, tc.KubeConfig)
		if err != nil {
			return nil, fmt.Errorf("build k8s config: %w", err)
		}

		clientset, err := kubernetes.NewForConfig(restConfig)
		if err != nil {
			return nil, fmt.Errorf("create clientset: %w", err)
		}

		dynamicClient, err := dynamic.NewForConfig(restConfig)
		if err != nil {
			return nil, fmt.Errorf("create dynamic client: %w", err)
		}

		metricsClientset, err := metricsv.NewForConfig(restConfig)
		if err != nil {
			return nil, fmt.Errorf("create metrics clientset: %w", err)
		}

		return k8s.New(logger, clientset, dynamicClient, metricsClientset, tc.Namespace), nil
	case job.TransportKubectl:
		var runner kubectl.CommandRunner = shell.New(logger, tc.Workdir, 0)
		if tc.RemoteGatewayURL != "" {
			runner = gateway.New(logger, nil, tc.RemoteGatewayURL, tc.RemoteGatewayToken, tc.Name, tc.Workdir)
		}

		return kubectl.New(logger, runner, tc.KubectlPath, tc.Namespace), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, tc.Transport)
	}
}

// Target returns the service of a configured infrastructure target.
func (a *App) Target(name string) (*target.Service, error) {
	svc, ok := a.targets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, name)
	}

	return svc, nil
}

// Close releases the components used by one-shot commands.
func (a *App) Close(ctx context.Context) error {
	err := shutdown.GracefulShutdown(ctx, a.logger, a.commandShutdowners())
	if err != nil {
		return fmt.Errorf("close application: %w", err)
	}

	return nil
}

func (a *App) commandShutdowners() []shutdown.Shutdowner {
	shutdowners := []shutdown.Shutdowner{a.renderer}
	for _, m := range a.logManagers {
		shutdowners = append(shutdowners, m)
	}

	return shutdowners
}

// Run starts every component and blocks until the context is cancelled or a
// termination signal arrives, then shuts the components down in reverse order.
func (a *App) Run(originCtx context.Context) error {
	ctx, cancel := context.WithCancel(originCtx)
	defer cancel()

	go a.signals.HandleSignals(ctx, cancel)

	if err := a.appState.SetStarting(ctx); err != nil {
		return fmt.Errorf("set starting application state: %w", err)
	}

	err := a.start(ctx)
	if err != nil {
		cancel()

		return errors.Join(err, a.appState.Shutdown(originCtx))
	}

	select {
	case <-ctx.Done():
		return a.appState.Shutdown(originCtx)
	case <-allChannelsClose(ctx, a.logger,
		a.metricsServer.Ready(),
		a.httpServer.Ready(),
		a.pingers.Ready(),
		a.survey.Ready(),
	):
	}

	if err := a.appState.SetRunning(ctx); err != nil {
		cancel()

		return errors.Join(fmt.Errorf("set running application state: %w", err), a.appState.Shutdown(originCtx))
	}

	a.logger.InfoContext(ctx, "job adapter is running", "targets", slices.Sorted(maps.Keys(a.targets)))

	<-ctx.Done()

	return a.appState.Shutdown(originCtx)
}

func (a *App) start(ctx context.Context) error {
	for _, s := range a.commandShutdowners() {
		a.appState.RegisterShutdowner(s)
	}

	if err := a.renderer.Start(ctx); err != nil {
		return fmt.Errorf("start %s: %w", a.renderer.Name(), err)
	}

	for _, c := range []component{a.metricsServer, a.httpServer, a.pingers, a.survey} {
		a.appState.RegisterShutdowner(c)

		if err := c.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", c.Name(), err)
		}
	}

	return nil
}

// allChannelsClose returns a channel closed once every input channel is closed.
func allChannelsClose(ctx context.Context, logger *slog.Logger, chans ...<-chan struct{}) <-chan struct{} {
	out := make(chan struct{})

	go func() {
		defer close(out)

		for _, ch := range chans {
			<-ch
		}

		logger.DebugContext(ctx, "all components ready", "count", len(chans))
	}()

	return out
}
