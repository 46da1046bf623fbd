// Package pipeline wires the broker, decoder, telemetry store and agents
// together. It is the composition root shared by the dashboard, the MCP
// server and the headless ingest command.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"pecan-telemetry/src/broker"
	"pecan-telemetry/src/config"
	"pecan-telemetry/src/decode"
	"pecan-telemetry/src/ingest"
	"pecan-telemetry/src/logger"
	"pecan-telemetry/src/simulate"
	"pecan-telemetry/src/store"
	"pecan-telemetry/src/telemetry"
)

// ErrNoArchive is returned when recording is requested without a Postgres DSN.
var ErrNoArchive = errors.New("recording requires " + config.EnvPostgresDSN)

// Mode selects where frames come from.
type Mode int

const (
	// LocalMode runs an in-memory broker fed by the built-in generator.
	LocalMode Mode = iota
	// DistributedMode consumes frames from Redpanda.
	DistributedMode
)

func (m Mode) String() string {
	switch m {
	case LocalMode:
		return "local"
	case DistributedMode:
		return "distributed"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// DetectMode picks DistributedMode when Redpanda brokers are configured.
func DetectMode(cfg *config.Config) Mode {
	if len(cfg.RedpandaBrokers) > 0 {
		return DistributedMode
	}
	return LocalMode
}

// Options toggles optional components.
type Options struct {
	// Record archives every ingested sample to Postgres. Requires a DSN.
	Record bool
	// GroupID overrides the ingest consumer group. Distinct processes
	// reading the same topic need distinct groups to each see every frame.
	GroupID string
	// Broker, when set, is used instead of the one DetectMode would build.
	Broker broker.Broker
	// FromStart makes a new Redpanda consumer group read the topic from its
	// first retained record instead of only new frames.
	FromStart bool
}

// Pipeline owns every long-lived component of one process.
type Pipeline struct {
	Mode     Mode
	Broker   broker.Broker
	Store    *telemetry.Store
	Catalog  *decode.Catalog
	Decoder  *decode.Decoder
	Archive  store.SampleStore
	Recorder *store.Recorder

	cfg    *config.Config
	opts   Options
	logger logger.Logger
	wg     sync.WaitGroup
}

// New builds the components described by cfg. Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config, log logger.Logger, opts Options) (*Pipeline, error) {
	catalog, err := decode.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		Mode:    DetectMode(cfg),
		Catalog: catalog,
		Decoder: decode.NewDecoder(catalog),
		Store: telemetry.New(
			telemetry.WithRetentionWindow(cfg.RetentionWindow),
			telemetry.WithLogger(log),
		),
		cfg:    cfg,
		opts:   opts,
		logger: log,
	}

	switch {
	case opts.Broker != nil:
		p.Broker = opts.Broker
	case p.Mode == DistributedMode:
		rpOpts := []broker.RedpandaOption{broker.WithClientID(opts.GroupID)}
		if opts.FromStart {
			rpOpts = append(rpOpts, broker.WithFromStart())
		}
		rp, err := broker.NewRedpandaBroker(cfg.RedpandaBrokers, log, rpOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redpanda broker: %w", err)
		}
		p.Broker = rp
	default:
		p.Broker = broker.NewInMemoryBroker()
	}

	if opts.Record {
		if cfg.PostgresDSN == "" {
			p.Broker.Close()
			return nil, ErrNoArchive
		}
		pg, err := store.NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			p.Broker.Close()
			return nil, fmt.Errorf("failed to create Postgres store: %w", err)
		}
		p.Archive = pg
		p.Recorder = store.NewRecorder(pg, log, 0)
	}

	return p, nil
}

// Start launches the ingest agent, the recorder when enabled, and in local
// mode the frame generator. Goroutines stop when ctx is cancelled.
func (p *Pipeline) Start(ctx context.Context) {
	agent := ingest.NewAgent(p.Broker, p.Decoder, p.Store, p.logger,
		ingest.WithTopic(p.cfg.Topic),
		ingest.WithGroupID(p.opts.GroupID),
	)
	p.run(ctx, "Ingest agent", agent.Run)

	if p.Recorder != nil {
		p.Store.SubscribeSamples(p.Recorder.Observe)
		p.run(ctx, "Recorder", p.Recorder.Run)
	}

	if p.Mode == LocalMode && p.opts.Broker == nil {
		cfg := simulate.DefaultGeneratorConfig()
		cfg.Topic = p.cfg.Topic
		gen := simulate.NewGenerator(p.Catalog, p.Broker, cfg, p.logger)
		p.run(ctx, "Generator", gen.Run)
	}
}

// run starts fn in a goroutine. Errors go to stderr even when the
// pipeline logger is silent.
func (p *Pipeline) run(ctx context.Context, name string, fn func(context.Context) error) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "[Pipeline] %s error: %v\n", name, err)
		}
	}()
}

// Wait blocks until every started goroutine has returned.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Close shuts down the broker and the archive.
func (p *Pipeline) Close() error {
	var errs []error
	if err := p.Broker.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close broker: %w", err))
	}
	if p.Archive != nil {
		if err := p.Archive.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close archive: %w", err))
		}
	}
	return errors.Join(errs...)
}
