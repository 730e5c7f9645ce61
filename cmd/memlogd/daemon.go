package main

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"memlog/config"
	"memlog/domain/stream"
	"memlog/infra/kafka"
	"memlog/infra/metrics"
	"memlog/infra/outbox"
	"memlog/jobs/broadcaster"
	"memlog/service"
)

// Daemon owns the log manager and the broadcasters configured for it.
type Daemon struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Prometheus
	manager *service.LogManager

	broadcasters []*broadcaster.Broadcaster
	outboxes     []*outbox.Outbox
}

// Open creates the configured logs and broadcasters.
func Open(cfg *config.Config, logger *zap.Logger) (*Daemon, error) {
	prom := metrics.NewPrometheus()
	d := &Daemon{
		cfg:     cfg,
		logger:  logger,
		metrics: prom,
		manager: service.NewLogManager(nil,
			service.WithLogger(logger),
			service.WithCollector(prom),
			service.WithPollInterval(time.Duration(cfg.PollInterval)),
		),
	}
	for _, l := range cfg.Logs {
		name := stream.NameOfURN(l.Name)
		created, err := d.manager.CreateIfNotExists(name, l.Partitions)
		if err != nil {
			_ = d.Close()
			return nil, errors.Wrapf(err, "create log %s", l.Name)
		}
		logger.Info("log ready", zap.Stringer("log", name), zap.Int("partitions", l.Partitions), zap.Bool("created", created))
	}

	for _, bc := range cfg.Broadcasters {
		if err := d.openBroadcaster(bc); err != nil {
			_ = d.Close()
			return nil, errors.Wrapf(err, "broadcaster for %s", bc.Log)
		}
	}
	return d, nil
}

func (d *Daemon) openBroadcaster(bc config.Broadcaster) error {
	box, err := outbox.Open(bc.OutboxDir)
	if err != nil {
		return err
	}
	d.outboxes = append(d.outboxes, box)

	var pub kafka.Publisher
	switch bc.Client {
	case config.ClientKafkaGo:
		pub = kafka.NewProducer(bc.Brokers, bc.Topic)
	default:
		p, err := kafka.NewSaramaPublisher(bc.Brokers, bc.Topic, kafka.NewSaramaConfig(bc.MaxRetries))
		if err != nil {
			return err
		}
		pub = p
	}

	cfg := broadcaster.Config{
		Log:        stream.NameOfURN(bc.Log),
		Interval:   time.Duration(bc.Interval),
		BatchSize:  bc.BatchSize,
		MaxRetries: uint32(bc.MaxRetries),

		RetryBackoff: time.Duration(bc.RetryBackoff),
	}
	if bc.Group != "" {
		cfg.Group = stream.NameOfURN(bc.Group)
	}
	b, err := broadcaster.New(d.manager, cfg, pub, box, d.logger)
	if err != nil {
		_ = pub.Close()
		return err
	}
	d.broadcasters = append(d.broadcasters, b)
	return nil
}

func (d *Daemon) Manager() *service.LogManager { return d.manager }

// Handler serves /metrics.
func (d *Daemon) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", d.metrics.Handler())
	return mux
}

// Run serves metrics and runs every broadcaster until ctx is done.
func (d *Daemon) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if d.cfg.Metrics.Enabled {
		srv := &http.Server{Addr: d.cfg.Metrics.BindAddress, Handler: d.Handler()}
		g.Go(func() error {
			d.logger.Info("serving metrics", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	for _, b := range d.broadcasters {
		b := b
		g.Go(func() error { return b.Run(ctx) })
	}

	<-ctx.Done()
	return g.Wait()
}

// Close stops the broadcasters and closes the outboxes and the manager.
func (d *Daemon) Close() error {
	var err error
	for _, b := range d.broadcasters {
		err = multierr.Append(err, b.Close())
	}
	for _, box := range d.outboxes {
		err = multierr.Append(err, box.Close())
	}
	return multierr.Append(err, d.manager.Close())
}
