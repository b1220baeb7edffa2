package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BartekS5/requestsync/internal/config"
	"github.com/BartekS5/requestsync/internal/cursor"
	"github.com/BartekS5/requestsync/internal/etl"
	"github.com/BartekS5/requestsync/internal/metrics"
	"github.com/BartekS5/requestsync/pkg/database"
	"github.com/BartekS5/requestsync/pkg/logger"
)

const shutdownTimeout = 5 * time.Second

func runSync(ctx context.Context, opts *RootOptions, once bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return err
	}
	log, closeLog, err := logger.New(logger.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer closeLog()

	schema, err := config.LoadSchema(cfg.Sync.SchemaFile)
	if err != nil {
		return err
	}
	loop := cfg.Sync.Loop()
	if err := loop.Validate(); err != nil {
		return err
	}

	store := cursor.NewFileStore(cfg.Sync.StateDir)
	if err := ensureCursor(store, cfg.Sync.InitialTimestamp, log); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.NewSyncMetrics()
	stopMetrics := serveMetrics(cfg.Metrics.Addr, log)
	defer stopMetrics()

	mongoClient, err := database.ConnectMongo(ctx, cfg.Mongo.ConnectionString)
	if err != nil {
		return err
	}
	defer func() {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer disconnectCancel()
		_ = mongoClient.Disconnect(disconnectCtx)
	}()
	log.Infow("connected to MongoDB", "database", cfg.Mongo.DBName, "collection", cfg.Mongo.CollectionName)

	sink, closeSink, err := openSink(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSink()

	rejects := etl.NewFileRejectLog(cfg.Sync.RejectPath())
	log.Infow("rejected rows are appended to the reject file", "path", rejects.Path())

	coll := mongoClient.Database(cfg.Mongo.DBName).Collection(cfg.Mongo.CollectionName)
	syncer := etl.NewSyncer(
		loop,
		etl.NewMongoSource(coll, cfg.Sync.TimestampField, cfg.Sync.IDField, log),
		etl.NewProjector(schema, cfg.Sync.IDField),
		etl.NewBatchWriter(sink, rejects, m, log),
		store,
		m,
		log,
	)

	if once {
		res, err := syncer.RunOnce(ctx)
		if err != nil {
			return err
		}
		if res.Waiting {
			log.Infow("next window is inside the lag margin", "windowEnd", res.Window.End, "cursor", res.Cursor.String())
		}
		return nil
	}

	err = syncer.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info("shutting down")
		return nil
	}
	return err
}

// ensureCursor seeds the store from initial when no cursor exists yet. An
// existing cursor always wins over the configured seed.
func ensureCursor(store *cursor.FileStore, initial string, log *zap.SugaredLogger) error {
	exists, err := store.Exists()
	if err != nil {
		return fmt.Errorf("checking cursor: %w", err)
	}
	if exists {
		return nil
	}
	if initial == "" {
		return fmt.Errorf("no cursor at %s and SYNC_INITIAL_TIMESTAMP is not set; seed one with 'requestsync cursor seed'", store.TimestampPath())
	}
	ts, err := cursor.ParseTimestamp(initial)
	if err != nil {
		return fmt.Errorf("SYNC_INITIAL_TIMESTAMP: %w", err)
	}
	if _, err := store.Seed(ts, false); err != nil {
		return fmt.Errorf("seeding cursor: %w", err)
	}
	log.Infow("cursor seeded", "timestamp", ts, "path", store.TimestampPath())
	return nil
}

func openSink(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (etl.Sink, func(), error) {
	switch cfg.Sink.Backend {
	case config.BackendBigQuery:
		client, err := database.ConnectBigQuery(ctx, cfg.BigQuery.ProjectID, cfg.BigQuery.Credentials())
		if err != nil {
			return nil, nil, err
		}
		log.Infow("using BigQuery sink", "project", cfg.BigQuery.ProjectID, "dataset", cfg.BigQuery.Dataset)
		return etl.NewBigQuerySink(client, cfg.BigQuery.Dataset, log), func() { _ = client.Close() }, nil
	case config.BackendSQLServer:
		db, err := database.ConnectSQL(ctx, cfg.SQL.ConnectionString)
		if err != nil {
			return nil, nil, err
		}
		log.Info("using SQL Server sink")
		return etl.NewSQLServerSink(db, log), func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown sink backend %q", cfg.Sink.Backend)
	}
}

// serveMetrics exposes /metrics on addr until the returned func is called.
func serveMetrics(addr string, log *zap.SugaredLogger) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Infow("starting metrics server", "addr", addr)
		if srvErr := srv.ListenAndServe(); srvErr != nil && srvErr != http.ErrServerClosed {
			log.Errorw("metrics server error", "error", srvErr)
		}
	}()
	return func() {
		shutCtx, shutCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutCancel()
		_ = srv.Shutdown(shutCtx)
	}
}

func runCursorShow(out io.Writer, opts *RootOptions) error {
	cfg, err := config.Read(opts.ConfigFile)
	if err != nil {
		return err
	}
	c, err := cursor.NewFileStore(cfg.Sync.StateDir).Read()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "timestamp: %s\n", c.Timestamp.UTC().Format(time.RFC3339Nano))
	if c.HasDocument() {
		fmt.Fprintf(out, "document:  %s\n", c.DocumentID)
	} else {
		fmt.Fprintf(out, "document:  %s\n", cursor.NoDocument)
	}
	return nil
}

func runCursorSeed(out io.Writer, opts *RootOptions, raw string, force bool) error {
	cfg, err := config.Read(opts.ConfigFile)
	if err != nil {
		return err
	}
	ts, err := cursor.ParseTimestamp(raw)
	if err != nil {
		return err
	}
	store := cursor.NewFileStore(cfg.Sync.StateDir)
	written, err := store.Seed(ts, force)
	if err != nil {
		return err
	}
	if !written {
		return fmt.Errorf("cursor already exists at %s; use --force to overwrite", store.TimestampPath())
	}
	fmt.Fprintf(out, "cursor seeded at %s\n", ts.UTC().Format(time.RFC3339Nano))
	return nil
}

func runSchema(out io.Writer, opts *RootOptions) error {
	cfg, err := config.Read(opts.ConfigFile)
	if err != nil {
		return err
	}
	schema, err := config.LoadSchema(cfg.Sync.SchemaFile)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(schema)
}
