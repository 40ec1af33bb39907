// Command coldbd runs one replica's replication queue node: it dials
// the coordination ensemble, takes the exclusive-writer session lock,
// loads the queue, and starts the log puller, the merge/fetch executor
// pool, and the status/metrics HTTP server (spec §8, "a node process").
/*
 * Copyright (c) 2024, ColDB Authors.
 */
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coldb/coldb/clusterid"
	"github.com/coldb/coldb/cmn/nlog"
	"github.com/coldb/coldb/coord"
	"github.com/coldb/coldb/executor"
	"github.com/coldb/coldb/logentry"
	"github.com/coldb/coldb/metrics"
	"github.com/coldb/coldb/queue"
	"github.com/coldb/coldb/sessionlock"
	"github.com/coldb/coldb/status"
	"github.com/coldb/coldb/storagebackend"
)

func main() {
	var (
		zkServers      = flag.String("coordinator", "127.0.0.1:2181", "comma-separated coordination ensemble addresses")
		shardPath      = flag.String("shard-path", "/coldb/shard0", "shard-wide root znode")
		partsRoot      = flag.String("parts-root", "/var/lib/coldb/parts", "local filesystem root holding this replica's on-disk parts")
		listenAddr     = flag.String("listen", ":9090", "status/metrics HTTP listen address")
		mergeCeiling   = flag.Uint64("max-merge-bytes", 0, "absolute merge-size ceiling from storage settings: merges are postponed for size only while the merger's own limit is below it, 0 for no ceiling")
		pullInterval   = flag.Duration("pull-interval", time.Second, "interval between log-pull cycles")
		metricsPeriod  = flag.Duration("metrics-interval", 15*time.Second, "interval between metrics refreshes")
		execConcurrent = flag.Int64("executor-concurrency", 4, "max simultaneously executing queue entries")
	)
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	replicaName, err := (&clusterid.Resolver{}).Resolve(ctx)
	if err != nil {
		nlog.Fatalln("resolving replica identity:", err)
	}
	nlog.SetGlobalFields("replica", replicaName)
	replicaPath := *shardPath + "/replicas/" + replicaName

	cd, err := coord.Dial(ctx, strings.Split(*zkServers, ","), 10*time.Second)
	if err != nil {
		nlog.Fatalln("dialing coordinator:", err)
	}
	defer cd.Close()

	lock, err := sessionlock.Acquire(ctx, cd, replicaPath+"/writer_lock")
	if err != nil {
		nlog.Fatalln("acquiring exclusive-writer lock:", err)
	}
	defer lock.Release(ctx)

	store := storagebackend.FS{Root: *partsRoot}
	presentParts, err := store.ListParts()
	if err != nil {
		nlog.Fatalln("listing on-disk parts:", err)
	}
	if free, ferr := store.AvailableBytes(); ferr != nil {
		nlog.Warningf("statfs %s: %v", *partsRoot, ferr)
	} else {
		nlog.Infof("%s: %d bytes free", *partsRoot, free)
	}

	q := queue.New(*shardPath, replicaPath, *mergeCeiling)
	if err := q.Initialize(ctx, cd, presentParts); err != nil {
		nlog.Fatalln("initializing queue:", err)
	}
	nlog.Infof("queue initialized for %s with %d on-disk parts", replicaPath, len(presentParts))

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg, q, prometheus.Labels{"replica": replicaName})
	go collector.RunPeriodic(ctx, *metricsPeriod)

	srv := &status.Server{Queue: q, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
	httpServer := &http.Server{Addr: *listenAddr, Handler: srv.Routes()}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			nlog.Errorf("status server: %v", err)
		}
	}()

	go pullLoop(ctx, q, cd, *pullInterval)

	pool := &executor.Pool{Queue: q, Coord: cd, Worker: noopWorker, Storage: store, Concurrency: *execConcurrent}
	go pool.Run(ctx)

	<-ctx.Done()
	nlog.Infoln("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
}

func pullLoop(ctx context.Context, q *queue.ReplicatedQueue, cd coord.Coordinator, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := q.PullLogsToQueue(ctx, cd); err != nil {
				nlog.Errorf("pulling log entries: %v", err)
			}
		}
	}
}

// noopWorker is the default placeholder merge/fetch executor: a real
// deployment supplies its own queue.Worker wired to its merge engine
// and part fetcher; this binary only demonstrates the wiring.
func noopWorker(_ context.Context, _ *logentry.LogEntry) (bool, error) {
	return false, nil
}
