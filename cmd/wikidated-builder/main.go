// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wikidated/wikidated/build"
	"github.com/wikidated/wikidated/stats"
	"github.com/wikidated/wikidated/wikidata"
	"github.com/wikidated/wikidated/wikidated"
)

var logger *log.Logger

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: wikidated-builder <build|validate> [flags]")
		os.Exit(2)
	}
	sub, rest := os.Args[1], os.Args[2:]

	fs := flag.NewFlagSet(sub, flag.ExitOnError)
	dumps := fs.String("dumps", "dumps", "path to Wikimedia dump files and catalog")
	out := fs.String("out", "dataset", "path to write the built dataset")
	dataset := fs.String("dataset", "wikidated", "dataset name used as file-name prefix")
	version := fs.String("version", "20210601", "dump version to build from")
	mirror := fs.String("mirror", "https://dumps.wikimedia.org", "dump mirror base URL")
	workers := fs.Int("workers", 0, "worker pool size; 0 means number of CPUs")
	continueOnError := fs.Bool("continue_on_error", false, "log and skip a failing shard instead of aborting the run")
	s3key := fs.String("s3_key", "", "path to JSON file with S3-compatible storage credentials; if empty, publishing is skipped")
	metricsAddr := fs.String("metrics_addr", "", "if set, serve Prometheus metrics at http://<addr>/metrics for the duration of the build")
	fs.Parse(rest)

	workdir, _ := os.Getwd()
	logPath := filepath.Join("logs", "wikidated-builder.log")
	fmt.Printf("logs written to %s in workdir=%s\n", logPath, workdir)
	if err := os.MkdirAll("logs", 0o755); err != nil {
		log.Fatal(err)
	}
	logfile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Fatal(err)
	}
	defer logfile.Close()
	logger = log.New(logfile, "", log.Ldate|log.Ltime|log.LUTC|log.Lshortfile)
	logger.Printf("wikidated-builder starting up: %s", sub)

	var err2 error
	switch sub {
	case "build":
		err2 = runBuild(*dumps, *out, *dataset, *version, *mirror, *workers, *continueOnError, *s3key, *metricsAddr)
	case "validate":
		err2 = runValidate(*out)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", sub)
		os.Exit(2)
	}

	if err2 != nil {
		logger.Printf("wikidated-builder failed: %v", err2)
		fmt.Fprintln(os.Stderr, err2)
		os.Exit(1)
	}
	logger.Printf("wikidated-builder exiting")
}

func runBuild(dumpsDir, outDir, dataset, version, mirror string, workers int, continueOnError bool, s3keyPath, metricsAddr string) error {
	ctx := context.Background()
	client := &http.Client{Timeout: 30 * time.Minute}

	var metrics *build.Metrics
	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics = build.NewMetrics(reg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("metrics server stopped: %v", err)
			}
		}()
		defer srv.Close()
		logger.Printf("serving metrics at http://%s/metrics", metricsAddr)
	}

	catalog, err := wikidata.LoadCatalog(dumpsDir, version, mirror, client, logger)
	if err != nil {
		return fmt.Errorf("loading dump catalog: %w", err)
	}

	sitesFile, err := catalog.SitesTableFile()
	if err != nil {
		return err
	}
	if err := sitesFile.Download(client, logger); err != nil {
		return fmt.Errorf("downloading sites table: %w", err)
	}
	f, err := os.Open(sitesFile.Path)
	if err != nil {
		return err
	}
	sites, err := wikidata.ReadSites(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("parsing sites table: %w", err)
	}
	logger.Printf("loaded sites table")

	shardFiles, err := catalog.PagesMetaHistoryFiles()
	if err != nil {
		return err
	}
	shards := make([]*wikidata.DumpPagesMetaHistory, 0, len(shardFiles))
	for _, sf := range shardFiles {
		if err := sf.Download(client, logger); err != nil {
			return fmt.Errorf("downloading %s: %w", sf.Path, err)
		}
		shard, err := wikidata.NewDumpPagesMetaHistory(sf.Path, logger)
		if err != nil {
			return err
		}
		shards = append(shards, shard)
	}
	logger.Printf("downloaded %d pages-meta-history shards", len(shards))

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	opts := build.DriverOptions{
		Workers:         workers,
		ContinueOnError: continueOnError,
		Progress: func(name string, n, total int) {
			logger.Printf("progress: %s %d/%d", name, n, total)
		},
		Metrics: metrics,
	}

	collector := stats.NewCollector()
	results, err := build.BuildEntityStreamsAll(ctx, shards, sites, dataset, outDir, logger, opts)
	if err != nil {
		return fmt.Errorf("building entity streams: %w", err)
	}

	entityStreamsFiles := make([]*wikidated.EntityStreamsFile, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		collector.Add(r.Stats)
		esf, err := wikidated.OpenEntityStreamsFile(r.ArchivePath, logger)
		if err != nil {
			return err
		}
		entityStreamsFiles = append(entityStreamsFiles, esf)
	}

	sortedResults, err := build.BuildSortedEntityStreamsAll(ctx, entityStreamsFiles, outDir, logger, opts)
	if err != nil {
		return fmt.Errorf("building sorted entity streams: %w", err)
	}
	sortedFiles := make([]*wikidated.SortedEntityStreamsFile, 0, len(sortedResults))
	for _, r := range sortedResults {
		if r.Err != nil {
			continue
		}
		sf, err := wikidated.OpenSortedEntityStreamsFile(r.ArchivePath, logger)
		if err != nil {
			return err
		}
		sortedFiles = append(sortedFiles, sf)
	}

	globalPaths, err := build.BuildGlobalStream(sortedFiles, dataset, outDir, logger)
	if err != nil {
		return fmt.Errorf("building global stream: %w", err)
	}
	logger.Printf("built %d global-stream files", len(globalPaths))

	errLogPath := filepath.Join(outDir, "rdf-serialization.exceptions.log")
	if err := collector.WriteConversionErrorsCSV(errLogPath + ".csv.zst"); err != nil {
		return fmt.Errorf("writing conversion-error sidecar: %w", err)
	}
	summaryPath := filepath.Join(outDir, fmt.Sprintf("%s-build-summary.json.br", dataset))
	if err := collector.WriteSummary(dataset, time.Now(), summaryPath); err != nil {
		return fmt.Errorf("writing build summary: %w", err)
	}

	if s3keyPath != "" {
		storage, err := newStorageClient(s3keyPath)
		if err != nil {
			return fmt.Errorf("setting up storage client: %w", err)
		}
		if err := publishDataset(ctx, storage, dataset, outDir); err != nil {
			return fmt.Errorf("publishing to object storage: %w", err)
		}
	}

	return nil
}

func runValidate(outDir string) error {
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return err
	}

	var entityStreamsFiles []*wikidated.EntityStreamsFile
	var globalStreamFiles []*wikidated.GlobalStreamFile
	for _, e := range entries {
		path := filepath.Join(outDir, e.Name())
		if _, _, _, ok := wikidated.ParseEntityStreamsFileName(e.Name()); ok {
			f, err := wikidated.OpenEntityStreamsFile(path, logger)
			if err != nil {
				return err
			}
			entityStreamsFiles = append(entityStreamsFiles, f)
		}
		if _, _, _, _, ok := wikidated.ParseGlobalStreamFileName(e.Name()); ok {
			f, err := wikidated.OpenGlobalStreamFile(path, logger)
			if err != nil {
				return err
			}
			globalStreamFiles = append(globalStreamFiles, f)
		}
	}

	var problems []stats.ValidationError
	for _, f := range entityStreamsFiles {
		errs, err := stats.ValidateEntityStreams(f, logger)
		if err != nil {
			return err
		}
		problems = append(problems, errs...)
	}
	problems = append(problems, stats.ValidateGlobalStream(globalStreamFiles)...)

	for _, p := range problems {
		fmt.Println(p.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("validate: found %d invariant violations", len(problems))
	}
	fmt.Println("validate: OK")
	return nil
}

func newStorageClient(keypath string) (*minio.Client, error) {
	data, err := os.ReadFile(keypath)
	if err != nil {
		return nil, err
	}
	var config struct{ Endpoint, Key, Secret string }
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.Key, config.Secret, ""),
		Secure: true,
	})
	if err != nil {
		return nil, err
	}
	client.SetAppInfo("WikidatedBuilder", "0.1")
	return client, nil
}

func publishDataset(ctx context.Context, storage *minio.Client, dataset, outDir string) error {
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		local := filepath.Join(outDir, e.Name())
		dest := fmt.Sprintf("%s/%s", dataset, e.Name())
		if _, err := storage.StatObject(ctx, dataset, dest, minio.StatObjectOptions{}); err == nil {
			continue
		}
		if _, err := storage.FPutObject(ctx, dataset, dest, local, minio.PutObjectOptions{}); err != nil {
			return err
		}
		logger.Printf("published %s", dest)
	}
	return nil
}
