package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"slices"
	"sort"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/jonwraymond/profcache/cache"
	"github.com/jonwraymond/profcache/health"
	"github.com/jonwraymond/profcache/observe"
	"github.com/jonwraymond/profcache/signature"
)

// errUnhealthy makes doctor exit non-zero after it has printed its report.
var errUnhealthy = errors.New("cache location is unhealthy")

func openStore(e env) (*cache.FileStore, error) {
	return cache.Open(e.cfg.CacheDir, cache.WithLogger(e.logger))
}

func newFlagSet(e env, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(serviceName+" "+name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

func runTables(ctx context.Context, e env, args []string) error {
	fs := newFlagSet(e, "tables")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := openStore(e)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	infos, err := s.Verify(ctx)
	if infos == nil && err != nil {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	fmt.Fprintf(e.stdout, "%s\n", s.Location())
	if len(infos) == 0 {
		fmt.Fprintln(e.stdout, "no tables")
		return nil
	}

	t := newReportTable("table", "entries", "size", "modified", "status")
	var entries int
	var size int64
	for _, info := range infos {
		status := "ok"
		if info.Err != nil {
			status = "corrupt"
		}
		entries += info.Entries
		size += info.Size
		t.Row(info.Err != nil,
			info.Name,
			humanize.Comma(int64(info.Entries)),
			humanize.Bytes(uint64(info.Size)),
			humanize.Time(info.ModTime),
			status)
	}
	fmt.Fprintln(e.stdout, t)
	fmt.Fprintf(e.stdout, "%s tables, %s entries, %s\n",
		humanize.Comma(int64(len(infos))), humanize.Comma(int64(entries)), humanize.Bytes(uint64(size)))
	return err
}

func runDump(ctx context.Context, e env, args []string) error {
	fs := newFlagSet(e, "dump")
	table := fs.String("table", "", "Table to dump.")
	target := fs.String("target", "", "Target identifier; with -kind, dumps the current table of that kind.")
	kind := fs.String("kind", "", "Op kind; used with -target.")
	if err := fs.Parse(args); err != nil {
		return err
	}

	name := *table
	if name == "" {
		if *target == "" || *kind == "" {
			return errors.New("either -table or both -target and -kind are required")
		}
		versions, err := e.cfg.VersionManager()
		if err != nil {
			return err
		}
		name = versions.TableName(*target, *kind)
	}

	s, err := openStore(e)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	exists, err := s.TableExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("table %q does not exist in %s", name, s.Location())
	}
	entries, err := s.Entries(ctx, name)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(e.stdout, "%s\n", out)
	return err
}

func runDoctor(ctx context.Context, e env, args []string) error {
	fs := newFlagSet(e, "doctor")
	if err := fs.Parse(args); err != nil {
		return err
	}

	versions, err := e.cfg.VersionManager()
	if err != nil {
		return err
	}

	agg := health.NewAggregator()
	agg.Register(health.NewLocationChecker(e.cfg.CacheDir))
	s, err := openStore(e)
	if err == nil {
		defer func() { _ = s.Close() }()
		agg.Register(health.NewTablesChecker(s))
		agg.Register(health.NewStaleTablesChecker(s, versions))
	} else {
		e.logger.Warn(ctx, "cannot open cache location", observe.F("error", err))
	}

	reports := agg.CheckAll(ctx)
	t := newReportTable("check", "status", "message")
	for _, r := range reports {
		msg := r.Result.Message
		if r.Result.Error != nil {
			msg += ": " + r.Result.Error.Error()
		}
		t.Row(r.Result.Status == health.StatusUnhealthy, r.Name, r.Result.Status.String(), msg)
	}
	fmt.Fprintln(e.stdout, t)

	overall := health.Overall(reports)
	fmt.Fprintf(e.stdout, "%s: %s\n", e.cfg.CacheDir, overall)
	if overall == health.StatusUnhealthy {
		return errUnhealthy
	}
	return nil
}

func runVersions(_ context.Context, e env, args []string) error {
	fs := newFlagSet(e, "versions")
	target := fs.String("target", "", "Target identifier; when set, table names are printed.")
	if err := fs.Parse(args); err != nil {
		return err
	}

	versions, err := e.cfg.VersionManager()
	if err != nil {
		return err
	}

	kinds := signature.NewBuilder().Kinds()
	for k := range versions.Versions() {
		if !slices.Contains(kinds, k) {
			kinds = append(kinds, k)
		}
	}
	sort.Strings(kinds)

	headers := []string{"kind", "version"}
	if *target != "" {
		headers = append(headers, "table")
	}
	t := newReportTable(headers...)
	for _, k := range kinds {
		row := []string{k, strconv.Itoa(versions.Version(k))}
		if *target != "" {
			row = append(row, versions.TableName(*target, k))
		}
		t.Row(false, row...)
	}
	fmt.Fprintln(e.stdout, t)
	return nil
}
