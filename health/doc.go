// Package health checks whether a profile cache location is usable.
//
// A Checker reports one aspect of the cache as Healthy, Degraded, or
// Unhealthy. The package ships checkers for the common failure modes of a
// shared cache directory:
//
//   - LocationChecker: the directory exists and accepts writes.
//   - TablesChecker: every table file decodes and passes its checksum.
//   - StaleTablesChecker: tables left behind by superseded cache versions.
//
// # Aggregating
//
// An Aggregator runs registered checkers concurrently under one timeout and
// returns their reports in registration order:
//
//	agg := health.NewAggregator()
//	agg.Register(health.NewLocationChecker(dir))
//	agg.Register(health.NewTablesChecker(store))
//	agg.Register(health.NewStaleTablesChecker(store, versions))
//
//	reports := agg.CheckAll(ctx)
//	overall := health.Overall(reports)
package health
