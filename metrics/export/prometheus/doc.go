// Package prometheus renders phoneauth counters and latency histograms in the
// Prometheus text format. Nothing is registered globally; mount
// [Exporter.Handler] wherever the scrape endpoint lives.
package prometheus
