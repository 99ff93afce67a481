// Package api hosts the HTTP surface described as a collaborator, not core:
// the query endpoint that triggers realtime enrichment on demand, the
// operator-facing scrape trigger and job-status lookup, and health/ready
// probes. Routing and middleware follow the chi-based pattern the pack
// already uses for operator HTTP servers.
package api
