// Package tracker advances probes through elements. Each tracker is bound
// to one probe kind; the binding is checked once with ValidProbe before a
// run begins.
package tracker
