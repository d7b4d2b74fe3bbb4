// Package report summarizes job status counts and batch files for operators
// and health checks, as plain text or as a spreadsheet.
package report
