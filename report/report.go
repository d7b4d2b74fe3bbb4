// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package report

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/poiesic/docingest/columnar"
	"github.com/poiesic/docingest/core"
	"github.com/poiesic/docingest/storage"
	"github.com/xuri/excelize/v2"
)

const previewLen = 100

// Status is a read-only snapshot of pipeline progress.
type Status struct {
	Counts  core.StatusCounts
	Batches []columnar.BatchFile
	// Latest describes the most recently written batch, if any.
	Latest *Sample
}

// Sample summarizes the contents of one batch file.
type Sample struct {
	File      string
	Rows      int
	Dimension int
	Preview   string
}

// Rows returns the total number of rows across all batch files.
func (s Status) Rows() int64 {
	var total int64
	for _, b := range s.Batches {
		total += b.Rows
	}
	return total
}

// Collect gathers job counts from store and batch files from dir.
func Collect(ctx context.Context, store storage.JobStore, dir string) (Status, error) {
	counts, err := store.StatusCounts(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("reading status counts: %w", err)
	}
	batches, err := columnar.ListBatches(dir)
	if err != nil {
		return Status{}, fmt.Errorf("listing batch files: %w", err)
	}

	status := Status{Counts: counts, Batches: batches}
	if latest := latestBatch(batches); latest != nil {
		sample, err := sampleBatch(*latest)
		if err != nil {
			return Status{}, err
		}
		status.Latest = sample
	}
	return status, nil
}

func latestBatch(batches []columnar.BatchFile) *columnar.BatchFile {
	var latest *columnar.BatchFile
	for i := range batches {
		if latest == nil || !batches[i].ModTime.Before(latest.ModTime) {
			latest = &batches[i]
		}
	}
	return latest
}

func sampleBatch(file columnar.BatchFile) (*Sample, error) {
	rows, err := columnar.ReadBatch(file.Path)
	if err != nil {
		return nil, err
	}
	sample := &Sample{File: file.Name, Rows: len(rows)}
	if len(rows) > 0 {
		sample.Dimension = len(rows[0].Vector)
		sample.Preview = core.Truncate(rows[0].Text, previewLen)
	}
	return sample, nil
}

// WriteText writes a human-readable status report.
func WriteText(w io.Writer, status Status) error {
	fmt.Fprintln(w, "Job status")
	jobs := tablewriter.NewWriter(w)
	jobs.SetHeader([]string{"Status", "Jobs"})
	jobs.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, s := range core.AllStatuses {
		jobs.Append([]string{s.String(), humanize.Comma(int64(status.Counts[s]))})
	}
	jobs.SetFooter([]string{"Total", humanize.Comma(int64(status.Counts.Total()))})
	jobs.Render()

	fmt.Fprintln(w)
	if len(status.Batches) == 0 {
		_, err := fmt.Fprintln(w, "No batch files found.")
		return err
	}

	fmt.Fprintf(w, "Batch files: %d (%s rows)\n", len(status.Batches), humanize.Comma(status.Rows()))
	files := tablewriter.NewWriter(w)
	files.SetHeader([]string{"File", "Node", "Rows", "Size", "Written"})
	files.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, b := range status.Batches {
		files.Append([]string{
			b.Name,
			strconv.Itoa(b.Node),
			humanize.Comma(b.Rows),
			humanize.Bytes(uint64(b.Size)),
			b.ModTime.UTC().Format(time.RFC3339),
		})
	}
	files.Render()

	if s := status.Latest; s != nil {
		fmt.Fprintf(w, "\nLatest batch: %s\n", s.File)
		fmt.Fprintf(w, "  records: %d\n", s.Rows)
		fmt.Fprintf(w, "  vector dimension: %d\n", s.Dimension)
		fmt.Fprintf(w, "  text preview: %s\n", s.Preview)
	}
	return nil
}

// WriteXLSX writes the status as a workbook with a Jobs and a Batches sheet.
func WriteXLSX(w io.Writer, status Status) error {
	f := excelize.NewFile()
	defer f.Close()

	const (
		jobsSheet    = "Jobs"
		batchesSheet = "Batches"
	)
	// the default sheet becomes Jobs
	if err := f.SetSheetName(f.GetSheetName(0), jobsSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(batchesSheet); err != nil {
		return err
	}
	f.SetActiveSheet(0)

	writeRow(f, jobsSheet, 1, "Status", "Jobs")
	row := 2
	for _, s := range core.AllStatuses {
		writeRow(f, jobsSheet, row, s.String(), status.Counts[s])
		row++
	}
	writeRow(f, jobsSheet, row, "Total", status.Counts.Total())
	_ = f.SetColWidth(jobsSheet, "A", "A", 18)

	writeRow(f, batchesSheet, 1, "File", "Node", "Rows", "Bytes", "Written")
	for i, b := range status.Batches {
		writeRow(f, batchesSheet, i+2, b.Name, b.Node, b.Rows, b.Size, b.ModTime.UTC().Format(time.RFC3339))
	}
	_ = f.SetColWidth(batchesSheet, "A", "A", 60)
	_ = f.SetColWidth(batchesSheet, "E", "E", 22)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}
