//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/statement-mapper/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:           "abc12345-6789-0000-0000-000000000000",
			TemplatePath: "models/acme-bs.xlsx",
			Status:       model.RunStatusComplete,
			CreatedAt:    now,
			UpdatedAt:    now.Add(12 * time.Second),
		},
		{
			ID:           "def12345-6789-0000-0000-000000000000",
			TemplatePath: "models/beta-is.xlsx",
			Status:       model.RunStatusMatching,
			CreatedAt:    now.Add(-1 * time.Hour),
			UpdatedAt:    now.Add(-59 * time.Minute),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "TEMPLATE")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "models/acme-bs.xlsx")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "matching")
	assert.Contains(t, output, "2026-03-01 10:30")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
}

func TestFormatRunsList_TruncatesLongPaths(t *testing.T) {
	runs := []model.Run{{
		ID:           "abc12345-6789-0000-0000-000000000000",
		TemplatePath: "a/very/deeply/nested/directory/holding/financial/model/templates/balance.xlsx",
		Status:       model.RunStatusQueued,
	}}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	assert.Contains(t, buf.String(), "...")
	assert.Contains(t, buf.String(), "balance.xlsx")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789-0000"))
	assert.Equal(t, "short", truncateID("short"))
}
