package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kemsu-schedule/schedule-bot/internal/application/query"
)

const testDocument = "ИС-952\n01.09.2025\nФизика\nИС-951\n01.09.2025\n8:30-\n10:05\nАлгебра\nПИ-101\nХимия\n"

func writeDocument(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schedule.txt")
	require.NoError(t, os.WriteFile(path, []byte(testDocument), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestIndex_Text(t *testing.T) {
	out, err := execute(t, "index", "-o", "text", writeDocument(t))
	require.NoError(t, err)
	assert.Equal(t, "ИС (2): ИС-951, ИС-952\nПИ (1): ПИ-101\n", out)
}

func TestIndex_YAML(t *testing.T) {
	out, err := execute(t, "index", "-o", "yaml", writeDocument(t))
	require.NoError(t, err)

	var units []query.UnitDTO
	require.NoError(t, yaml.Unmarshal([]byte(out), &units))
	require.Len(t, units, 2)
	assert.Equal(t, "ПИ", units[1].Name)
	assert.Equal(t, []string{"ПИ-101"}, units[1].Groups)
}

func TestShow_Text(t *testing.T) {
	out, err := execute(t, "show", "-o", "text", writeDocument(t), "ис-951")
	require.NoError(t, err)
	assert.Contains(t, out, "ИС-951")
	assert.Contains(t, out, "8:30-10:05")
	assert.Contains(t, out, "Алгебра")
	assert.NotContains(t, out, "Физика")
}

func TestShow_JSON(t *testing.T) {
	out, err := execute(t, "show", "-o", "json", writeDocument(t), "ИС-951")
	require.NoError(t, err)

	var got scheduleOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, got.Found)
	// The header line lands in the undated bucket.
	require.Len(t, got.Days, 2)
	assert.Equal(t, "", got.Days[0].Date)
	assert.Equal(t, "01.09.2025", got.Days[1].Date)
	require.Len(t, got.Days[1].Slots, 1)
	assert.Equal(t, "8:30-10:05", got.Days[1].Slots[0].TimeRange)
	assert.Equal(t, "Алгебра", got.Days[1].Slots[0].Subject)
	assert.Equal(t, 2, got.Stats["slots"])
}

func TestShow_AbsentGroup(t *testing.T) {
	out, err := execute(t, "show", "-o", "json", writeDocument(t), "ИС-999")
	require.NoError(t, err)

	var got scheduleOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.False(t, got.Found)
	assert.Empty(t, got.Days)
}

func TestShow_InvalidGroup(t *testing.T) {
	_, err := execute(t, "show", "-o", "text", writeDocument(t), "hello")
	assert.Error(t, err)
}

func TestUnknownOutputFormat(t *testing.T) {
	_, err := execute(t, "index", "-o", "xml", writeDocument(t))
	assert.ErrorContains(t, err, "unknown output format")
}
