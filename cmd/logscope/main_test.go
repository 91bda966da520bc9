package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testBinaryPath string

func TestMain(m *testing.M) {
	tempBinary := filepath.Join(os.TempDir(), "logscope-test-"+fmt.Sprintf("%d", time.Now().UnixNano()))

	buildCmd := exec.Command("go", "build", "-o", tempBinary, ".")
	var buildOut bytes.Buffer
	buildCmd.Stdout = &buildOut
	buildCmd.Stderr = &buildOut

	if err := buildCmd.Run(); err != nil {
		fmt.Printf("Failed to build CLI for testing: %v\nBuild output: %s\n", err, buildOut.String())
		os.Exit(1)
	}

	testBinaryPath = tempBinary

	code := m.Run()
	os.Remove(testBinaryPath)
	os.Exit(code)
}

func runCLICommand(args ...string) (string, error) {
	if testBinaryPath == "" {
		return "", fmt.Errorf("test binary not built")
	}
	cmd := exec.Command(testBinaryPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String() + stderr.String(), err
}

func setupTestLog(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	lines := []string{
		"2024-01-01T00:00:00Z INFO service started",
		"2024-01-01T00:00:01Z ERROR disk full on /data",
		"2024-01-01T00:00:02Z WARN retrying connection",
		"2024-01-01T00:00:03Z ERROR disk full on /data",
		"2024-01-01T00:00:04Z INFO service healthy",
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func jsonTail(output string) string {
	i := strings.IndexAny(output, "{[")
	if i < 0 {
		return output
	}
	return output[i:]
}

func TestOpenCommandReportsLineCount(t *testing.T) {
	path := setupTestLog(t)

	output, err := runCLICommand("--root", filepath.Dir(path), "open", path)
	require.NoError(t, err)

	var info map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(jsonTail(output)), &info))
	assert.EqualValues(t, 5, info["TotalLines"])
}

func TestLinesCommandPrintsRequestedRange(t *testing.T) {
	path := setupTestLog(t)

	output, err := runCLICommand("--root", filepath.Dir(path), "lines", path, "--start", "0", "--count", "2")
	require.NoError(t, err)

	var lines []interface{}
	require.NoError(t, json.Unmarshal([]byte(jsonTail(output)), &lines))
	assert.Len(t, lines, 2)
}

func TestSearchCommandFindsMatches(t *testing.T) {
	path := setupTestLog(t)

	output, err := runCLICommand("--root", filepath.Dir(path), "search", path, "disk full")
	require.NoError(t, err)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(jsonTail(output)), &result))
	matches := result["Matches"].([]interface{})
	assert.Len(t, matches, 2)
}

func TestFilterCommandRestrictsToLevel(t *testing.T) {
	path := setupTestLog(t)

	output, err := runCLICommand("--root", filepath.Dir(path), "filter", path, "--level", "error")
	require.NoError(t, err)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(jsonTail(output)), &result))
	assert.EqualValues(t, 2, result["visible_lines"])
}

func TestAnalyzeCommandReturnsLayoutAndInsights(t *testing.T) {
	path := setupTestLog(t)

	output, err := runCLICommand("--root", filepath.Dir(path), "analyze", path)
	require.NoError(t, err)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(jsonTail(output)), &result))
	assert.Contains(t, result, "layout")
	assert.Contains(t, result, "insights")
}

func TestClusterCommandGroupsRepeatedLines(t *testing.T) {
	path := setupTestLog(t)

	output, err := runCLICommand("--root", filepath.Dir(path), "cluster", path)
	require.NoError(t, err)

	var clusters []interface{}
	require.NoError(t, json.Unmarshal([]byte(jsonTail(output)), &clusters))
	assert.NotEmpty(t, clusters)
}

func TestBaselineSaveListCompareDelete(t *testing.T) {
	path := setupTestLog(t)
	root := filepath.Dir(path)

	saveOut, err := runCLICommand("--root", root, "baseline", "save", path, "nightly")
	require.NoError(t, err)
	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(jsonTail(saveOut)), &rec))
	id := rec["id"].(string)
	require.NotEmpty(t, id)

	listOut, err := runCLICommand("--root", root, "baseline", "list")
	require.NoError(t, err)
	var list []interface{}
	require.NoError(t, json.Unmarshal([]byte(jsonTail(listOut)), &list))
	assert.Len(t, list, 1)

	compareOut, err := runCLICommand("--root", root, "baseline", "compare", path, id)
	require.NoError(t, err)
	var report map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(jsonTail(compareOut)), &report))
	assert.Contains(t, report, "Findings")

	_, err = runCLICommand("--root", root, "baseline", "delete", id)
	require.NoError(t, err)

	listOut, err = runCLICommand("--root", root, "baseline", "list")
	require.NoError(t, err)
	list = nil
	require.NoError(t, json.Unmarshal([]byte(jsonTail(listOut)), &list))
	assert.Empty(t, list)
}

func TestMissingPathArgumentErrors(t *testing.T) {
	_, err := runCLICommand("open")
	assert.Error(t, err)
}
