package metrics

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHeaderEmittedOncePerKind(t *testing.T) {
	var buf bytes.Buffer
	s := NewSink(&buf)

	s.Emit("rmsnorm", Record{OpID: 1, Rows: 128, Cols: 4096, Runs: 1, RunTime: 10 * time.Nanosecond})
	s.Emit("rmsnorm", Record{OpID: 1, Rows: 256, Cols: 4096, Runs: 1, RunTime: 20 * time.Nanosecond})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "rmsnorm_id M N Execute_time(ns)"))
	assert.Equal(t, 1, strings.Count(buf.String(), "rmsnorm_id"))

	fields := strings.Fields(lines[1])
	assert.Len(t, fields, 13)
	assert.Equal(t, "1", fields[0])
	assert.Equal(t, "128", fields[1])
	assert.Equal(t, "4096", fields[2])
	assert.Equal(t, "10.0", fields[12])
}

func TestDistinctKindsGetDistinctHeaders(t *testing.T) {
	var buf bytes.Buffer
	s := NewSink(&buf)

	s.Emit("rmsnorm", Record{OpID: 1, Runs: 1})
	s.Emit("matmul", Record{OpID: 2, Runs: 1})

	out := buf.String()
	assert.Contains(t, out, "rmsnorm_id M N")
	assert.Contains(t, out, "matmul_id M N")
	assert.Len(t, strings.Split(strings.TrimRight(out, "\n"), "\n"), 4)
}

func TestAvgPerRun(t *testing.T) {
	var buf bytes.Buffer
	s := NewSink(&buf)

	s.Emit("matmul", Record{OpID: 1, Runs: 4, RunTime: 100 * time.Nanosecond})
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	fields := strings.Fields(lines[1])
	assert.Equal(t, "25.0", fields[12])

	// Zero runs must not divide by zero.
	s.Emit("matmul", Record{OpID: 1})
	lines = strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	fields = strings.Fields(lines[2])
	assert.Equal(t, "0.0", fields[12])
}

func TestConcurrentEmit(t *testing.T) {
	var buf bytes.Buffer
	s := NewSink(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Emit("rmsnorm", Record{OpID: 1, Runs: 1})
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 17, "header once plus one line per emit")
	assert.Equal(t, 1, strings.Count(buf.String(), "rmsnorm_id"))
}
