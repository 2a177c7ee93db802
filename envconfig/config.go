// Package envconfig reads the engine's process-level configuration from
// environment variables, the way the teacher's own envconfig package reads
// OLLAMA_* variables: a thin Var helper plus one typed accessor per setting.
package envconfig

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Var returns an environment variable with surrounding quotes and
// whitespace trimmed.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// LogLevel returns the configured slog level.
// COREINFER_DEBUG unset or false: Info. true or "1": Debug. "2": Trace.
func LogLevel() slog.Level {
	level := slog.LevelInfo
	s := Var("COREINFER_DEBUG")
	if s == "" {
		return level
	}
	if b, err := strconv.ParseBool(s); err == nil {
		if b {
			level = slog.LevelDebug
		}
		return level
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil && i != 0 {
		return slog.Level(i * -4)
	}
	return level
}

// NumThreads returns the worker pool size for CPU backend compute and batch
// scheduling. COREINFER_NUM_THREADS, default 4.
func NumThreads() int {
	if s := Var("COREINFER_NUM_THREADS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 4
}

// FlashAttention returns whether the fused attention kernel should be
// requested from the backend. COREINFER_FLASH_ATTENTION, default false.
func FlashAttention() bool {
	b, _ := strconv.ParseBool(Var("COREINFER_FLASH_ATTENTION"))
	return b
}

// ContextLength returns the default sequence context length used when a
// caller doesn't specify one. COREINFER_CONTEXT_LENGTH, default 4096.
func ContextLength() int {
	if s := Var("COREINFER_CONTEXT_LENGTH"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 4096
}

// MaxBatchSize returns the maximum number of tokens packed into one forward
// pass across all concurrent sequences. COREINFER_MAX_BATCH_SIZE, default
// 512.
func MaxBatchSize() int {
	if s := Var("COREINFER_MAX_BATCH_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 512
}

// NumParallel returns how many sequences the engine schedules concurrently,
// sizing each layer's KV cache slot table. COREINFER_NUM_PARALLEL, default 4.
func NumParallel() int {
	if s := Var("COREINFER_NUM_PARALLEL"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 4
}
