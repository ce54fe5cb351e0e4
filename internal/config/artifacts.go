package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/renameio"
)

var ErrAlreadyRunning = errors.New("config: another munged instance holds the lock")

// WritePidFile atomically writes the current process's PID to path,
// creating parent directories as needed. Atomicity matters here: a
// reader (e.g. a SIGHUP-sending script) must never observe a
// partially-written PID.
func WritePidFile(path string, pid int) error {
	if err := os.MkdirAll(dirOf(path), 0o755); err != nil {
		return fmt.Errorf("config: create pid dir: %w", err)
	}
	return renameio.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

// WriteSeedFile atomically persists PRNG seed bytes to path so a restarted
// daemon can fold prior entropy back in rather than starting cold.
func WriteSeedFile(path string, seed []byte) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(dirOf(path), 0o755); err != nil {
		return fmt.Errorf("config: create seed dir: %w", err)
	}
	return renameio.WriteFile(path, seed, 0o600)
}

// ReadSeedFile loads previously persisted PRNG seed bytes, if any. A
// missing file is not an error -- a fresh install has no prior seed.
func ReadSeedFile(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return b, err
}

func dirOf(path string) string {
	d := filepath.Dir(path)
	if d == "" {
		return "."
	}
	return d
}
