// Package testutil provides common test utilities for the tome project.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/spf13/viper"

	"github.com/lepinkainen/tome/internal/cache"
	"github.com/lepinkainen/tome/internal/config"
)

// ConfigState holds the state of the config package variables.
type ConfigState struct {
	DBFile        string
	Port          int
	MigrationsDir string
	SeedPaths     []string
	DebugDB       bool
	CORSOrigins   []string
}

// SaveConfigState captures the current state of config package variables.
func SaveConfigState() ConfigState {
	return ConfigState{
		DBFile:        config.DBFile,
		Port:          config.Port,
		MigrationsDir: config.MigrationsDir,
		SeedPaths:     config.SeedPaths,
		DebugDB:       config.DebugDB,
		CORSOrigins:   config.CORSOrigins,
	}
}

// RestoreConfigState restores the config package variables to a saved state.
func RestoreConfigState(state ConfigState) {
	config.DBFile = state.DBFile
	config.Port = state.Port
	config.MigrationsDir = state.MigrationsDir
	config.SeedPaths = state.SeedPaths
	config.DebugDB = state.DebugDB
	config.CORSOrigins = state.CORSOrigins
}

// ResetConfig saves the current config state and schedules restoration
// when the test completes. It also resets viper.
func ResetConfig(t *testing.T) {
	t.Helper()

	state := SaveConfigState()
	viper.Reset()

	t.Cleanup(func() {
		RestoreConfigState(state)
		viper.Reset()
	})
}

// SetViperValue sets a viper configuration value and schedules cleanup.
func SetViperValue(t *testing.T, key string, value any) {
	t.Helper()

	oldValue := viper.Get(key)
	hadValue := viper.IsSet(key)

	viper.Set(key, value)

	t.Cleanup(func() {
		if hadValue {
			viper.Set(key, oldValue)
		}
		// viper has no Unset, so a previously unset key stays set.
	})
}

// SetupTestCache points the response cache at a throwaway database so
// tests never touch ./cache.db. The previous cache location is restored
// when the test completes.
func SetupTestCache(t *testing.T) string {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "cache.db")
	prev := viper.GetString("cache.dbfile")
	viper.Set("cache.dbfile", dbPath)
	if err := cache.ResetGlobalCache(); err != nil {
		t.Fatalf("failed to reset cache: %v", err)
	}

	t.Cleanup(func() {
		viper.Set("cache.dbfile", prev)
		_ = cache.ResetGlobalCache()
	})

	return dbPath
}
