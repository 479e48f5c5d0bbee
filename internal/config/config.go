package config

import (
	"github.com/spf13/viper"
)

// Global configuration variables
var (
	// DBFile is the path to the catalog SQLite database
	DBFile string
	// Port is the HTTP listen port
	Port int
	// MigrationsDir is the directory holding ordered .sql migration scripts
	MigrationsDir string
	// SeedPaths are candidate JSON seed files, tried in order at bootstrap
	SeedPaths []string
	// DebugDB enables the /debug/db introspection endpoint
	DebugDB bool
	// CORSOrigins are the origins allowed to call the API from a browser
	CORSOrigins []string
)

// InitConfig loads the global configuration from viper.
func InitConfig() {
	viper.SetDefault("server.port", 3000)
	viper.SetDefault("database.file", "./data/books.db")
	viper.SetDefault("migrations.dir", "./migrations/sqlite")
	viper.SetDefault("seed.paths", []string{
		"./data/books.json",
		"./seeds/books.json",
		"./seeds/seed.json",
	})
	viper.SetDefault("debug.db", false)
	viper.SetDefault("cors.allowed_origins", []string{
		"http://localhost:*",
		"http://127.0.0.1:*",
	})

	DBFile = viper.GetString("database.file")
	Port = viper.GetInt("server.port")
	MigrationsDir = viper.GetString("migrations.dir")
	SeedPaths = viper.GetStringSlice("seed.paths")
	DebugDB = viper.GetBool("debug.db")
	CORSOrigins = viper.GetStringSlice("cors.allowed_origins")
}

// SetDBFile overrides the database path (used by CLI flags).
func SetDBFile(path string) {
	if path != "" {
		DBFile = path
	}
}

// SetPort overrides the HTTP port (used by CLI flags).
func SetPort(port int) {
	if port > 0 {
		Port = port
	}
}
