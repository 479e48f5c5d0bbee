package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestInitConfigDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	InitConfig()

	assert.Equal(t, 3000, Port)
	assert.Equal(t, "./data/books.db", DBFile)
	assert.Equal(t, "./migrations/sqlite", MigrationsDir)
	assert.Len(t, SeedPaths, 3)
	assert.False(t, DebugDB)
	assert.Equal(t, []string{"http://localhost:*", "http://127.0.0.1:*"}, CORSOrigins)
}

func TestSetDBFile(t *testing.T) {
	original := DBFile
	t.Cleanup(func() { DBFile = original })

	SetDBFile("/tmp/other.db")
	assert.Equal(t, "/tmp/other.db", DBFile)

	// Empty value keeps the current path
	SetDBFile("")
	assert.Equal(t, "/tmp/other.db", DBFile)
}

func TestSetPort(t *testing.T) {
	original := Port
	t.Cleanup(func() { Port = original })

	SetPort(8080)
	assert.Equal(t, 8080, Port)

	SetPort(0)
	assert.Equal(t, 8080, Port)
}
