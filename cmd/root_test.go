package cmd

import (
	"os"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"

	"github.com/lepinkainen/tome/internal/config"
	"github.com/lepinkainen/tome/internal/testutil"
)

func resetCmdState(t *testing.T) {
	testutil.ResetConfig(t)
	config.InitConfig()
}

func parseCLI(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()

	originalArgs := os.Args
	os.Args = append([]string{"tome"}, args...)
	t.Cleanup(func() { os.Args = originalArgs })

	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("tome"),
		kong.Description("A personal book catalog with external metadata enrichment."),
		kong.UsageOnError(),
		kong.Exit(func(code int) {
			t.Fatalf("unexpected Kong exit %d", code)
		}),
	)

	return cli, ctx
}

func TestUpdateGlobalConfig(t *testing.T) {
	resetCmdState(t)

	cli := &CLI{
		DBFile:      "/tmp/books.db",
		CacheDBFile: "/tmp/cache.db",
		CacheTTL:    "12h",
		DebugDB:     true,
	}

	updateGlobalConfig(cli)

	assert.Equal(t, "/tmp/books.db", config.DBFile)
	assert.True(t, config.DebugDB)
	assert.Equal(t, "/tmp/cache.db", viper.GetString("cache.dbfile"))
	assert.Equal(t, "12h", viper.GetString("cache.ttl"))
}

func TestUpdateGlobalConfigKeepsDefaults(t *testing.T) {
	resetCmdState(t)

	cli := &CLI{CacheDBFile: "./cache.db", CacheTTL: "720h"}
	updateGlobalConfig(cli)

	assert.Equal(t, "./data/books.db", config.DBFile, "empty flag leaves the configured path")
	assert.False(t, config.DebugDB)
}

func TestServeCommandParsing(t *testing.T) {
	resetCmdState(t)

	cli, ctx := parseCLI(t, "serve", "-p", "8080")

	assert.Equal(t, "serve", ctx.Command())
	assert.Equal(t, 8080, cli.Serve.Port)
}

func TestEnrichCommandParsing(t *testing.T) {
	resetCmdState(t)

	_, ctx := parseCLI(t, "enrich")
	assert.Equal(t, "enrich", ctx.Command())
}

func TestGlobalFlagsParsing(t *testing.T) {
	resetCmdState(t)

	cli, _ := parseCLI(t, "--db-file", "/tmp/books.db", "--debug-db", "serve")

	assert.Equal(t, "/tmp/books.db", cli.DBFile)
	assert.True(t, cli.DebugDB)
	assert.Equal(t, "./cache.db", cli.CacheDBFile, "flag default applies")
}
