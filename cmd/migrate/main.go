// Command migrate applies or rolls back the KeyStore's SQLite schema
// out-of-band, for operators who don't want migrations running
// implicitly on every server start.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"

	"github.com/openaicompat/bedrock-gateway/internal/store/sqlite"
)

func main() {
	dsn := flag.String("dsn", "file:gateway.db?_busy_timeout=5000&_journal_mode=WAL", "sqlite DSN")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [-dsn DSN] up|down|version\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	m, err := sqlite.Migrator(*dsn)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open migrator:", err)
		os.Exit(1)
	}

	switch flag.Arg(0) {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "version":
		version, dirty, verr := m.Version()
		if verr != nil {
			err = verr
			break
		}
		fmt.Printf("version=%d dirty=%v\n", version, dirty)
		return
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}
