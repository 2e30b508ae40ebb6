package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"runtime"
	"strings"

	"go.uber.org/zap"

	"corvusDB/config"
	"corvusDB/engine"
	"corvusDB/errors"
	"corvusDB/logging"
)

var (
	// Version is set during build time
	Version = "dev"
	// GitCommit is set during build time
	GitCommit = "unknown"
)

func printVersion() {
	fmt.Printf("CorvusDB %s\n", Version)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Printf("Go Version: %s\n", runtime.Version())
	fmt.Printf("Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func main() {
	var (
		configPath  = flag.String("config", "", "path to YAML configuration file")
		dbPath      = flag.String("db", "", "database file (overrides data_dir, :memory: for in-memory)")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		printVersion()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	path := *dbPath
	if path == "" {
		path = cfg.Database.DataDir + "/corvus.db"
	}

	conn, err := engine.Open(path, engine.OptionsFromConfig(cfg, log))
	if err != nil {
		log.Error("failed to open database", zap.String("path", path), zap.Error(err))
		os.Exit(1)
	}
	defer conn.Close()

	log.Info("database open",
		zap.String("path", path),
		zap.Duration("busy_timeout", conn.BusyTimeout()))

	if err := repl(conn); err != nil {
		log.Error("shell failed", zap.Error(err))
		os.Exit(1)
	}
}

// repl reads statements from stdin, one per line, and prints results.
func repl(conn *engine.Connection) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Print("corvus> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == ".quit" || line == ".exit":
			return nil
		default:
			runLine(conn, line)
		}
		fmt.Print("corvus> ")
	}
	return scanner.Err()
}

func runLine(conn *engine.Connection, line string) {
	stmt, err := conn.Prepare(line)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}

	if stmt.ReadOnly() {
		rows, err := stmt.Query()
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Println(strings.Join(rows.Columns(), " | "))
		for rows.Next() {
			cells := make([]string, 0, len(rows.Columns()))
			for _, v := range rows.Values() {
				cells = append(cells, v.String())
			}
			fmt.Println(strings.Join(cells, " | "))
		}
		fmt.Printf("(%d rows)\n", rows.Len())
		return
	}

	res, err := stmt.Exec()
	if err != nil {
		if errors.IsBusy(err) {
			fmt.Println("database is busy, try again")
			return
		}
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("ok (%d rows affected)\n", res.RowsAffected)
}
