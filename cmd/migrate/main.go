package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/qrseal/qrseal-backend/internal/app"
	"github.com/qrseal/qrseal-backend/pkg/migrate"
)

const usage = `usage: migrate -cmd <up|down|status|version|create|validate> [flags]`

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

func main() {
	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "up|down|status|version|create|validate")
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "migrations directory")
	flag.StringVar(&opts.name, "name", "", "slug for -cmd=create")
	flag.StringVar(&opts.version, "version", "", "target YYYYMMDDHHMMSS for -cmd=version")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if handled, err := offline(opts); handled {
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	app.Main("migrate", func(ctx context.Context, rt *app.Runtime) error {
		return opts.apply(ctx, rt)
	})
}

// offline runs the commands that only touch the migrations directory.
func offline(opts options) (bool, error) {
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return true, errors.New("-name is required for create")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err == nil {
			fmt.Println(path)
		}
		return true, err
	case "validate":
		err := migrate.ValidateDir(opts.dir)
		if err == nil {
			fmt.Println("ok")
		}
		return true, err
	}
	return false, nil
}

func (o options) apply(ctx context.Context, rt *app.Runtime) error {
	sqlite := rt.Config.FeatureFlags.UseSQLite
	if o.cmd == "up" {
		return migrate.Up(ctx, rt.DB, o.dir, sqlite, rt.Logger)
	}
	if sqlite {
		return fmt.Errorf("-cmd=%s needs postgres; sqlite only supports up", o.cmd)
	}
	runner, err := migrate.OpenRunner(rt.DB, o.dir, rt.Logger)
	if err != nil {
		return err
	}
	switch o.cmd {
	case "down":
		return runner.Down(ctx)
	case "status":
		return runner.Status(ctx, os.Stdout)
	case "version":
		if o.version == "" {
			return errors.New("-version is required for -cmd=version")
		}
		return runner.To(ctx, o.version)
	}
	return fmt.Errorf("unknown -cmd %q\n%s", o.cmd, usage)
}
