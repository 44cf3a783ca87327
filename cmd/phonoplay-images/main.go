// Command phonoplay-images manages the word pictures of a phonoplay
// deployment. It reads the same configuration file as the server and works
// against its images backend.
//
// Usage:
//
//	phonoplay-images [-config phonoplay.yaml] list [prefix]
//	phonoplay-images [-config phonoplay.yaml] ensure
//	phonoplay-images [-config phonoplay.yaml] upload [-prefix words] [-j 8] <dir>
//	phonoplay-images [-config phonoplay.yaml] url <name>...
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/MrWong99/phonoplay/internal/app"
	"github.com/MrWong99/phonoplay/internal/config"
	"github.com/MrWong99/phonoplay/internal/imagestore"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("phonoplay-images", flag.ContinueOnError)
	configPath := fs.String("config", "phonoplay.yaml", "path to the YAML configuration file")
	verbose := fs.Bool("v", false, "enable debug logging")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: phonoplay-images [flags] list|ensure|upload|url [args]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "phonoplay-images: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "phonoplay-images: %v\n", err)
		}
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeFn, err := app.OpenImageStore(ctx, cfg.Images)
	if err != nil {
		fmt.Fprintf(os.Stderr, "phonoplay-images: %v\n", err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}

	cmd, cmdArgs := fs.Arg(0), fs.Args()[1:]
	if err := dispatch(ctx, cmd, cmdArgs, store, cfg.Images, out); err != nil {
		fmt.Fprintf(os.Stderr, "phonoplay-images: %s: %v\n", cmd, err)
		return 1
	}
	return 0
}

var errUsage = errors.New("invalid arguments")

func dispatch(ctx context.Context, cmd string, args []string, store imagestore.Store, ic config.ImagesConfig, out io.Writer) error {
	switch cmd {
	case "list":
		return list(ctx, store, args, out)
	case "ensure":
		return ensure(ctx, store, ic, out)
	case "upload":
		return upload(ctx, store, args, out)
	case "url":
		if len(args) == 0 {
			return errUsage
		}
		for _, name := range args {
			fmt.Fprintln(out, store.URL(imagestore.CleanName(name)))
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func list(ctx context.Context, store imagestore.Store, args []string, out io.Writer) error {
	var prefix string
	if len(args) > 0 {
		prefix = args[0]
	}
	objs, err := store.List(ctx, prefix)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSIZE\tTYPE\tUPDATED")
	for _, o := range objs {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", o.Name, o.Size, o.ContentType, o.Updated.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func ensure(ctx context.Context, store imagestore.Store, ic config.ImagesConfig, out io.Writer) error {
	gcs, ok := store.(*imagestore.GCS)
	if !ok {
		return fmt.Errorf("images.backend %q has no bucket to create", ic.Backend)
	}
	created, err := gcs.Ensure(ctx, ic.ProjectID)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(out, "created bucket %s\n", gcs.Bucket())
	} else {
		fmt.Fprintf(out, "bucket %s already exists\n", gcs.Bucket())
	}
	return nil
}

func upload(ctx context.Context, store imagestore.Store, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	prefix := fs.String("prefix", "words", "object name prefix")
	jobs := fs.Int("j", imagestore.DefaultUploadConcurrency, "parallel uploads")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errUsage
	}
	n, err := imagestore.UploadDir(ctx, store, fs.Arg(0), *prefix, *jobs)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "uploaded %d images\n", n)
	return nil
}
