package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/marmos91/fileaccess/internal/logger"
	"github.com/marmos91/fileaccess/pkg/config"
	"github.com/marmos91/fileaccess/pkg/fileset"
	"github.com/marmos91/fileaccess/pkg/share"
)

// parseArgs parses fs and checks that exactly n positional arguments remain.
func parseArgs(fs *flag.FlagSet, args []string, n int, synopsis string) ([]string, error) {
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: fileaccess %s %s\n", fs.Name(), synopsis)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != n {
		fs.Usage()
		return nil, fmt.Errorf("expected %d arguments, got %d", n, fs.NArg())
	}
	return fs.Args(), nil
}

// withShare opens ref, runs fn and closes the share again.
func (a *app) withShare(ctx context.Context, ref string, fn func(share.Share) error) error {
	s, err := a.factory.OpenShare(ctx, a.cfg, ref)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Warn("Failed to close share %s: %v", s.URLBase(), err)
		}
	}()
	logger.Debug("Opened share %s", s.URLBase())
	return fn(s)
}

func cmdList(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("ls", flag.ContinueOnError)
	long := fs.Bool("l", false, "Show mode, owner, size and modification time")
	pos, err := parseArgs(fs, args, 2, "[-l] <share> <path>")
	if err != nil {
		return err
	}

	return a.withShare(ctx, pos[0], func(s share.Share) error {
		if !*long {
			names, err := s.ListDirectoryContentNames(ctx, pos[1], share.AllKinds)
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		}

		entries, err := s.ListDirectoryContent(ctx, pos[1], share.AllKinds)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, e := range entries {
			size, mtime := "-", "-"
			if e.Size != nil {
				size = fmt.Sprint(*e.Size)
			}
			if e.ModTimeMillis != nil {
				mtime = time.UnixMilli(*e.ModTimeMillis).Format(time.DateTime)
			}
			fmt.Fprintf(w, "%s\t%04o\t%d:%d\t%s\t%s\t%s\n", e.Kind, e.Mode, e.UID, e.GID, size, mtime, e.Name)
		}
		return w.Flush()
	})
}

func cmdTree(ctx context.Context, a *app, args []string) error {
	pos, err := parseArgs(flag.NewFlagSet("tree", flag.ContinueOnError), args, 2, "<share> <path>")
	if err != nil {
		return err
	}
	return a.withShare(ctx, pos[0], func(s share.Share) error {
		dirs, err := s.ListAllDirectoriesRecursively(ctx, pos[1])
		if err != nil {
			return err
		}
		for _, d := range dirs {
			fmt.Println(d)
		}
		return nil
	})
}

func cmdGet(ctx context.Context, a *app, args []string) error {
	pos, err := parseArgs(flag.NewFlagSet("get", flag.ContinueOnError), args, 3, "<share> <remote> <local>")
	if err != nil {
		return err
	}
	return a.withShare(ctx, pos[0], func(s share.Share) error {
		return share.DownloadFile(ctx, s, pos[1], pos[2], 0o644)
	})
}

func cmdPut(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("put", flag.ContinueOnError)
	removeLocal := fs.Bool("rm", false, "Delete the local file after a successful upload")
	pos, err := parseArgs(fs, args, 3, "[-rm] <share> <local> <remote>")
	if err != nil {
		return err
	}
	return a.withShare(ctx, pos[0], func(s share.Share) error {
		return s.UploadLocalFile(ctx, pos[1], pos[2], *removeLocal)
	})
}

func cmdMkdir(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("mkdir", flag.ContinueOnError)
	parents := fs.Bool("p", false, "Create missing parents, no error if the directory exists")
	pos, err := parseArgs(fs, args, 2, "[-p] <share> <path>")
	if err != nil {
		return err
	}
	return a.withShare(ctx, pos[0], func(s share.Share) error {
		if !*parents {
			return s.CreateDirectory(ctx, pos[1])
		}
		created, err := s.EnsureDirectoryExists(ctx, pos[1])
		if err != nil {
			return err
		}
		if !created {
			logger.Info("Directory %s already exists", pos[1])
		}
		return nil
	})
}

func cmdRemove(ctx context.Context, a *app, args []string) error {
	pos, err := parseArgs(flag.NewFlagSet("rm", flag.ContinueOnError), args, 2, "<share> <path>")
	if err != nil {
		return err
	}
	return a.withShare(ctx, pos[0], func(s share.Share) error {
		return s.DeleteFile(ctx, pos[1])
	})
}

func cmdRmdir(ctx context.Context, a *app, args []string) error {
	pos, err := parseArgs(flag.NewFlagSet("rmdir", flag.ContinueOnError), args, 2, "<share> <path>")
	if err != nil {
		return err
	}
	return a.withShare(ctx, pos[0], func(s share.Share) error {
		return s.DeleteEmptyDirectory(ctx, pos[1])
	})
}

func cmdSpeedTest(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("speedtest", flag.ContinueOnError)
	numFiles := fs.Int("n", a.cfg.SpeedTest.NumFiles, "Number of files")
	fileSize := fs.Int("size", a.cfg.SpeedTest.FileSize, "Size of each file in bytes")
	pos, err := parseArgs(fs, args, 2, "[-n N] [-size B] <share> <dir>")
	if err != nil {
		return err
	}

	return a.withShare(ctx, pos[0], func(s share.Share) error {
		logger.Info("Speed test on %s: %d files of %d bytes", s.URLBase(), *numFiles, *fileSize)
		res, err := s.PerformSpeedTest(ctx, pos[1], *numFiles, *fileSize)
		if err != nil {
			return err
		}
		fmt.Printf("%s (%d files, %d bytes each)\n", res.URLBase, res.NumFiles, res.FileSize)
		fmt.Printf("  write:  %8.3f ms/file\n", res.AvgWriteMs())
		fmt.Printf("  read:   %8.3f ms/file\n", res.AvgReadMs())
		fmt.Printf("  delete: %8.3f ms/file\n", res.AvgDeleteMs())
		return nil
	})
}

func cmdIndex(ctx context.Context, a *app, args []string) error {
	pos, err := parseArgs(flag.NewFlagSet("index", flag.ContinueOnError), args, 3, "<share> <root> <name>")
	if err != nil {
		return err
	}
	return a.withShare(ctx, pos[0], func(s share.Share) error {
		n, err := fileset.Publish(ctx, s, pos[1], pos[2])
		if err != nil {
			return err
		}
		fmt.Printf("%d files indexed into %s\n", n, fileset.ManifestPath(pos[1], pos[2]))
		return nil
	})
}

func cmdFileSet(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("fileset", flag.ContinueOnError)
	prefix := fs.String("prefix", "", "Only files whose relative path starts with this prefix")
	glob := fs.String("glob", "", "Only files matching this pattern (e.g. \"**/*.jpg\")")
	dirs := fs.Bool("dirs", false, "Print the directory list instead of staging files")
	pos, err := parseArgs(fs, args, 3, "[-prefix P] [-glob G] [-dirs] <share> <root> <name>")
	if err != nil {
		return err
	}

	var filters []fileset.PathFilter
	if *prefix != "" {
		filters = append(filters, fileset.PrefixFilter{Prefix: *prefix})
	}
	if *glob != "" {
		g, err := fileset.NewGlobFilter(*glob)
		if err != nil {
			return err
		}
		filters = append(filters, g)
	}
	var filter fileset.PathFilter
	if len(filters) > 0 {
		filter = fileset.AllOf(filters...)
	}

	return a.withShare(ctx, pos[0], func(s share.Share) error {
		opts := fileset.OpenOptions{RootDir: pos[1], Name: pos[2], Filter: filter}
		if a.cfg.Staging.Dir != "" && !s.IsLocal() {
			area, err := a.cfg.Staging.NewArea()
			if err != nil {
				return err
			}
			opts.Staging = area
		}

		set, err := fileset.Open(ctx, s, opts)
		if err != nil {
			return err
		}
		defer set.Close()

		if *dirs {
			for d := range set.DirPaths() {
				fmt.Println(d.RelPath)
			}
			return nil
		}

		for f, err := range set.Files(ctx, nil) {
			if err != nil {
				return err
			}
			fmt.Printf("[%d/%d] %s %d %s\n", f.Index+1, f.Total, f.RelPath, f.Size, f.ModTime.UTC().Format(time.RFC3339))
			if f.Ephemeral {
				if err := set.Release(f); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func cmdShares(ctx context.Context, a *app, args []string) error {
	pos, err := parseArgs(flag.NewFlagSet("shares", flag.ContinueOnError), args, 1, "<smb-url>")
	if err != nil {
		return err
	}
	infos, err := a.factory.ListSMBShares(ctx, pos[0])
	if err != nil {
		return err
	}
	for _, info := range infos {
		kind := "disk"
		if info.IsSpecial() {
			kind = "special"
		}
		fmt.Printf("%s\t%s\n", info.Name, kind)
	}
	return nil
}

func cmdInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	force := fs.Bool("force", false, "Overwrite an existing config file")
	path := fs.String("path", "", "Write to this path instead of the default location")
	if _, err := parseArgs(fs, args, 0, "[-force] [-path FILE]"); err != nil {
		return err
	}

	if *path != "" {
		if err := config.InitConfigToPath(*path, *force); err != nil {
			return err
		}
		fmt.Printf("Configuration written to %s\n", *path)
		return nil
	}

	written, err := config.InitConfig(*force)
	if err != nil {
		return err
	}
	fmt.Printf("Configuration written to %s\n", written)
	return nil
}
