package main

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Blackdeer1524/RelDB/src"
	"github.com/Blackdeer1524/RelDB/src/bufferpool"
	"github.com/Blackdeer1524/RelDB/src/pkg/common"
	"github.com/Blackdeer1524/RelDB/src/pkg/utils"
	"github.com/Blackdeer1524/RelDB/src/storage/disk"
	"github.com/Blackdeer1524/RelDB/src/storage/index/bptree"
)

// treeHeaderPageID is the first page the pool hands out on a fresh file:
// page 0 is the disk manager's file header, page 1 the index header.
const treeHeaderPageID common.PageID = 1

type env struct {
	cfg common.Config
	log src.Logger

	dm   *disk.Manager
	pool *bufferpool.Manager
	reg  *prometheus.Registry
}

func openEnv(path string, format bool) (*env, error) {
	_ = godotenv.Load()

	cfg, err := common.LoadConfig()
	if err != nil {
		return nil, err
	}

	var log src.Logger
	if cfg.Environment == common.EnvDev {
		log = utils.Must(zap.NewDevelopment()).Sugar()
	} else {
		log = utils.Must(zap.NewProduction()).Sugar()
	}

	fs := afero.NewOsFs()
	if path == "" {
		path = filepath.Join(cfg.DataDir, "reldb.data")
		if err := fs.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir %s: %w", cfg.DataDir, err)
		}
	}

	dm, err := disk.New(fs, path, log)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	pool := bufferpool.New(
		cfg.PoolSize,
		cfg.ReplacerK,
		dm,
		bufferpool.WithLogger(log),
		bufferpool.WithMetrics(bufferpool.NewMetrics(reg)),
		bufferpool.WithFirstPageID(dm.PageCount()),
	)

	e := &env{cfg: cfg, log: log, dm: dm, pool: pool, reg: reg}

	if format {
		headerGuard, err := pool.NewPageGuarded()
		if err != nil {
			return nil, err
		}
		if headerGuard.PageID() != treeHeaderPageID {
			return nil, fmt.Errorf(
				"refusing to format %s: expected fresh file, first page id is %d",
				path, headerGuard.PageID(),
			)
		}
		headerGuard.Drop()
	}
	return e, nil
}

func (e *env) close() error {
	if err := e.pool.FlushAllPages(); err != nil {
		return err
	}
	if err := e.dm.Sync(); err != nil {
		return err
	}
	return e.dm.Close()
}

func (e *env) tree(format bool) (*bptree.BPlusTree, error) {
	if format {
		return bptree.New(
			e.pool, treeHeaderPageID,
			e.cfg.LeafMaxSize, e.cfg.InternalMaxSize,
			bptree.WithLogger(e.log),
		)
	}
	return bptree.Open(
		e.pool, treeHeaderPageID,
		e.cfg.LeafMaxSize, e.cfg.InternalMaxSize,
		bptree.WithLogger(e.log),
	), nil
}

func newSeedCmd() *cobra.Command {
	var (
		file    string
		count   int64
		workers int
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a data file and bulk-load it with sequential keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(file, true)
			if err != nil {
				return err
			}

			tree, err := e.tree(true)
			if err != nil {
				return err
			}

			keys := rand.Perm(int(count))

			var g errgroup.Group
			g.SetLimit(workers)
			for _, k := range keys {
				key := int64(k)
				g.Go(func() error {
					rid := common.RID{
						PageID:  common.PageID(key / 100),
						SlotNum: uint32(key % 100),
					}
					if _, err := tree.Insert(key, rid); err != nil {
						return err
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			e.log.Infof("seeded %d keys into %s", count, file)
			return e.close()
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "data file to create (default $RELDB_DATA_DIR/reldb.data)")
	cmd.Flags().Int64Var(&count, "count", 10_000, "number of keys to insert")
	cmd.Flags().IntVar(&workers, "workers", 8, "concurrent inserters")
	return cmd
}

func newInspectCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Dump the tree structure of a data file",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(file, false)
			if err != nil {
				return err
			}

			tree, err := e.tree(false)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), tree.String())
			return e.close()
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "data file to inspect (default $RELDB_DATA_DIR/reldb.data)")
	return cmd
}

func newStatsCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Scan a data file and report pool counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(file, false)
			if err != nil {
				return err
			}

			tree, err := e.tree(false)
			if err != nil {
				return err
			}

			it, err := tree.Begin()
			if err != nil {
				return err
			}
			var entries int64
			for !it.IsEnd() {
				entries++
				if err := it.Next(); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "db id:   %s\n", e.dm.DatabaseID())
			fmt.Fprintf(out, "pages:   %d\n", e.dm.PageCount())
			fmt.Fprintf(out, "entries: %d\n", entries)

			families, err := e.reg.Gather()
			if err != nil {
				return err
			}
			for _, mf := range families {
				for _, m := range mf.GetMetric() {
					fmt.Fprintf(out, "%s: %.0f\n", mf.GetName(), m.GetCounter().GetValue())
				}
			}
			return e.close()
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "data file to scan (default $RELDB_DATA_DIR/reldb.data)")
	return cmd
}

func main() {
	root := &cobra.Command{
		Use:           "reldb",
		Short:         "reldb storage core tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newSeedCmd(), newInspectCmd(), newStatsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
