package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"opti-sql-sema/Expr"
	"opti-sql-sema/catalog"
	"opti-sql-sema/config"
	"opti-sql-sema/logger"
	"opti-sql-sema/service"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"gopkg.in/yaml.v3"
)

var version = "0.1.0"

// errRejected makes the process exit 1 without printing usage.
var errRejected = errors.New("expression rejected")

type app struct {
	cfgFile  string
	envFile  string
	catalogs []string

	cfg *config.Config
	log *logger.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errRejected) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "opti-sql-sema",
		Short: "Static type checking for SQL expressions",
		Long: `opti-sql-sema type checks SQL expression trees against a table catalog.

Check one expression document:
  opti-sql-sema check expr.yaml --catalog tables.yaml

Serve the gRPC type checker:
  opti-sql-sema --config sema.yaml serve`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Close()
			}
		},
	}
	rootCmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file path (.yaml)")
	rootCmd.PersistentFlags().StringVar(&a.envFile, "env", "", ".env file with SEMA_* overrides")
	rootCmd.PersistentFlags().StringSliceVar(&a.catalogs, "catalog", nil, "catalog source, local path or s3://bucket/key (repeatable)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "opti-sql-sema %s\n", version)
		},
	})
	rootCmd.AddCommand(a.checkCmd(), a.catalogCmd(), a.serveCmd())
	return rootCmd
}

// setup loads configuration in order: compiled defaults, --config, the
// --env file and SEMA_* variables, then --catalog flags appended to
// catalog.paths.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	config.Reset()
	if a.cfgFile != "" {
		if err := config.Decode(a.cfgFile); err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
	}
	// SEMA_* variables apply even without --env
	if err := config.LoadEnv(a.envFile); err != nil {
		return fmt.Errorf("error loading env: %w", err)
	}
	a.cfg = config.GetConfig()
	a.cfg.Catalog.Paths = append(a.cfg.Catalog.Paths, a.catalogs...)
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	log, err := logger.New(a.cfg.Log.Level, a.cfg.Log.Format, a.cfg.Log.Output)
	if err != nil {
		return fmt.Errorf("error initializing logger: %w", err)
	}
	a.log = log
	return nil
}

func (a *app) loadCatalog(ctx context.Context) (*catalog.ArrowCatalog, error) {
	var store catalog.ObjectStore
	for _, p := range a.cfg.Catalog.Paths {
		if !strings.HasPrefix(p, "s3://") {
			continue
		}
		osCfg := a.cfg.Catalog.ObjectStore
		s, err := catalog.NewObjectStore(osCfg.Provider, catalog.ObjectStoreOptions{
			Endpoint:  osCfg.Endpoint,
			Region:    osCfg.Region,
			AccessKey: osCfg.AccessKey,
			SecretKey: osCfg.SecretKey,
			UseSSL:    osCfg.UseSSL,
			MaxBytes:  a.cfg.MaxDownloadBytes(),
		})
		if err != nil {
			return nil, err
		}
		store = s
		break
	}
	cat, err := catalog.LoadAll(ctx, store, a.cfg.Catalog.Paths)
	if err != nil {
		return nil, err
	}
	a.log.Debug("catalog loaded", "sources", len(a.cfg.Catalog.Paths), "tables", cat.Len())
	return cat, nil
}

func (a *app) checkCmd() *cobra.Command {
	var (
		remote   string
		failFast bool
		uniform  bool
	)
	cmd := &cobra.Command{
		Use:   "check <expr.yaml>",
		Short: "Type check an expression document",
		Long: `Type check an expression document of the form

  expr:  {op: "+", left: {ident: r.a}, right: {double: 1.5}}
  scope: [{table: R, alias: r}]

Prints the result type, aggregate flag, referenced attributes, canonical form
and diagnostics. Exits 1 when the expression is rejected.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("fail-fast") {
				a.cfg.Checker.FailFast = failFast
			}
			if cmd.Flags().Changed("uniform") {
				a.cfg.Checker.UniformTraversal = uniform
			}

			var result map[string]any
			if remote != "" {
				result, err = a.checkRemote(cmd.Context(), remote, data)
			} else {
				result, err = a.checkLocal(cmd.Context(), data)
			}
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), result)
			if result["type"] == Expr.TypeError.String() {
				return errRejected
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&remote, "remote", "", "check against a running server at host:port")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "stop at the first rejected node")
	cmd.Flags().BoolVar(&uniform, "uniform", false, "detect aggregates and attributes under every operator")
	return cmd
}

func (a *app) checkLocal(ctx context.Context, data []byte) (map[string]any, error) {
	e, scope, err := Expr.NewDecoder(a.cfg.Checker.MaxDepth).DecodeYAML(data)
	if err != nil {
		return nil, err
	}
	cat, err := a.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	analysis := Expr.Analyze(e, cat, scope, Expr.Options{
		FailFast:         a.cfg.Checker.FailFast,
		UniformTraversal: a.cfg.Checker.UniformTraversal,
		Reporter:         Expr.LogReporter{Log: a.log},
	})
	return service.AnalysisToMap(analysis), nil
}

func (a *app) checkRemote(ctx context.Context, addr string, data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse expression document: %w", err)
	}
	if doc == nil {
		return nil, errors.New("empty expression document")
	}
	if _, ok := doc["options"]; !ok {
		doc["options"] = map[string]any{
			"fail_fast":         a.cfg.Checker.FailFast,
			"uniform_traversal": a.cfg.Checker.UniformTraversal,
		}
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return service.NewClient(conn).CheckDocument(ctx, doc)
}

// printResult writes the Check response shape as text.
func printResult(w io.Writer, r map[string]any) {
	fmt.Fprintf(w, "type:       %v\n", r["type"])
	fmt.Fprintf(w, "aggregate:  %v\n", r["aggregate"])
	fmt.Fprintf(w, "canonical:  %v\n", r["canonical"])
	attrs, _ := r["attributes"].([]any)
	names := make([]string, 0, len(attrs))
	for _, v := range attrs {
		m, _ := v.(map[string]any)
		names = append(names, fmt.Sprintf("%v.%v", m["alias"], m["column"]))
	}
	fmt.Fprintf(w, "attributes: [%s]\n", strings.Join(names, ", "))
	diags, _ := r["diagnostics"].([]any)
	for _, v := range diags {
		m, _ := v.(map[string]any)
		types, _ := m["types"].([]any)
		ts := make([]string, len(types))
		for i, t := range types {
			ts[i] = fmt.Sprint(t)
		}
		fmt.Fprintf(w, "ERROR: %v: %v (%s)\n", m["node"], m["message"], strings.Join(ts, ", "))
	}
}

func (a *app) catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the configured catalog",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "List tables, columns and their checker types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.loadCatalog(cmd.Context())
			if err != nil {
				return err
			}
			dumpCatalog(cmd.OutOrStdout(), cat)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "snapshot <out.cat>",
		Short: "Write the merged catalog as a binary snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.loadCatalog(cmd.Context())
			if err != nil {
				return err
			}
			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			if err := catalog.WriteSnapshot(f, cat); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			a.log.Info("snapshot written", "path", args[0], "tables", cat.Len())
			return nil
		},
	})
	return cmd
}

func dumpCatalog(w io.Writer, cat *catalog.ArrowCatalog) {
	for _, name := range cat.Tables() {
		schema, _ := cat.ArrowSchema(name)
		fmt.Fprintf(w, "%s\n", name)
		for _, f := range schema.Fields() {
			null := "not null"
			if f.Nullable {
				null = "null"
			}
			typ := Expr.FromDescriptor(catalog.ArrowType{DataType: f.Type})
			fmt.Fprintf(w, "  %-16s %-12s %-8s %s\n", f.Name, f.Type, typ, null)
		}
	}
}

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the gRPC type checker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.loadCatalog(cmd.Context())
			if err != nil {
				return err
			}
			a.log.Info("Starting opti-sql-sema",
				"version", version,
				"host", a.cfg.Server.Host,
				"port", a.cfg.Server.Port,
				"tables", cat.Len(),
			)
			srv, done, err := service.Start(a.cfg, cat, a.log)
			if err != nil {
				return err
			}
			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigs)
			select {
			case sig := <-sigs:
				a.log.Info("shutting down", "signal", sig.String())
				srv.Stop()
				<-done
			case <-done:
			}
			return nil
		},
	}
}
