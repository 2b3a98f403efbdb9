package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/suparena/docstore"
	"github.com/suparena/docstore/config"
	"github.com/suparena/docstore/datastore/ddb"
	"github.com/suparena/docstore/log"
	"github.com/suparena/docstore/storagemodels"
	"go.uber.org/zap"
)

const usage = `Usage: docctl [flags] COMMAND [command flags]

Commands:
  get      -id ID -pk PARTITION_KEY
  query    -pk PARTITION_KEY | -statement PARTIQL [-param VALUE ...] [-limit N]
  delete   -id ID -pk PARTITION_KEY
  version
`

var (
	flags   = flag.NewFlagSet("docctl", flag.ExitOnError)
	envFile = flags.String("env-file", ".env", "dotenv file to load before reading the environment")
	output  = flags.String("o", "json", "output format: json or yaml")
)

func main() {
	flags.Usage = func() { fmt.Fprint(flags.Output(), usage) }
	_ = flags.Parse(os.Args[1:])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, flags.Args(), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "docctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, w io.Writer) error {
	if len(args) < 1 {
		return fmt.Errorf("missing command\n\n%s", usage)
	}
	format, err := parseFormat(*output)
	if err != nil {
		return err
	}

	command, rest := args[0], args[1:]
	if command == "version" {
		return render(w, format, docstore.GetVersionInfo())
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	logger, err := log.NewLogger(cfg.Env)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	store, err := ddb.NewFromConfig(ctx, cfg, rawSchema(), ddb.WithLogger(logger.Named("docctl")))
	if err != nil {
		return err
	}
	logger.Debug("connected", zap.String("table", cfg.Store.Table), zap.String("region", cfg.AWS.Region))

	switch command {
	case "get":
		id, pk, err := parseKey("get", rest)
		if err != nil {
			return err
		}
		doc, err := store.Get(ctx, id, pk)
		if err != nil {
			return err
		}
		return render(w, format, *doc)

	case "query":
		q, limit, err := parseQuery(rest)
		if err != nil {
			return err
		}
		docs, err := collect(ctx, store, q, limit)
		if err != nil {
			return err
		}
		return render(w, format, docs)

	case "delete":
		id, pk, err := parseKey("delete", rest)
		if err != nil {
			return err
		}
		existed, err := store.Delete(ctx, id, pk)
		if err != nil {
			return err
		}
		return render(w, format, map[string]any{
			storagemodels.IDKey:           id,
			storagemodels.PartitionKeyKey: pk,
			"existed":                     existed,
		})
	}
	return fmt.Errorf("unknown command %q\n\n%s", command, usage)
}

func parseKey(command string, args []string) (id, pk string, err error) {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.StringVar(&id, "id", "", "document id")
	fs.StringVar(&pk, "pk", "", "resolved partition key")
	if err := fs.Parse(args); err != nil {
		return "", "", err
	}
	if id == "" || pk == "" {
		return "", "", fmt.Errorf("%s needs -id and -pk", command)
	}
	return id, pk, nil
}

// params collects repeated -param flags.
type params []any

func (p *params) String() string { return fmt.Sprint(*p) }

func (p *params) Set(v string) error {
	*p = append(*p, v)
	return nil
}

func parseQuery(args []string) (*storagemodels.PagedQuery, int, error) {
	var (
		q     storagemodels.PagedQuery
		ps    params
		limit int
	)
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	fs.StringVar(&q.PartitionKey, "pk", "", "partition to list")
	fs.StringVar(&q.Statement, "statement", "", "PartiQL statement")
	fs.Var(&ps, "param", "statement parameter, repeatable")
	fs.IntVar(&limit, "limit", 0, "stop after this many documents (0 for all)")
	pageSize := fs.Int("page-size", 100, "documents per request")
	if err := fs.Parse(args); err != nil {
		return nil, 0, err
	}
	if q.PartitionKey == "" && q.Statement == "" {
		return nil, 0, fmt.Errorf("query needs -pk or -statement")
	}
	q.Parameters = ps
	q.PageSize = int32(*pageSize)
	return &q, limit, nil
}

func collect(ctx context.Context, store *ddb.DynamodbDataStore[rawDocument], q *storagemodels.PagedQuery, limit int) ([]rawDocument, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	docs := make([]rawDocument, 0)
	for res := range store.Stream(ctx, q, storagemodels.WithPageSize(q.PageSize)) {
		if res.Error != nil {
			return nil, res.Error
		}
		docs = append(docs, res.Item)
		if limit > 0 && len(docs) >= limit {
			break
		}
	}
	return docs, nil
}

func parseFormat(s string) (string, error) {
	switch f := strings.ToLower(s); f {
	case "json", "yaml":
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q", s)
}
