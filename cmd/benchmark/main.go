package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/url"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/facet"
	"github.com/lychee-technology/facet/factory"
	"github.com/lychee-technology/facet/internal"
	"golang.org/x/sync/errgroup"
)

type options struct {
	host         string
	port         int
	database     string
	user         string
	password     string
	sslMode      string
	storage      string
	pushdown     bool
	items        int
	runs         int
	workers      int
	seed         int64
	seedProvided bool
}

// dataset is the seeded owner with the ids the queries refer to.
type dataset struct {
	owner      uuid.UUID
	collection uuid.UUID
	fields     map[string]*facet.Field
	categories []*facet.Tag
	labels     []*facet.Tag
}

type query struct {
	name string
	req  facet.FilterRequest
}

var (
	statuses = []string{"todo", "reading", "done", "abandoned"}
	formats  = []string{"paper", "ebook", "audio"}
)

func main() {
	log.SetFlags(0)

	opts := parseFlags()
	ctx := context.Background()

	config := facet.DefaultConfig()
	config.Filter.EnablePushdown = opts.pushdown

	manager, closeFn, err := openManager(ctx, opts, config)
	if err != nil {
		log.Fatalf("failed to open field manager: %v", err)
	}
	defer closeFn()

	if !opts.seedProvided {
		log.Printf("[info] Using random seed %d", opts.seed)
	}
	random := rand.New(rand.NewSource(opts.seed))

	start := time.Now()
	ds, err := seedDefinitions(ctx, manager)
	if err != nil {
		log.Fatalf("failed to create definitions: %v", err)
	}
	if err := seedItems(ctx, manager, ds, opts.items, opts.workers, random); err != nil {
		log.Fatalf("failed to seed items: %v", err)
	}
	log.Printf("[info] Seeded %d items in %s", opts.items, time.Since(start).Round(time.Millisecond))

	log.Printf("[info] Running %d iterations per query (storage=%s, pushdown=%t)", opts.runs, opts.storage, opts.pushdown)
	for _, q := range buildQueries(ds) {
		latencies := make([]time.Duration, 0, opts.runs)
		var matches int
		for i := 0; i < opts.runs; i++ {
			began := time.Now()
			res, err := manager.FilterItems(ctx, ds.owner, &q.req)
			if err != nil {
				log.Fatalf("query %s failed: %v", q.name, err)
			}
			latencies = append(latencies, time.Since(began))
			matches = res.Total
		}
		p50, p95, worst := summarize(latencies)
		log.Printf("  - %-22s matches=%-7d p50=%-10s p95=%-10s max=%s", q.name, matches, p50, p95, worst)
	}
}

func parseFlags() options {
	var opts options

	flag.StringVar(&opts.host, "db-host", getenvDefault("DB_HOST", "localhost"), "database host")
	flag.IntVar(&opts.port, "db-port", getenvDefaultInt("DB_PORT", 5432), "database port")
	flag.StringVar(&opts.database, "db-name", getenvDefault("DB_NAME", "facet"), "database name")
	flag.StringVar(&opts.user, "db-user", getenvDefault("DB_USER", "postgres"), "database user")
	flag.StringVar(&opts.password, "db-password", getenvDefault("DB_PASSWORD", "postgres"), "database password")
	flag.StringVar(&opts.sslMode, "db-ssl-mode", getenvDefault("DB_SSL_MODE", "disable"), "database sslmode")
	flag.StringVar(&opts.storage, "storage", "memory", "storage backend: memory or postgres")
	flag.BoolVar(&opts.pushdown, "pushdown", false, "evaluate filters in SQL when the backend supports it")
	flag.IntVar(&opts.items, "items", 10000, "number of items to seed")
	flag.IntVar(&opts.runs, "runs", 20, "iterations per query")
	flag.IntVar(&opts.workers, "workers", 8, "concurrent seeding workers")
	seed := flag.Int64("seed", 0, "random seed (0 uses current time)")

	flag.Parse()

	if *seed == 0 {
		opts.seed = time.Now().UnixNano()
		opts.seedProvided = false
	} else {
		opts.seed = *seed
		opts.seedProvided = true
	}

	if opts.items < 0 || opts.runs < 1 {
		log.Fatal("items must be non-negative and runs positive")
	}
	if opts.workers < 1 {
		opts.workers = 1
	}

	return opts
}

func openManager(ctx context.Context, opts options, config *facet.Config) (facet.FieldManager, func(), error) {
	switch opts.storage {
	case "memory":
		m, err := factory.NewInMemoryFieldManager(config)
		return m, func() {}, err
	case "postgres":
	default:
		return nil, nil, fmt.Errorf("unknown storage %q", opts.storage)
	}

	pool, err := pgxpool.New(ctx, buildConnString(opts))
	if err != nil {
		return nil, nil, fmt.Errorf("create connection pool: %w", err)
	}
	for i, stmt := range internal.SchemaStatements(config.Database.TableNames) {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("apply statement %d: %w", i+1, err)
		}
	}
	m, err := factory.NewFieldManagerWithConfig(config, pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return m, pool.Close, nil
}

func seedDefinitions(ctx context.Context, m facet.FieldManager) (*dataset, error) {
	ds := &dataset{owner: uuid.New(), fields: make(map[string]*facet.Field)}

	defs := []facet.CreateFieldRequest{
		{Name: "Notes", Type: facet.FieldTypeText},
		{Name: "Rating", Type: facet.FieldTypeRating, Config: facet.FieldConfig{Rating: &facet.RatingConfig{Max: 5}}},
		{Name: "Status", Type: facet.FieldTypeSelect, Config: facet.FieldConfig{Select: &facet.SelectConfig{Options: statuses}}},
		{Name: "Format", Type: facet.FieldTypeSelect, Config: facet.FieldConfig{Select: &facet.SelectConfig{Options: formats}}},
		{Name: "Pages", Type: facet.FieldTypeNumber},
		{Name: "Finished", Type: facet.FieldTypeBoolean},
	}
	for i := range defs {
		f, err := m.CreateField(ctx, ds.owner, &defs[i])
		if err != nil {
			return nil, fmt.Errorf("create field %s: %w", defs[i].Name, err)
		}
		ds.fields[f.Name] = f
	}

	base, err := m.CreateSchema(ctx, ds.owner, "Base", []uuid.UUID{ds.fields["Notes"].ID, ds.fields["Status"].ID})
	if err != nil {
		return nil, err
	}
	coll, err := m.CreateCollection(ctx, ds.owner, "Benchmark", &base.ID)
	if err != nil {
		return nil, err
	}
	ds.collection = coll.ID

	categories := map[string][]string{
		"Book":    {"Rating", "Format", "Pages"},
		"Article": {"Rating", "Finished"},
		"Video":   {"Finished"},
	}
	for _, name := range []string{"Book", "Article", "Video"} {
		ids := make([]uuid.UUID, 0, len(categories[name]))
		for _, field := range categories[name] {
			ids = append(ids, ds.fields[field].ID)
		}
		schema, err := m.CreateSchema(ctx, ds.owner, name, ids)
		if err != nil {
			return nil, err
		}
		tag, err := m.CreateTag(ctx, ds.owner, &facet.CreateTagRequest{Name: name, IsCategory: true, SchemaID: &schema.ID})
		if err != nil {
			return nil, err
		}
		ds.categories = append(ds.categories, tag)
	}
	for _, name := range []string{"Favorite", "Shared"} {
		tag, err := m.CreateTag(ctx, ds.owner, &facet.CreateTagRequest{Name: name})
		if err != nil {
			return nil, err
		}
		ds.labels = append(ds.labels, tag)
	}
	return ds, nil
}

// itemPlan is drawn up front so the seeded data depends only on the seed,
// not on worker scheduling.
type itemPlan struct {
	category *facet.Tag
	labels   []*facet.Tag
	values   map[string]any
}

func planItem(ds *dataset, r *rand.Rand) itemPlan {
	p := itemPlan{values: map[string]any{"Status": statuses[r.Intn(len(statuses))]}}
	if r.Intn(4) == 0 {
		p.values["Notes"] = fmt.Sprintf("note %d", r.Intn(1000))
	}
	if n := r.Intn(len(ds.categories) + 1); n < len(ds.categories) {
		p.category = ds.categories[n]
		switch p.category.Name {
		case "Book":
			p.values["Rating"] = 1 + r.Intn(5)
			p.values["Format"] = formats[r.Intn(len(formats))]
			p.values["Pages"] = 50 + r.Intn(900)
		case "Article":
			p.values["Rating"] = 1 + r.Intn(5)
			p.values["Finished"] = r.Intn(2) == 0
		case "Video":
			p.values["Finished"] = r.Intn(2) == 0
		}
	}
	for _, label := range ds.labels {
		if r.Intn(10) < 3 {
			p.labels = append(p.labels, label)
		}
	}
	return p
}

func seedItems(ctx context.Context, m facet.FieldManager, ds *dataset, count, workers int, r *rand.Rand) error {
	plans := make([]itemPlan, count)
	for i := range plans {
		plans[i] = planItem(ds, r)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	var mu sync.Mutex
	done := 0
	for i := range plans {
		p := plans[i]
		g.Go(func() error {
			item, err := m.CreateItem(ctx, ds.owner, ds.collection)
			if err != nil {
				return err
			}
			if p.category != nil {
				if _, err := m.AssignCategory(ctx, ds.owner, item.ID, p.category.ID, facet.AssignOptions{}); err != nil {
					return err
				}
			}
			for _, label := range p.labels {
				if _, err := m.AddLabel(ctx, ds.owner, item.ID, label.ID); err != nil {
					return err
				}
			}
			if _, err := m.SetFieldValues(ctx, ds.owner, item.ID, p.values); err != nil {
				return err
			}

			mu.Lock()
			done++
			if done%5000 == 0 {
				log.Printf("[info] seeded %d/%d items", done, count)
			}
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

func buildQueries(ds *dataset) []query {
	f := ds.fields
	return []query{
		{name: "rating>=4", req: facet.FilterRequest{
			CollectionID: ds.collection,
			Criteria:     []facet.Criterion{{FieldID: f["Rating"].ID, Operator: facet.OpGte, Operand: 4}},
		}},
		{name: "status in", req: facet.FilterRequest{
			CollectionID: ds.collection,
			Criteria:     []facet.Criterion{{FieldID: f["Status"].ID, Operator: facet.OpIn, Operand: []any{"reading", "done"}}},
		}},
		{name: "pages between+format", req: facet.FilterRequest{
			CollectionID: ds.collection,
			Criteria: []facet.Criterion{
				{FieldID: f["Pages"].ID, Operator: facet.OpBetween, Operand: []any{100, 400}},
				{FieldID: f["Format"].ID, Operator: facet.OpEq, Operand: "ebook"},
			},
		}},
		{name: "notes empty+labels", req: facet.FilterRequest{
			CollectionID: ds.collection,
			Criteria:     []facet.Criterion{{FieldID: f["Notes"].ID, Operator: facet.OpIsEmpty}},
			TagIDs:       []uuid.UUID{ds.labels[0].ID, ds.labels[1].ID},
		}},
		{name: "unfinished", req: facet.FilterRequest{
			CollectionID: ds.collection,
			Criteria:     []facet.Criterion{{FieldID: f["Finished"].ID, Operator: facet.OpEq, Operand: false}},
		}},
	}
}

func summarize(latencies []time.Duration) (p50, p95, worst time.Duration) {
	sorted := append([]time.Duration(nil), latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	at := func(q float64) time.Duration {
		return sorted[int(q*float64(len(sorted)-1))]
	}
	return at(0.50), at(0.95), sorted[len(sorted)-1]
}

func buildConnString(opts options) string {
	hostPort := fmt.Sprintf("%s:%d", opts.host, opts.port)

	var userInfo *url.Userinfo
	if opts.password != "" {
		userInfo = url.UserPassword(opts.user, opts.password)
	} else {
		userInfo = url.User(opts.user)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   hostPort,
		Path:   "/" + opts.database,
	}

	q := u.Query()
	if opts.sslMode != "" {
		q.Set("sslmode", opts.sslMode)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getenvDefaultInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}
