// Command seed_alerts creates the alerts indices of every feature in
// Elasticsearch and fills them with sample alerts.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"alertscope/schema"
)

func main() {
	esURL := flag.String("es", "http://localhost:9200", "comma separated Elasticsearch addresses")
	count := flag.Int("count", 250, "number of sample alerts to index")
	reset := flag.Bool("reset", false, "delete the alerts indices before seeding")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: strings.Split(*esURL, ","),
	})
	if err != nil {
		logger.Error("failed to create elasticsearch client", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	docs := schema.SampleAlerts(time.Now(), *count)
	for _, index := range indices(docs) {
		if *reset {
			if err := deleteIndex(ctx, client, index); err != nil {
				logger.Warn("failed to delete index", "index", index, "error", err)
			}
		}
		if err := createIndex(ctx, client, index); err != nil {
			logger.Error("failed to create index", "index", index, "error", err)
			os.Exit(1)
		}
		logger.Info("index ready", "index", index)
	}

	if err := bulkIndex(ctx, client, docs); err != nil {
		logger.Error("failed to index sample alerts", "error", err)
		os.Exit(1)
	}
	logger.Info("sample alerts indexed", "count", len(docs))
}

// indices returns the distinct indices of docs in first-seen order.
func indices(docs []schema.Document) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, d := range docs {
		if _, dup := seen[d.Index]; dup {
			continue
		}
		seen[d.Index] = struct{}{}
		out = append(out, d.Index)
	}
	return out
}

func deleteIndex(ctx context.Context, client *elasticsearch.Client, index string) error {
	res, err := client.Indices.Delete([]string{index},
		client.Indices.Delete.WithContext(ctx),
		client.Indices.Delete.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("delete %s: %s", index, res.Status())
	}
	return nil
}

func createIndex(ctx context.Context, client *elasticsearch.Client, index string) error {
	exists, err := client.Indices.Exists([]string{index}, client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return err
	}
	exists.Body.Close()
	if exists.StatusCode == 200 {
		return nil
	}

	body, err := json.Marshal(schema.IndexMapping())
	if err != nil {
		return err
	}
	res, err := client.Indices.Create(index,
		client.Indices.Create.WithContext(ctx),
		client.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return fmt.Errorf("create %s: %s: %s", index, res.Status(), msg)
	}
	return nil
}

func bulkIndex(ctx context.Context, client *elasticsearch.Client, docs []schema.Document) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, d := range docs {
		action := map[string]any{"index": map[string]any{"_index": d.Index, "_id": d.ID}}
		if err := enc.Encode(action); err != nil {
			return err
		}
		if err := enc.Encode(d.Fields); err != nil {
			return err
		}
	}

	res, err := client.Bulk(&buf,
		client.Bulk.WithContext(ctx),
		client.Bulk.WithRefresh("true"),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk: %s", res.Status())
	}

	var result struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if result.Errors {
		return fmt.Errorf("bulk: some documents were rejected")
	}
	return nil
}
