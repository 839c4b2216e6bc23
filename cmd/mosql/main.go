// mosql is a read-only inspector for MOS databases. It uses the pure-Go
// SQLite driver so it runs without cgo, anywhere the DB file can be read.
//
// Usage:
//
//	mosql [db-path]                 dump tables with sample rows
//	mosql [db-path] similar <text>  nearest memes by embedding similarity
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"mos/internal/embedding"
)

const defaultDB = ".mos/mos.db"

func main() {
	args := os.Args[1:]

	dbPath := defaultDB
	if len(args) > 0 && args[0] != "similar" {
		dbPath = args[0]
		args = args[1:]
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening DB: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if len(args) > 0 && args[0] == "similar" {
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Usage: mosql [db] similar <text>")
			os.Exit(1)
		}
		if err := similar(db, strings.Join(args[1:], " ")); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := dump(db); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// dump lists every table with its row count and a few sample rows.
func dump(db *sql.DB) error {
	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='table' ORDER BY name")
	if err != nil {
		return fmt.Errorf("querying tables: %w", err)
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			continue
		}
		tables = append(tables, name)
	}
	rows.Close()

	for _, table := range tables {
		var count int
		db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count)
		fmt.Printf("\n=== %s (%d rows) ===\n", table, count)
		if count == 0 {
			continue
		}
		if err := sample(db, table, 5); err != nil {
			fmt.Printf("  (sample failed: %v)\n", err)
		}
	}
	return nil
}

// sample prints up to limit rows of a table, truncating long values.
func sample(db *sql.DB, table string, limit int) error {
	rows, err := db.Query(fmt.Sprintf("SELECT * FROM %s LIMIT %d", table, limit))
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	i := 0
	for rows.Next() {
		values := make([]interface{}, len(cols))
		valuePtrs := make([]interface{}, len(cols))
		for j := range values {
			valuePtrs[j] = &values[j]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			continue
		}
		i++
		fmt.Printf("%d. ", i)
		for j, col := range cols {
			val := values[j]
			if b, ok := val.([]byte); ok {
				val = string(b)
			}
			if s, ok := val.(string); ok && len(s) > 80 {
				val = s[:80] + "..."
			}
			fmt.Printf("%s=%v  ", col, val)
		}
		fmt.Println()
	}
	return rows.Err()
}

// similar embeds the query text via Ollama and ranks stored meme vectors
// by cosine similarity, in process.
func similar(db *sql.DB, text string) error {
	endpoint := os.Getenv("MOS_OLLAMA_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	model := os.Getenv("MOS_EMBED_MODEL")
	if model == "" {
		model = "embeddinggemma"
	}

	engine, err := embedding.NewOllamaEngine(endpoint, model)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	query, err := engine.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embedding query: %w", err)
	}

	rows, err := db.Query("SELECT meme_id, embedding FROM meme_vectors")
	if err != nil {
		return fmt.Errorf("reading vectors: %w", err)
	}
	defer rows.Close()

	type hit struct {
		id    string
		score float64
	}
	var hits []hit
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			continue
		}
		var vec []float32
		if err := json.Unmarshal([]byte(data), &vec); err != nil {
			continue
		}
		hits = append(hits, hit{id: id, score: embedding.CosineSimilarity(query, vec)})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > 10 {
		hits = hits[:10]
	}

	if len(hits) == 0 {
		fmt.Println("no vectors stored (run `mos link` first)")
		return nil
	}

	fmt.Printf("%-36s %-8s %s\n", "meme_id", "score", "name")
	for _, h := range hits {
		var name sql.NullString
		db.QueryRow(`SELECT json_extract(metadata, '$.name') FROM memes WHERE id = ?`, h.id).Scan(&name)
		fmt.Printf("%-36s %-8.4f %s\n", h.id, h.score, name.String)
	}
	return nil
}
