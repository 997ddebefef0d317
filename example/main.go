package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	dag "github.com/meikuraledutech/dagstore"
	"github.com/meikuraledutech/dagstore/badger"
	"github.com/meikuraledutech/dagstore/postgres"
)

func main() {
	ctx := context.Background()

	// Postgres when DATABASE_URL is set, an in-memory badger store otherwise.
	var store dag.Store
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			log.Fatalf("connect: %v", err)
		}
		defer pool.Close()
		store = postgres.New(pool)
	} else {
		bs, err := badger.Open(badger.InMemoryConfig())
		if err != nil {
			log.Fatalf("open: %v", err)
		}
		defer bs.Close()
		store = bs
	}

	// 1. Create tables
	if err := store.CreateSchema(ctx); err != nil {
		log.Fatalf("schema: %v", err)
	}
	fmt.Println("schema created")

	// ── Dag with two questions ────────────────────────────────────────
	form, err := store.CreateDag(ctx, "onboarding-form")
	if err != nil {
		log.Fatalf("create dag: %v", err)
	}
	q1, err := store.CreateNode(ctx, dag.NewNode{
		DagID: form.ID,
		Name:  "role",
		Data:  json.RawMessage(`{"question": "What is your role?", "type": "select"}`),
	})
	if err != nil {
		log.Fatalf("create node: %v", err)
	}
	q2, err := store.CreateNode(ctx, dag.NewNode{
		DagID: form.ID,
		Name:  "language",
		Data:  json.RawMessage(`{"question": "Preferred language?", "type": "select"}`),
	})
	if err != nil {
		log.Fatalf("create node: %v", err)
	}

	// ── Edge q1 → q2 ──────────────────────────────────────────────────
	if _, err := store.CreateEdge(ctx, q1.ID, q2.ID); err != nil {
		log.Fatalf("create edge: %v", err)
	}

	// ── The reverse edge would close a cycle ──────────────────────────
	_, err = store.CreateEdge(ctx, q2.ID, q1.ID)
	if !errors.Is(err, dag.ErrCycleDetected) {
		log.Fatalf("expected cycle rejection, got %v", err)
	}
	fmt.Println("\nreverse edge rejected:", err)

	// ── Node wired at creation: q2 → q3 ───────────────────────────────
	q3, err := store.CreateNode(ctx, dag.NewNode{
		DagID:        form.ID,
		Name:         "experience",
		Data:         json.RawMessage(`{"question": "Years of experience?", "type": "number"}`),
		Predecessors: []string{q2.ID},
	})
	if err != nil {
		log.Fatalf("create node: %v", err)
	}
	fmt.Printf("\nadded node %s with predecessors %v\n", q3.ID, q3.Predecessors)

	adj, err := store.Serialize(ctx, form.ID)
	if err != nil {
		log.Fatalf("serialize: %v", err)
	}
	fmt.Println("\nadjacency:")
	printJSON(adj)

	// ── Deleting q2 cascades to both of its edges ─────────────────────
	if err := store.DeleteNode(ctx, q2.ID); err != nil {
		log.Fatalf("delete node: %v", err)
	}
	adj, err = store.Serialize(ctx, form.ID)
	if err != nil {
		log.Fatalf("serialize: %v", err)
	}
	fmt.Println("\nadjacency after deleting q2:")
	printJSON(adj)

	// ── Cleanup ───────────────────────────────────────────────────────
	if err := store.DeleteDag(ctx, form.ID); err != nil {
		log.Fatalf("delete: %v", err)
	}
	fmt.Println("\ndag deleted")
}

func printJSON(v any) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}
