package repository

import (
	"context"
	"fmt"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/go-kivik/kivik/v4"
)

// couchIndexes back the Mango selectors used by the repositories.
var couchIndexes = map[string][]string{
	"user-username": {"type", "username"},
	"task-assignee": {"type", "assigned_to"},
	"task-due":      {"type", "due_date"},
}

func openCouch(ctx context.Context, url, dbName string) (*Store, error) {
	client, err := kivik.New("couch", url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to CouchDB: %w", err)
	}

	return &Store{
		Users:  NewUserRepository(client, dbName),
		Tasks:  NewTaskRepository(client, dbName),
		driver: "couchdb",
		ensure: func(ctx context.Context) error {
			return ensureCouchSchema(ctx, client, dbName)
		},
		close: func(ctx context.Context) error {
			return client.Close()
		},
	}, nil
}

func ensureCouchSchema(ctx context.Context, client *kivik.Client, dbName string) error {
	exists, err := client.DBExists(ctx, dbName)
	if err != nil {
		return fmt.Errorf("failed to check database existence: %w", err)
	}

	if !exists {
		if err := client.CreateDB(ctx, dbName); err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
	}

	db := client.DB(dbName)
	for name, fields := range couchIndexes {
		index := map[string]interface{}{"fields": fields}
		if err := db.CreateIndex(ctx, "taskboard", name, index); err != nil {
			return fmt.Errorf("failed to create index %s: %w", name, err)
		}
	}

	return nil
}
