package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	_ "github.com/microsoft/go-mssqldb"
	"google.golang.org/api/option"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second
)

func ConnectSQL(ctx context.Context, connString string) (*sql.DB, error) {
	db, err := sql.Open("sqlserver", connString)
	if err != nil {
		return nil, fmt.Errorf("error opening SQL database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to SQL database (ping failed): %w", err)
	}
	return db, nil
}

func ConnectMongo(ctx context.Context, connString string) (*mongo.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(connString))
	if err != nil {
		return nil, fmt.Errorf("error creating MongoDB client: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, pingTimeout)
	defer pingCancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), pingTimeout)
		defer disconnectCancel()
		_ = client.Disconnect(disconnectCtx)

		return nil, fmt.Errorf("error connecting to MongoDB (ping failed): %w", err)
	}
	return client, nil
}

// BigQueryCredentials selects how the BigQuery client authenticates. A
// credentials file wins over the inline service account fields; with neither
// the application default credentials are used.
type BigQueryCredentials struct {
	File        string
	PrivateKey  string
	ClientEmail string
	ClientID    string
}

func (c BigQueryCredentials) clientOptions() ([]option.ClientOption, error) {
	switch {
	case c.File != "":
		return []option.ClientOption{option.WithCredentialsFile(c.File)}, nil
	case c.PrivateKey != "":
		data, err := serviceAccountJSON(c.PrivateKey, c.ClientEmail, c.ClientID)
		if err != nil {
			return nil, err
		}
		return []option.ClientOption{option.WithCredentialsJSON(data)}, nil
	default:
		return nil, nil
	}
}

// serviceAccountJSON builds a service account key from its parts. Keys taken
// from environment variables often carry escaped newlines.
func serviceAccountJSON(privateKey, clientEmail, clientID string) ([]byte, error) {
	if clientEmail == "" {
		return nil, errors.New("service account private key given without client email")
	}
	return json.Marshal(map[string]string{
		"type":         "service_account",
		"private_key":  strings.ReplaceAll(privateKey, `\n`, "\n"),
		"client_email": clientEmail,
		"client_id":    clientID,
		"token_uri":    "https://oauth2.googleapis.com/token",
	})
}

func ConnectBigQuery(ctx context.Context, projectID string, creds BigQueryCredentials) (*bigquery.Client, error) {
	opts, err := creds.clientOptions()
	if err != nil {
		return nil, fmt.Errorf("error configuring BigQuery credentials: %w", err)
	}
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating BigQuery client: %w", err)
	}
	return client, nil
}
