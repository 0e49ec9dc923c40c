// Package bigquery owns the analytics dataset: it verifies (and optionally
// creates) the tables the worker streams into and exposes a streaming insert.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

const metadataCheckTimeout = 10 * time.Second

// TableDef describes an analytics table the client owns. Schema is required
// only when the table may be created.
type TableDef struct {
	Name           string
	Schema         bigquery.Schema
	PartitionField string
	Clustering     []string
	Description    string
}

// metadata is the create request: day partitions on PartitionField and
// clustering when configured.
func (d TableDef) metadata() *bigquery.TableMetadata {
	meta := &bigquery.TableMetadata{Name: d.Name, Description: d.Description, Schema: d.Schema}
	if d.PartitionField != "" {
		meta.TimePartitioning = &bigquery.TimePartitioning{Type: bigquery.DayPartitioningType, Field: d.PartitionField}
	}
	if len(d.Clustering) > 0 {
		meta.Clustering = &bigquery.Clustering{Fields: append([]string(nil), d.Clustering...)}
	}
	return meta
}

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery table name is required")
	errSchemaRequired       = errors.New("bigquery schema is required to create a table")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

// Client wraps the analytics dataset.
type Client struct {
	bq          *bigquery.Client
	dataset     *bigquery.Dataset
	tables      []TableDef
	create      bool
	eventsTable string
	logg        *logger.Logger
}

// NewClient connects and checks every table in defs. Missing tables are
// created when cfg.CreateTables is set and fail startup otherwise.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, defs []TableDef, logg *logger.Logger) (*Client, error) {
	projectID, datasetID := strings.TrimSpace(gcp.ProjectID), strings.TrimSpace(cfg.Dataset)
	switch {
	case projectID == "":
		return nil, errProjectIDRequired
	case datasetID == "":
		return nil, errDatasetRequired
	}
	tables, err := normalizeDefs(defs, cfg.CreateTables)
	if err != nil {
		return nil, err
	}

	bq, err := bigquery.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("bigquery client for project %s: %w", projectID, err)
	}
	c := &Client{
		bq:          bq,
		dataset:     bq.Dataset(datasetID),
		tables:      tables,
		create:      cfg.CreateTables,
		eventsTable: strings.TrimSpace(cfg.OrderEventsTable),
		logg:        logg,
	}
	if err := c.ensureTables(ctx); err != nil {
		_ = bq.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"project": projectID,
			"dataset": datasetID,
			"tables":  len(tables),
		}), "bigquery client initialized")
	}
	return c, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	if raw := strings.TrimSpace(gcp.CredentialsJSON); raw != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(raw))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

// normalizeDefs trims names, drops blanks and rejects duplicates.
func normalizeDefs(defs []TableDef, create bool) ([]TableDef, error) {
	tables := make([]TableDef, 0, len(defs))
	seen := make(map[string]bool, len(defs))
	for _, def := range defs {
		if def.Name = strings.TrimSpace(def.Name); def.Name == "" {
			continue
		}
		if seen[def.Name] {
			return nil, fmt.Errorf("bigquery table %q configured twice", def.Name)
		}
		if create && len(def.Schema) == 0 {
			return nil, fmt.Errorf("table %q: %w", def.Name, errSchemaRequired)
		}
		seen[def.Name] = true
		tables = append(tables, def)
	}
	if len(tables) == 0 {
		return nil, errTableNameRequired
	}
	return tables, nil
}

func (c *Client) ensureTables(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataCheckTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		return describe("dataset", c.dataset.DatasetID, err)
	}
	for _, def := range c.tables {
		if err := c.ensureTable(ctx, def); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) ensureTable(ctx context.Context, def TableDef) error {
	table := c.dataset.Table(def.Name)
	_, err := table.Metadata(ctx)
	if err == nil {
		return nil
	}
	if !isNotFound(err) || !c.create {
		return describe("table", def.Name, err)
	}
	if err := table.Create(ctx, def.metadata()); err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("create table %q: %w", def.Name, err)
	}
	if c.logg != nil {
		c.logg.Warn(c.logg.WithField(ctx, "table", def.Name), "bigquery table created")
	}
	return nil
}

func describe(kind, name string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%s %q does not exist", kind, name)
	}
	return fmt.Errorf("check %s %q: %w", kind, name, err)
}

// Ping verifies the dataset and tables are accessible.
func (c *Client) Ping(ctx context.Context) error {
	return c.ensureTables(ctx)
}

// InsertRows streams rows into table. Rows may implement bigquery.ValueSaver.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.bq == nil {
		return errClientNotInitialized
	}
	if table = strings.TrimSpace(table); table == "" {
		return errTableNameRequired
	}
	if len(rows) == 0 {
		return nil
	}
	return c.dataset.Table(table).Inserter().Put(ctx, rows)
}

// OrderEventsTable returns the configured order events table name.
func (c *Client) OrderEventsTable() string {
	if c == nil {
		return ""
	}
	return c.eventsTable
}

func (c *Client) Close() error {
	if c == nil || c.bq == nil {
		return nil
	}
	return c.bq.Close()
}

func isNotFound(err error) bool      { return apiStatus(err) == http.StatusNotFound }
func isAlreadyExists(err error) bool { return apiStatus(err) == http.StatusConflict }

func apiStatus(err error) int {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return 0
	}
	return apiErr.Code
}
