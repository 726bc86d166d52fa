package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/entity"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/knowledge"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	arrowmem "github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/lancedb/lancedb-go/pkg/contracts"
	"github.com/lancedb/lancedb-go/pkg/lancedb"
	"go.uber.org/zap"
)

const defaultTableName = "chunks"

// LanceDBStore implements knowledge.VectorStore on LanceDB.
type LanceDBStore struct {
	conn      contracts.IConnection
	table     contracts.ITable
	schema    *arrow.Schema
	dimension int
	logger    *zap.Logger
}

var _ knowledge.VectorStore = (*LanceDBStore)(nil)

// NewLanceDBStore opens or creates the knowledge table at storePath.
// dimension must match the embedding provider feeding the store.
func NewLanceDBStore(storePath, tableName string, dimension int, logger *zap.Logger) (*LanceDBStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tableName == "" {
		tableName = defaultTableName
	}

	absPath, err := expandPath(storePath)
	if err != nil {
		return nil, fmt.Errorf("failed to expand store path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	ctx := context.Background()
	conn, err := lancedb.Connect(ctx, absPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to LanceDB at %s: %w", absPath, err)
	}

	fields := []arrow.Field{
		{Name: "id", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "content", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "vector", Type: arrow.FixedSizeListOf(int32(dimension), arrow.PrimitiveTypes.Float32), Nullable: false},
		{Name: "metadata", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "created_at", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
	}
	arrowSchema := arrow.NewSchema(fields, nil)

	table, err := openOrCreateTable(ctx, conn, tableName, arrowSchema, logger)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open/create table: %w", err)
	}

	logger.Info("lancedb knowledge store initialized",
		zap.String("path", absPath),
		zap.String("table", tableName),
		zap.Int("dimension", dimension),
	)

	return &LanceDBStore{
		conn:      conn,
		table:     table,
		schema:    arrowSchema,
		dimension: dimension,
		logger:    logger.With(zap.String("component", "lancedb-store")),
	}, nil
}

func openOrCreateTable(ctx context.Context, conn contracts.IConnection, tableName string, arrowSchema *arrow.Schema, logger *zap.Logger) (contracts.ITable, error) {
	table, err := conn.OpenTable(ctx, tableName)
	if err == nil {
		logger.Info("opened existing LanceDB table", zap.String("table", tableName))
		return table, nil
	}

	logger.Info("creating new LanceDB table", zap.String("table", tableName))
	schema, err := lancedb.NewSchema(arrowSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to create LanceDB schema: %w", err)
	}
	return conn.CreateTable(ctx, tableName, schema)
}

// Add upserts documents: existing rows with the same IDs are replaced so
// re-indexing a source stays idempotent.
func (s *LanceDBStore) Add(ctx context.Context, docs []knowledge.Document) error {
	if len(docs) == 0 {
		return nil
	}

	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc.ID == "" {
			return entity.ErrInvalidChunkID
		}
		ids = append(ids, fmt.Sprintf("'%s'", doc.ID))
	}
	if err := s.table.Delete(ctx, fmt.Sprintf("id IN (%s)", strings.Join(ids, ", "))); err != nil {
		s.logger.Debug("pre-insert delete failed (rows may not exist yet)", zap.Error(err))
	}

	record, err := s.docsToRecord(docs)
	if err != nil {
		return fmt.Errorf("failed to build Arrow record: %w", err)
	}
	defer record.Release()

	if err := s.table.Add(ctx, record, nil); err != nil {
		return fmt.Errorf("LanceDB insert failed: %w", err)
	}
	s.logger.Debug("documents indexed", zap.Int("count", len(docs)))
	return nil
}

// Search returns the topK closest chunks by ascending distance. The vector
// column holds unit-norm embeddings, so the squared L2 distance LanceDB
// reports maps onto cosine distance as d/2.
func (s *LanceDBStore) Search(ctx context.Context, vector []float32, topK int) ([]*entity.Chunk, error) {
	if topK <= 0 {
		return nil, nil
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("query vector dimension mismatch: expected %d, got %d", s.dimension, len(vector))
	}

	results, err := s.table.VectorSearch(ctx, "vector", vector, topK)
	if err != nil {
		return nil, fmt.Errorf("LanceDB vector search failed: %w", err)
	}

	chunks := make([]*entity.Chunk, 0, len(results))
	for _, row := range results {
		chunk, err := rowToChunk(row)
		if err != nil {
			s.logger.Warn("skipping unreadable row", zap.Error(err))
			continue
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// Delete removes a document by ID.
func (s *LanceDBStore) Delete(ctx context.Context, id string) error {
	if err := s.table.Delete(ctx, fmt.Sprintf("id = '%s'", id)); err != nil {
		return fmt.Errorf("LanceDB delete failed: %w", err)
	}
	return nil
}

// Count reports the number of stored documents. The binding exposes no
// dedicated count call, so this lists ids through SelectWithFilter.
func (s *LanceDBStore) Count(ctx context.Context) (int, error) {
	rows, err := s.table.SelectWithFilter(ctx, "id IS NOT NULL")
	if err != nil {
		return 0, fmt.Errorf("LanceDB count query failed: %w", err)
	}
	return len(rows), nil
}

// Close releases LanceDB resources.
func (s *LanceDBStore) Close() error {
	if s.table != nil {
		s.table.Close()
	}
	if s.conn != nil {
		s.conn.Close()
	}
	return nil
}

// ============ internal helpers ============

func (s *LanceDBStore) docsToRecord(docs []knowledge.Document) (arrow.Record, error) {
	pool := arrowmem.NewGoAllocator()

	idB := array.NewStringBuilder(pool)
	defer idB.Release()
	contentB := array.NewStringBuilder(pool)
	defer contentB.Release()
	vectorB := array.NewFixedSizeListBuilder(pool, int32(s.dimension), arrow.PrimitiveTypes.Float32)
	defer vectorB.Release()
	metaB := array.NewStringBuilder(pool)
	defer metaB.Release()
	createdB := array.NewInt64Builder(pool)
	defer createdB.Release()

	valueB := vectorB.ValueBuilder().(*array.Float32Builder)
	now := time.Now().Unix()

	for _, doc := range docs {
		if len(doc.Embedding) != s.dimension {
			return nil, fmt.Errorf("vector dimension mismatch for %s: expected %d, got %d", doc.ID, s.dimension, len(doc.Embedding))
		}

		idB.Append(doc.ID)
		contentB.Append(doc.Content)
		vectorB.Append(true)
		valueB.AppendValues(doc.Embedding, nil)

		metaJSON, err := json.Marshal(doc.Metadata.ToMap())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata for %s: %w", doc.ID, err)
		}
		metaB.Append(string(metaJSON))
		createdB.Append(now)
	}

	cols := []arrow.Array{
		idB.NewArray(),
		contentB.NewArray(),
		vectorB.NewArray(),
		metaB.NewArray(),
		createdB.NewArray(),
	}
	defer func() {
		for _, col := range cols {
			col.Release()
		}
	}()

	return array.NewRecord(s.schema, cols, int64(len(docs))), nil
}

func rowToChunk(row map[string]interface{}) (*entity.Chunk, error) {
	id, _ := row["id"].(string)
	content, _ := row["content"].(string)

	meta := entity.ChunkMetadata{}
	if raw, ok := row["metadata"].(string); ok && raw != "" {
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &m); err == nil {
			meta = entity.ChunkMetadataFromMap(m)
		}
	}

	distance := 0.0
	if v, ok := toFloat64(row["_distance"]); ok {
		distance = v / 2
	}

	return entity.NewChunk(id, content, meta, distance)
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func expandPath(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}
