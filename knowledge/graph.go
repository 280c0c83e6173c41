// Package knowledge mirrors ingested documents into Neo4j as a
// Document -> Page -> Chunk graph.
package knowledge

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type Document struct {
	Namespace string
	FileKey   string
	Pages     []Page
}

type Page struct {
	Number int
	Chunks []Chunk
}

type Chunk struct {
	// ID is the chunk's source hash. Repeated text shares it.
	ID    string
	Index int
	Text  string
}

// Insight summarises what the graph knows about one document.
type Insight struct {
	Pages  int
	Chunks int
}

type Graph struct {
	driver neo4j.DriverWithContext
}

func NewGraph(driver neo4j.DriverWithContext) *Graph {
	return &Graph{driver: driver}
}

// SyncDocument replaces the page and chunk nodes of doc.
func (g *Graph) SyncDocument(ctx context.Context, doc Document) error {
	if g == nil || g.driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	pages, chunks := syncParams(doc)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MERGE (d:Document {namespace: $namespace})
			SET d.file_key = $file_key,
			    d.updated_at = datetime()
		`, map[string]any{
			"namespace": doc.Namespace,
			"file_key":  doc.FileKey,
		}); err != nil {
			return nil, fmt.Errorf("upsert document node: %w", err)
		}

		if _, err := tx.Run(ctx, `
			MATCH (d:Document {namespace: $namespace})-[:HAS_PAGE]->(p:Page)
			OPTIONAL MATCH (p)-[:HAS_CHUNK]->(c:Chunk)
			DETACH DELETE p, c
		`, map[string]any{"namespace": doc.Namespace}); err != nil {
			return nil, fmt.Errorf("clear existing pages: %w", err)
		}

		if _, err := tx.Run(ctx, `
			MATCH (d:Document {namespace: $namespace})
			UNWIND $pages AS page
			CREATE (p:Page {namespace: $namespace, number: page.number})
			MERGE (d)-[:HAS_PAGE {order: page.number}]->(p)
		`, map[string]any{
			"namespace": doc.Namespace,
			"pages":     pages,
		}); err != nil {
			return nil, fmt.Errorf("create page nodes: %w", err)
		}

		if _, err := tx.Run(ctx, `
			UNWIND $chunks AS chunk
			MATCH (p:Page {namespace: $namespace, number: chunk.page})
			MERGE (c:Chunk {uid: chunk.uid})
			SET c.hash = chunk.hash,
			    c.index = chunk.index,
			    c.text = chunk.text
			MERGE (p)-[:HAS_CHUNK {order: chunk.index}]->(c)
		`, map[string]any{
			"namespace": doc.Namespace,
			"chunks":    chunks,
		}); err != nil {
			return nil, fmt.Errorf("create chunk nodes: %w", err)
		}

		return nil, nil
	})

	return err
}

// Insight counts the pages and chunks stored for namespace. An unknown
// namespace yields a zero Insight.
func (g *Graph) Insight(ctx context.Context, namespace string) (Insight, error) {
	if g == nil || g.driver == nil {
		return Insight{}, fmt.Errorf("neo4j driver is nil")
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (d:Document {namespace: $namespace})
			OPTIONAL MATCH (d)-[:HAS_PAGE]->(p:Page)
			OPTIONAL MATCH (p)-[:HAS_CHUNK]->(c:Chunk)
			RETURN count(DISTINCT p) AS pages, count(DISTINCT c) AS chunks
		`, map[string]any{"namespace": namespace})
		if err != nil {
			return nil, err
		}

		var insight Insight
		if res.Next(ctx) {
			record := res.Record()
			if v, ok := record.Get("pages"); ok {
				insight.Pages = toInt(v)
			}
			if v, ok := record.Get("chunks"); ok {
				insight.Chunks = toInt(v)
			}
		}
		return insight, res.Err()
	})
	if err != nil {
		return Insight{}, fmt.Errorf("query document insight: %w", err)
	}

	insight, _ := result.(Insight)
	return insight, nil
}

// DeleteDocument removes the document and everything hanging off it.
func (g *Graph) DeleteDocument(ctx context.Context, namespace string) error {
	if g == nil || g.driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MATCH (d:Document {namespace: $namespace})
			OPTIONAL MATCH (d)-[:HAS_PAGE]->(p:Page)
			OPTIONAL MATCH (p)-[:HAS_CHUNK]->(c:Chunk)
			DETACH DELETE d, p, c
		`, map[string]any{"namespace": namespace})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("delete document graph: %w", err)
	}
	return nil
}

// syncParams flattens doc into Cypher parameters. Chunk uids are positional,
// so repeated text yields one node per occurrence.
func syncParams(doc Document) (pages, chunks []map[string]any) {
	pages = make([]map[string]any, 0, len(doc.Pages))
	chunks = make([]map[string]any, 0)
	for _, page := range doc.Pages {
		pages = append(pages, map[string]any{"number": page.Number})
		for _, chunk := range page.Chunks {
			chunks = append(chunks, map[string]any{
				"uid":   chunkUID(doc.Namespace, page.Number, chunk.Index),
				"hash":  chunk.ID,
				"index": chunk.Index,
				"text":  chunk.Text,
				"page":  page.Number,
			})
		}
	}
	return pages, chunks
}

func chunkUID(namespace string, page, index int) string {
	return fmt.Sprintf("%s:%d:%d", namespace, page, index)
}

func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int32:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}
