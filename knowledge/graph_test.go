package knowledge

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ryanakml/pdf-chatbots/config"
	"github.com/Ryanakml/pdf-chatbots/database"
)

func TestGraphNilDriver(t *testing.T) {
	g := NewGraph(nil)
	ctx := context.Background()

	assert.Error(t, g.SyncDocument(ctx, Document{Namespace: "doc"}))
	_, err := g.Insight(ctx, "doc")
	assert.Error(t, err)
	assert.Error(t, g.DeleteDocument(ctx, "doc"))
}

func TestToInt(t *testing.T) {
	assert.Equal(t, 3, toInt(int64(3)))
	assert.Equal(t, 4, toInt(int32(4)))
	assert.Equal(t, 5, toInt(5.0))
	assert.Equal(t, 0, toInt("7"))
}

// repeatedHeader has the same chunk text on both pages and twice on page 2.
func repeatedHeader(namespace string) Document {
	return Document{
		Namespace: namespace,
		FileKey:   namespace + ".pdf",
		Pages: []Page{
			{Number: 1, Chunks: []Chunk{
				{ID: "h", Index: 0, Text: "header"},
				{ID: "a", Index: 1, Text: "alpha"},
			}},
			{Number: 2, Chunks: []Chunk{
				{ID: "h", Index: 2, Text: "header"},
				{ID: "b", Index: 3, Text: "bravo"},
				{ID: "h", Index: 4, Text: "header"},
			}},
		},
	}
}

func TestSyncParamsKeepsRepeatedChunksApart(t *testing.T) {
	pages, chunks := syncParams(repeatedHeader("doc"))

	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0]["number"])
	assert.Equal(t, 2, pages[1]["number"])

	require.Len(t, chunks, 5)
	uids := map[any]bool{}
	for _, c := range chunks {
		uids[c["uid"]] = true
	}
	assert.Len(t, uids, 5)
	assert.Equal(t, "doc:2:2", chunks[2]["uid"])
	assert.Equal(t, "h", chunks[2]["hash"])
	assert.Equal(t, 2, chunks[2]["page"])
}

func TestGraphSyncAndInsightIntegration(t *testing.T) {
	if os.Getenv("RUN_DB_INTEGRATION_TESTS") != "1" {
		t.Skip("set RUN_DB_INTEGRATION_TESTS=1 to run database integration tests")
	}

	cfg, err := config.Load("")
	require.NoError(t, err)
	ctx := context.Background()

	driver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close(ctx) })

	g := NewGraph(driver)
	namespace := "it-" + uuid.NewString()
	t.Cleanup(func() { _ = g.DeleteDocument(ctx, namespace) })

	require.NoError(t, g.SyncDocument(ctx, repeatedHeader(namespace)))

	insight, err := g.Insight(ctx, namespace)
	require.NoError(t, err)
	assert.Equal(t, Insight{Pages: 2, Chunks: 5}, insight)

	resync := Document{Namespace: namespace, FileKey: namespace + ".pdf", Pages: []Page{
		{Number: 1, Chunks: []Chunk{{ID: "x", Index: 0, Text: "only"}}},
	}}
	require.NoError(t, g.SyncDocument(ctx, resync))

	insight, err = g.Insight(ctx, namespace)
	require.NoError(t, err)
	assert.Equal(t, Insight{Pages: 1, Chunks: 1}, insight)

	require.NoError(t, g.DeleteDocument(ctx, namespace))
	insight, err = g.Insight(ctx, namespace)
	require.NoError(t, err)
	assert.Equal(t, Insight{}, insight)
}
