package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	pub_models "github.com/baalimago/chatmux/pkg/text/models"
	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/philippgille/chromem-go"
)

const (
	documentCollection    = "documents"
	defaultDocumentLimit  = 4
	maxDocumentLimit      = 20
	maxCitationContentLen = 500
)

type searchDocumentsArgs struct {
	Query string `json:"query" jsonschema_description:"What to search for in the documents."`
	Limit int    `json:"limit,omitempty" jsonschema_description:"Maximum amount of results, defaults to 4."`
}

// DocumentStore is an in-memory vector store of plain text documents,
// exposed to the models as the search_documents tool.
type DocumentStore struct {
	db   *chromem.DB
	coll *chromem.Collection
}

var searchDocumentsSpec = pub_models.Specification{
	Name:        "search_documents",
	Description: "Semantic search in the documents uploaded by the user. Returns the most relevant passages with their source.",
	Inputs:      schemaOf[searchDocumentsArgs](),
}

// NewDocumentStore creates an empty store which embeds using embed.
func NewDocumentStore(embed chromem.EmbeddingFunc) (*DocumentStore, error) {
	db := chromem.NewDB()
	coll, err := db.GetOrCreateCollection(documentCollection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	return &DocumentStore{db: db, coll: coll}, nil
}

// NewOpenAIEmbedder returns an embedding func for any OpenAI compatible
// embeddings endpoint.
func NewOpenAIEmbedder(baseURL, apiKey, model string) chromem.EmbeddingFunc {
	return chromem.NewEmbeddingFuncOpenAICompat(baseURL, apiKey, model, nil)
}

// Add a document. Re-adding an id replaces the document.
func (d *DocumentStore) Add(ctx context.Context, doc pub_models.SearchResult) error {
	if doc.ID == "" {
		return errors.New("document id must not be empty")
	}
	if strings.TrimSpace(doc.Content) == "" {
		return fmt.Errorf("document '%v' has no content", doc.ID)
	}
	meta := map[string]string{}
	if doc.Title != "" {
		meta["title"] = doc.Title
	}
	if doc.URL != "" {
		meta["url"] = doc.URL
	}
	err := d.coll.AddDocument(ctx, chromem.Document{
		ID:       doc.ID,
		Metadata: meta,
		Content:  doc.Content,
	})
	if err != nil {
		return fmt.Errorf("failed to add document '%v': %w", doc.ID, err)
	}
	return nil
}

// LoadDir adds every .txt and .md file under dir, using the relative path as
// id and title. Returns the amount of documents added.
func (d *DocumentStore) LoadDir(ctx context.Context, dir string) (int, error) {
	added := 0
	err := filepath.WalkDir(dir, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if e.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".txt" && ext != ".md" {
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read document: %w", err)
		}
		if strings.TrimSpace(string(b)) == "" {
			ancli.Warnf("skipping empty document: %v\n", path)
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		if err := d.Add(ctx, pub_models.SearchResult{ID: rel, Title: rel, Content: string(b)}); err != nil {
			return err
		}
		added++
		return nil
	})
	if err != nil {
		return added, fmt.Errorf("failed to load documents from '%v': %w", dir, err)
	}
	return added, nil
}

// Count returns the amount of stored documents.
func (d *DocumentStore) Count() int {
	return d.coll.Count()
}

// Search returns up to limit documents, most similar first.
func (d *DocumentStore) Search(ctx context.Context, query string, limit int) ([]pub_models.SearchResult, error) {
	n := min(limit, d.coll.Count())
	if n <= 0 {
		return []pub_models.SearchResult{}, nil
	}
	res, err := d.coll.Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	ret := make([]pub_models.SearchResult, 0, len(res))
	for _, r := range res {
		ret = append(ret, pub_models.SearchResult{
			ID:      r.ID,
			Title:   r.Metadata["title"],
			URL:     r.Metadata["url"],
			Content: r.Content,
			Score:   r.Similarity,
		})
	}
	return ret, nil
}

func (d *DocumentStore) Call(ctx context.Context, input pub_models.Input) (string, error) {
	args, err := decodeInput[searchDocumentsArgs](input)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(args.Query) == "" {
		return "", errors.New("query must not be empty")
	}
	limit := args.Limit
	if limit <= 0 {
		limit = defaultDocumentLimit
	}
	limit = min(limit, maxDocumentLimit)
	res, err := d.Search(ctx, args.Query, limit)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("failed to marshal results: %w", err)
	}
	return string(b), nil
}

// Citations parses the output of Call. The content of each citation is
// shortened to a snippet.
func (d *DocumentStore) Citations(output string) []pub_models.SearchResult {
	var res []pub_models.SearchResult
	if err := json.Unmarshal([]byte(output), &res); err != nil {
		return nil
	}
	for i, r := range res {
		if runes := []rune(r.Content); len(runes) > maxCitationContentLen {
			res[i].Content = string(runes[:maxCitationContentLen]) + "..."
		}
	}
	return res
}

func (d *DocumentStore) Specification() pub_models.Specification {
	return searchDocumentsSpec
}
