// Package history provides full-text search across stored chat sessions.
// The index is in-memory, rebuilt from the loaded collection, and strictly
// best-effort: a failing index never blocks chatting.
package history

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	// Registers the ansi highlighter used for search fragments.
	_ "github.com/blevesearch/bleve/v2/search/highlight/highlighter/ansi"

	"github.com/hazemksouri/parley/internal/chat"
)

// Match is one session matched by a query.
type Match struct {
	SessionID string
	Title     string
	Fragment  string
	Score     float64
}

// Index holds the searchable view of the session collection.
type Index struct {
	index bleve.Index
}

// messageDoc is the indexed representation of one transcript message.
type messageDoc struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
	Text      string `json:"text"`
}

// NewIndex creates an empty in-memory index.
func NewIndex() (*Index, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create history index: %w", err)
	}
	return &Index{index: index}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()

	sessionIDField := bleve.NewTextFieldMapping()
	sessionIDField.Analyzer = keyword.Name
	sessionIDField.Store = true
	docMapping.AddFieldMappingsAt("session_id", sessionIDField)

	titleField := bleve.NewTextFieldMapping()
	titleField.Analyzer = standard.Name
	titleField.Store = true
	docMapping.AddFieldMappingsAt("title", titleField)

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	textField.Store = true
	docMapping.AddFieldMappingsAt("text", textField)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// Rebuild replaces the index contents with the given collection. A fresh
// index is built and swapped in, so messages of deleted or cleared sessions
// stop matching. Error messages are skipped; they are presentation, not
// conversation.
func (i *Index) Rebuild(sessions []*chat.Session) error {
	fresh, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return fmt.Errorf("failed to create history index: %w", err)
	}

	batch := fresh.NewBatch()
	for _, session := range sessions {
		for _, msg := range session.Messages {
			if msg.IsError {
				continue
			}
			doc := messageDoc{
				SessionID: session.ID,
				Title:     session.Title,
				Text:      msg.Content,
			}
			if err := batch.Index(session.ID+"/"+msg.ID, doc); err != nil {
				fresh.Close()
				return fmt.Errorf("failed to index message: %w", err)
			}
		}
	}
	if err := fresh.Batch(batch); err != nil {
		fresh.Close()
		return fmt.Errorf("failed to apply index batch: %w", err)
	}

	old := i.index
	i.index = fresh
	old.Close()
	return nil
}

// Search returns up to limit sessions matching the query, best first. Each
// session appears once, represented by its highest-scoring message.
func (i *Index) Search(query string, limit int) ([]Match, error) {
	if limit <= 0 {
		limit = 10
	}

	req := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	// Over-fetch so per-session dedup still fills the limit.
	req.Size = limit * 4
	req.Fields = []string{"session_id", "title", "text"}
	req.Highlight = bleve.NewHighlightWithStyle("ansi")
	req.Highlight.AddField("text")

	res, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("history search failed: %w", err)
	}

	seen := make(map[string]bool)
	var matches []Match
	for _, hit := range res.Hits {
		sessionID, _ := hit.Fields["session_id"].(string)
		if sessionID == "" || seen[sessionID] {
			continue
		}
		seen[sessionID] = true

		title, _ := hit.Fields["title"].(string)
		fragment, _ := hit.Fields["text"].(string)
		if fragments, ok := hit.Fragments["text"]; ok && len(fragments) > 0 {
			fragment = fragments[0]
		}

		matches = append(matches, Match{
			SessionID: sessionID,
			Title:     title,
			Fragment:  fragment,
			Score:     hit.Score,
		})
		if len(matches) >= limit {
			break
		}
	}
	return matches, nil
}

// Close releases the index.
func (i *Index) Close() error {
	return i.index.Close()
}
