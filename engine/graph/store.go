package graph

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/VaultPilotAI/vaultpilot-mvp/engine/domain"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// result is the minimal interface needed from a neo4j result.
type result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
}

// runner is the minimal interface needed from a neo4j session.
type runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (result, error)
	Close(ctx context.Context) error
}

type sessionAdapter struct {
	sess neo4j.SessionWithContext
}

func (a *sessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (result, error) {
	return a.sess.Run(ctx, cypher, params)
}

func (a *sessionAdapter) Close(ctx context.Context) error {
	return a.sess.Close(ctx)
}

// LinkStore provides link-graph operations on Neo4j.
type LinkStore struct {
	driver     neo4j.DriverWithContext
	newSession func(ctx context.Context) runner // for testing
}

// New creates a LinkStore.
func New(driver neo4j.DriverWithContext) *LinkStore {
	return &LinkStore{driver: driver}
}

func (s *LinkStore) session(ctx context.Context) runner {
	if s.newSession != nil {
		return s.newSession(ctx)
	}
	return &sessionAdapter{sess: s.driver.NewSession(ctx, neo4j.SessionConfig{})}
}

// SaveNote upserts a note node and replaces its outgoing links. Link targets
// are merged as title stubs so links can point at notes ingested later.
func (s *LinkStore) SaveNote(ctx context.Context, note Note, links []string) error {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	_, err := sess.Run(ctx,
		`MERGE (n:Note {path: $path})
		 SET n.title = $title, n.tags = $tags
		 WITH n
		 OPTIONAL MATCH (n)-[r:LINKS_TO]->()
		 DELETE r`,
		map[string]any{"path": note.Path, "title": note.Title, "tags": note.Tags})
	if err != nil {
		return fmt.Errorf("graph: save note %s: %w", note.Path, err)
	}

	for _, target := range links {
		_, err := sess.Run(ctx,
			`MATCH (n:Note {path: $path})
			 MERGE (t:Note {title: $title})
			 MERGE (n)-[:LINKS_TO]->(t)`,
			map[string]any{"path": note.Path, "title": target})
		if err != nil {
			return fmt.Errorf("graph: link %s -> %s: %w", note.Path, target, err)
		}
	}
	return nil
}

// DeleteNote removes a note node and its relationships.
func (s *LinkStore) DeleteNote(ctx context.Context, notePath string) error {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	_, err := sess.Run(ctx,
		`MATCH (n:Note {path: $path}) DETACH DELETE n`,
		map[string]any{"path": notePath})
	if err != nil {
		return fmt.Errorf("graph: delete note %s: %w", notePath, err)
	}
	return nil
}

// RelatedNotes returns notes linked from any of the given note paths,
// excluding the inputs themselves, capped at limit.
func (s *LinkStore) RelatedNotes(ctx context.Context, notePaths []string, limit int) ([]domain.RelatedNote, error) {
	if len(notePaths) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}
	sess := s.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx,
		`MATCH (n:Note)-[:LINKS_TO]->(t:Note)
		 WHERE n.path IN $paths AND (t.path IS NULL OR NOT t.path IN $paths)
		 RETURN DISTINCT t.path AS path, t.title AS title, n.path AS via
		 LIMIT $limit`,
		map[string]any{"paths": notePaths, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("graph: related notes: %w", err)
	}

	var related []domain.RelatedNote
	for res.Next(ctx) {
		rec := res.Record()
		related = append(related, domain.RelatedNote{
			Path:  stringValue(rec, "path"),
			Title: stringValue(rec, "title"),
			Via:   stringValue(rec, "via"),
		})
	}
	return related, nil
}

// Backlinks returns notes that link to the note with the given title.
func (s *LinkStore) Backlinks(ctx context.Context, title string) ([]Note, error) {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx,
		`MATCH (n:Note)-[:LINKS_TO]->(t:Note {title: $title})
		 RETURN n.path AS path, n.title AS title`,
		map[string]any{"title": title})
	if err != nil {
		return nil, fmt.Errorf("graph: backlinks of %s: %w", title, err)
	}

	var notes []Note
	for res.Next(ctx) {
		rec := res.Record()
		notes = append(notes, Note{
			Path:  stringValue(rec, "path"),
			Title: stringValue(rec, "title"),
		})
	}
	return notes, nil
}

func stringValue(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

// TitleFromPath derives a note title from its vault path.
func TitleFromPath(notePath string) string {
	base := path.Base(notePath)
	return strings.TrimSuffix(base, ".md")
}
