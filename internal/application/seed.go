package application

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/entity"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/service"
)

// SeedReport summarizes one seeding run.
type SeedReport struct {
	Files     int
	Documents int
	Skipped   []string
}

// SeedKnowledge walks root and indexes every .md and .txt file into the
// vector store. The layout carries the routing metadata: a file under a
// subdirectory is tagged with that directory's name as its source type
// (so <root>/f1_data/races.md lands in the f1 domain), while files
// directly under root stay untagged and reach every domain. A file whose
// name starts with a declared override prefix is indexed as an override.
//
// Indexing is idempotent: document IDs derive from source and content,
// so re-seeding the same material overwrites instead of duplicating.
func (a *App) SeedKnowledge(ctx context.Context, root string) (SeedReport, error) {
	report := SeedReport{}
	domains := a.classifier.Domains()

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".md" && ext != ".txt" {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			report.Skipped = append(report.Skipped, fmt.Sprintf("%s: %v", path, err))
			return nil
		}

		meta := seedMetadata(root, path, domains)
		n, err := a.indexer.IndexText(ctx, name, meta, string(data))
		if err != nil {
			report.Skipped = append(report.Skipped, fmt.Sprintf("%s: %v", path, err))
			return nil
		}

		report.Files++
		report.Documents += n
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("failed to seed from %s: %w", root, err)
	}

	a.logger.Info("Knowledge seeding complete",
		zap.String("root", root),
		zap.Int("files", report.Files),
		zap.Int("documents", report.Documents),
		zap.Int("skipped", len(report.Skipped)),
	)
	return report, nil
}

// SeedManifest is the YAML layout for curated seeding. Each chunk
// names its own metadata instead of deriving it from a directory tree,
// which is how override material gets in.
type SeedManifest struct {
	Chunks []SeedChunk `yaml:"chunks"`
}

type SeedChunk struct {
	Source     string            `yaml:"source"`
	SourceType string            `yaml:"source_type"`
	Override   bool              `yaml:"override"`
	Priority   int               `yaml:"priority"`
	Extra      map[string]string `yaml:"extra"`
	Content    string            `yaml:"content"`
}

// SeedFromManifest indexes a YAML chunk manifest into the vector store.
// Chunks without a source fall back to the manifest filename plus their
// position, so re-seeding stays idempotent as long as the order holds.
func (a *App) SeedFromManifest(ctx context.Context, path string) (SeedReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SeedReport{}, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	var manifest SeedManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return SeedReport{}, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}

	report := SeedReport{}
	for i, chunk := range manifest.Chunks {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		source := chunk.Source
		if source == "" {
			source = fmt.Sprintf("%s#%d", filepath.Base(path), i)
		}
		if strings.TrimSpace(chunk.Content) == "" {
			report.Skipped = append(report.Skipped, fmt.Sprintf("%s: empty content", source))
			continue
		}

		sourceType := entity.SourceTypeFile
		if chunk.SourceType != "" {
			sourceType = entity.SourceType(chunk.SourceType)
		}

		n, err := a.indexer.IndexText(ctx, source, entity.ChunkMetadata{
			SourceType: sourceType,
			IsOverride: chunk.Override,
			Priority:   chunk.Priority,
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
			Extra:      chunk.Extra,
		}, chunk.Content)
		if err != nil {
			report.Skipped = append(report.Skipped, fmt.Sprintf("%s: %v", source, err))
			continue
		}

		report.Files++
		report.Documents += n
	}

	a.logger.Info("Manifest seeding complete",
		zap.String("manifest", path),
		zap.Int("chunks", report.Files),
		zap.Int("documents", report.Documents),
		zap.Int("skipped", len(report.Skipped)),
	)
	return report, nil
}

// seedMetadata derives a file's chunk metadata from its place in the
// seed tree and the current domain declarations.
func seedMetadata(root, path string, domains []service.Domain) entity.ChunkMetadata {
	name := filepath.Base(path)

	sourceType := entity.SourceTypeFile
	if rel, err := filepath.Rel(root, path); err == nil {
		if dir := filepath.Dir(rel); dir != "." {
			first := strings.Split(filepath.ToSlash(dir), "/")[0]
			sourceType = entity.SourceType(first)
		}
	}

	isOverride := false
	priority := 0
	for _, dom := range domains {
		for _, prefix := range dom.OverridePrefixes {
			if prefix != "" && strings.HasPrefix(name, prefix) {
				isOverride = true
				priority = int(dom.PriorityBoost)
			}
		}
		if priority == 0 {
			for _, tag := range dom.SourceTypeTags {
				if string(sourceType) == tag {
					priority = int(dom.PriorityBoost)
				}
			}
		}
	}

	return entity.ChunkMetadata{
		SourceType: sourceType,
		IsOverride: isOverride,
		Priority:   priority,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
}
