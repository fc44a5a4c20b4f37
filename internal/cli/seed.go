package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"learning-progress-service/internal/config"
	"learning-progress-service/internal/domain"
	"learning-progress-service/internal/infra/docstore"
)

// catalogFile is the YAML layout accepted by seed.
type catalogFile struct {
	Courses []domain.Course `yaml:"courses"`
	Modules []domain.Module `yaml:"modules"`
}

// NewSeedCmd loads courses and modules into the document store.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load catalog courses and modules from YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.StoreDriver() == config.DriverMemory {
				log.Println("memory store selected; seeded data is lost on exit (use start --catalog instead)")
			}
			b, err := openBackend(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			courses, modules, err := seedCatalog(cmd.Context(), b.store, file)
			if err != nil {
				return err
			}
			log.Printf("seeded %d courses and %d modules", courses, modules)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "catalog.yaml", "catalog YAML file")
	return cmd
}

// seedCatalog upserts every module and course in path. Item keys already stored
// are kept so completion records stay valid; new items get fresh keys. Existing
// course progress is preserved.
func seedCatalog(ctx context.Context, store docstore.Store, path string) (int, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, err
	}
	var catalog catalogFile
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return 0, 0, fmt.Errorf("parse %s: %w", path, err)
	}

	modules := docstore.NewModuleRepository(store)
	for _, m := range catalog.Modules {
		if m.ID == "" {
			return 0, 0, fmt.Errorf("module without id in %s", path)
		}
		prev, err := modules.GetModule(ctx, m.ID)
		switch {
		case err == nil:
			m.Rev = prev.Rev
			inheritKeys(&m, prev)
		case !errors.Is(err, domain.ErrNotFound):
			return 0, 0, err
		}
		m.AssignItemKeys(uuid.NewString)
		if _, err := modules.PutModule(ctx, m); err != nil {
			return 0, 0, fmt.Errorf("store module %s: %w", m.ID, err)
		}
	}

	courses := docstore.NewCourseRepository(store)
	for _, c := range catalog.Courses {
		if c.ID == "" {
			return 0, 0, fmt.Errorf("course without id in %s", path)
		}
		if len(c.ModuleIDs) == 0 {
			for _, m := range catalog.Modules {
				if m.CourseID == c.ID {
					c.ModuleIDs = append(c.ModuleIDs, m.ID)
				}
			}
		}
		prev, err := courses.GetCourse(ctx, c.ID)
		switch {
		case err == nil:
			c.Rev = prev.Rev
			c.Progress = prev.Progress
		case !errors.Is(err, domain.ErrNotFound):
			return 0, 0, err
		}
		if _, err := courses.PutCourse(ctx, c); err != nil {
			return 0, 0, fmt.Errorf("store course %s: %w", c.ID, err)
		}
	}
	return len(catalog.Courses), len(catalog.Modules), nil
}

// inheritKeys copies stored keys onto keyless items that still sit at the same
// position with the same title (quizzes match by id).
func inheritKeys(m *domain.Module, prev domain.Module) {
	inheritList(m.Resources, prev.Resources)
	inheritList(m.Assessments, prev.Assessments)
	inheritList(m.Discussions, prev.Discussions)
	inheritList(m.ContentItems, prev.ContentItems)

	byID := make(map[string]string, len(prev.Quizzes))
	for _, q := range prev.Quizzes {
		byID[q.ID] = q.Key
	}
	for i := range m.Quizzes {
		if m.Quizzes[i].Key == "" {
			m.Quizzes[i].Key = byID[m.Quizzes[i].ID]
		}
	}
}

func inheritList(items, prev []domain.ContentItem) {
	for i := range items {
		if items[i].Key == "" && i < len(prev) && prev[i].Title == items[i].Title {
			items[i].Key = prev[i].Key
		}
	}
}
