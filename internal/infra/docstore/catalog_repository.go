package docstore

import (
	"context"

	"learning-progress-service/internal/domain"
)

// CourseRepository reads and writes course documents, including their embedded progress.
type CourseRepository struct {
	store Store
}

func NewCourseRepository(store Store) *CourseRepository {
	return &CourseRepository{store: store}
}

func (r *CourseRepository) GetCourse(ctx context.Context, id string) (domain.Course, error) {
	doc, err := r.store.Get(ctx, id)
	if err != nil {
		return domain.Course{}, translate(err, domain.ErrCourseNotFound)
	}
	var c domain.Course
	if err := decode(doc, TypeCourse, &c, domain.ErrCourseNotFound); err != nil {
		return domain.Course{}, err
	}
	c.Rev = doc.Rev
	return c, nil
}

// PutCourse writes c against c.Rev; an empty Rev creates the course.
func (r *CourseRepository) PutCourse(ctx context.Context, c domain.Course) (domain.Course, error) {
	doc, err := encode(c.ID, TypeCourse, c.Rev, c, nil)
	if err != nil {
		return domain.Course{}, err
	}
	saved, err := r.store.Put(ctx, doc)
	if err != nil {
		return domain.Course{}, err
	}
	c.Rev = saved.Rev
	return c, nil
}

// ModuleRepository reads and writes module documents.
type ModuleRepository struct {
	store Store
}

func NewModuleRepository(store Store) *ModuleRepository {
	return &ModuleRepository{store: store}
}

func (r *ModuleRepository) GetModule(ctx context.Context, id string) (domain.Module, error) {
	doc, err := r.store.Get(ctx, id)
	if err != nil {
		return domain.Module{}, translate(err, domain.ErrModuleNotFound)
	}
	var m domain.Module
	if err := decode(doc, TypeModule, &m, domain.ErrModuleNotFound); err != nil {
		return domain.Module{}, err
	}
	m.Rev = doc.Rev
	return m, nil
}

// PutModule writes m against m.Rev; an empty Rev creates the module.
func (r *ModuleRepository) PutModule(ctx context.Context, m domain.Module) (domain.Module, error) {
	doc, err := encode(m.ID, TypeModule, m.Rev, m, map[string]string{"courseId": m.CourseID})
	if err != nil {
		return domain.Module{}, err
	}
	saved, err := r.store.Put(ctx, doc)
	if err != nil {
		return domain.Module{}, err
	}
	m.Rev = saved.Rev
	return m, nil
}
